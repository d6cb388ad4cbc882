package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"quantbacktest/config"
	"quantbacktest/internal/adapters/binanceclient"
	"quantbacktest/internal/adapters/logger"
	"quantbacktest/internal/adapters/sqlite"
	"quantbacktest/internal/utils"
)

func main() {
	months := flag.Int("months", 3, "months of history to fetch")
	csvOut := flag.String("csv", "", "also write the fetched bars to this CSV file")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.LogLevel)
	ctx := context.Background()

	client, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	end := time.Now()
	start := end.AddDate(0, -*months, 0)

	appLogger.Info(ctx, "Fetching bars", map[string]interface{}{
		"symbol":   cfg.Symbol,
		"interval": cfg.Interval,
		"start":    start.Format("2006-01-02"),
		"end":      end.Format("2006-01-02"),
	})
	bars, err := client.GetBarsRange(ctx, cfg.Symbol, cfg.Interval, start, end)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching bars")
		log.Fatalf("FATAL: Error fetching bars: %v", err)
	}
	appLogger.Info(ctx, "Fetched bars", map[string]interface{}{"count": len(bars)})

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open bar cache: %v", err)
	}
	defer repo.Close()

	if err := repo.SaveBars(ctx, bars); err != nil {
		appLogger.Error(ctx, err, "Error caching bars")
		log.Fatalf("FATAL: Error caching bars: %v", err)
	}
	appLogger.Info(ctx, "Cached bars", map[string]interface{}{"path": cfg.DBPath})

	if *csvOut != "" {
		if err := utils.WriteBarsToCSV(bars, *csvOut); err != nil {
			appLogger.Error(ctx, err, "Error writing CSV")
			log.Fatalf("FATAL: Error writing CSV: %v", err)
		}
		fmt.Printf("Wrote %d bars to %s\n", len(bars), *csvOut)
	}
}
