package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"quantbacktest/config"
	"quantbacktest/internal/adapters/logger"
	"quantbacktest/internal/adapters/sqlite"
	"quantbacktest/internal/domain"
	"quantbacktest/internal/ports"
	"quantbacktest/internal/strategy/analytics"
	"quantbacktest/internal/strategy/backtesting"
	"quantbacktest/internal/strategy/comparison"
	"quantbacktest/internal/strategy/montecarlo"
	"quantbacktest/internal/strategy/portfolio"
	"quantbacktest/internal/strategy/providers"
	"quantbacktest/internal/utils"
)

func main() {
	dataFile := flag.String("data", "", "CSV file with bars (falls back to the sqlite cache when empty)")
	days := flag.Int("days", 365, "days of history to load from the cache")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.LogLevel)
	ctx := context.Background()

	bars, err := loadBars(ctx, cfg, appLogger, *dataFile, *days)
	if err != nil {
		appLogger.Error(ctx, err, "Failed to load bars")
		log.Fatalf("FATAL: Failed to load bars: %v", err)
	}
	appLogger.Info(ctx, "Loaded bars", map[string]interface{}{
		"count":    len(bars),
		"symbol":   cfg.Symbol,
		"interval": cfg.Interval,
	})

	strategies, err := buildStrategies()
	if err != nil {
		log.Fatalf("FATAL: Failed to build strategies: %v", err)
	}

	// 1. Single run with the combined strategy, full history.
	engine, err := backtesting.NewEngine(cfg.Backtest(), strategies[len(strategies)-1].Providers, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to build engine: %v", err)
	}
	result, err := engine.Run(ctx, bars)
	if err != nil {
		log.Fatalf("FATAL: Backtest failed: %v", err)
	}
	report := analytics.Analyze(result.Trades, result.EquityCurve, cfg.InitialCapital, cfg.RiskFreeRate)
	printReport(result, report)

	// 2. Compare strategies across lookback windows.
	comparator, err := comparison.NewComparator(cfg.Backtest(), cfg.LookbackWindows, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to build comparator: %v", err)
	}
	comparator.SetRegimeSeed(cfg.Seed)
	compared, err := comparator.Compare(ctx, strategies, bars)
	if err != nil {
		appLogger.Error(ctx, err, "Strategy comparison failed")
	} else {
		printComparison(compared)
	}

	// 3. Monte Carlo robustness of the combined strategy.
	sim, err := montecarlo.NewSimulator(montecarlo.Config{
		Trials:    cfg.MonteCarloTrials,
		Variation: cfg.MonteCarloVariation,
		Seed:      cfg.Seed,
	}, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to build simulator: %v", err)
	}
	mc, err := sim.Run(ctx, cfg.Backtest(), strategies[len(strategies)-1].Providers, bars)
	if err != nil {
		appLogger.Error(ctx, err, "Monte Carlo simulation failed")
	} else {
		printMonteCarlo(mc)
	}

	// 4. Allocate across strategies using the comparison results.
	if compared != nil {
		assets := portfolio.FromComparison(compared.Strategies)
		if len(assets) > 0 {
			alloc, err := portfolio.Optimize(assets, nil, portfolio.Config{
				RiskFreeRate: cfg.RiskFreeRate,
				Seed:         cfg.Seed,
			})
			if err != nil {
				appLogger.Error(ctx, err, "Portfolio optimization failed")
			} else {
				printAllocation(alloc)
			}
		}
	}
}

func loadBars(ctx context.Context, cfg *config.Config, appLogger ports.Logger, dataFile string, days int) ([]*domain.Bar, error) {
	if dataFile != "" {
		return utils.ReadBarsFromCSV(dataFile)
	}

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	end := time.Now()
	start := end.AddDate(0, 0, -days)
	return repo.FindRange(ctx, cfg.Symbol, cfg.Interval, start, end)
}

func buildStrategies() ([]comparison.Strategy, error) {
	crossover, err := providers.NewMACrossover(providers.MACrossoverConfig{})
	if err != nil {
		return nil, err
	}
	reversal, err := providers.NewRSIReversal(providers.RSIReversalConfig{})
	if err != nil {
		return nil, err
	}
	return []comparison.Strategy{
		{Name: "ma_crossover", Providers: []ports.SignalProvider{crossover}},
		{Name: "rsi_reversal", Providers: []ports.SignalProvider{reversal}},
		{Name: "combined", Providers: []ports.SignalProvider{crossover, reversal}},
	}, nil
}

func printReport(result *backtesting.Result, report *analytics.Report) {
	fmt.Println("=== Backtest Report ===")
	fmt.Printf("Period:            %s to %s\n", result.StartTime.Format("2006-01-02"), result.EndTime.Format("2006-01-02"))
	fmt.Printf("Initial capital:   %.2f\n", report.InitialCapital)
	fmt.Printf("Final equity:      %.2f\n", report.FinalEquity)
	fmt.Printf("Total return:      %.2f (%.2f%%)\n", report.TotalReturn, report.TotalReturnPct*100)
	fmt.Printf("Annualized return: %.2f%%\n", report.AnnualizedReturn*100)
	fmt.Printf("Trades:            %d (W %d / L %d / P %d)\n", report.TotalTrades, report.Wins, report.Losses, report.Pushes)
	fmt.Printf("Win rate:          %.2f%%\n", report.WinRate*100)
	fmt.Printf("Profit factor:     %.2f\n", report.ProfitFactor)
	fmt.Printf("Sharpe:            %.3f\n", report.Sharpe)
	switch report.SortinoState {
	case analytics.SortinoDefined:
		fmt.Printf("Sortino:           %.3f\n", report.Sortino)
	case analytics.SortinoNoDownside:
		fmt.Println("Sortino:           no downside periods")
	default:
		fmt.Println("Sortino:           undefined")
	}
	fmt.Printf("Max drawdown:      %.2f%%\n", report.MaxDrawdown*100)
	fmt.Printf("Calmar:            %.3f\n", report.Calmar)
	fmt.Printf("VaR 95 / CVaR 95:  %.4f / %.4f\n", report.VaR95, report.CVaR95)
	fmt.Printf("Kelly:             %.3f\n", report.Kelly)
	if result.MarginCalled {
		fmt.Println("WARNING: margin requirement was breached during the run")
	}
	fmt.Println()
}

func printComparison(res *comparison.ComparativeBacktestResult) {
	fmt.Println("=== Strategy Comparison ===")
	fmt.Printf("Windows (days): %v\n", res.Windows)
	for rank, sr := range res.Strategies {
		fmt.Printf("%d. %-14s composite=%.4f riskAdj=%.4f consistency=%.4f regime=%.4f\n",
			rank+1, sr.Name, sr.Composite, sr.RiskAdjusted, sr.Consistency, sr.RegimeScore)
	}
	fmt.Println()
}

func printMonteCarlo(res *montecarlo.Result) {
	fmt.Println("=== Monte Carlo ===")
	fmt.Printf("Trials:        %d (%d failed)\n", res.Trials, res.Failed)
	fmt.Printf("Mean return:   %.2f%% (stdev %.2f%%)\n", res.MeanReturn*100, res.StdevReturn*100)
	fmt.Printf("P5 / P95:      %.2f%% / %.2f%%\n", res.P5Return*100, res.P95Return*100)
	fmt.Printf("Best / Worst:  %.2f%% / %.2f%%\n", res.BestReturn*100, res.WorstReturn*100)
	fmt.Printf("Success rate:  %.2f%%\n", res.SuccessRate*100)
	fmt.Printf("Mean Sharpe:   %.3f\n", res.MeanSharpe)
	fmt.Printf("Worst drawdown: %.2f%%\n", res.WorstDrawdown*100)
	fmt.Println()
}

func printAllocation(alloc *portfolio.Allocation) {
	fmt.Println("=== Portfolio Allocation ===")
	for i, asset := range alloc.Assets {
		fmt.Printf("%-14s weight=%.4f expReturn=%.2f%% vol=%.2f%%\n",
			asset.Name, alloc.Weights[i], asset.ExpectedReturn*100, asset.Volatility*100)
	}
	fmt.Printf("Portfolio: return=%.2f%% vol=%.2f%% sharpe=%.3f\n",
		alloc.Return*100, alloc.Volatility*100, alloc.Sharpe)
	fmt.Printf("Max-Sharpe sample: return=%.2f%% vol=%.2f%% sharpe=%.3f\n",
		alloc.MaxSharpe.Return*100, alloc.MaxSharpe.Volatility*100, alloc.MaxSharpe.Sharpe)
}
