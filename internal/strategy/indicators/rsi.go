package indicators

import (
	"context"
	"fmt"

	"quantbacktest/internal/domain"
)

// RSIConfig holds configuration for the RSI indicator.
type RSIConfig struct {
	IndicatorConfig
	Overbought float64
	Oversold   float64
}

// RSI implements the Relative Strength Index.
type RSI struct {
	BaseIndicator
	config RSIConfig
}

func NewRSI(config RSIConfig) *RSI {
	return &RSI{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

func (r *RSI) Name() string {
	return "RSI"
}

// Calculate computes RSI using Wilder's smoothing.
func (r *RSI) Calculate(ctx context.Context, bars []*domain.Bar) (float64, error) {
	if len(bars) <= r.Config.Period {
		return 0, fmt.Errorf("not enough data (%d) to calculate RSI for period %d", len(bars), r.Config.Period)
	}

	changes := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		changes = append(changes, bars[i].Close-bars[i-1].Close)
	}

	// Seed the averages with a simple mean over the first period.
	var avgGain, avgLoss float64
	for i := 0; i < r.Config.Period; i++ {
		if changes[i] > 0 {
			avgGain += changes[i]
		} else {
			avgLoss -= changes[i]
		}
	}
	avgGain /= float64(r.Config.Period)
	avgLoss /= float64(r.Config.Period)

	for i := r.Config.Period; i < len(changes); i++ {
		if changes[i] > 0 {
			avgGain = (avgGain*float64(r.Config.Period-1) + changes[i]) / float64(r.Config.Period)
			avgLoss = (avgLoss * float64(r.Config.Period-1)) / float64(r.Config.Period)
		} else {
			avgGain = (avgGain * float64(r.Config.Period-1)) / float64(r.Config.Period)
			avgLoss = (avgLoss*float64(r.Config.Period-1) - changes[i]) / float64(r.Config.Period)
		}
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, nil
		}
		return 100, nil
	}

	rs := avgGain / avgLoss
	rsi := 100 - (100 / (1 + rs))
	if rsi > 100 {
		rsi = 100
	} else if rsi < 0 {
		rsi = 0
	}
	return rsi, nil
}

// IsOverbought reports whether the value is at or above the configured level.
func (r *RSI) IsOverbought(value float64) bool {
	return value >= r.config.Overbought
}

// IsOversold reports whether the value is at or below the configured level.
func (r *RSI) IsOversold(value float64) bool {
	return value <= r.config.Oversold
}
