package risk

import (
	"fmt"
	"math"

	"quantbacktest/internal/domain"
)

// SizerConfig holds configuration for risk-based position sizing.
type SizerConfig struct {
	// RiskPerTrade is the fraction of capital risked per trade, in (0, 1].
	RiskPerTrade float64
	// MaxPositionFraction caps any single position's notional as a fraction
	// of capital. Defaults to 0.20.
	MaxPositionFraction float64
	// KellyFraction scales the Kelly criterion cap applied when a signal
	// carries historical win statistics. Defaults to 0.25 (quarter Kelly).
	KellyFraction float64
}

// Sizer converts account capital, risk tolerance and a candidate signal into
// an executable trade quantity.
type Sizer struct {
	config SizerConfig
}

// NewSizer creates a new position sizer, validating its configuration.
func NewSizer(config SizerConfig) (*Sizer, error) {
	if config.RiskPerTrade <= 0 || config.RiskPerTrade > 1 {
		return nil, fmt.Errorf("risk per trade %f must be within (0, 1]", config.RiskPerTrade)
	}
	if config.MaxPositionFraction == 0 {
		config.MaxPositionFraction = 0.20
	}
	if config.MaxPositionFraction < 0 || config.MaxPositionFraction > 1 {
		return nil, fmt.Errorf("max position fraction %f must be within [0, 1]", config.MaxPositionFraction)
	}
	if config.KellyFraction == 0 {
		config.KellyFraction = 0.25
	}
	if config.KellyFraction < 0 || config.KellyFraction > 1 {
		return nil, fmt.Errorf("kelly fraction %f must be within [0, 1]", config.KellyFraction)
	}
	return &Sizer{config: config}, nil
}

// Quantity returns the executable trade quantity for the signal at the given
// price, or 0 when the trade must be rejected (non-positive capital or zero
// stop distance). The quantity is floored to 2 decimal places.
func (s *Sizer) Quantity(capital, price float64, signal domain.CandidateSignal) float64 {
	if capital <= 0 || price <= 0 {
		return 0
	}
	stopDistance := math.Abs(price - signal.StopLoss)
	if stopDistance == 0 || signal.StopLoss <= 0 {
		return 0
	}

	riskAmount := capital * s.config.RiskPerTrade
	quantity := riskAmount / stopDistance

	// Fractional-Kelly cap when the signal carries historical stats.
	if signal.Stats != nil && signal.Stats.AvgWin > 0 {
		p := signal.Stats.WinRate
		kelly := (p*signal.Stats.AvgWin - (1-p)*signal.Stats.AvgLoss) / signal.Stats.AvgWin
		kellyCap := capital * math.Max(0, kelly*s.config.KellyFraction) / price
		quantity = math.Min(quantity, kellyCap)
	}

	// Hard ceiling: no single position exceeds the capital fraction cap.
	ceiling := capital * s.config.MaxPositionFraction / price
	quantity = math.Min(quantity, ceiling)

	return math.Floor(quantity*100) / 100
}
