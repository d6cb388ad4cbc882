package backtesting

import (
	"fmt"
	"strings"
	"time"

	"quantbacktest/internal/domain"
)

// Config holds the immutable parameters of one backtest run. A Config is
// owned for the duration of a run and never mutated mid-run; cloned, adjusted
// copies are used for Monte Carlo perturbation.
type Config struct {
	Symbol   string
	Interval string // Bar interval (e.g., "1h"); used to annualize volatility

	// Capital
	InitialCapital float64
	// RiskPerTrade is the fraction of capital risked per trade, in (0, 1].
	RiskPerTrade float64
	// Compounding sizes positions off realized capital instead of the
	// initial capital.
	Compounding bool

	// Cost model coefficients
	CommissionRate float64 // Base commission rate before tier discounts
	SlippageCoeff  float64
	ImpactCoeff    float64
	LiquidityCoeff float64
	LatencySeconds float64 // Latency window used by the latency cost term

	// Entry filters
	MinConfidence float64 // Minimum signal confidence (0..100) to open
	MinRiskReward float64 // Minimum reward-to-risk ratio to open (0 disables)
	// DefaultStopPct is applied when a signal carries no stop suggestion
	// (the matching take-profit is placed at twice the stop distance).
	DefaultStopPct float64

	// Constraints
	MaxOpenPositions int
	// MaxDrawdown suspends new entries while the running drawdown exceeds
	// this fraction. 0 disables the limit.
	MaxDrawdown float64
	// HoldLimit closes any trade held longer than this duration.
	HoldLimit time.Duration

	// Leverage / margin
	UseLeverage bool
	Leverage    float64
	// MarginRequirement flags a margin event when equity falls below
	// initialCapital times this fraction. Only checked when UseLeverage is set.
	MarginRequirement float64

	// WarmupBars is the number of bars consumed before any signal is
	// solicited, avoiding look-ahead bias on indicator warm-up.
	WarmupBars int

	// RiskFreeRate is the annual risk-free rate used by performance metrics.
	RiskFreeRate float64
}

// Exit thresholds shared by every run.
const (
	// signalExitConfidence is the minimum confidence (0..100) an opposing
	// signal needs to force an exit.
	signalExitConfidence = 80.0

	// volatilityLookback is the trailing window, in bars, for the
	// cost model's volatility and volume estimates.
	volatilityLookback = 20
)

// DefaultConfig returns a runnable configuration with conservative defaults.
func DefaultConfig() Config {
	return Config{
		Symbol:            "ETHUSDT",
		Interval:          "1h",
		InitialCapital:    10000,
		RiskPerTrade:      0.01,
		Compounding:       true,
		CommissionRate:    0.001,
		SlippageCoeff:     1.0,
		ImpactCoeff:       1.0,
		LiquidityCoeff:    1.0,
		LatencySeconds:    0.5,
		MinConfidence:     60,
		MinRiskReward:     1.0,
		DefaultStopPct:    0.02,
		MaxOpenPositions:  1,
		MaxDrawdown:       0.25,
		HoldLimit:         7 * 24 * time.Hour,
		UseLeverage:       false,
		Leverage:          1,
		MarginRequirement: 0.25,
		WarmupBars:        50,
		RiskFreeRate:      0.02,
	}
}

// Validate rejects invalid configurations up front rather than silently
// clamping them mid-run.
func (c Config) Validate() error {
	var errs []string
	if c.InitialCapital <= 0 {
		errs = append(errs, "initial capital must be positive")
	}
	if c.RiskPerTrade <= 0 || c.RiskPerTrade > 1 {
		errs = append(errs, "risk per trade must be within (0, 1]")
	}
	if c.CommissionRate < 0 || c.SlippageCoeff < 0 || c.ImpactCoeff < 0 || c.LiquidityCoeff < 0 {
		errs = append(errs, "cost coefficients cannot be negative")
	}
	if c.LatencySeconds < 0 {
		errs = append(errs, "latency window cannot be negative")
	}
	if c.MaxOpenPositions < 1 {
		errs = append(errs, "max open positions must be at least 1")
	}
	if c.MaxDrawdown < 0 || c.MaxDrawdown > 1 {
		errs = append(errs, "max drawdown must be within [0, 1]")
	}
	if c.HoldLimit <= 0 {
		errs = append(errs, "hold limit must be positive")
	}
	if c.UseLeverage {
		if c.Leverage < 1 {
			errs = append(errs, "leverage must be at least 1")
		}
		if c.MarginRequirement <= 0 || c.MarginRequirement >= 1 {
			errs = append(errs, "margin requirement must be within (0, 1)")
		}
	}
	if c.WarmupBars < 0 {
		errs = append(errs, "warm-up bars cannot be negative")
	}
	if c.DefaultStopPct <= 0 || c.DefaultStopPct >= 1 {
		errs = append(errs, "default stop percentage must be within (0, 1)")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid backtest config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Result is the full report of one backtest run: the closed-trade ledger, the
// equity curve, and run metadata. Produced once per run, immutable after.
type Result struct {
	Symbol         string
	StartTime      time.Time
	EndTime        time.Time
	InitialCapital float64
	FinalCapital   float64 // Realized capital after all trades closed
	FinalEquity    float64 // Last equity curve sample

	Trades      []*domain.Trade // Closed trades, chronological
	EquityCurve []domain.EquityPoint

	// MarginCalled is set when equity dipped below the margin requirement at
	// any point. Liquidation is reported, never executed.
	MarginCalled bool
	// ProviderFailures counts signal provider errors that were recovered and
	// excluded from candidate sets.
	ProviderFailures int
	BarsProcessed    int
}

// TotalReturn returns the run's net profit in currency terms.
func (r *Result) TotalReturn() float64 {
	return r.FinalCapital - r.InitialCapital
}

// TotalReturnPct returns the run's net profit as a fraction of initial capital.
func (r *Result) TotalReturnPct() float64 {
	if r.InitialCapital == 0 {
		return 0
	}
	return r.TotalReturn() / r.InitialCapital
}
