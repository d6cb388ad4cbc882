package backtesting

import (
	"math"

	"quantbacktest/internal/domain"
)

// CostModel converts a trade's notional size and current market conditions
// into the five execution cost components. It is a pure value built from the
// run config; it has no state and no side effects.
type CostModel struct {
	commissionRate float64
	slippageCoeff  float64
	impactCoeff    float64
	liquidityCoeff float64
	latencySeconds float64
}

// NewCostModel builds a cost model from the run configuration.
func NewCostModel(cfg Config) CostModel {
	return CostModel{
		commissionRate: cfg.CommissionRate,
		slippageCoeff:  cfg.SlippageCoeff,
		impactCoeff:    cfg.ImpactCoeff,
		liquidityCoeff: cfg.LiquidityCoeff,
		latencySeconds: cfg.LatencySeconds,
	}
}

// Commission rate tiers by notional size.
const (
	commissionTier1 = 100_000
	commissionTier2 = 1_000_000
	commissionTier3 = 10_000_000
)

// Assess returns the cost breakdown for executing a trade of the given
// notional size. volatility is the trailing annualized standard deviation of
// returns, 0 when unavailable; avgVolume is the trailing average notional
// volume per bar, 0 when unavailable.
func (m CostModel) Assess(notional, volatility, avgVolume float64) domain.CostBreakdown {
	if notional <= 0 {
		return domain.CostBreakdown{}
	}

	participation := 0.0
	if avgVolume > 0 {
		participation = notional / avgVolume
	}

	// Square-root market-impact law, capped at full participation.
	slippageRate := m.slippageCoeff * math.Sqrt(math.Min(participation, 1)) * 0.01
	impactRate := m.impactCoeff * math.Sqrt(notional/100_000) * 0.0001
	liquidityRate := m.liquidityCoeff * (1 + 2*participation) * 0.001

	latency := 0.0
	if volatility > 0 {
		latency = notional * volatility * math.Sqrt(m.latencySeconds) * 0.1
	}

	return domain.CostBreakdown{
		Commission: m.commissionRate * tierMultiplier(notional) * notional,
		Slippage:   slippageRate * notional,
		Impact:     impactRate * notional,
		Liquidity:  liquidityRate * notional,
		Latency:    latency,
	}
}

// tierMultiplier returns the commission discount for the notional size: the
// full rate below 100k, 60% at or above 100k, 40% at 1M, 20% at 10M.
func tierMultiplier(notional float64) float64 {
	switch {
	case notional >= commissionTier3:
		return 0.20
	case notional >= commissionTier2:
		return 0.40
	case notional >= commissionTier1:
		return 0.60
	default:
		return 1.0
	}
}
