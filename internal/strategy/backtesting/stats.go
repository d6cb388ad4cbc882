package backtesting

import (
	"math"

	"quantbacktest/internal/domain"
)

// annualizedVolatility estimates the trailing standard deviation of
// bar-over-bar returns, annualized by the square root of bars per year.
// Returns 0 when fewer than 2 trailing returns are available.
func annualizedVolatility(bars []*domain.Bar, lookback int, perYear float64) float64 {
	start := len(bars) - lookback - 1
	if start < 0 {
		start = 0
	}
	closes := bars[start:]

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1].Close
		if prev == 0 {
			continue
		}
		returns = append(returns, closes[i].Close/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance) * math.Sqrt(perYear)
}

// averageNotionalVolume returns the trailing mean of per-bar notional volume
// (volume times close), or 0 when no bars are available.
func averageNotionalVolume(bars []*domain.Bar, lookback int) float64 {
	start := len(bars) - lookback
	if start < 0 {
		start = 0
	}
	window := bars[start:]
	if len(window) == 0 {
		return 0
	}

	sum := 0.0
	for _, b := range window {
		sum += b.Volume * b.Close
	}
	return sum / float64(len(window))
}

// barsPerYear maps a bar interval to the number of bars in a year, used for
// annualizing volatility. Unknown intervals fall back to hourly.
func barsPerYear(interval string) float64 {
	switch interval {
	case "1m":
		return 365 * 24 * 60
	case "5m":
		return 365 * 24 * 12
	case "15m":
		return 365 * 24 * 4
	case "30m":
		return 365 * 24 * 2
	case "1h":
		return 365 * 24
	case "4h":
		return 365 * 6
	case "1d":
		return 365
	default:
		return 365 * 24
	}
}
