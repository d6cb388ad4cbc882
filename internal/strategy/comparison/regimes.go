package comparison

import (
	"math/rand"
	"time"

	"quantbacktest/internal/domain"
)

// regimeBars is the length of each synthetic regime series.
const regimeBars = 300

// regimeParams drive the geometric random walk for one market regime.
type regimeParams struct {
	drift float64 // mean per-bar return
	noise float64 // per-bar return standard deviation
}

// The four canonical regimes a strategy is stress-tested against.
var regimeCatalog = map[string]regimeParams{
	"uptrend":   {drift: 0.002, noise: 0.005},
	"downtrend": {drift: -0.002, noise: 0.005},
	"sideways":  {drift: 0, noise: 0.003},
	"volatile":  {drift: 0, noise: 0.02},
}

// syntheticRegimes generates one deterministic bar series per regime. The
// same seed always yields the same series, so regime scores are reproducible
// across runs.
func syntheticRegimes(seed int64, length int, interval, symbol string) map[string][]*domain.Bar {
	series := make(map[string][]*domain.Bar, len(regimeCatalog))
	offset := int64(0)
	for _, kind := range []string{"uptrend", "downtrend", "sideways", "volatile"} {
		params := regimeCatalog[kind]
		series[kind] = generateSeries(seed+offset, length, interval, symbol, params)
		offset++
	}
	return series
}

// generateSeries walks a price path from 100 with the regime's drift and
// noise, deriving plausible OHLC and volume per bar.
func generateSeries(seed int64, length int, interval, symbol string, params regimeParams) []*domain.Bar {
	rng := rand.New(rand.NewSource(seed))
	step := intervalDuration(interval)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	bars := make([]*domain.Bar, 0, length)
	price := 100.0
	for i := 0; i < length; i++ {
		ret := params.drift + rng.NormFloat64()*params.noise
		open := price
		close := price * (1 + ret)

		high := open
		if close > high {
			high = close
		}
		high *= 1 + rng.Float64()*params.noise

		low := open
		if close < low {
			low = close
		}
		low *= 1 - rng.Float64()*params.noise

		openTime := start.Add(time.Duration(i) * step)
		bars = append(bars, &domain.Bar{
			OpenTime:  openTime,
			CloseTime: openTime.Add(step),
			Symbol:    symbol,
			Interval:  interval,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    1000 + rng.Float64()*500,
		})
		price = close
	}
	return bars
}

// intervalDuration maps a bar interval string to its duration. Unknown
// intervals fall back to hourly.
func intervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Hour
	}
}
