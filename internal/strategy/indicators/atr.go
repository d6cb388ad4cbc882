package indicators

import (
	"context"
	"fmt"
	"math"

	"quantbacktest/internal/domain"
)

// ATRConfig holds configuration for the Average True Range indicator.
type ATRConfig struct {
	IndicatorConfig
}

// ATR implements the Average True Range.
type ATR struct {
	BaseIndicator
	config ATRConfig
}

func NewATR(config ATRConfig) *ATR {
	return &ATR{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

func (a *ATR) Name() string {
	return "ATR"
}

// Calculate computes ATR with Wilder's smoothing over the full window.
func (a *ATR) Calculate(ctx context.Context, bars []*domain.Bar) (float64, error) {
	period := a.Config.Period
	if len(bars) < period+1 {
		return 0, fmt.Errorf("not enough data points for ATR calculation: need %d, got %d", period+1, len(bars))
	}

	trueRanges := make([]float64, len(bars))
	trueRanges[0] = bars[0].High - bars[0].Low
	for i := 1; i < len(bars); i++ {
		high := bars[i].High
		low := bars[i].Low
		prevClose := bars[i-1].Close

		// True range is the widest of the bar range and the gaps from the
		// previous close.
		tr := high - low
		if gap := math.Abs(high - prevClose); gap > tr {
			tr = gap
		}
		if gap := math.Abs(low - prevClose); gap > tr {
			tr = gap
		}
		trueRanges[i] = tr
	}

	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trueRanges[i]
	}
	atr /= float64(period)

	for i := period; i < len(bars); i++ {
		atr = (atr*float64(period-1) + trueRanges[i]) / float64(period)
	}
	return atr, nil
}
