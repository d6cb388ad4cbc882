package indicators

import (
	"context"

	"quantbacktest/internal/domain"
)

// Indicator computes a single value from a trailing bar window.
type Indicator interface {
	// Calculate computes the indicator value over the given bars.
	Calculate(ctx context.Context, bars []*domain.Bar) (float64, error)

	// RequiredDataPoints returns the minimum number of bars needed.
	RequiredDataPoints() int

	// Name returns the indicator's name.
	Name() string
}

// IndicatorConfig holds common configuration for indicators.
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides the shared period plumbing.
type BaseIndicator struct {
	Config IndicatorConfig
}

func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}
