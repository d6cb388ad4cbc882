package ports

import (
	"context"
	"time"

	"quantbacktest/internal/domain"
)

// MarketDataSource supplies chronologically ordered, gap-tolerant historical
// bars for a symbol/interval. The backtesting core performs no fetching
// itself; all bars must be materialized before a run starts.
type MarketDataSource interface {
	// GetBars retrieves up to limit of the most recent bars.
	GetBars(ctx context.Context, symbol, interval string, limit int) ([]*domain.Bar, error)

	// GetBarsRange retrieves all bars between start and end (inclusive),
	// paging through the source as needed.
	GetBarsRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Bar, error)
}
