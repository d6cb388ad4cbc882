package ports

import (
	"context"
	"time"

	"quantbacktest/internal/domain"
)

// BarRepository defines the interface for caching historical bars locally so
// backtests are reproducible without refetching from the exchange.
type BarRepository interface {
	// SaveBars upserts a batch of bars. Bars with an existing
	// (symbol, interval, open time) key are replaced.
	SaveBars(ctx context.Context, bars []*domain.Bar) error

	// FindRange retrieves cached bars for the symbol/interval between start
	// and end (inclusive), ordered by open time ascending.
	FindRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Bar, error)

	// LatestOpenTime returns the open time of the most recent cached bar for
	// the symbol/interval, or ErrNotFound when the cache holds nothing.
	LatestOpenTime(ctx context.Context, symbol, interval string) (time.Time, error)
}
