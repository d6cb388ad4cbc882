package ports

import (
	"context"

	"quantbacktest/internal/domain"
)

// SignalProvider maps a window of historical bars to a set of ranked
// candidate signals. Implementations must be pure and deterministic for the
// same window, must not mutate the window, and must not look past its last
// bar. A provider that returns an error (or panics) is treated by the engine
// as having produced zero signals for that bar.
type SignalProvider interface {
	// Name returns the provider's source tag, attached to its signals.
	Name() string

	// RequiredBars returns the minimum window length the provider needs.
	RequiredBars() int

	// Provide analyzes the window and returns zero or more candidate signals.
	// The last bar of the window is the current bar.
	Provide(ctx context.Context, window []*domain.Bar) ([]domain.CandidateSignal, error)
}
