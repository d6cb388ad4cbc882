package domain

import "time"

// EquityPoint is one sample of the equity curve, taken once per bar.
// Drawdown is the fractional decline from the running equity peak and is
// always within [0, 1].
type EquityPoint struct {
	Time     time.Time
	Equity   float64
	Drawdown float64
}
