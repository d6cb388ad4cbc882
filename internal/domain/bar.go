package domain

import "time"

// Bar represents a single OHLCV observation for a symbol/timeframe.
// Bars are immutable once produced and owned by the caller supplying
// historical data; a backtest run must never mutate them.
type Bar struct {
	OpenTime  time.Time // Start time of the interval
	CloseTime time.Time // End time of the interval
	Symbol    string    // Trading symbol
	Interval  string    // Bar interval (e.g., "1m", "1h")
	Open      float64   // Opening price
	High      float64   // Highest price
	Low       float64   // Lowest price
	Close     float64   // Closing price
	Volume    float64   // Traded volume over the interval
}
