package domain

import "time"

// CostBreakdown holds the five execution cost components charged against a
// trade. All components are non-negative currency amounts.
type CostBreakdown struct {
	Commission float64
	Slippage   float64
	Impact     float64
	Liquidity  float64
	Latency    float64
}

// Total returns the sum of all cost components.
func (c CostBreakdown) Total() float64 {
	return c.Commission + c.Slippage + c.Impact + c.Liquidity + c.Latency
}

// Trade represents one unit of simulated exposure. A trade is created open,
// mutated exactly once at close (exit price/time/reason/P&L), and then
// appended to the closed-trade ledger. Quantity is fixed at open.
type Trade struct {
	ID         string      // Unique identifier (UUID)
	Symbol     string      // Trading symbol
	Direction  Direction   // BUY or SELL
	EntryPrice float64     // Price at which the trade was entered
	ExitPrice  float64     // Price at which the trade was exited (0 while open)
	Quantity   float64     // Size of the trade, fixed at open
	StopLoss   float64     // Stop-loss level
	TakeProfit float64     // Take-profit level (0 if none)
	EntryTime  time.Time   // Timestamp of the entry bar
	ExitTime   time.Time   // Timestamp of the exit bar (zero while open)
	Status     TradeStatus // open or closed
	Costs      CostBreakdown
	PNL        float64      // Net profit and loss, written once at close
	ExitReason ExitReason   // Why the trade was closed
	Outcome    TradeOutcome // Classification, written once at close
	Source     string       // Provider that originated the entry signal
}

// IsOpen reports whether the trade has not been closed yet.
func (t *Trade) IsOpen() bool {
	return t.Status == StatusOpen
}

// GrossPNL returns the direction-adjusted P&L before costs at the given price.
func (t *Trade) GrossPNL(price float64) float64 {
	if t.Direction == Sell {
		return (t.EntryPrice - price) * t.Quantity
	}
	return (price - t.EntryPrice) * t.Quantity
}

// UnrealizedPNL returns the net P&L of an open trade marked at the given
// price, with the trade's accumulated costs already deducted.
func (t *Trade) UnrealizedPNL(price float64) float64 {
	return t.GrossPNL(price) - t.Costs.Total()
}
