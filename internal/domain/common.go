package domain

// Direction represents the direction of a candidate signal or trade (BUY, SELL or HOLD).
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
	Hold Direction = "HOLD"
)

// Opposes reports whether two directions are on opposite sides of the market.
func (d Direction) Opposes(other Direction) bool {
	return (d == Buy && other == Sell) || (d == Sell && other == Buy)
}

// TradeStatus represents the status of a simulated trade.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "open"
	StatusClosed TradeStatus = "closed"
)

// ExitReason indicates why a trade was closed. Exit conditions are evaluated
// in a fixed priority order each bar; the constants are listed in that order.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitSignal     ExitReason = "SIGNAL"
	ExitTimeLimit  ExitReason = "TIME_LIMIT"
	ExitEndOfData  ExitReason = "END_OF_DATA"
)

// TradeOutcome classifies a closed trade for performance accounting.
type TradeOutcome string

const (
	// OutcomeWin is a profitable trade with a risk-adjusted return of at least 1.
	OutcomeWin TradeOutcome = "win"
	// OutcomePartialWin is profitable but returned less than the risk taken.
	OutcomePartialWin TradeOutcome = "partial_win"
	OutcomeLoss       TradeOutcome = "loss"
	// OutcomePush is a trade whose net P&L is smaller in magnitude than its
	// total transaction cost; the move was dominated by costs.
	OutcomePush TradeOutcome = "push"
)

// Profitable reports whether the outcome counts as a winning trade.
func (o TradeOutcome) Profitable() bool {
	return o == OutcomeWin || o == OutcomePartialWin
}
