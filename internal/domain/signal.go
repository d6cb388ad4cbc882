package domain

// SignalStats carries optional historical performance statistics a signal
// provider may attach to its signals. AvgWin and AvgLoss are magnitudes.
type SignalStats struct {
	WinRate float64 // Historical win probability, 0..1
	AvgWin  float64 // Average winning amount per unit risked
	AvgLoss float64 // Average losing amount per unit risked
}

// CandidateSignal is the output of a signal provider for one bar window.
// Signals are ephemeral: consumed once by the simulator, never persisted.
// StopLoss and TakeProfit are optional suggestions; zero means unset.
type CandidateSignal struct {
	Direction  Direction
	Confidence float64 // 0..100
	StopLoss   float64
	TakeProfit float64
	Source     string // Name of the provider that produced the signal

	// Optional historical stats used for Kelly-capped sizing.
	Stats *SignalStats
}

// RiskReward returns the suggested reward-to-risk ratio relative to the given
// entry price, or 0 when either the stop or the target is unset.
func (s CandidateSignal) RiskReward(entryPrice float64) float64 {
	if s.StopLoss <= 0 || s.TakeProfit <= 0 {
		return 0
	}
	risk := entryPrice - s.StopLoss
	if risk < 0 {
		risk = -risk
	}
	if risk == 0 {
		return 0
	}
	reward := s.TakeProfit - entryPrice
	if reward < 0 {
		reward = -reward
	}
	return reward / risk
}
