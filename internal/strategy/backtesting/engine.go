package backtesting

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"quantbacktest/internal/domain"
	"quantbacktest/internal/ports"
	"quantbacktest/internal/risk"
)

// Engine replays a historical bar series through a set of signal providers,
// simulating fills, costs and capital. One run is strictly sequential: each
// bar's exits, entries and equity update are processed in timestamp order.
// Engines are safe for concurrent use because Run keeps all mutable state on
// the stack; independent runs may execute in parallel.
type Engine struct {
	config    Config
	providers []ports.SignalProvider
	logger    ports.Logger
	costs     CostModel
	sizer     *risk.Sizer
}

// NewEngine creates a backtesting engine. The configuration is validated up
// front; an invalid configuration rejects the run rather than being clamped.
func NewEngine(config Config, providers []ports.SignalProvider, logger ports.Logger) (*Engine, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for backtesting engine")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrConfigurationError, err)
	}
	sizer, err := risk.NewSizer(risk.SizerConfig{RiskPerTrade: config.RiskPerTrade})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrConfigurationError, err)
	}
	return &Engine{
		config:    config,
		providers: providers,
		logger:    logger,
		costs:     NewCostModel(config),
		sizer:     sizer,
	}, nil
}

// runState is the mutable state of one backtest run.
type runState struct {
	capital  float64
	peak     float64
	drawdown float64
	open     []*domain.Trade
	result   *Result
}

// Run executes the backtest over the bar series. The series must be
// chronologically ordered and is never mutated. All failures past
// configuration validation are recoverable and reflected in the result.
func (e *Engine) Run(ctx context.Context, bars []*domain.Bar) (*Result, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: empty bar series", ports.ErrInsufficientData)
	}

	st := &runState{
		capital: e.config.InitialCapital,
		peak:    e.config.InitialCapital,
		result: &Result{
			Symbol:         e.config.Symbol,
			StartTime:      bars[0].OpenTime,
			EndTime:        bars[len(bars)-1].CloseTime,
			InitialCapital: e.config.InitialCapital,
			Trades:         make([]*domain.Trade, 0),
			EquityCurve:    make([]domain.EquityPoint, 0, len(bars)),
			BarsProcessed:  len(bars),
		},
	}

	for i, bar := range bars {
		lastBar := i == len(bars)-1

		// Signals are solicited once per bar after warm-up; the same
		// candidate set serves both opposing-signal exits and new entries.
		var signals []domain.CandidateSignal
		if i >= e.config.WarmupBars {
			signals = e.collectSignals(ctx, bars[:i+1], st.result)
		}

		e.evaluateExits(st, bar, signals, lastBar)

		if !lastBar && i >= e.config.WarmupBars {
			e.evaluateEntries(ctx, st, bars[:i+1], signals)
		}

		e.recordEquity(ctx, st, bar)
	}

	st.result.FinalCapital = st.capital
	st.result.FinalEquity = st.result.EquityCurve[len(st.result.EquityCurve)-1].Equity
	return st.result, nil
}

// collectSignals gathers candidates from every provider, recovering from
// provider failures. A failing provider contributes zero signals for the bar.
func (e *Engine) collectSignals(ctx context.Context, window []*domain.Bar, result *Result) []domain.CandidateSignal {
	var signals []domain.CandidateSignal
	for _, p := range e.providers {
		if len(window) < p.RequiredBars() {
			continue
		}
		sigs, err := safeProvide(ctx, p, window)
		if err != nil {
			result.ProviderFailures++
			e.logger.Warn(ctx, "signal provider failed, excluding from candidate set", map[string]interface{}{
				"provider": p.Name(),
				"error":    err.Error(),
			})
			continue
		}
		signals = append(signals, sigs...)
	}
	return signals
}

// safeProvide invokes a provider, converting panics into errors so a single
// misbehaving provider cannot abort the run.
func safeProvide(ctx context.Context, p ports.SignalProvider, window []*domain.Bar) (sigs []domain.CandidateSignal, err error) {
	defer func() {
		if r := recover(); r != nil {
			sigs = nil
			err = fmt.Errorf("%w: %s panicked: %v", ports.ErrProviderFailed, p.Name(), r)
		}
	}()
	sigs, err = p.Provide(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ports.ErrProviderFailed, p.Name(), err)
	}
	return sigs, nil
}

// evaluateExits closes every open trade whose exit condition is met at the
// current bar's close. Conditions are checked in fixed priority order:
// stop-loss, take-profit, opposing signal, time limit, end of data.
func (e *Engine) evaluateExits(st *runState, bar *domain.Bar, signals []domain.CandidateSignal, lastBar bool) {
	remaining := st.open[:0]
	for _, trade := range st.open {
		reason := e.exitReason(trade, bar, signals, lastBar)
		if reason == "" {
			remaining = append(remaining, trade)
			continue
		}
		e.closeTrade(st, trade, bar, reason)
	}
	st.open = remaining
}

func (e *Engine) exitReason(trade *domain.Trade, bar *domain.Bar, signals []domain.CandidateSignal, lastBar bool) domain.ExitReason {
	price := bar.Close

	if trade.Direction == domain.Buy {
		if price <= trade.StopLoss {
			return domain.ExitStopLoss
		}
		if trade.TakeProfit > 0 && price >= trade.TakeProfit {
			return domain.ExitTakeProfit
		}
	} else {
		if price >= trade.StopLoss {
			return domain.ExitStopLoss
		}
		if trade.TakeProfit > 0 && price <= trade.TakeProfit {
			return domain.ExitTakeProfit
		}
	}

	for _, sig := range signals {
		if sig.Direction.Opposes(trade.Direction) && sig.Confidence > signalExitConfidence {
			return domain.ExitSignal
		}
	}

	if bar.CloseTime.Sub(trade.EntryTime) > e.config.HoldLimit {
		return domain.ExitTimeLimit
	}

	if lastBar {
		return domain.ExitEndOfData
	}
	return ""
}

// closeTrade writes the trade's exit fields exactly once and realizes its
// net P&L into capital.
func (e *Engine) closeTrade(st *runState, trade *domain.Trade, bar *domain.Bar, reason domain.ExitReason) {
	trade.ExitPrice = bar.Close
	trade.ExitTime = bar.CloseTime
	trade.ExitReason = reason
	trade.Status = domain.StatusClosed
	trade.PNL = trade.GrossPNL(bar.Close) - trade.Costs.Total()
	trade.Outcome = classifyTrade(trade)

	st.capital += trade.PNL
	st.result.Trades = append(st.result.Trades, trade)
}

// classifyTrade labels a closed trade: a push when costs dominate the move, a
// partial win when profitable but returning less than the risk taken.
func classifyTrade(trade *domain.Trade) domain.TradeOutcome {
	totalCost := trade.Costs.Total()
	if math.Abs(trade.PNL) < totalCost {
		return domain.OutcomePush
	}
	if trade.PNL <= 0 {
		return domain.OutcomeLoss
	}
	riskAmount := math.Abs(trade.EntryPrice-trade.StopLoss) * trade.Quantity
	if riskAmount > 0 && trade.PNL/riskAmount < 1.0 {
		return domain.OutcomePartialWin
	}
	return domain.OutcomeWin
}

// evaluateEntries opens new trades from the bar's candidate set, strongest
// confidence first, while capacity and the drawdown limit allow.
func (e *Engine) evaluateEntries(ctx context.Context, st *runState, window []*domain.Bar, signals []domain.CandidateSignal) {
	if len(signals) == 0 || len(st.open) >= e.config.MaxOpenPositions {
		return
	}
	if e.config.MaxDrawdown > 0 && st.drawdown > e.config.MaxDrawdown {
		return
	}

	bar := window[len(window)-1]
	price := bar.Close

	candidates := make([]domain.CandidateSignal, 0, len(signals))
	for _, sig := range signals {
		if sig.Direction != domain.Buy && sig.Direction != domain.Sell {
			continue
		}
		if sig.Confidence < e.config.MinConfidence {
			continue
		}
		candidates = append(candidates, sig)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	for _, sig := range candidates {
		if len(st.open) >= e.config.MaxOpenPositions {
			return
		}
		sig = e.withDefaultLevels(sig, price)
		if e.config.MinRiskReward > 0 && sig.RiskReward(price) < e.config.MinRiskReward {
			continue
		}

		sizingCapital := e.config.InitialCapital
		if e.config.Compounding {
			sizingCapital = st.capital
		}
		quantity := e.sizer.Quantity(sizingCapital, price, sig)
		if quantity <= 0 {
			continue
		}

		notional := quantity * price
		maxNotional := st.capital
		if e.config.UseLeverage {
			maxNotional = st.capital * e.config.Leverage
		}
		if notional > maxNotional {
			continue
		}

		costs := e.costs.Assess(
			notional,
			annualizedVolatility(window, volatilityLookback, barsPerYear(e.config.Interval)),
			averageNotionalVolume(window, volatilityLookback),
		)

		trade := &domain.Trade{
			ID:         uuid.New().String(),
			Symbol:     e.config.Symbol,
			Direction:  sig.Direction,
			EntryPrice: price,
			Quantity:   quantity,
			StopLoss:   sig.StopLoss,
			TakeProfit: sig.TakeProfit,
			EntryTime:  bar.CloseTime,
			Status:     domain.StatusOpen,
			Costs:      costs,
			Source:     sig.Source,
		}
		st.open = append(st.open, trade)

		e.logger.Debug(ctx, "opened trade", map[string]interface{}{
			"id":        trade.ID,
			"direction": trade.Direction,
			"price":     price,
			"quantity":  quantity,
			"source":    trade.Source,
		})
	}
}

// withDefaultLevels fills in stop/target suggestions the signal omitted. The
// default target sits at twice the default stop distance.
func (e *Engine) withDefaultLevels(sig domain.CandidateSignal, price float64) domain.CandidateSignal {
	stopPct := e.config.DefaultStopPct
	if sig.StopLoss <= 0 {
		if sig.Direction == domain.Buy {
			sig.StopLoss = price * (1 - stopPct)
		} else {
			sig.StopLoss = price * (1 + stopPct)
		}
	}
	if sig.TakeProfit <= 0 {
		if sig.Direction == domain.Buy {
			sig.TakeProfit = price * (1 + 2*stopPct)
		} else {
			sig.TakeProfit = price * (1 - 2*stopPct)
		}
	}
	return sig
}

// recordEquity appends the bar's equity sample and flags margin events.
// Equity is realized capital plus the net unrealized P&L of open trades.
func (e *Engine) recordEquity(ctx context.Context, st *runState, bar *domain.Bar) {
	equity := st.capital
	for _, trade := range st.open {
		equity += trade.UnrealizedPNL(bar.Close)
	}

	if equity > st.peak {
		st.peak = equity
	}
	drawdown := 0.0
	if st.peak > 0 && equity < st.peak {
		drawdown = (st.peak - equity) / st.peak
	}
	if drawdown > 1 {
		drawdown = 1
	}
	st.drawdown = drawdown

	st.result.EquityCurve = append(st.result.EquityCurve, domain.EquityPoint{
		Time:     bar.CloseTime,
		Equity:   equity,
		Drawdown: drawdown,
	})

	if e.config.UseLeverage && equity < e.config.InitialCapital*e.config.MarginRequirement {
		if !st.result.MarginCalled {
			e.logger.Warn(ctx, "margin requirement breached, flagging margin event", map[string]interface{}{
				"equity":      equity,
				"requirement": e.config.InitialCapital * e.config.MarginRequirement,
			})
		}
		st.result.MarginCalled = true
	}
}
