package providers

import (
	"context"
	"fmt"

	"quantbacktest/internal/domain"
	"quantbacktest/internal/ports"
	"quantbacktest/internal/strategy/indicators"
)

// MACrossoverConfig configures the moving average crossover provider.
type MACrossoverConfig struct {
	FastPeriod int // default 10
	SlowPeriod int // default 50
	ATRPeriod  int // default 14, used for stop placement
	// StopATRMultiple scales the ATR distance to the stop; default 2.
	StopATRMultiple float64
	// Confidence assigned to crossover signals; default 70.
	Confidence float64
}

func (c *MACrossoverConfig) applyDefaults() {
	if c.FastPeriod <= 0 {
		c.FastPeriod = 10
	}
	if c.SlowPeriod <= 0 {
		c.SlowPeriod = 50
	}
	if c.ATRPeriod <= 0 {
		c.ATRPeriod = 14
	}
	if c.StopATRMultiple <= 0 {
		c.StopATRMultiple = 2
	}
	if c.Confidence <= 0 {
		c.Confidence = 70
	}
}

// MACrossover emits a buy when the fast moving average crosses above the slow
// one and a sell on the opposite cross. Stops sit an ATR multiple away from
// the entry with the target at twice the stop distance.
type MACrossover struct {
	config MACrossoverConfig
	fast   *indicators.MovingAverage
	slow   *indicators.MovingAverage
	atr    *indicators.ATR
}

func NewMACrossover(config MACrossoverConfig) (*MACrossover, error) {
	config.applyDefaults()
	if config.FastPeriod >= config.SlowPeriod {
		return nil, fmt.Errorf("fast period %d must be shorter than slow period %d", config.FastPeriod, config.SlowPeriod)
	}
	return &MACrossover{
		config: config,
		fast: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: config.FastPeriod},
			Type:            indicators.SimpleMovingAverage,
		}),
		slow: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: config.SlowPeriod},
			Type:            indicators.SimpleMovingAverage,
		}),
		atr: indicators.NewATR(indicators.ATRConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: config.ATRPeriod},
		}),
	}, nil
}

func (p *MACrossover) Name() string {
	return fmt.Sprintf("ma_crossover_%d_%d", p.config.FastPeriod, p.config.SlowPeriod)
}

func (p *MACrossover) RequiredBars() int {
	// One extra bar so the previous relation of the averages is observable.
	return p.config.SlowPeriod + 1
}

func (p *MACrossover) Provide(ctx context.Context, window []*domain.Bar) ([]domain.CandidateSignal, error) {
	if len(window) < p.RequiredBars() {
		return nil, nil
	}

	fastNow, err := p.fast.Calculate(ctx, window)
	if err != nil {
		return nil, err
	}
	slowNow, err := p.slow.Calculate(ctx, window)
	if err != nil {
		return nil, err
	}
	prev := window[:len(window)-1]
	fastPrev, err := p.fast.Calculate(ctx, prev)
	if err != nil {
		return nil, err
	}
	slowPrev, err := p.slow.Calculate(ctx, prev)
	if err != nil {
		return nil, err
	}

	var direction domain.Direction
	switch {
	case fastPrev <= slowPrev && fastNow > slowNow:
		direction = domain.Buy
	case fastPrev >= slowPrev && fastNow < slowNow:
		direction = domain.Sell
	default:
		return nil, nil
	}

	atr, err := p.atr.Calculate(ctx, window)
	if err != nil {
		return nil, err
	}

	price := window[len(window)-1].Close
	stopDistance := p.config.StopATRMultiple * atr

	sig := domain.CandidateSignal{
		Direction:  direction,
		Confidence: p.config.Confidence,
		Source:     p.Name(),
	}
	if stopDistance > 0 {
		if direction == domain.Buy {
			sig.StopLoss = price - stopDistance
			sig.TakeProfit = price + 2*stopDistance
		} else {
			sig.StopLoss = price + stopDistance
			sig.TakeProfit = price - 2*stopDistance
		}
	}
	return []domain.CandidateSignal{sig}, nil
}

var _ ports.SignalProvider = (*MACrossover)(nil)
