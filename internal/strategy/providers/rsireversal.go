package providers

import (
	"context"
	"fmt"

	"quantbacktest/internal/domain"
	"quantbacktest/internal/ports"
	"quantbacktest/internal/strategy/indicators"
)

// RSIReversalConfig configures the RSI mean-reversion provider.
type RSIReversalConfig struct {
	Period     int     // default 14
	Overbought float64 // default 70
	Oversold   float64 // default 30
	ATRPeriod  int     // default 14
	// StopATRMultiple scales the ATR distance to the stop; default 2.
	StopATRMultiple float64
}

func (c *RSIReversalConfig) applyDefaults() {
	if c.Period <= 0 {
		c.Period = 14
	}
	if c.Overbought <= 0 {
		c.Overbought = 70
	}
	if c.Oversold <= 0 {
		c.Oversold = 30
	}
	if c.ATRPeriod <= 0 {
		c.ATRPeriod = 14
	}
	if c.StopATRMultiple <= 0 {
		c.StopATRMultiple = 2
	}
}

// RSIReversal emits a buy when RSI falls into oversold territory and a sell
// when it reaches overbought. Confidence grows with the distance past the
// threshold, capped at 95.
type RSIReversal struct {
	config RSIReversalConfig
	rsi    *indicators.RSI
	atr    *indicators.ATR
}

func NewRSIReversal(config RSIReversalConfig) (*RSIReversal, error) {
	config.applyDefaults()
	if config.Oversold >= config.Overbought {
		return nil, fmt.Errorf("oversold level %.1f must be below overbought level %.1f", config.Oversold, config.Overbought)
	}
	return &RSIReversal{
		config: config,
		rsi: indicators.NewRSI(indicators.RSIConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: config.Period},
			Overbought:      config.Overbought,
			Oversold:        config.Oversold,
		}),
		atr: indicators.NewATR(indicators.ATRConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: config.ATRPeriod},
		}),
	}, nil
}

func (p *RSIReversal) Name() string {
	return fmt.Sprintf("rsi_reversal_%d", p.config.Period)
}

func (p *RSIReversal) RequiredBars() int {
	return p.config.Period + 1
}

func (p *RSIReversal) Provide(ctx context.Context, window []*domain.Bar) ([]domain.CandidateSignal, error) {
	if len(window) < p.RequiredBars() {
		return nil, nil
	}

	value, err := p.rsi.Calculate(ctx, window)
	if err != nil {
		return nil, err
	}

	var direction domain.Direction
	var distance float64
	switch {
	case p.rsi.IsOversold(value):
		direction = domain.Buy
		distance = p.config.Oversold - value
	case p.rsi.IsOverbought(value):
		direction = domain.Sell
		distance = value - p.config.Overbought
	default:
		return nil, nil
	}

	confidence := 60 + distance
	if confidence > 95 {
		confidence = 95
	}

	atr, err := p.atr.Calculate(ctx, window)
	if err != nil {
		return nil, err
	}

	price := window[len(window)-1].Close
	stopDistance := p.config.StopATRMultiple * atr

	sig := domain.CandidateSignal{
		Direction:  direction,
		Confidence: confidence,
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

var _ ports.SignalProvider = (*RSIReversal)(nil)
