package backtesting

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"quantbacktest/internal/domain"
	"quantbacktest/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// mockProvider emits scripted signals keyed by bar index.
type mockProvider struct {
	name     string
	required int
	signals  map[int][]domain.CandidateSignal
	err      error
	panics   bool
}

func (m *mockProvider) Name() string {
	if m.name == "" {
		return "mock_provider"
	}
	return m.name
}

func (m *mockProvider) RequiredBars() int {
	if m.required == 0 {
		return 1
	}
	return m.required
}

func (m *mockProvider) Provide(ctx context.Context, window []*domain.Bar) ([]domain.CandidateSignal, error) {
	if m.panics {
		panic("scripted provider panic")
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.signals[len(window)-1], nil
}

// makeBars builds an hourly series with a constant per-bar growth rate.
func makeBars(n int, startPrice, growth float64) []*domain.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]*domain.Bar, 0, n)
	price := startPrice
	for i := 0; i < n; i++ {
		next := price * (1 + growth)
		openTime := start.Add(time.Duration(i) * time.Hour)
		bars = append(bars, &domain.Bar{
			OpenTime:  openTime,
			CloseTime: openTime.Add(time.Hour),
			Symbol:    "ETHUSDT",
			Interval:  "1h",
			Open:      price,
			High:      math.Max(price, next),
			Low:       math.Min(price, next),
			Close:     next,
			Volume:    1000,
		})
		price = next
	}
	return bars
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Compounding = false
	return cfg
}

func TestNewEngineValidation(t *testing.T) {
	cfg := testConfig()
	cfg.InitialCapital = 0
	if _, err := NewEngine(cfg, nil, &mockLogger{}); !errors.Is(err, ports.ErrConfigurationError) {
		t.Errorf("expected ErrConfigurationError, got %v", err)
	}
	if _, err := NewEngine(testConfig(), nil, nil); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestRunEmptySeries(t *testing.T) {
	engine, err := NewEngine(testConfig(), nil, &mockLogger{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, err := engine.Run(context.Background(), nil); !errors.Is(err, ports.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestRunFlatMarketNoSignals(t *testing.T) {
	bars := makeBars(200, 100, 0)
	engine, err := NewEngine(testConfig(), []ports.SignalProvider{&mockProvider{}}, &mockLogger{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	result, err := engine.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 0 {
		t.Errorf("expected 0 trades, got %d", len(result.Trades))
	}
	if result.FinalCapital != result.InitialCapital {
		t.Errorf("capital changed without trades: %v", result.FinalCapital)
	}
	if len(result.EquityCurve) != len(bars) {
		t.Errorf("expected %d equity points, got %d", len(bars), len(result.EquityCurve))
	}
	for _, p := range result.EquityCurve {
		if p.Equity != result.InitialCapital {
			t.Fatalf("equity moved without trades: %v at %v", p.Equity, p.Time)
		}
	}
}

func TestRunUptrendTakeProfit(t *testing.T) {
	bars := makeBars(200, 100, 0.01)
	entryIdx := 60
	entryPrice := bars[entryIdx].Close
	provider := &mockProvider{signals: map[int][]domain.CandidateSignal{
		entryIdx: {{
			Direction:  domain.Buy,
			Confidence: 90,
			StopLoss:   entryPrice * 0.98,
			TakeProfit: entryPrice * 1.05,
			Source:     "scripted",
		}},
	}}

	engine, err := NewEngine(testConfig(), []ports.SignalProvider{provider}, &mockLogger{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	result, err := engine.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.ExitReason != domain.ExitTakeProfit {
		t.Errorf("exit reason = %v, want take profit", trade.ExitReason)
	}
	if trade.EntryPrice != entryPrice {
		t.Errorf("entry price = %v, want %v", trade.EntryPrice, entryPrice)
	}
	if trade.ExitPrice < trade.TakeProfit {
		t.Errorf("exit price %v below target %v", trade.ExitPrice, trade.TakeProfit)
	}
	if !trade.ExitTime.After(trade.EntryTime) {
		t.Error("exit time must be after entry time")
	}
	if trade.Costs.Total() <= 0 {
		t.Error("expected positive execution costs")
	}
	gross := trade.GrossPNL(trade.ExitPrice)
	if math.Abs(trade.PNL-(gross-trade.Costs.Total())) > 1e-9 {
		t.Errorf("PNL %v != gross %v - costs %v", trade.PNL, gross, trade.Costs.Total())
	}

	// Capital conservation: final capital is initial plus summed trade P&L.
	sum := 0.0
	for _, tr := range result.Trades {
		sum += tr.PNL
	}
	if math.Abs(result.FinalCapital-(result.InitialCapital+sum)) > 1e-9 {
		t.Errorf("final capital %v != initial %v + pnl %v", result.FinalCapital, result.InitialCapital, sum)
	}
}

func TestRunOpposingSignalExit(t *testing.T) {
	bars := makeBars(200, 100, 0)
	entryIdx := 60
	provider := &mockProvider{signals: map[int][]domain.CandidateSignal{
		entryIdx: {{
			Direction:  domain.Buy,
			Confidence: 90,
			StopLoss:   50,
			TakeProfit: 500,
		}},
		70: {{Direction: domain.Sell, Confidence: 95, StopLoss: 500}},
	}}

	engine, err := NewEngine(testConfig(), []ports.SignalProvider{provider}, &mockLogger{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	result, err := engine.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var opposing *domain.Trade
	for _, tr := range result.Trades {
		if tr.Direction == domain.Buy {
			opposing = tr
		}
	}
	if opposing == nil {
		t.Fatal("expected a buy trade")
	}
	if opposing.ExitReason != domain.ExitSignal {
		t.Errorf("exit reason = %v, want opposing signal", opposing.ExitReason)
	}
	if opposing.ExitTime != bars[70].CloseTime {
		t.Errorf("exit time = %v, want %v", opposing.ExitTime, bars[70].CloseTime)
	}
}

func TestRunTimeLimitExit(t *testing.T) {
	bars := makeBars(400, 100, 0)
	entryIdx := 60
	provider := &mockProvider{signals: map[int][]domain.CandidateSignal{
		entryIdx: {{
			Direction:  domain.Buy,
			Confidence: 90,
			StopLoss:   50,
			TakeProfit: 500,
		}},
	}}

	engine, err := NewEngine(testConfig(), []ports.SignalProvider{provider}, &mockLogger{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	result, err := engine.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.ExitReason != domain.ExitTimeLimit {
		t.Errorf("exit reason = %v, want time limit", trade.ExitReason)
	}
	if held := trade.ExitTime.Sub(trade.EntryTime); held <= 7*24*time.Hour {
		t.Errorf("held %v, want more than the 7 day limit before forced close", held)
	}
}

func TestRunEndOfDataForcedClose(t *testing.T) {
	bars := makeBars(100, 100, 0)
	entryIdx := 95
	provider := &mockProvider{signals: map[int][]domain.CandidateSignal{
		entryIdx: {{
			Direction:  domain.Buy,
			Confidence: 90,
			StopLoss:   50,
			TakeProfit: 500,
		}},
	}}

	engine, err := NewEngine(testConfig(), []ports.SignalProvider{provider}, &mockLogger{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	result, err := engine.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.ExitReason != domain.ExitEndOfData {
		t.Errorf("exit reason = %v, want end of data", trade.ExitReason)
	}
	if trade.Status != domain.StatusClosed {
		t.Error("trade must be closed at end of data")
	}
}

func TestRunNoEntryBeforeWarmup(t *testing.T) {
	bars := makeBars(200, 100, 0)
	// Signal scripted inside the warm-up window must be ignored.
	provider := &mockProvider{signals: map[int][]domain.CandidateSignal{
		10: {{Direction: domain.Buy, Confidence: 90, StopLoss: 50}},
	}}

	engine, err := NewEngine(testConfig(), []ports.SignalProvider{provider}, &mockLogger{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	result, err := engine.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 0 {
		t.Errorf("expected no trades from warm-up signals, got %d", len(result.Trades))
	}
}

func TestRunProviderPanicRecovered(t *testing.T) {
	bars := makeBars(100, 100, 0)
	engine, err := NewEngine(testConfig(), []ports.SignalProvider{&mockProvider{panics: true}}, &mockLogger{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	result, err := engine.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run must survive a panicking provider: %v", err)
	}
	if result.ProviderFailures == 0 {
		t.Error("expected provider failures to be counted")
	}
	if len(result.Trades) != 0 {
		t.Errorf("expected no trades, got %d", len(result.Trades))
	}
}

func TestRunConfidenceFilter(t *testing.T) {
	bars := makeBars(200, 100, 0.01)
	provider := &mockProvider{signals: map[int][]domain.CandidateSignal{
		60: {{Direction: domain.Buy, Confidence: 40, StopLoss: 50}},
	}}

	engine, err := NewEngine(testConfig(), []ports.SignalProvider{provider}, &mockLogger{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	result, err := engine.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 0 {
		t.Errorf("expected low-confidence signal to be filtered, got %d trades", len(result.Trades))
	}
}

func TestRunDeterminism(t *testing.T) {
	bars := makeBars(300, 100, 0.005)
	entryPrice := bars[60].Close
	signals := map[int][]domain.CandidateSignal{
		60: {{Direction: domain.Buy, Confidence: 90, StopLoss: entryPrice * 0.98, TakeProfit: entryPrice * 1.05}},
		150: {{Direction: domain.Buy, Confidence: 85, StopLoss: bars[150].Close * 0.98,
			TakeProfit: bars[150].Close * 1.05}},
	}

	run := func() *Result {
		engine, err := NewEngine(testConfig(), []ports.SignalProvider{&mockProvider{signals: signals}}, &mockLogger{})
		if err != nil {
			t.Fatalf("NewEngine: %v", err)
		}
		result, err := engine.Run(context.Background(), bars)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return result
	}

	a, b := run(), run()
	if len(a.Trades) != len(b.Trades) {
		t.Fatalf("trade counts differ: %d vs %d", len(a.Trades), len(b.Trades))
	}
	if a.FinalCapital != b.FinalCapital {
		t.Errorf("final capital differs: %v vs %v", a.FinalCapital, b.FinalCapital)
	}
	for i := range a.Trades {
		if a.Trades[i].PNL != b.Trades[i].PNL {
			t.Errorf("trade %d PNL differs: %v vs %v", i, a.Trades[i].PNL, b.Trades[i].PNL)
		}
	}
}

func TestRunDrawdownBound(t *testing.T) {
	bars := makeBars(300, 100, -0.005)
	provider := &mockProvider{signals: map[int][]domain.CandidateSignal{
		60: {{Direction: domain.Buy, Confidence: 90, StopLoss: bars[60].Close * 0.9}},
	}}

	engine, err := NewEngine(testConfig(), []ports.SignalProvider{provider}, &mockLogger{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	result, err := engine.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, p := range result.EquityCurve {
		if p.Drawdown < 0 || p.Drawdown > 1 {
			t.Fatalf("drawdown %v out of [0,1] at %v", p.Drawdown, p.Time)
		}
	}
}
