package montecarlo

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"quantbacktest/internal/domain"
	"quantbacktest/internal/ports"
	"quantbacktest/internal/strategy/backtesting"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type scriptedProvider struct {
	signals map[int][]domain.CandidateSignal
}

func (p *scriptedProvider) Name() string      { return "scripted" }
func (p *scriptedProvider) RequiredBars() int { return 1 }
func (p *scriptedProvider) Provide(ctx context.Context, window []*domain.Bar) ([]domain.CandidateSignal, error) {
	return p.signals[len(window)-1], nil
}

func makeBars(n int, startPrice, growth float64) []*domain.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]*domain.Bar, 0, n)
	price := startPrice
	for i := 0; i < n; i++ {
		next := price * (1 + growth)
		openTime := start.Add(time.Duration(i) * time.Hour)
		high, low := math.Max(price, next), math.Min(price, next)
		bars = append(bars, &domain.Bar{
			OpenTime:  openTime,
			CloseTime: openTime.Add(time.Hour),
			Symbol:    "ETHUSDT",
			Interval:  "1h",
			Open:      price,
			High:      high,
			Low:       low,
			Close:     next,
			Volume:    1000,
		})
		price = next
	}
	return bars
}

func tradingSetup() (backtesting.Config, []ports.SignalProvider, []*domain.Bar) {
	cfg := backtesting.DefaultConfig()
	cfg.Compounding = false
	bars := makeBars(200, 100, 0.01)
	entry := 60
	provider := &scriptedProvider{signals: map[int][]domain.CandidateSignal{
		entry: {{
			Direction:  domain.Buy,
			Confidence: 90,
			StopLoss:   bars[entry].Close * 0.98,
			TakeProfit: bars[entry].Close * 1.05,
		}},
	}}
	return cfg, []ports.SignalProvider{provider}, bars
}

func TestSimulatorDefaults(t *testing.T) {
	sim, err := NewSimulator(Config{Variation: 0.2}, &mockLogger{})
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	if sim.config.Trials != 1000 {
		t.Errorf("Trials default = %d, want 1000", sim.config.Trials)
	}
	if sim.config.Seed != 1 {
		t.Errorf("Seed default = %d, want 1", sim.config.Seed)
	}
	if sim.config.Workers <= 0 {
		t.Errorf("Workers default = %d, want positive", sim.config.Workers)
	}
}

func TestSimulatorRejectsNegativeVariation(t *testing.T) {
	if _, err := NewSimulator(Config{Variation: -0.1}, &mockLogger{}); !errors.Is(err, ports.ErrConfigurationError) {
		t.Errorf("expected ErrConfigurationError, got %v", err)
	}
}

func TestRunAggregates(t *testing.T) {
	cfg, provs, bars := tradingSetup()
	sim, err := NewSimulator(Config{Trials: 50, Variation: 0.2, Seed: 42}, &mockLogger{})
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}

	res, err := sim.Run(context.Background(), cfg, provs, bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Trials != 50 || res.Failed != 0 {
		t.Errorf("Trials = %d, Failed = %d; want 50 and 0", res.Trials, res.Failed)
	}
	if res.WorstReturn > res.P5Return || res.P5Return > res.MeanReturn ||
		res.MeanReturn > res.P95Return || res.P95Return > res.BestReturn {
		t.Errorf("distribution ordering violated: worst=%v p5=%v mean=%v p95=%v best=%v",
			res.WorstReturn, res.P5Return, res.MeanReturn, res.P95Return, res.BestReturn)
	}
	// One take-profit trade survives any cost perturbation in this setup.
	if res.SuccessRate != 1 {
		t.Errorf("SuccessRate = %v, want 1", res.SuccessRate)
	}
	if res.StdevReturn <= 0 {
		t.Errorf("StdevReturn = %v, want positive under perturbation", res.StdevReturn)
	}

	if res.BestRun == nil || res.WorstRun == nil {
		t.Fatal("extreme trials must be retained on the result")
	}
	if res.BestRun.Report.TotalReturnPct != res.BestReturn {
		t.Errorf("BestRun return %v != BestReturn %v", res.BestRun.Report.TotalReturnPct, res.BestReturn)
	}
	if res.WorstRun.Report.TotalReturnPct != res.WorstReturn {
		t.Errorf("WorstRun return %v != WorstReturn %v", res.WorstRun.Report.TotalReturnPct, res.WorstReturn)
	}
	if res.BestRun.Result == nil || len(res.BestRun.Result.Trades) == 0 {
		t.Error("BestRun must carry the inspectable backtest result")
	}
	if res.BestRun.Trial < 0 || res.BestRun.Trial >= res.Trials {
		t.Errorf("BestRun trial index %d out of range", res.BestRun.Trial)
	}
	// The worst trial pays higher costs than the best one on the same bars.
	if res.WorstRun.Config.SlippageCoeff == res.BestRun.Config.SlippageCoeff &&
		res.WorstRun.Config.CommissionRate == res.BestRun.Config.CommissionRate {
		t.Error("extreme runs should carry distinct perturbed cost parameters")
	}
}

func TestRunDeterministicWithSeed(t *testing.T) {
	cfg, provs, bars := tradingSetup()

	run := func(seed int64) *Result {
		sim, err := NewSimulator(Config{Trials: 20, Variation: 0.3, Seed: seed}, &mockLogger{})
		if err != nil {
			t.Fatalf("NewSimulator: %v", err)
		}
		res, err := sim.Run(context.Background(), cfg, provs, bars)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return res
	}

	a, b := run(7), run(7)
	if a.MeanReturn != b.MeanReturn || a.StdevReturn != b.StdevReturn {
		t.Errorf("same seed produced different aggregates: %v/%v vs %v/%v",
			a.MeanReturn, a.StdevReturn, b.MeanReturn, b.StdevReturn)
	}

	c := run(8)
	if a.MeanReturn == c.MeanReturn {
		t.Error("different seeds should perturb costs differently")
	}
}

func TestRunZeroVariation(t *testing.T) {
	cfg, provs, bars := tradingSetup()
	sim, err := NewSimulator(Config{Trials: 10, Variation: 0, Seed: 1}, &mockLogger{})
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	res, err := sim.Run(context.Background(), cfg, provs, bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.StdevReturn != 0 {
		t.Errorf("StdevReturn = %v, want 0 without perturbation", res.StdevReturn)
	}
	if res.BestReturn != res.WorstReturn {
		t.Errorf("identical trials should agree: best %v worst %v", res.BestReturn, res.WorstReturn)
	}
	if res.BestRun.Config.SlippageCoeff != cfg.SlippageCoeff ||
		res.BestRun.Config.CommissionRate != cfg.CommissionRate {
		t.Errorf("zero variation must leave cost parameters untouched: %v/%v",
			res.BestRun.Config.SlippageCoeff, res.BestRun.Config.CommissionRate)
	}
}

func TestRunAllTrialsFailed(t *testing.T) {
	cfg, provs, _ := tradingSetup()
	cfg.InitialCapital = -1 // every trial's engine construction fails

	sim, err := NewSimulator(Config{Trials: 5, Variation: 0.1, Seed: 1}, &mockLogger{})
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	_, err = sim.Run(context.Background(), cfg, provs, makeBars(100, 100, 0))
	if !errors.Is(err, ports.ErrAllTrialsFailed) {
		t.Errorf("expected ErrAllTrialsFailed, got %v", err)
	}
}

func TestRunEmptyBars(t *testing.T) {
	cfg, provs, _ := tradingSetup()
	sim, err := NewSimulator(Config{Trials: 5, Variation: 0.1}, &mockLogger{})
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	if _, err := sim.Run(context.Background(), cfg, provs, nil); !errors.Is(err, ports.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}
