package montecarlo

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"quantbacktest/internal/domain"
	"quantbacktest/internal/ports"
	"quantbacktest/internal/strategy/analytics"
	"quantbacktest/internal/strategy/backtesting"
)

// Config controls a Monte Carlo robustness run.
type Config struct {
	// Trials is the number of perturbed backtests; defaults to 1000.
	Trials int
	// Variation is the total relative perturbation range applied to the cost
	// parameters. Each trial draws its slippage coefficient and commission
	// rate independently from [base*(1-v/2), base*(1+v/2)].
	Variation float64
	// Workers bounds concurrent trials; defaults to the CPU count.
	Workers int
	// Seed makes the run reproducible. Zero selects seed 1.
	Seed int64
}

func (c *Config) applyDefaults() {
	if c.Trials <= 0 {
		c.Trials = 1000
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
}

// TrialRun retains one perturbed run so the extremes of the batch can be
// inspected, not just summarized.
type TrialRun struct {
	Trial  int   // index within the batch
	Seed   int64 // seed that produced the perturbation
	Config backtesting.Config
	Result *backtesting.Result
	Report *analytics.Report
}

// Result summarizes the distribution of returns across trials.
type Result struct {
	Trials        int
	Failed        int
	SuccessRate   float64 // fraction of trials with positive total return
	MeanReturn    float64 // mean total return percentage
	StdevReturn   float64
	P5Return      float64 // 5th percentile of total return
	P95Return     float64
	BestReturn    float64
	WorstReturn   float64
	MeanSharpe    float64
	WorstDrawdown float64 // deepest max drawdown seen in any trial

	// BestRun and WorstRun reference the trials behind BestReturn and
	// WorstReturn.
	BestRun  *TrialRun
	WorstRun *TrialRun
}

// Simulator reruns a backtest many times with perturbed cost assumptions to
// gauge how sensitive a strategy's result is to execution frictions.
type Simulator struct {
	config Config
	logger ports.Logger
}

func NewSimulator(config Config, logger ports.Logger) (*Simulator, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for monte carlo simulator")
	}
	if config.Variation < 0 {
		return nil, fmt.Errorf("%w: variation must be non-negative", ports.ErrConfigurationError)
	}
	config.applyDefaults()
	return &Simulator{config: config, logger: logger}, nil
}

type trialOutcome struct {
	returnPct   float64
	sharpe      float64
	maxDrawdown float64
	run         *TrialRun
	err         error
}

// Run executes the trials over the same bar series with independently
// perturbed cost parameters. Failed trials are skipped; the run errors only
// when every trial fails.
func (s *Simulator) Run(ctx context.Context, base backtesting.Config, providers []ports.SignalProvider, bars []*domain.Bar) (*Result, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: empty bar series", ports.ErrInsufficientData)
	}

	// Per-trial seeds come from the master source up front, so the trial
	// outcomes are deterministic regardless of worker scheduling.
	master := rand.New(rand.NewSource(s.config.Seed))
	seeds := make([]int64, s.config.Trials)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	outcomes := make([]trialOutcome, s.config.Trials)
	sem := make(chan struct{}, s.config.Workers)
	var wg sync.WaitGroup

	for i := 0; i < s.config.Trials; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = s.runTrial(ctx, base, providers, bars, i, seeds[i])
		}(i)
	}
	wg.Wait()

	return s.aggregate(ctx, outcomes)
}

// runTrial perturbs the cost parameters and executes one backtest.
func (s *Simulator) runTrial(ctx context.Context, base backtesting.Config, providers []ports.SignalProvider, bars []*domain.Bar, trial int, seed int64) trialOutcome {
	rng := rand.New(rand.NewSource(seed))
	cfg := base
	cfg.SlippageCoeff *= perturbation(rng, s.config.Variation)
	cfg.CommissionRate *= perturbation(rng, s.config.Variation)

	engine, err := backtesting.NewEngine(cfg, providers, s.logger)
	if err != nil {
		return trialOutcome{err: err}
	}
	result, err := engine.Run(ctx, bars)
	if err != nil {
		return trialOutcome{err: err}
	}
	report := analytics.Analyze(result.Trades, result.EquityCurve, cfg.InitialCapital, cfg.RiskFreeRate)
	return trialOutcome{
		returnPct:   report.TotalReturnPct,
		sharpe:      report.Sharpe,
		maxDrawdown: report.MaxDrawdown,
		run: &TrialRun{
			Trial:  trial,
			Seed:   seed,
			Config: cfg,
			Result: result,
			Report: report,
		},
	}
}

// perturbation draws a multiplier centered on 1 spanning the variation range.
func perturbation(rng *rand.Rand, variation float64) float64 {
	return 1 + (rng.Float64()-0.5)*variation
}

func (s *Simulator) aggregate(ctx context.Context, outcomes []trialOutcome) (*Result, error) {
	res := &Result{Trials: len(outcomes)}

	returns := make([]float64, 0, len(outcomes))
	var sumSharpe float64
	var best, worst *trialOutcome
	for i := range outcomes {
		o := &outcomes[i]
		if o.err != nil {
			res.Failed++
			s.logger.Debug(ctx, "monte carlo trial failed", map[string]interface{}{
				"error": o.err.Error(),
			})
			continue
		}
		returns = append(returns, o.returnPct)
		sumSharpe += o.sharpe
		if o.maxDrawdown > res.WorstDrawdown {
			res.WorstDrawdown = o.maxDrawdown
		}
		if best == nil || o.returnPct > best.returnPct {
			best = o
		}
		if worst == nil || o.returnPct < worst.returnPct {
			worst = o
		}
	}
	if len(returns) == 0 {
		return nil, fmt.Errorf("%w: %d of %d trials failed", ports.ErrAllTrialsFailed, res.Failed, res.Trials)
	}

	sort.Float64s(returns)
	res.BestReturn = returns[len(returns)-1]
	res.WorstReturn = returns[0]
	res.BestRun = best.run
	res.WorstRun = worst.run
	res.P5Return = percentile(returns, 0.05)
	res.P95Return = percentile(returns, 0.95)
	res.MeanSharpe = sumSharpe / float64(len(returns))

	var sum float64
	var wins int
	for _, r := range returns {
		sum += r
		if r > 0 {
			wins++
		}
	}
	res.MeanReturn = sum / float64(len(returns))
	res.SuccessRate = float64(wins) / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - res.MeanReturn) * (r - res.MeanReturn)
	}
	if len(returns) > 1 {
		res.StdevReturn = math.Sqrt(variance / float64(len(returns)-1))
	}
	return res, nil
}

// percentile reads from an ascending-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
