package comparison

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"quantbacktest/internal/domain"
	"quantbacktest/internal/ports"
	"quantbacktest/internal/strategy/analytics"
	"quantbacktest/internal/strategy/backtesting"
)

// Strategy is a named set of signal providers evaluated as one unit.
type Strategy struct {
	Name      string
	Providers []ports.SignalProvider
}

// PeriodResult aggregates one strategy's backtest over one lookback window.
type PeriodResult struct {
	Days   int
	Result *backtesting.Result
	Report *analytics.Report
}

// StrategyResult aggregates a strategy's period results with its scores.
type StrategyResult struct {
	Name    string
	Periods []PeriodResult

	// RiskAdjusted blends summed Sharpe and mean annualized return, damped
	// by the worst drawdown across periods.
	RiskAdjusted float64
	// Consistency rewards low variance of period returns.
	Consistency float64
	// RegimeScore is the mean return across synthetic market regimes.
	RegimeScore float64
	// Composite is the overall ranking score. Higher is better.
	Composite float64
}

// ComparativeBacktestResult is the ranked outcome of comparing strategies
// across lookback windows. Strategies are ordered best first.
type ComparativeBacktestResult struct {
	Windows    []int
	Strategies []StrategyResult
}

// Composite score weights.
const (
	weightRiskAdjusted = 0.5
	weightConsistency  = 0.3
	weightRegime       = 0.2
)

// HigherComposite is the ranking comparator: a strategy with a higher
// composite score ranks ahead of a lower one. The ranking convention is
// deliberately a named function so it cannot be silently inverted.
func HigherComposite(a, b StrategyResult) bool {
	return a.Composite > b.Composite
}

// Comparator runs the trade simulator per strategy per lookback window and
// ranks strategies by composite score.
type Comparator struct {
	config     backtesting.Config
	windows    []int
	logger     ports.Logger
	regimeSeed int64
}

// NewComparator creates a comparator. Windows are lookback lengths in days;
// when empty the default 30/90/180/365 set is used.
func NewComparator(config backtesting.Config, windows []int, logger ports.Logger) (*Comparator, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for comparator")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrConfigurationError, err)
	}
	if len(windows) == 0 {
		windows = []int{30, 90, 180, 365}
	}
	return &Comparator{
		config:     config,
		windows:    windows,
		logger:     logger,
		regimeSeed: 1,
	}, nil
}

// SetRegimeSeed overrides the seed used for synthetic regime generation.
func (c *Comparator) SetRegimeSeed(seed int64) {
	c.regimeSeed = seed
}

type periodRun struct {
	strategy string
	period   PeriodResult
}

// Compare runs every strategy over every lookback window and returns the
// strategies ranked by composite score, best first. Individual window runs
// are independent and execute concurrently; windows with insufficient data
// are skipped, not fatal.
func (c *Comparator) Compare(ctx context.Context, strategies []Strategy, bars []*domain.Bar) (*ComparativeBacktestResult, error) {
	if len(strategies) == 0 {
		return nil, fmt.Errorf("no strategies to compare")
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: empty bar series", ports.ErrInsufficientData)
	}

	runCh := make(chan periodRun, len(strategies)*len(c.windows))
	var wg sync.WaitGroup

	for _, strat := range strategies {
		for _, days := range c.windows {
			wg.Add(1)
			go func(strat Strategy, days int) {
				defer wg.Done()

				window := lookbackBars(bars, days)
				engine, err := backtesting.NewEngine(c.config, strat.Providers, c.logger)
				if err != nil {
					c.logger.Error(ctx, err, "failed to build engine for comparison run",
						map[string]interface{}{"strategy": strat.Name, "days": days})
					return
				}
				result, err := engine.Run(ctx, window)
				if err != nil {
					c.logger.Warn(ctx, "skipping comparison window", map[string]interface{}{
						"strategy": strat.Name,
						"days":     days,
						"error":    err.Error(),
					})
					return
				}
				report := analytics.Analyze(result.Trades, result.EquityCurve, c.config.InitialCapital, c.config.RiskFreeRate)
				runCh <- periodRun{strategy: strat.Name, period: PeriodResult{Days: days, Result: result, Report: report}}
			}(strat, days)
		}
	}

	go func() {
		wg.Wait()
		close(runCh)
	}()

	periodsByStrategy := make(map[string][]PeriodResult, len(strategies))
	for run := range runCh {
		periodsByStrategy[run.strategy] = append(periodsByStrategy[run.strategy], run.period)
	}

	regimeScores := c.regimeScores(ctx, strategies)

	results := make([]StrategyResult, 0, len(strategies))
	for _, strat := range strategies {
		periods := periodsByStrategy[strat.Name]
		sort.Slice(periods, func(i, j int) bool { return periods[i].Days < periods[j].Days })
		results = append(results, scoreStrategy(strat.Name, periods, regimeScores[strat.Name]))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return HigherComposite(results[i], results[j])
	})

	return &ComparativeBacktestResult{Windows: c.windows, Strategies: results}, nil
}

// scoreStrategy derives the aggregate scores of one strategy from its period
// results and its synthetic-regime score.
func scoreStrategy(name string, periods []PeriodResult, regimeScore float64) StrategyResult {
	sr := StrategyResult{Name: name, Periods: periods, RegimeScore: regimeScore}
	if len(periods) == 0 {
		return sr
	}

	var sumSharpe, sumAnnualized, maxDrawdown float64
	periodReturns := make([]float64, 0, len(periods))
	for _, p := range periods {
		sumSharpe += p.Report.Sharpe
		sumAnnualized += p.Report.AnnualizedReturn
		if p.Report.MaxDrawdown > maxDrawdown {
			maxDrawdown = p.Report.MaxDrawdown
		}
		periodReturns = append(periodReturns, p.Report.TotalReturnPct)
	}
	meanAnnualized := sumAnnualized / float64(len(periods))

	sr.RiskAdjusted = (sumSharpe + meanAnnualized) / (1 + maxDrawdown)
	sr.Consistency = 1 / (1 + variance(periodReturns))
	sr.Composite = weightRiskAdjusted*sr.RiskAdjusted +
		weightConsistency*sr.Consistency +
		weightRegime*sr.RegimeScore
	return sr
}

// regimeScores runs every strategy against the synthetic regime series and
// returns the mean return per strategy.
func (c *Comparator) regimeScores(ctx context.Context, strategies []Strategy) map[string]float64 {
	regimes := syntheticRegimes(c.regimeSeed, regimeBars, c.config.Interval, c.config.Symbol)

	scores := make(map[string]float64, len(strategies))
	for _, strat := range strategies {
		var sum float64
		var runs int
		for kind, series := range regimes {
			engine, err := backtesting.NewEngine(c.config, strat.Providers, c.logger)
			if err != nil {
				continue
			}
			result, err := engine.Run(ctx, series)
			if err != nil {
				c.logger.Debug(ctx, "regime run skipped", map[string]interface{}{
					"strategy": strat.Name,
					"regime":   kind,
					"error":    err.Error(),
				})
				continue
			}
			sum += result.TotalReturnPct()
			runs++
		}
		if runs > 0 {
			scores[strat.Name] = sum / float64(runs)
		}
	}
	return scores
}

// lookbackBars returns the suffix of the series within the trailing window.
func lookbackBars(bars []*domain.Bar, days int) []*domain.Bar {
	if len(bars) == 0 {
		return nil
	}
	cutoff := bars[len(bars)-1].CloseTime.AddDate(0, 0, -days)
	for i, b := range bars {
		if !b.OpenTime.Before(cutoff) {
			return bars[i:]
		}
	}
	return nil
}

// variance is the population variance of the values; 0 for fewer than two.
func variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	sum := 0.0
	for _, v := range values {
		sum += (v - mean) * (v - mean)
	}
	return sum / float64(len(values))
}
