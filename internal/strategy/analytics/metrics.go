package analytics

import (
	"math"
	"sort"
	"time"

	"quantbacktest/internal/domain"
)

// SortinoState distinguishes a defined Sortino ratio from the case where the
// run produced no negative returns. The "no downside" case is deliberately an
// enumerated state rather than a numeric infinity so downstream comparisons
// stay well-defined.
type SortinoState string

const (
	SortinoDefined    SortinoState = "defined"
	SortinoNoDownside SortinoState = "no_downside"
	SortinoUndefined  SortinoState = "undefined" // no returns at all
)

// tradingDaysPerYear converts the annual risk-free rate to a per-period rate
// for the Sharpe computation.
const tradingDaysPerYear = 252

// Report holds the derived performance and risk metrics of one backtest run.
// It is a pure function of the closed trades, the equity curve and the
// initial capital; producing it has no side effects.
type Report struct {
	InitialCapital float64
	FinalEquity    float64
	TotalReturn    float64 // Net profit in currency terms
	TotalReturnPct float64 // Net profit as a fraction of initial capital
	// AnnualizedReturn is TotalReturnPct scaled to a yearly rate using the
	// equity curve's span.
	AnnualizedReturn float64

	TotalTrades int
	Wins        int // Profitable trades (full and partial wins)
	PartialWins int
	Losses      int
	Pushes      int

	WinRate      float64 // wins / (wins + losses); pushes excluded
	ProfitFactor float64 // Gross wins over gross losses; 0 with no losses
	Expectancy   float64 // Total return per trade

	AvgWin      float64
	AvgLoss     float64 // Magnitude
	LargestWin  float64
	LargestLoss float64 // Magnitude

	PeriodReturns []float64 // Bar-over-bar equity percentage changes

	Sharpe       float64
	Sortino      float64
	SortinoState SortinoState
	MaxDrawdown  float64
	Calmar       float64

	VaR95  float64 // Historical 5% Value-at-Risk (a return, usually negative)
	CVaR95 float64 // Mean of returns at or below the VaR index

	Kelly float64 // Kelly criterion over realized trades

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int

	AvgTradeDuration time.Duration

	MonthlyReturns    map[string]float64 // "2006-01" -> summed period returns
	MonthlyVolatility map[string]float64 // "2006-01" -> stdev of period returns
}

// Analyze computes the full performance report. It never panics on degenerate
// input: missing data yields zero values or the documented Sortino state.
func Analyze(trades []*domain.Trade, curve []domain.EquityPoint, initialCapital, riskFreeRate float64) *Report {
	r := &Report{
		InitialCapital:    initialCapital,
		FinalEquity:       initialCapital,
		SortinoState:      SortinoUndefined,
		MonthlyReturns:    make(map[string]float64),
		MonthlyVolatility: make(map[string]float64),
	}
	if len(curve) > 0 {
		r.FinalEquity = curve[len(curve)-1].Equity
	}

	analyzeTrades(r, trades)
	analyzeCurve(r, curve, riskFreeRate)
	return r
}

func analyzeTrades(r *Report, trades []*domain.Trade) {
	// Trades are evaluated in chronological close order; streaks depend on it.
	ordered := make([]*domain.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExitTime.Before(ordered[j].ExitTime)
	})

	var grossWins, grossLosses float64
	var winStreak, lossStreak int
	var totalDuration time.Duration

	for _, t := range ordered {
		r.TotalTrades++
		r.TotalReturn += t.PNL
		totalDuration += t.ExitTime.Sub(t.EntryTime)

		switch {
		case t.Outcome == domain.OutcomePush:
			r.Pushes++
			// A push resets the streak without counting as a loss.
			winStreak, lossStreak = 0, 0
		case t.Outcome.Profitable():
			r.Wins++
			if t.Outcome == domain.OutcomePartialWin {
				r.PartialWins++
			}
			grossWins += t.PNL
			if t.PNL > r.LargestWin {
				r.LargestWin = t.PNL
			}
			winStreak++
			lossStreak = 0
		default:
			r.Losses++
			grossLosses += math.Abs(t.PNL)
			if math.Abs(t.PNL) > r.LargestLoss {
				r.LargestLoss = math.Abs(t.PNL)
			}
			lossStreak++
			winStreak = 0
		}

		if winStreak > r.MaxConsecutiveWins {
			r.MaxConsecutiveWins = winStreak
		}
		if lossStreak > r.MaxConsecutiveLosses {
			r.MaxConsecutiveLosses = lossStreak
		}
	}

	if decided := r.Wins + r.Losses; decided > 0 {
		r.WinRate = float64(r.Wins) / float64(decided)
	}
	if grossLosses > 0 {
		r.ProfitFactor = grossWins / grossLosses
	}
	if r.TotalTrades > 0 {
		r.Expectancy = r.TotalReturn / float64(r.TotalTrades)
		r.AvgTradeDuration = totalDuration / time.Duration(r.TotalTrades)
	}
	if r.Wins > 0 {
		r.AvgWin = grossWins / float64(r.Wins)
	}
	if r.Losses > 0 {
		r.AvgLoss = grossLosses / float64(r.Losses)
	}
	if r.AvgWin > 0 {
		r.Kelly = r.WinRate - (1-r.WinRate)*(r.AvgLoss/r.AvgWin)
	}
	if r.InitialCapital > 0 {
		r.TotalReturnPct = r.TotalReturn / r.InitialCapital
	}
}

func analyzeCurve(r *Report, curve []domain.EquityPoint, riskFreeRate float64) {
	for _, p := range curve {
		if p.Drawdown > r.MaxDrawdown {
			r.MaxDrawdown = p.Drawdown
		}
	}
	if r.MaxDrawdown > 0 && r.InitialCapital > 0 {
		r.Calmar = (r.TotalReturn / r.InitialCapital) / r.MaxDrawdown
	}

	if len(curve) >= 2 {
		span := curve[len(curve)-1].Time.Sub(curve[0].Time)
		if years := span.Hours() / 24 / 365.25; years > 0 {
			r.AnnualizedReturn = r.TotalReturnPct / years
		}
	}

	r.PeriodReturns = periodReturns(curve)
	monthly := groupByMonth(curve)
	for month, rets := range monthly {
		sum := 0.0
		for _, v := range rets {
			sum += v
		}
		r.MonthlyReturns[month] = sum
		r.MonthlyVolatility[month] = stdev(rets)
	}

	returns := r.PeriodReturns
	if len(returns) == 0 {
		return
	}

	mean := 0.0
	for _, v := range returns {
		mean += v
	}
	mean /= float64(len(returns))

	if sd := stdev(returns); sd > 0 {
		r.Sharpe = (mean - riskFreeRate/tradingDaysPerYear) / sd
	}

	negatives := make([]float64, 0, len(returns))
	for _, v := range returns {
		if v < 0 {
			negatives = append(negatives, v)
		}
	}
	if len(negatives) == 0 {
		r.SortinoState = SortinoNoDownside
	} else {
		r.SortinoState = SortinoDefined
		if dd := downsideDeviation(negatives); dd > 0 {
			r.Sortino = mean / dd
		}
	}

	r.VaR95, r.CVaR95 = historicalVaR(returns, 0.05)
}

// periodReturns computes bar-over-bar equity percentage changes. A curve
// shorter than two points yields an empty series.
func periodReturns(curve []domain.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, curve[i].Equity/prev-1)
	}
	return returns
}

// groupByMonth buckets period returns by the calendar month of the equity
// timestamp at which each return was realized.
func groupByMonth(curve []domain.EquityPoint) map[string][]float64 {
	grouped := make(map[string][]float64)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		ret := 0.0
		if prev != 0 {
			ret = curve[i].Equity/prev - 1
		}
		key := curve[i].Time.Format("2006-01")
		grouped[key] = append(grouped[key], ret)
	}
	return grouped
}

// historicalVaR sorts returns ascending and reads the value at the requested
// percentile index; CVaR is the mean of all returns at or below that index.
func historicalVaR(returns []float64, percentile float64) (valueAtRisk, conditional float64) {
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(percentile * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	valueAtRisk = sorted[idx]

	sum := 0.0
	for i := 0; i <= idx; i++ {
		sum += sorted[i]
	}
	conditional = sum / float64(idx+1)
	return valueAtRisk, conditional
}

// stdev is the sample standard deviation; 0 for fewer than two values.
func stdev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}

// downsideDeviation is the root mean square of the negative returns.
func downsideDeviation(negatives []float64) float64 {
	if len(negatives) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range negatives {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(negatives)))
}
