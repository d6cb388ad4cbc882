package portfolio

import (
	"fmt"
	"math"
	"math/rand"

	"quantbacktest/internal/ports"
	"quantbacktest/internal/strategy/comparison"
)

// Asset is one candidate for capital allocation, described by its expected
// annual return and annualized volatility.
type Asset struct {
	Name           string
	ExpectedReturn float64
	Volatility     float64
}

// Config controls the allocation search.
type Config struct {
	// Iterations bounds the weight-refinement loop; defaults to 100.
	Iterations int
	// LearningRate scales each refinement step; defaults to 0.01.
	LearningRate float64
	// FrontierSamples is the number of random portfolios sampled for the
	// efficient frontier; defaults to 500.
	FrontierSamples int
	// RiskFreeRate is the annual rate used for Sharpe; defaults to 0.
	RiskFreeRate float64
	// Seed makes frontier sampling reproducible. Zero selects seed 1.
	Seed int64
}

func (c *Config) applyDefaults() {
	if c.Iterations <= 0 {
		c.Iterations = 100
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 0.01
	}
	if c.FrontierSamples <= 0 {
		c.FrontierSamples = 500
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
}

// FrontierPoint is one sampled portfolio on the risk/return plane.
type FrontierPoint struct {
	Weights    []float64
	Return     float64
	Volatility float64
	Sharpe     float64
}

// Allocation is the optimizer's output: refined long-only weights summing to
// one, plus the sampled frontier and its best Sharpe portfolio.
type Allocation struct {
	Assets     []Asset
	Weights    []float64
	Return     float64
	Volatility float64
	Sharpe     float64

	Frontier  []FrontierPoint
	MaxSharpe FrontierPoint
}

// Optimize searches for long-only weights that improve the portfolio's
// risk-adjusted return. Starting from equal weights, each iteration nudges
// every weight by the asset's excess return over the portfolio scaled by
// portfolio volatility, clamps at zero and renormalizes. The correlation
// matrix may be nil, in which case assets are treated as uncorrelated.
func Optimize(assets []Asset, correlation [][]float64, config Config) (*Allocation, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: no assets to allocate", ports.ErrInsufficientData)
	}
	if correlation != nil && len(correlation) != len(assets) {
		return nil, fmt.Errorf("%w: correlation matrix is %dx%d for %d assets",
			ports.ErrConfigurationError, len(correlation), len(correlation), len(assets))
	}
	config.applyDefaults()

	n := len(assets)
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1 / float64(n)
	}

	for iter := 0; iter < config.Iterations; iter++ {
		portReturn := weightedReturn(assets, weights)
		portVol := portfolioVolatility(assets, weights, correlation)
		if portVol == 0 {
			break
		}
		for i := range weights {
			weights[i] += config.LearningRate * (assets[i].ExpectedReturn - portReturn) / portVol
			if weights[i] < 0 {
				weights[i] = 0
			}
		}
		normalize(weights)
	}

	alloc := &Allocation{
		Assets:     assets,
		Weights:    weights,
		Return:     weightedReturn(assets, weights),
		Volatility: portfolioVolatility(assets, weights, correlation),
	}
	if alloc.Volatility > 0 {
		alloc.Sharpe = (alloc.Return - config.RiskFreeRate) / alloc.Volatility
	}

	alloc.Frontier, alloc.MaxSharpe = sampleFrontier(assets, correlation, config)
	return alloc, nil
}

// FromComparison builds the optimizer's asset list from ranked strategy
// results, using each strategy's mean annualized return and the mean period
// volatility implied by its Sharpe ratios.
func FromComparison(results []comparison.StrategyResult) []Asset {
	assets := make([]Asset, 0, len(results))
	for _, sr := range results {
		if len(sr.Periods) == 0 {
			continue
		}
		var sumReturn, sumVol float64
		var vols int
		for _, p := range sr.Periods {
			sumReturn += p.Report.AnnualizedReturn
			if sd := periodVolatility(p.Report.PeriodReturns); sd > 0 {
				sumVol += sd
				vols++
			}
		}
		asset := Asset{
			Name:           sr.Name,
			ExpectedReturn: sumReturn / float64(len(sr.Periods)),
		}
		if vols > 0 {
			asset.Volatility = sumVol / float64(vols)
		}
		assets = append(assets, asset)
	}
	return assets
}

// sampleFrontier draws random long-only weight vectors and records each
// portfolio's risk/return point, tracking the best Sharpe sample.
func sampleFrontier(assets []Asset, correlation [][]float64, config Config) ([]FrontierPoint, FrontierPoint) {
	rng := rand.New(rand.NewSource(config.Seed))
	frontier := make([]FrontierPoint, 0, config.FrontierSamples)

	var best FrontierPoint
	best.Sharpe = math.Inf(-1)

	for i := 0; i < config.FrontierSamples; i++ {
		weights := randomWeights(rng, len(assets))
		point := FrontierPoint{
			Weights:    weights,
			Return:     weightedReturn(assets, weights),
			Volatility: portfolioVolatility(assets, weights, correlation),
		}
		if point.Volatility > 0 {
			point.Sharpe = (point.Return - config.RiskFreeRate) / point.Volatility
		}
		frontier = append(frontier, point)
		if point.Sharpe > best.Sharpe {
			best = point
		}
	}
	return frontier, best
}

func randomWeights(rng *rand.Rand, n int) []float64 {
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = rng.Float64()
	}
	normalize(weights)
	return weights
}

func weightedReturn(assets []Asset, weights []float64) float64 {
	sum := 0.0
	for i, a := range assets {
		sum += weights[i] * a.ExpectedReturn
	}
	return sum
}

// portfolioVolatility evaluates the quadratic form over the covariance
// implied by asset volatilities and the correlation matrix. A nil matrix
// falls back to identity correlation.
func portfolioVolatility(assets []Asset, weights []float64, correlation [][]float64) float64 {
	variance := 0.0
	for i := range assets {
		for j := range assets {
			rho := 0.0
			switch {
			case i == j:
				rho = 1
			case correlation != nil:
				rho = correlation[i][j]
			}
			variance += weights[i] * weights[j] * assets[i].Volatility * assets[j].Volatility * rho
		}
	}
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance)
}

// normalize scales weights to sum to one; all-zero weight vectors reset to
// equal weights.
func normalize(weights []float64) {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum == 0 {
		for i := range weights {
			weights[i] = 1 / float64(len(weights))
		}
		return
	}
	for i := range weights {
		weights[i] /= sum
	}
}

// periodVolatility is the sample standard deviation of period returns.
func periodVolatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range returns {
		mean += v
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, v := range returns {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(returns) - 1)
	return math.Sqrt(variance)
}
