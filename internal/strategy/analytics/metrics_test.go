package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantbacktest/internal/domain"
)

func closedTrade(pnl float64, outcome domain.TradeOutcome, exitOffset time.Duration) *domain.Trade {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return &domain.Trade{
		Symbol:    "ETHUSDT",
		Direction: domain.Buy,
		Status:    domain.StatusClosed,
		PNL:       pnl,
		Outcome:   outcome,
		EntryTime: base.Add(exitOffset - time.Hour),
		ExitTime:  base.Add(exitOffset),
	}
}

func flatCurve(equities []float64) []domain.EquityPoint {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	curve := make([]domain.EquityPoint, 0, len(equities))
	peak := 0.0
	for i, eq := range equities {
		if eq > peak {
			peak = eq
		}
		dd := 0.0
		if peak > 0 && eq < peak {
			dd = (peak - eq) / peak
		}
		curve = append(curve, domain.EquityPoint{
			Time:     base.Add(time.Duration(i) * time.Hour),
			Equity:   eq,
			Drawdown: dd,
		})
	}
	return curve
}

func TestAnalyzeEmptyInput(t *testing.T) {
	r := Analyze(nil, nil, 10000, 0.02)
	require.NotNil(t, r)
	assert.Equal(t, 0, r.TotalTrades)
	assert.Equal(t, 0.0, r.WinRate)
	assert.Equal(t, 0.0, r.ProfitFactor)
	assert.Equal(t, SortinoUndefined, r.SortinoState)
	assert.Equal(t, 10000.0, r.FinalEquity)
}

func TestAnalyzeWinRateExcludesPushes(t *testing.T) {
	trades := []*domain.Trade{
		closedTrade(100, domain.OutcomeWin, 1*time.Hour),
		closedTrade(-50, domain.OutcomeLoss, 2*time.Hour),
		closedTrade(1, domain.OutcomePush, 3*time.Hour),
		closedTrade(80, domain.OutcomeWin, 4*time.Hour),
	}
	r := Analyze(trades, nil, 10000, 0)

	assert.Equal(t, 4, r.TotalTrades)
	assert.Equal(t, 2, r.Wins)
	assert.Equal(t, 1, r.Losses)
	assert.Equal(t, 1, r.Pushes)
	assert.InDelta(t, 2.0/3.0, r.WinRate, 1e-9)
}

func TestAnalyzeProfitFactorNoLosses(t *testing.T) {
	trades := []*domain.Trade{
		closedTrade(100, domain.OutcomeWin, 1*time.Hour),
		closedTrade(200, domain.OutcomeWin, 2*time.Hour),
	}
	r := Analyze(trades, nil, 10000, 0)

	// No losing trades leaves the profit factor at zero instead of infinity.
	assert.Equal(t, 0.0, r.ProfitFactor)
	assert.Equal(t, 300.0, r.TotalReturn)
	assert.InDelta(t, 150.0, r.Expectancy, 1e-9)
}

func TestAnalyzeStreaksResetOnPush(t *testing.T) {
	trades := []*domain.Trade{
		closedTrade(100, domain.OutcomeWin, 1*time.Hour),
		closedTrade(100, domain.OutcomeWin, 2*time.Hour),
		closedTrade(1, domain.OutcomePush, 3*time.Hour),
		closedTrade(100, domain.OutcomeWin, 4*time.Hour),
		closedTrade(-50, domain.OutcomeLoss, 5*time.Hour),
		closedTrade(-50, domain.OutcomeLoss, 6*time.Hour),
		closedTrade(-50, domain.OutcomeLoss, 7*time.Hour),
	}
	r := Analyze(trades, nil, 10000, 0)

	// The push breaks the winning streak without starting a losing one.
	assert.Equal(t, 2, r.MaxConsecutiveWins)
	assert.Equal(t, 3, r.MaxConsecutiveLosses)
}

func TestAnalyzeKelly(t *testing.T) {
	trades := []*domain.Trade{
		closedTrade(100, domain.OutcomeWin, 1*time.Hour),
		closedTrade(-50, domain.OutcomeLoss, 2*time.Hour),
	}
	r := Analyze(trades, nil, 10000, 0)

	// winRate 0.5, avgWin 100, avgLoss 50: kelly = 0.5 - 0.5*(50/100) = 0.25
	assert.InDelta(t, 0.25, r.Kelly, 1e-9)
}

func TestAnalyzeSortinoNoDownside(t *testing.T) {
	curve := flatCurve([]float64{10000, 10050, 10100, 10175, 10200})
	r := Analyze(nil, curve, 10000, 0)

	assert.Equal(t, SortinoNoDownside, r.SortinoState)
	assert.Equal(t, 0.0, r.Sortino)
	assert.Greater(t, r.Sharpe, 0.0)
}

func TestAnalyzeSortinoDefined(t *testing.T) {
	curve := flatCurve([]float64{10000, 10100, 10000, 10200, 10150})
	r := Analyze(nil, curve, 10000, 0)

	assert.Equal(t, SortinoDefined, r.SortinoState)
	assert.NotEqual(t, 0.0, r.Sortino)
}

func TestAnalyzeDrawdownAndCalmar(t *testing.T) {
	curve := flatCurve([]float64{10000, 11000, 9900, 10500, 11000})
	r := Analyze(nil, curve, 10000, 0)

	assert.InDelta(t, 0.1, r.MaxDrawdown, 1e-9)
	// TotalReturn comes from trades; with none it stays 0 and Calmar with it.
	assert.Equal(t, 0.0, r.Calmar)
}

func TestAnalyzeVaR(t *testing.T) {
	// 20 equity points alternating small gains with one severe loss.
	equities := []float64{10000}
	for i := 1; i < 20; i++ {
		prev := equities[i-1]
		if i == 10 {
			equities = append(equities, prev*0.9)
		} else {
			equities = append(equities, prev*1.005)
		}
	}
	r := Analyze(nil, flatCurve(equities), 10000, 0)

	require.Len(t, r.PeriodReturns, 19)
	// The worst return sits at the 5% index of the sorted series.
	assert.InDelta(t, -0.1, r.VaR95, 1e-9)
	assert.LessOrEqual(t, r.CVaR95, r.VaR95)
}

func TestAnalyzeMonthlyGrouping(t *testing.T) {
	base := time.Date(2024, 1, 31, 22, 0, 0, 0, time.UTC)
	curve := []domain.EquityPoint{
		{Time: base, Equity: 10000},
		{Time: base.Add(1 * time.Hour), Equity: 10100},
		{Time: base.Add(3 * time.Hour), Equity: 10200}, // crosses into February
		{Time: base.Add(4 * time.Hour), Equity: 10150},
	}
	r := Analyze(nil, curve, 10000, 0)

	require.Contains(t, r.MonthlyReturns, "2024-01")
	require.Contains(t, r.MonthlyReturns, "2024-02")
	assert.Greater(t, r.MonthlyReturns["2024-01"], 0.0)
	assert.Less(t, r.MonthlyReturns["2024-02"], r.MonthlyReturns["2024-01"])
}
