package optimizer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pouyanh/rsi-trader/internal/candle"
	"github.com/pouyanh/rsi-trader/internal/config"
)

func TestDefaultSearchSpaceRanges(t *testing.T) {
	space := DefaultSearchSpace()

	assert.Equal(t, 21, len(space.Oversold))
	assert.Equal(t, 20.0, space.Oversold[0])
	assert.Equal(t, 40.0, space.Oversold[len(space.Oversold)-1])

	assert.Equal(t, 21, len(space.Overbought))
	assert.Equal(t, 11, len(space.StopLoss))
	assert.InDelta(t, 0.5, space.StopLoss[0], 1e-9)
	assert.InDelta(t, 3.0, space.StopLoss[len(space.StopLoss)-1], 1e-9)

	assert.Equal(t, 11, len(space.TakeProfit))
	assert.Equal(t, 10, len(space.PositionPct))
}

func TestCombinationsSize(t *testing.T) {
	space := SearchSpace{
		RSIPeriod:   14,
		Oversold:    []float64{25, 30},
		Overbought:  []float64{70, 75},
		StopLoss:    []float64{1},
		TakeProfit:  []float64{2, 3},
		PositionPct: []float64{1},
	}
	combos := space.Combinations()
	assert.Len(t, combos, 8)
	for _, p := range combos {
		assert.NoError(t, p.Validate())
	}
}

func TestSampleCapsAndIsDeterministic(t *testing.T) {
	combos := DefaultSearchSpace().Combinations()
	require.Greater(t, len(combos), 200)

	a := Sample(combos, 200, 42)
	b := Sample(combos, 200, 42)
	assert.Len(t, a, 200)
	assert.Equal(t, a, b)

	c := Sample(combos, 200, 43)
	assert.NotEqual(t, a, c)

	// Under the cap the input passes through untouched.
	small := combos[:50]
	assert.Equal(t, small, Sample(small, 200, 42))
}

func TestFiltersKeep(t *testing.T) {
	m := map[string]float64{"sharpe_ratio": 1.0, "win_rate_pct": 50, "max_drawdown_pct": 10}

	assert.True(t, Filters{}.keep(m))
	assert.True(t, Filters{MinSharpe: 0.5}.keep(m))
	assert.False(t, Filters{MinSharpe: 1.5}.keep(m))
	assert.False(t, Filters{MinWinRate: 55}.keep(m))
	assert.False(t, Filters{MaxDrawdownPct: 5}.keep(m))
	assert.True(t, Filters{MinSharpe: 0.5, MinWinRate: 40, MaxDrawdownPct: 20}.keep(m))
}

func optimizerTestConfig(maxCombos int) config.Config {
	return config.Config{
		Mode:            "optimize",
		Symbol:          "ETH-USDT",
		Timeframe:       "15m",
		StartingBalance: 100000,
		Optimizer: config.OptimizerParams{
			MaxCombinations: maxCombos,
			Seed:            42,
		},
	}
}

func smallSpace() SearchSpace {
	return SearchSpace{
		RSIPeriod:   14,
		Oversold:    []float64{25, 30},
		Overbought:  []float64{70, 75},
		StopLoss:    []float64{1.5},
		TakeProfit:  []float64{3},
		PositionPct: []float64{2},
	}
}

func TestRunGridSearchSortedBySharpe(t *testing.T) {
	to := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	candles := candle.GenerateSynthetic("ETH-USDT", "15m", 20, to, 42)

	results, err := RunGridSearch(context.Background(), candles, smallSpace(), optimizerTestConfig(0), Filters{})
	require.NoError(t, err)
	require.Len(t, results, 4)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t,
			results[i-1].Metrics["sharpe_ratio"],
			results[i].Metrics["sharpe_ratio"])
	}
}

func TestRunGridSearchCancellation(t *testing.T) {
	to := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	candles := candle.GenerateSynthetic("ETH-USDT", "15m", 10, to, 42)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := RunGridSearch(ctx, candles, smallSpace(), optimizerTestConfig(0), Filters{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestRunGridSearchRejectsEmptyCandles(t *testing.T) {
	_, err := RunGridSearch(context.Background(), nil, smallSpace(), optimizerTestConfig(0), Filters{})
	assert.Error(t, err)
}

func TestAnalyzeParameterImpact(t *testing.T) {
	to := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	candles := candle.GenerateSynthetic("ETH-USDT", "15m", 20, to, 42)

	results, err := RunGridSearch(context.Background(), candles, smallSpace(), optimizerTestConfig(0), Filters{})
	require.NoError(t, err)

	impacts := AnalyzeParameterImpact(results)
	require.NotEmpty(t, impacts)

	counts := make(map[string]int)
	for _, im := range impacts {
		counts[im.Param] += im.Count
	}
	// Every result contributes once per parameter.
	assert.Equal(t, len(results), counts["oversold_threshold"])
	assert.Equal(t, len(results), counts["stop_loss_pct"])
}

func TestSummaryReport(t *testing.T) {
	to := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	candles := candle.GenerateSynthetic("ETH-USDT", "15m", 20, to, 42)

	results, err := RunGridSearch(context.Background(), candles, smallSpace(), optimizerTestConfig(0), Filters{})
	require.NoError(t, err)

	report := SummaryReport(results, 4)
	assert.Contains(t, report, "OPTIMAL PARAMETERS")
	assert.Contains(t, report, "Combinations tested: 4")

	empty := SummaryReport(nil, 4)
	assert.Contains(t, empty, "No combination passed the filters.")
}

func TestSaveCSV(t *testing.T) {
	to := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	candles := candle.GenerateSynthetic("ETH-USDT", "15m", 10, to, 42)

	results, err := RunGridSearch(context.Background(), candles, smallSpace(), optimizerTestConfig(0), Filters{})
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := SaveCSV(results, dir)
	require.NoError(t, err)
	assert.FileExists(t, path)
}
