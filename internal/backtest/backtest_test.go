package backtest

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pouyanh/rsi-trader/internal/candle"
	"github.com/pouyanh/rsi-trader/internal/config"
)

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name  string
		curve []float64
		want  float64
	}{
		{"monotonic rise", []float64{100, 110, 120}, 0},
		{"single dip", []float64{100, 120, 90, 130}, 0.25},
		{"deepest of two dips", []float64{100, 80, 120, 60}, 0.5},
		{"flat", []float64{100, 100, 100}, 0},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MaxDrawdown(tt.curve), 1e-12)
		})
	}
}

func TestSharpeRatioFlatCurveIsZero(t *testing.T) {
	returns := []float64{0, 0, 0, 0}
	assert.Zero(t, sharpeRatio(returns, 252))
	assert.Zero(t, sharpeRatio(nil, 252))
}

func TestSortinoRatioNoDownside(t *testing.T) {
	returns := []float64{0.01, 0.02, 0.01}
	assert.Zero(t, sortinoRatio(returns, 252))
}

func TestRatiosZeroBarsPerYear(t *testing.T) {
	returns := []float64{0.01, -0.02}
	assert.Zero(t, sharpeRatio(returns, 0))
	assert.Zero(t, sortinoRatio(returns, 0))
}

func testRunConfig() config.Config {
	return config.Config{
		Mode:            "backtest",
		Symbol:          "ETH-USDT",
		Timeframe:       "15m",
		StartingBalance: 100000,
	}
}

func TestRunOnSyntheticData(t *testing.T) {
	to := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	candles := candle.GenerateSynthetic("ETH-USDT", "15m", 30, to, 42)
	require.NotEmpty(t, candles)

	params := config.DefaultStrategyParams()
	res, err := Run(params, candles, testRunConfig(), nil)
	require.NoError(t, err)

	assert.Len(t, res.EquityCurve, len(candles)+1)
	assert.Equal(t, 100000.0, res.EquityCurve[0])
	assert.InDelta(t, res.FinalEquity, res.EquityCurve[len(res.EquityCurve)-1], 1e-9)

	// Flattening on the last bar leaves nothing open, so realized PnL is the
	// whole equity move.
	assert.InDelta(t, res.FinalEquity-res.StartingBalance,
		res.Metrics["total_return_pct"]/100*res.StartingBalance, 1e-6)

	assert.GreaterOrEqual(t, res.Metrics["max_drawdown_pct"], 0.0)
	assert.False(t, math.IsNaN(res.Metrics["sharpe_ratio"]))

	assert.Equal(t, float64(len(res.Trades)), res.Metrics["trades"])
	if len(res.Trades) > 0 {
		wins := 0
		for _, tr := range res.Trades {
			if tr.PnL > 0 {
				wins++
			}
		}
		assert.InDelta(t, float64(wins)/float64(len(res.Trades))*100, res.Metrics["win_rate_pct"], 1e-9)
	}
}

func TestRunDeterministic(t *testing.T) {
	to := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	candles := candle.GenerateSynthetic("ETH-USDT", "15m", 20, to, 7)
	params := config.DefaultStrategyParams()

	a, err := Run(params, candles, testRunConfig(), nil)
	require.NoError(t, err)
	b, err := Run(params, candles, testRunConfig(), nil)
	require.NoError(t, err)

	assert.Equal(t, a.FinalEquity, b.FinalEquity)
	assert.Equal(t, len(a.Trades), len(b.Trades))
}

func TestRunRejectsEmptyInput(t *testing.T) {
	_, err := Run(config.DefaultStrategyParams(), nil, testRunConfig(), nil)
	assert.Error(t, err)
}

func TestSaveCSV(t *testing.T) {
	to := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	candles := candle.GenerateSynthetic("ETH-USDT", "15m", 20, to, 42)
	res, err := Run(config.DefaultStrategyParams(), candles, testRunConfig(), nil)
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := SaveCSV(res, dir)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestToRecord(t *testing.T) {
	res := &Result{
		Symbol:    "ETH-USDT",
		Timeframe: "15m",
		Params:    config.DefaultStrategyParams(),
		Metrics:   map[string]float64{"sharpe_ratio": 1.2},
	}
	rec := ToRecord(res)
	assert.Equal(t, "ETH-USDT", rec.Symbol)
	assert.Equal(t, 14.0, rec.Params["rsi_period"])
	assert.Equal(t, 1.2, rec.Metrics["sharpe_ratio"])
}

func TestToRecordDropsNonFiniteMetrics(t *testing.T) {
	res := &Result{
		Symbol:    "ETH-USDT",
		Timeframe: "15m",
		Params:    config.DefaultStrategyParams(),
		Metrics: map[string]float64{
			"profit_factor": math.Inf(1), // all winners, no gross loss
			"sortino_ratio": math.NaN(),
			"sharpe_ratio":  1.2,
		},
	}
	rec := ToRecord(res)

	_, hasPF := rec.Metrics["profit_factor"]
	assert.False(t, hasPF)
	_, hasSortino := rec.Metrics["sortino_ratio"]
	assert.False(t, hasSortino)
	assert.Equal(t, 1.2, rec.Metrics["sharpe_ratio"])

	_, err := json.Marshal(rec.Metrics)
	require.NoError(t, err, "persisted metrics must be JSON-encodable")
}
