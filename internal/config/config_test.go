package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestStrategyParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*StrategyParams)
		wantErr bool
	}{
		{"defaults valid", func(p *StrategyParams) {}, false},
		{"period too small", func(p *StrategyParams) { p.RSIPeriod = 1 }, true},
		{"oversold above overbought", func(p *StrategyParams) { p.OversoldThreshold = 75 }, true},
		{"oversold equals overbought", func(p *StrategyParams) { p.OversoldThreshold = 70 }, true},
		{"oversold zero", func(p *StrategyParams) { p.OversoldThreshold = 0 }, true},
		{"overbought at 100", func(p *StrategyParams) { p.OverboughtThreshold = 100 }, true},
		{"negative stop loss", func(p *StrategyParams) { p.StopLossPct = -1 }, true},
		{"zero take profit", func(p *StrategyParams) { p.TakeProfitPct = 0 }, true},
		{"size percent zero", func(p *StrategyParams) { p.PositionSizePct = 0 }, true},
		{"size percent over 100", func(p *StrategyParams) { p.PositionSizePct = 150 }, true},
		{"size percent at 100", func(p *StrategyParams) { p.PositionSizePct = 100 }, false},
		{"tight thresholds", func(p *StrategyParams) {
			p.OversoldThreshold = 40
			p.OverboughtThreshold = 60
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultStrategyParams()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	base := Config{
		Mode:            "backtest",
		Symbol:          "ETH-USDT",
		Timeframe:       "15m",
		BacktestFrom:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		BacktestTo:      time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		StartingBalance: 100000,
		Strategy:        DefaultStrategyParams(),
	}

	require.NoError(t, base.Validate())

	t.Run("bad mode", func(t *testing.T) {
		cfg := base
		cfg.Mode = "live"
		assert.Error(t, cfg.Validate())
	})

	t.Run("empty symbol", func(t *testing.T) {
		cfg := base
		cfg.Symbol = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("unsupported timeframe", func(t *testing.T) {
		cfg := base
		cfg.Timeframe = "2w"
		assert.Error(t, cfg.Validate())
	})

	t.Run("empty timeframe", func(t *testing.T) {
		cfg := base
		cfg.Timeframe = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("empty window", func(t *testing.T) {
		cfg := base
		cfg.BacktestTo = cfg.BacktestFrom
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero balance", func(t *testing.T) {
		cfg := base
		cfg.StartingBalance = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("invalid strategy propagates", func(t *testing.T) {
		cfg := base
		cfg.Strategy.RSIPeriod = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestDurationUnmarshalYAML(t *testing.T) {
	var cfg Config

	require.NoError(t, yaml.Unmarshal([]byte("api_retry_base_delay: 2s"), &cfg))
	assert.Equal(t, Duration(2*time.Second), cfg.APIRetryBaseDelay)

	require.NoError(t, yaml.Unmarshal([]byte("api_retry_base_delay: 1500000000"), &cfg))
	assert.Equal(t, Duration(1500*time.Millisecond), cfg.APIRetryBaseDelay)

	assert.Error(t, yaml.Unmarshal([]byte("api_retry_base_delay: soon"), &cfg))
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	applyDefaults(&cfg)
	assert.Equal(t, 3, cfg.APIRetryMaxAttempts)
	assert.Equal(t, Duration(2*time.Second), cfg.APIRetryBaseDelay)
	assert.Equal(t, 10, cfg.Optimizer.TopN)
	assert.Equal(t, "results", cfg.ResultsDir)
}
