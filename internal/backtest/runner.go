package backtest

import (
	"fmt"
	"time"

	"github.com/pouyanh/rsi-trader/internal/candle"
	"github.com/pouyanh/rsi-trader/internal/config"
	"github.com/pouyanh/rsi-trader/internal/exchange"
	"github.com/pouyanh/rsi-trader/internal/journal"
	"github.com/pouyanh/rsi-trader/internal/position"
)

// Result holds the outcome of one backtest run.
type Result struct {
	Symbol          string
	Timeframe       string
	From            time.Time
	To              time.Time
	Params          config.StrategyParams
	StartingBalance float64
	FinalEquity     float64
	EquityCurve     []float64
	Trades          []position.Trade
	Metrics         map[string]float64
}

// Run drives the order lifecycle controller bar by bar through a fresh
// simulated venue and computes performance metrics from the equity curve and
// the trade log. Any open position is flattened on the last bar so the final
// equity is fully realized.
func Run(params config.StrategyParams, candles []candle.Candle, cfg config.Config, journaler journal.Journaler) (*Result, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("backtest: no candles")
	}

	sim := exchange.NewSim(cfg.Symbol, cfg.StartingBalance, cfg.SlippagePercent, cfg.CommissionPercent)
	ctrl, err := position.NewController(params, cfg.Symbol, sim, sim, journaler)
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}
	sim.SetHandler(ctrl)

	equityCurve := make([]float64, 0, len(candles)+1)
	equityCurve = append(equityCurve, cfg.StartingBalance)

	for _, k := range candles {
		// The venue sees the bar first so resting protective orders match
		// against its range before the strategy reacts to the close.
		sim.OnBar(k)
		ctrl.OnBar(k)
		equityCurve = append(equityCurve, sim.FreeEquity())
	}

	ctrl.Flatten()
	equityCurve[len(equityCurve)-1] = sim.FreeEquity()

	res := &Result{
		Symbol:          cfg.Symbol,
		Timeframe:       cfg.Timeframe,
		From:            candles[0].Timestamp,
		To:              candles[len(candles)-1].Timestamp,
		Params:          params,
		StartingBalance: cfg.StartingBalance,
		FinalEquity:     sim.FreeEquity(),
		EquityCurve:     equityCurve,
		Trades:          ctrl.Trades(),
	}
	res.Metrics = ComputeMetrics(res, cfg.Timeframe)
	return res, nil
}
