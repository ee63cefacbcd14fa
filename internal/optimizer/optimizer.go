// Package optimizer
package optimizer

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"

	"github.com/pouyanh/rsi-trader/internal/backtest"
	"github.com/pouyanh/rsi-trader/internal/candle"
	"github.com/pouyanh/rsi-trader/internal/config"
)

// SearchSpace is the parameter grid of the search. The RSI period is held
// fixed; tuning it together with the thresholds mostly rediscovers the same
// signals at a different scale.
type SearchSpace struct {
	RSIPeriod   int
	Oversold    []float64
	Overbought  []float64
	StopLoss    []float64
	TakeProfit  []float64
	PositionPct []float64
}

// DefaultSearchSpace covers the standard tuning ranges around RSI(14).
func DefaultSearchSpace() SearchSpace {
	return SearchSpace{
		RSIPeriod:   14,
		Oversold:    steps(20, 40, 1),
		Overbought:  steps(60, 80, 1),
		StopLoss:    steps(0.5, 3.0, 0.25),
		TakeProfit:  steps(1.0, 6.0, 0.5),
		PositionPct: steps(0.5, 5.0, 0.5),
	}
}

func steps(from, to, step float64) []float64 {
	var out []float64
	for v := from; v <= to+step/2; v += step {
		out = append(out, v)
	}
	return out
}

// Combinations expands the grid into the full cartesian product.
func (s SearchSpace) Combinations() []config.StrategyParams {
	out := make([]config.StrategyParams, 0,
		len(s.Oversold)*len(s.Overbought)*len(s.StopLoss)*len(s.TakeProfit)*len(s.PositionPct))
	for _, os := range s.Oversold {
		for _, ob := range s.Overbought {
			for _, sl := range s.StopLoss {
				for _, tp := range s.TakeProfit {
					for _, size := range s.PositionPct {
						out = append(out, config.StrategyParams{
							RSIPeriod:           s.RSIPeriod,
							OversoldThreshold:   os,
							OverboughtThreshold: ob,
							StopLossPct:         sl,
							TakeProfitPct:       tp,
							PositionSizePct:     size,
						})
					}
				}
			}
		}
	}
	return out
}

// Sample reduces the combination list to at most max entries using a seeded
// shuffle, so repeated runs test the same subset.
func Sample(combos []config.StrategyParams, max int, seed int64) []config.StrategyParams {
	if max <= 0 || len(combos) <= max {
		return combos
	}
	log.Printf("Optimizer | %d combinations exceed cap %d, sampling", len(combos), max)

	rng := rand.New(rand.NewSource(seed))
	shuffled := make([]config.StrategyParams, len(combos))
	copy(shuffled, combos)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:max]
}

// Filters drops uninteresting results. Zero values disable a criterion.
type Filters struct {
	MinSharpe      float64
	MinWinRate     float64
	MaxDrawdownPct float64
}

func (f Filters) keep(m map[string]float64) bool {
	if f.MinSharpe != 0 && m["sharpe_ratio"] < f.MinSharpe {
		return false
	}
	if f.MinWinRate != 0 && m["win_rate_pct"] < f.MinWinRate {
		return false
	}
	if f.MaxDrawdownPct != 0 && m["max_drawdown_pct"] > f.MaxDrawdownPct {
		return false
	}
	return true
}

// RunGridSearch backtests every parameter combination over the same candle
// series and returns the passing results sorted by Sharpe ratio, best first.
// Cancelling the context stops the search and returns what has finished.
func RunGridSearch(ctx context.Context, candles []candle.Candle, space SearchSpace, cfg config.Config, filters Filters) ([]*backtest.Result, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("optimizer: no candles")
	}

	combos := Sample(space.Combinations(), cfg.Optimizer.MaxCombinations, cfg.Optimizer.Seed)
	log.Printf("Optimizer | testing %d parameter combinations on %d candles", len(combos), len(candles))

	var results []*backtest.Result
	for i, params := range combos {
		select {
		case <-ctx.Done():
			log.Printf("Optimizer | cancelled after %d/%d combinations", i, len(combos))
			return sortBySharpe(results), ctx.Err()
		default:
		}

		res, err := backtest.Run(params, candles, cfg, nil)
		if err != nil {
			log.Printf("Optimizer | combination %d failed: %v", i+1, err)
			continue
		}
		if !filters.keep(res.Metrics) {
			continue
		}
		results = append(results, res)

		if (i+1)%50 == 0 {
			log.Printf("Optimizer | %d/%d combinations done", i+1, len(combos))
		}
	}

	return sortBySharpe(results), nil
}

func sortBySharpe(results []*backtest.Result) []*backtest.Result {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Metrics["sharpe_ratio"] > results[j].Metrics["sharpe_ratio"]
	})
	return results
}
