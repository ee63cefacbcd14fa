package backtest

import (
	"math"

	"github.com/pouyanh/rsi-trader/internal/tfutils"
)

const (
	tradingDaysPerYear = 252
	riskFreeRateAnnual = 0.02
)

// ComputeMetrics derives the performance metrics of a finished run. Ratios
// are computed from per-bar equity returns and annualized by the number of
// bars per trading year; trade statistics come from the round-trip log.
func ComputeMetrics(res *Result, timeframe string) map[string]float64 {
	m := make(map[string]float64)

	m["total_return_pct"] = (res.FinalEquity - res.StartingBalance) / res.StartingBalance * 100
	m["max_drawdown_pct"] = MaxDrawdown(res.EquityCurve) * 100

	returns := equityReturns(res.EquityCurve)
	barsPerYear := float64(tfutils.BarsPerDay(timeframe) * tradingDaysPerYear)
	m["sharpe_ratio"] = sharpeRatio(returns, barsPerYear)
	m["sortino_ratio"] = sortinoRatio(returns, barsPerYear)

	wins, losses := 0, 0
	grossProfit, grossLoss := 0.0, 0.0
	consecWins, consecLosses := 0, 0
	maxConsecWins, maxConsecLosses := 0, 0
	for _, t := range res.Trades {
		if t.PnL > 0 {
			wins++
			grossProfit += t.PnL
			consecWins++
			consecLosses = 0
		} else {
			losses++
			grossLoss += -t.PnL
			consecLosses++
			consecWins = 0
		}
		if consecWins > maxConsecWins {
			maxConsecWins = consecWins
		}
		if consecLosses > maxConsecLosses {
			maxConsecLosses = consecLosses
		}
	}

	m["trades"] = float64(len(res.Trades))
	m["wins"] = float64(wins)
	m["losses"] = float64(losses)
	if len(res.Trades) > 0 {
		m["win_rate_pct"] = float64(wins) / float64(len(res.Trades)) * 100
	}
	if grossLoss > 0 {
		m["profit_factor"] = grossProfit / grossLoss
	} else if grossProfit > 0 {
		m["profit_factor"] = math.Inf(1)
	}
	m["max_consec_wins"] = float64(maxConsecWins)
	m["max_consec_losses"] = float64(maxConsecLosses)

	return m
}

// MaxDrawdown returns the largest peak-to-trough decline of the equity
// curve as a fraction of the peak.
func MaxDrawdown(equityCurve []float64) float64 {
	var peak, maxDD float64
	for _, eq := range equityCurve {
		if eq > peak {
			peak = eq
		}
		if peak > 0 {
			dd := (peak - eq) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

func equityReturns(equityCurve []float64) []float64 {
	if len(equityCurve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(equityCurve)-1)
	for i := 1; i < len(equityCurve); i++ {
		if equityCurve[i-1] == 0 {
			continue
		}
		returns = append(returns, equityCurve[i]/equityCurve[i-1]-1)
	}
	return returns
}

func sharpeRatio(returns []float64, barsPerYear float64) float64 {
	if len(returns) == 0 || barsPerYear <= 0 {
		return 0
	}

	mean, stdDev := meanStd(returns)
	if stdDev == 0 {
		return 0
	}

	riskFree := riskFreeRateAnnual / barsPerYear
	return (mean - riskFree) / stdDev * math.Sqrt(barsPerYear)
}

func sortinoRatio(returns []float64, barsPerYear float64) float64 {
	if len(returns) == 0 || barsPerYear <= 0 {
		return 0
	}

	mean, _ := meanStd(returns)

	downVariance := 0.0
	downCount := 0
	for _, r := range returns {
		if r < 0 {
			downVariance += r * r
			downCount++
		}
	}
	if downCount == 0 {
		return 0
	}
	downStdDev := math.Sqrt(downVariance / float64(downCount))
	if downStdDev == 0 {
		return 0
	}

	riskFree := riskFreeRateAnnual / barsPerYear
	return (mean - riskFree) / downStdDev * math.Sqrt(barsPerYear)
}

func meanStd(xs []float64) (mean, stdDev float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	variance := 0.0
	for _, x := range xs {
		diff := x - mean
		variance += diff * diff
	}
	variance /= float64(len(xs))
	return mean, math.Sqrt(variance)
}
