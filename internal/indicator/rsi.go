// Package indicator
package indicator

import "math"

// rsiFromAverages converts smoothed average gain/loss into an RSI value.
// By convention RSI is 100 when there are no losses but some gains, and 50
// when the series has been perfectly flat.
func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// CalculateRSI computes the Wilder-smoothed RSI over a full price series.
// The first `period` elements are NaN; the first defined value sits at index
// `period`, after `period` price changes have been observed.
func CalculateRSI(prices []float64, period int) []float64 {
	if period < 2 || len(prices) <= period {
		return nil
	}
	rsi := make([]float64, len(prices))
	for i := 0; i < period; i++ {
		rsi[i] = math.NaN()
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gain += change
		} else {
			loss += -change
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	rsi[period] = rsiFromAverages(avgGain, avgLoss)

	for i := period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		gain, loss = 0, 0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		rsi[i] = rsiFromAverages(avgGain, avgLoss)
	}
	return rsi
}
