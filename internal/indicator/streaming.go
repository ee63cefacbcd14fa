package indicator

import "fmt"

// RSI is a streaming Wilder-smoothed relative strength index. Feed it one
// price at a time with Update and read the current value with Value. The
// warmup matches CalculateRSI: the value becomes defined once `period`
// price changes have been observed, i.e. after period+1 prices.
//
// Not safe for concurrent use; each strategy instance owns its own RSI.
type RSI struct {
	period    int
	primed    bool
	prevPrice float64
	avgGain   float64
	avgLoss   float64
	sumGain   float64
	sumLoss   float64
	changes   int
	value     float64
}

// NewRSI returns a streaming RSI. Period must be at least 2.
func NewRSI(period int) (*RSI, error) {
	if period < 2 {
		return nil, fmt.Errorf("rsi period must be >= 2, got %d", period)
	}
	return &RSI{period: period}, nil
}

// Period returns the configured lookback period.
func (r *RSI) Period() int { return r.period }

// Update consumes the next price in the series.
func (r *RSI) Update(price float64) {
	if !r.primed {
		r.primed = true
		r.prevPrice = price
		return
	}

	var gain, loss float64
	if change := price - r.prevPrice; change > 0 {
		gain = change
	} else {
		loss = -change
	}
	r.prevPrice = price
	r.changes++

	if r.changes <= r.period {
		// Seed phase: simple average over the first `period` changes.
		r.sumGain += gain
		r.sumLoss += loss
		if r.changes == r.period {
			r.avgGain = r.sumGain / float64(r.period)
			r.avgLoss = r.sumLoss / float64(r.period)
			r.value = rsiFromAverages(r.avgGain, r.avgLoss)
		}
		return
	}

	r.avgGain = (r.avgGain*float64(r.period-1) + gain) / float64(r.period)
	r.avgLoss = (r.avgLoss*float64(r.period-1) + loss) / float64(r.period)
	r.value = rsiFromAverages(r.avgGain, r.avgLoss)
}

// Initialized reports whether enough prices have been consumed for Value to
// be defined.
func (r *RSI) Initialized() bool {
	return r.changes >= r.period
}

// Value returns the current RSI in [0, 100]. The second return is false
// until the indicator is initialized.
func (r *RSI) Value() (float64, bool) {
	if !r.Initialized() {
		return 0, false
	}
	return r.value, true
}
