// Package strategy
package strategy

// Signal is the output of the crossover detector for a single bar.
type Signal int8

const (
	NoSignal Signal = iota
	LongEntry
	ShortEntry
)

func (s Signal) String() string {
	switch s {
	case LongEntry:
		return "LONG_ENTRY"
	case ShortEntry:
		return "SHORT_ENTRY"
	default:
		return "NO_SIGNAL"
	}
}

// DetectCrossover compares consecutive RSI values against the thresholds.
//
// A long entry fires when the RSI crosses up through the oversold threshold:
// previous strictly below, current at or above. A short entry fires when it
// crosses down through the overbought threshold: previous strictly above,
// current at or below. Sitting on a threshold does not fire; the value has to
// cross it.
//
// The long check runs first. With pathological thresholds (oversold >=
// overbought) a single bar could satisfy both conditions; the long side wins.
// Config validation rejects such thresholds, so this is a documented
// tie-break, not a reachable branch in practice.
func DetectCrossover(prevRSI, currRSI, oversold, overbought float64) Signal {
	if prevRSI < oversold && currRSI >= oversold {
		return LongEntry
	}
	if prevRSI > overbought && currRSI <= overbought {
		return ShortEntry
	}
	return NoSignal
}
