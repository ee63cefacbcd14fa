// Package risk
package risk

import "errors"

var (
	ErrInvalidPrice       = errors.New("risk: reference price must be positive")
	ErrInsufficientEquity = errors.New("risk: free equity must be positive")
)

// Size converts an equity percentage into an instrument quantity at the given
// reference price. No lot rounding happens here; the venue owns precision.
func Size(freeEquity, positionSizePct, referencePrice float64) (float64, error) {
	if referencePrice <= 0 {
		return 0, ErrInvalidPrice
	}
	if freeEquity <= 0 {
		return 0, ErrInsufficientEquity
	}
	notional := freeEquity * positionSizePct / 100
	return notional / referencePrice, nil
}
