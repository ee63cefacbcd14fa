// Package exchange
package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/pouyanh/rsi-trader/internal/candle"
)

// CandleSource is a remote venue the loader can pull historical candles from.
type CandleSource interface {
	Name() string
	FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error)
}

// NormalizeSymbol converts the internal "BASE-QUOTE" form to the venue form
// without the separator, e.g. "ETH-USDT" -> "ETHUSDT".
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "-", ""))
}
