package candle

import (
	"math"
	"math/rand"
	"time"

	"github.com/pouyanh/rsi-trader/internal/tfutils"
)

const (
	syntheticBasePrice  = 3500.0
	syntheticDrift      = 0.0005
	syntheticVolatility = 0.01
	syntheticRangePct   = 0.02
)

// GenerateSynthetic produces a seeded random-walk OHLCV series ending at `to`.
// Per bar: close follows a random walk with small upward drift, high/low are
// uniform excursions around the close, open is the previous close. Used when
// neither the database cache nor a download can supply data.
func GenerateSynthetic(symbol, timeframe string, days int, to time.Time, seed int64) []Candle {
	perDay := tfutils.BarsPerDay(timeframe)
	if perDay == 0 || days <= 0 {
		return nil
	}
	n := days * perDay
	duration := tfutils.GetTimeframeDuration(timeframe)
	start := to.Add(-time.Duration(n) * duration).Truncate(duration)

	rng := rand.New(rand.NewSource(seed))

	candles := make([]Candle, 0, n)
	price := syntheticBasePrice
	prevClose := syntheticBasePrice
	for i := 0; i < n; i++ {
		ret := rng.NormFloat64()*syntheticVolatility + syntheticDrift
		price *= 1 + ret

		high := price * (1 + rng.Float64()*syntheticRangePct)
		low := price * (1 - rng.Float64()*syntheticRangePct)
		open := prevClose
		if open > high {
			high = open
		}
		if open < low {
			low = open
		}
		volume := math.Exp(rng.NormFloat64()*0.5+10) * 1000

		candles = append(candles, Candle{
			Timestamp: start.Add(time.Duration(i) * duration),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
			Volume:    volume,
			Symbol:    symbol,
			Timeframe: timeframe,
			Source:    "synthetic",
		})
		prevClose = price
	}

	return candles
}
