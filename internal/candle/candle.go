// Package candle
package candle

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/pouyanh/rsi-trader/internal/tfutils"
)

type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Source    string    `json:"source"`
}

// Validate checks if a candle has valid data
func (c *Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return errors.New("candle timestamp is zero")
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return errors.New("candle prices must be positive")
	}
	if c.High < c.Low {
		return errors.New("candle high cannot be less than low")
	}
	if c.Open < c.Low || c.Open > c.High {
		return errors.New("candle open price must be between high and low")
	}
	if c.Close < c.Low || c.Close > c.High {
		return errors.New("candle close price must be between high and low")
	}
	if c.Volume < 0 {
		return errors.New("candle volume cannot be negative")
	}
	if c.Symbol == "" {
		return errors.New("candle symbol cannot be empty")
	}
	if c.Timeframe == "" {
		return errors.New("candle timeframe cannot be empty")
	}
	return nil
}

// Normalize sorts candles, eliminates duplicate timestamps, trims to [from, to),
// and fills gaps with flat zero-volume candles so the series is strictly
// one-per-period. Downloaded data routinely has both holes and duplicates.
func Normalize(candles []Candle, symbol, timeframe string, from, to time.Time) ([]Candle, error) {
	if !tfutils.IsValidTimeframe(timeframe) {
		return nil, fmt.Errorf("invalid timeframe %q", timeframe)
	}
	if len(candles) == 0 {
		return nil, nil
	}

	duration := tfutils.GetTimeframeDuration(timeframe)

	// De-duplicate on the truncated timestamp, first occurrence wins.
	seen := make(map[time.Time]Candle, len(candles))
	for _, c := range candles {
		c.Timestamp = c.Timestamp.Truncate(duration)
		if _, ok := seen[c.Timestamp]; !ok {
			seen[c.Timestamp] = c
		}
	}

	trimmed := make([]Candle, 0, len(seen))
	for ts, c := range seen {
		if !ts.Before(from) && ts.Before(to) {
			trimmed = append(trimmed, c)
		}
	}
	if len(trimmed) == 0 {
		return nil, nil
	}
	sort.Slice(trimmed, func(i, j int) bool {
		return trimmed[i].Timestamp.Before(trimmed[j].Timestamp)
	})

	// Fill gaps with flat candles carrying the last known close.
	out := make([]Candle, 0, len(trimmed))
	basePrice := trimmed[0].Close
	current := trimmed[0].Timestamp
	last := trimmed[len(trimmed)-1].Timestamp
	i := 0
	for !current.After(last) && current.Before(to) {
		if i < len(trimmed) && trimmed[i].Timestamp.Equal(current) {
			out = append(out, trimmed[i])
			basePrice = trimmed[i].Close
			i++
		} else {
			out = append(out, Candle{
				Timestamp: current,
				Open:      basePrice,
				High:      basePrice,
				Low:       basePrice,
				Close:     basePrice,
				Volume:    0,
				Symbol:    symbol,
				Timeframe: timeframe,
				Source:    "synthetic",
			})
		}
		current = current.Add(duration)
	}

	return out, nil
}

// Closes extracts the close price series.
func Closes(candles []Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}
