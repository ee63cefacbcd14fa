// Package db
package db

import (
	"context"
	"time"

	"github.com/pouyanh/rsi-trader/internal/candle"
	"github.com/pouyanh/rsi-trader/internal/journal"
)

// BacktestRecord is a persisted backtest or optimization run.
type BacktestRecord struct {
	ID        int64
	Symbol    string
	Timeframe string
	From      time.Time
	To        time.Time
	Params    map[string]float64
	Metrics   map[string]float64
	CreatedAt time.Time
}

// Storage is the persistence surface: a candle cache, a backtest result
// store and an event journal.
type Storage interface {
	SaveCandles(ctx context.Context, candles []candle.Candle) error
	GetCandles(ctx context.Context, symbol, timeframe, source string, start, end time.Time) ([]candle.Candle, error)

	SaveBacktestResult(ctx context.Context, rec BacktestRecord) error
	GetBacktestResults(ctx context.Context, symbol string, limit int) ([]BacktestRecord, error)

	LogEvent(ctx context.Context, event journal.Event) error
	GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]journal.Event, error)

	Close() error
}
