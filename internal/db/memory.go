package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pouyanh/rsi-trader/internal/candle"
	"github.com/pouyanh/rsi-trader/internal/journal"
)

// Memory is an in-memory Storage for tests and db-less runs.
type Memory struct {
	mu      sync.RWMutex
	candles map[string]candle.Candle // keyed by symbol|timeframe|timestamp|source
	results []BacktestRecord
	events  []journal.Event
	nextID  int64
}

func NewMemory() *Memory {
	return &Memory{
		candles: make(map[string]candle.Candle),
		nextID:  1,
	}
}

func candleKey(c candle.Candle) string {
	return fmt.Sprintf("%s|%s|%d|%s", c.Symbol, c.Timeframe, c.Timestamp.UnixNano(), c.Source)
}

func (m *Memory) SaveCandles(ctx context.Context, candles []candle.Candle) error {
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid candle at index %d: %w", i, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range candles {
		m.candles[candleKey(c)] = c
	}
	return nil
}

func (m *Memory) GetCandles(ctx context.Context, symbol, timeframe, source string, start, end time.Time) ([]candle.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []candle.Candle
	for _, c := range m.candles {
		if c.Symbol != symbol || c.Timeframe != timeframe {
			continue
		}
		if source != "" && c.Source != source {
			continue
		}
		if c.Timestamp.Before(start) || !c.Timestamp.Before(end) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) SaveBacktestResult(ctx context.Context, rec BacktestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.nextID
	m.nextID++
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.results = append(m.results, rec)
	return nil
}

func (m *Memory) GetBacktestResults(ctx context.Context, symbol string, limit int) ([]BacktestRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []BacktestRecord
	for i := len(m.results) - 1; i >= 0; i-- {
		if m.results[i].Symbol != symbol {
			continue
		}
		out = append(out, m.results[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) LogEvent(ctx context.Context, event journal.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *Memory) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]journal.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []journal.Event
	for _, ev := range m.events {
		if ev.Type != eventType {
			continue
		}
		if ev.Time.Before(start) || !ev.Time.Before(end) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
