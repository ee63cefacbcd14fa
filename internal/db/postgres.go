package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/pouyanh/rsi-trader/internal/candle"
	"github.com/pouyanh/rsi-trader/internal/journal"
)

type Postgres struct {
	db *sql.DB
}

// NewPostgres opens the connection pool and bootstraps the schema.
func NewPostgres(connStr string, maxOpen, maxIdle int) (*Postgres, error) {
	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxIdle)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	p := &Postgres{db: conn}
	if err := p.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			open DOUBLE PRECISION NOT NULL,
			high DOUBLE PRECISION NOT NULL,
			low DOUBLE PRECISION NOT NULL,
			close DOUBLE PRECISION NOT NULL,
			volume DOUBLE PRECISION NOT NULL,
			source TEXT NOT NULL,
			PRIMARY KEY (symbol, timeframe, timestamp, source)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_candles_lookup ON candles (symbol, timeframe, timestamp)`,
		`CREATE TABLE IF NOT EXISTS backtest_results (
			id BIGSERIAL PRIMARY KEY,
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			from_time TIMESTAMPTZ NOT NULL,
			to_time TIMESTAMPTZ NOT NULL,
			params JSONB NOT NULL,
			metrics JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			time TIMESTAMPTZ NOT NULL,
			type TEXT NOT NULL,
			description TEXT NOT NULL,
			data JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type_time ON events (type, time)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to bootstrap schema: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// executeWithTransaction runs fn inside a transaction, rolling back on error.
func (p *Postgres) executeWithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if fnErr := fn(tx); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction rollback failed: %w (original error: %v)", rbErr, fnErr)
		}
		return fnErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("transaction commit failed: %w", commitErr)
	}

	return nil
}

func (p *Postgres) SaveCandles(ctx context.Context, candles []candle.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid candle at index %d for %s %s at %s: %w",
				i, c.Symbol, c.Timeframe, c.Timestamp, err)
		}
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO candles (symbol, timeframe, timestamp, open, high, low, close, volume, source)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (symbol, timeframe, timestamp, source) DO UPDATE SET
				open=EXCLUDED.open, high=EXCLUDED.high, low=EXCLUDED.low,
				close=EXCLUDED.close, volume=EXCLUDED.volume
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert statement: %w", err)
		}
		defer stmt.Close()

		for i, c := range candles {
			if _, err := stmt.ExecContext(ctx,
				c.Symbol, c.Timeframe, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume, c.Source); err != nil {
				return fmt.Errorf("failed to save candle at index %d (%s %s at %s): %w",
					i, c.Symbol, c.Timeframe, c.Timestamp, err)
			}
		}
		return nil
	})
}

// GetCandles retrieves candles in [start, end). An empty source matches all
// sources.
func (p *Postgres) GetCandles(ctx context.Context, symbol, timeframe, source string, start, end time.Time) ([]candle.Candle, error) {
	query := `
		SELECT timestamp, open, high, low, close, volume, symbol, timeframe, source
		FROM candles
		WHERE symbol=$1 AND timeframe=$2 AND timestamp >= $3 AND timestamp < $4`
	args := []any{symbol, timeframe, start, end}
	if source != "" {
		query += ` AND source=$5`
		args = append(args, source)
	}
	query += ` ORDER BY timestamp ASC`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var candles []candle.Candle
	for rows.Next() {
		var c candle.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Symbol, &c.Timeframe, &c.Source); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		c.Timestamp = c.Timestamp.UTC()
		candles = append(candles, c)
	}

	return candles, rows.Err()
}

func (p *Postgres) SaveBacktestResult(ctx context.Context, rec BacktestRecord) error {
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	metricsJSON, err := json.Marshal(rec.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO backtest_results (symbol, timeframe, from_time, to_time, params, metrics)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.Symbol, rec.Timeframe, rec.From, rec.To, params, metricsJSON)
		if err != nil {
			return fmt.Errorf("failed to save backtest result: %w", err)
		}
		return nil
	})
}

func (p *Postgres) GetBacktestResults(ctx context.Context, symbol string, limit int) ([]BacktestRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, symbol, timeframe, from_time, to_time, params, metrics, created_at
		FROM backtest_results
		WHERE symbol=$1
		ORDER BY created_at DESC
		LIMIT $2`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest results: %w", err)
	}
	defer rows.Close()

	var recs []BacktestRecord
	for rows.Next() {
		var rec BacktestRecord
		var params, metricsJSON []byte
		if err := rows.Scan(&rec.ID, &rec.Symbol, &rec.Timeframe, &rec.From, &rec.To, &params, &metricsJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan backtest result: %w", err)
		}
		if err := json.Unmarshal(params, &rec.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}
		if err := json.Unmarshal(metricsJSON, &rec.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

func (p *Postgres) LogEvent(ctx context.Context, event journal.Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO events (time, type, description, data)
			VALUES ($1, $2, $3, $4)`,
			event.Time, event.Type, event.Description, data)
		if err != nil {
			return fmt.Errorf("failed to save event: %w", err)
		}
		return nil
	})
}

func (p *Postgres) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]journal.Event, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT time, type, description, data
		FROM events
		WHERE type=$1 AND time >= $2 AND time < $3
		ORDER BY time ASC`, eventType, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []journal.Event
	for rows.Next() {
		var ev journal.Event
		var data []byte
		if err := rows.Scan(&ev.Time, &ev.Type, &ev.Description, &data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &ev.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}
		ev.Time = ev.Time.UTC()
		events = append(events, ev)
	}

	return events, rows.Err()
}
