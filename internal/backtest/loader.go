// Package backtest
package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pouyanh/rsi-trader/internal/candle"
	"github.com/pouyanh/rsi-trader/internal/config"
	"github.com/pouyanh/rsi-trader/internal/db"
	"github.com/pouyanh/rsi-trader/internal/exchange"
	"github.com/pouyanh/rsi-trader/internal/tfutils"
)

// klineLimit is the maximum number of klines Binance returns per request.
const klineLimit = 1000

// LoadCandles loads candles for the backtest window, cheapest source first:
// database cache, then the Binance public API (chunked, rate limited), then
// seeded synthetic data when the download fails. Downloaded candles are
// normalized and written back to the cache.
func LoadCandles(ctx context.Context, storage db.Storage, cfg config.Config) ([]candle.Candle, error) {
	symbol, timeframe := cfg.Symbol, cfg.Timeframe
	from, to := cfg.BacktestFrom, cfg.BacktestTo

	candles, err := storage.GetCandles(ctx, symbol, timeframe, "", from, to)
	if err != nil {
		return nil, fmt.Errorf("loading candles from cache: %w", err)
	}
	if len(candles) > 0 {
		log.Printf("LoadCandles | %d candles from cache for %s %s", len(candles), symbol, timeframe)
		return candles, nil
	}

	log.Printf("LoadCandles | cache empty for %s %s, downloading", symbol, timeframe)
	downloaded, err := downloadCandles(ctx, cfg)
	if err != nil {
		log.Printf("LoadCandles | download failed (%v), generating synthetic data", err)
		days := int(to.Sub(from).Hours()/24) + 1
		downloaded = candle.GenerateSynthetic(symbol, timeframe, days, to, cfg.SyntheticSeed)
	}

	processed, err := candle.Normalize(downloaded, symbol, timeframe, from, to)
	if err != nil {
		return nil, fmt.Errorf("normalizing candles: %w", err)
	}
	if len(processed) == 0 {
		return nil, fmt.Errorf("no candles available for %s from %s to %s",
			symbol, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	saveCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = storage.SaveCandles(saveCtx, processed)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("caching candles: %w", err)
	}
	log.Printf("LoadCandles | cached %d candles for %s %s", len(processed), symbol, timeframe)

	return processed, nil
}

// downloadCandles pulls the window from Binance in chunks sized to stay
// under the 1000-kline response limit, pacing requests to respect the public
// API rate limit. When a Wallex API key is configured and Binance refuses the
// symbol, Wallex is tried as a fallback source.
func downloadCandles(ctx context.Context, cfg config.Config) ([]candle.Candle, error) {
	const maxChunkDays = 14

	chunkDays := maxChunkDays
	if perDay := tfutils.BarsPerDay(cfg.Timeframe); perDay > 0 && klineLimit/perDay < chunkDays {
		chunkDays = klineLimit / perDay
		if chunkDays < 1 {
			chunkDays = 1
		}
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	all := make([]candle.Candle, 0)
	currTime := cfg.BacktestFrom
	for currTime.Before(cfg.BacktestTo) {
		next := currTime.Add(time.Duration(chunkDays) * 24 * time.Hour)
		if next.After(cfg.BacktestTo) {
			next = cfg.BacktestTo
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		downloadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		chunk, err := downloadChunkWithRetry(downloadCtx, cfg, currTime, next)
		cancel()
		if err != nil {
			if cfg.WallexAPIKey != "" {
				return downloadFromWallex(ctx, cfg)
			}
			return nil, fmt.Errorf("fetching %s to %s: %w",
				currTime.Format(time.RFC3339), next.Format(time.RFC3339), err)
		}

		log.Printf("downloadCandles | %d candles for %s from %s to %s",
			len(chunk), cfg.Symbol, currTime.Format("2006-01-02"), next.Format("2006-01-02"))
		all = append(all, chunk...)
		currTime = next
	}

	if len(all) == 0 {
		return nil, fmt.Errorf("no candles downloaded for %s", cfg.Symbol)
	}
	return all, nil
}

func downloadFromWallex(ctx context.Context, cfg config.Config) ([]candle.Candle, error) {
	w := exchange.NewWallexExchange(cfg.WallexAPIKey)

	// A window ending at the present maps onto the latest-candles endpoint,
	// which also returns the still-open bar a ranged query can miss.
	duration := tfutils.GetTimeframeDuration(cfg.Timeframe)
	if duration > 0 && time.Since(cfg.BacktestTo) < duration {
		count := int(cfg.BacktestTo.Sub(cfg.BacktestFrom) / duration)
		return w.FetchLatestCandles(ctx, cfg.Symbol, cfg.Timeframe, count)
	}
	return w.FetchCandles(ctx, cfg.Symbol, cfg.Timeframe, cfg.BacktestFrom, cfg.BacktestTo)
}

// downloadChunkWithRetry downloads one chunk of klines with exponential
// backoff and jitter.
func downloadChunkWithRetry(ctx context.Context, cfg config.Config, start, end time.Time) ([]candle.Candle, error) {
	const (
		backoffFactor = 2.0
		jitterRange   = 0.1 // ±10% jitter
	)

	switch cfg.Timeframe {
	case "1m", "5m", "15m", "30m", "1h", "4h", "1d":
	default:
		return nil, fmt.Errorf("unsupported timeframe: %s", cfg.Timeframe)
	}

	apiSymbol := exchange.NormalizeSymbol(cfg.Symbol)
	startMs := start.UnixNano() / int64(time.Millisecond)
	endMs := end.UnixNano() / int64(time.Millisecond)

	apiURL := fmt.Sprintf(
		"https://api.binance.com/api/v3/klines?symbol=%s&interval=%s&startTime=%d&endTime=%d&limit=%d",
		apiSymbol, cfg.Timeframe, startMs, endMs, klineLimit,
	)

	transport := &http.Transport{}
	if cfg.ProxyURL != "" {
		proxyParsed, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyParsed)
	}
	client := &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}

	var lastErr error
	for attempt := 0; attempt < cfg.APIRetryMaxAttempts; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt-1, time.Duration(cfg.APIRetryBaseDelay), time.Duration(cfg.APIRetryMaxDelay), backoffFactor, jitterRange)
			log.Printf("downloadChunk | retrying in %v (attempt %d/%d)", delay, attempt+1, cfg.APIRetryMaxAttempts)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		candles, err := fetchKlines(ctx, client, apiURL, cfg.Symbol, cfg.Timeframe)
		if err != nil {
			lastErr = err
			log.Printf("downloadChunk | attempt %d/%d failed: %v", attempt+1, cfg.APIRetryMaxAttempts, err)
			if !isRetryable(err) {
				break
			}
			continue
		}
		return candles, nil
	}

	return nil, fmt.Errorf("failed to download candles after %d attempts, last error: %w",
		cfg.APIRetryMaxAttempts, lastErr)
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.status, e.body)
}

func isRetryable(err error) bool {
	if se, ok := err.(*httpStatusError); ok {
		switch se.status {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	// Network-level errors are worth retrying.
	return true
}

func fetchKlines(ctx context.Context, client *http.Client, apiURL, symbol, timeframe string) ([]candle.Candle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &httpStatusError{status: resp.StatusCode, body: string(body)}
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var rawCandles [][]any
	if err := json.Unmarshal(bodyBytes, &rawCandles); err != nil {
		return nil, fmt.Errorf("decoding klines: %w", err)
	}

	candles := make([]candle.Candle, 0, len(rawCandles))
	for _, raw := range rawCandles {
		if len(raw) < 6 {
			continue
		}

		timestamp, ok := parseKlineTimestamp(raw[0])
		if !ok {
			continue
		}

		c := candle.Candle{
			Timestamp: time.Unix(timestamp/1000, 0).UTC(),
			Open:      parseKlineNum(raw[1]),
			High:      parseKlineNum(raw[2]),
			Low:       parseKlineNum(raw[3]),
			Close:     parseKlineNum(raw[4]),
			Volume:    parseKlineNum(raw[5]),
			Symbol:    symbol,
			Timeframe: timeframe,
			Source:    "binance",
		}
		candles = append(candles, c)
	}

	return candles, nil
}

func parseKlineTimestamp(val any) (int64, bool) {
	switch v := val.(type) {
	case float64:
		return int64(v), true
	case string:
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			log.Printf("fetchKlines | bad timestamp string: %v", err)
			return 0, false
		}
		return ts, true
	default:
		log.Printf("fetchKlines | unexpected timestamp type: %T", v)
		return 0, false
	}
}

func parseKlineNum(val any) float64 {
	switch n := val.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			log.Printf("fetchKlines | bad float string: %v", err)
			return 0
		}
		return f
	default:
		log.Printf("fetchKlines | unexpected number type: %T", n)
		return 0
	}
}

// retryDelay computes exponential backoff with jitter, capped at maxDelay.
func retryDelay(attempt int, baseDelay, maxDelay time.Duration, backoffFactor, jitterRange float64) time.Duration {
	delay := float64(baseDelay) * math.Pow(backoffFactor, float64(attempt))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}

	jitter := delay * jitterRange * (2*rand.Float64() - 1)
	delay += jitter
	if delay < 0 {
		delay = float64(baseDelay)
	}

	return time.Duration(delay)
}
