package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pouyanh/rsi-trader/internal/backtest"
	"github.com/pouyanh/rsi-trader/internal/candle"
	"github.com/pouyanh/rsi-trader/internal/config"
	"github.com/pouyanh/rsi-trader/internal/db"
	"github.com/pouyanh/rsi-trader/internal/notifier"
	"github.com/pouyanh/rsi-trader/internal/optimizer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main | invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("main | received %v, shutting down", sig)
		cancel()
	}()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	storage, err := openStorage(cfg)
	if err != nil {
		log.Fatalf("main | storage: %v", err)
	}
	defer storage.Close()

	var notify notifier.Notifier = notifier.Noop{}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		notify = notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
	}

	switch cfg.Mode {
	case "backtest":
		err = runBacktest(ctx, cfg, storage)
	case "optimize":
		err = runOptimize(ctx, cfg, storage, notify)
	case "synth":
		err = runSynth(ctx, cfg, storage)
	}
	if err != nil {
		log.Fatalf("main | %s failed: %v", cfg.Mode, err)
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Printf("main | serving metrics on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("main | metrics server stopped: %v", err)
	}
}

// openStorage picks postgres when a connection string is configured and
// falls back to the in-memory store otherwise.
func openStorage(cfg config.Config) (db.Storage, error) {
	if cfg.DBConnStr == "" {
		log.Printf("main | no db_conn_str configured, using in-memory storage")
		return db.NewMemory(), nil
	}
	return db.NewPostgres(cfg.DBConnStr, cfg.DBMaxOpen, cfg.DBMaxIdle)
}

func runBacktest(ctx context.Context, cfg config.Config, storage db.Storage) error {
	candles, err := backtest.LoadCandles(ctx, storage, cfg)
	if err != nil {
		return err
	}

	res, err := backtest.Run(cfg.Strategy, candles, cfg, storage)
	if err != nil {
		return err
	}

	backtest.PrintResult(res)

	if path, err := backtest.SaveCSV(res, cfg.ResultsDir); err != nil {
		log.Printf("main | saving trade log failed: %v", err)
	} else {
		log.Printf("main | trade log saved to %s", path)
	}

	if err := storage.SaveBacktestResult(ctx, backtest.ToRecord(res)); err != nil {
		log.Printf("main | persisting result failed: %v", err)
	}
	return nil
}

func runOptimize(ctx context.Context, cfg config.Config, storage db.Storage, notify notifier.Notifier) error {
	candles, err := backtest.LoadCandles(ctx, storage, cfg)
	if err != nil {
		return err
	}

	space := optimizer.DefaultSearchSpace()
	space.RSIPeriod = cfg.Strategy.RSIPeriod
	filters := optimizer.Filters{
		MinSharpe:      cfg.Optimizer.MinSharpe,
		MinWinRate:     cfg.Optimizer.MinWinRate,
		MaxDrawdownPct: cfg.Optimizer.MaxDrawdownPct,
	}

	tested := len(optimizer.Sample(space.Combinations(), cfg.Optimizer.MaxCombinations, cfg.Optimizer.Seed))
	results, err := optimizer.RunGridSearch(ctx, candles, space, cfg, filters)
	if err != nil && len(results) == 0 {
		return err
	}

	optimizer.PrintTop(results, cfg.Optimizer.TopN)
	optimizer.PrintParameterImpact(optimizer.AnalyzeParameterImpact(results))

	if path, err := optimizer.SaveCSV(results, cfg.ResultsDir); err != nil {
		log.Printf("main | saving optimization csv failed: %v", err)
	} else {
		log.Printf("main | optimization results saved to %s", path)
	}

	report := optimizer.SummaryReport(results, tested)
	if path, err := optimizer.SaveSummaryReport(report, cfg.ResultsDir); err != nil {
		log.Printf("main | saving summary report failed: %v", err)
	} else {
		log.Printf("main | summary report saved to %s", path)
	}

	persist := func() error {
		for _, res := range results {
			if err := storage.SaveBacktestResult(ctx, backtest.ToRecord(res)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := notifier.RetryWithNotification(notify, persist, "persisting optimization results", 3, 2*time.Second); err != nil {
		log.Printf("main | persisting results failed: %v", err)
	}

	msg := fmt.Sprintf("Optimization of %s finished: %d/%d combinations passed filters", cfg.Symbol, len(results), tested)
	if err := notify.SendWithRetry(msg); err != nil {
		log.Printf("main | notification failed: %v", err)
	}
	return nil
}

// runSynth generates a seeded synthetic candle series and caches it, so
// later backtest runs against the same window are reproducible offline.
func runSynth(ctx context.Context, cfg config.Config, storage db.Storage) error {
	candles := candle.GenerateSynthetic(cfg.Symbol, cfg.Timeframe, cfg.SyntheticDays, cfg.BacktestTo, cfg.SyntheticSeed)
	if err := storage.SaveCandles(ctx, candles); err != nil {
		return err
	}
	log.Printf("main | generated and cached %d synthetic candles for %s %s", len(candles), cfg.Symbol, cfg.Timeframe)
	return nil
}
