package backtest

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/pouyanh/rsi-trader/internal/db"
)

// PrintResult writes a human-readable summary of a run to the log.
func PrintResult(res *Result) {
	log.Printf("Backtest | %s %s [%s - %s]", res.Symbol, res.Timeframe,
		res.From.Format("2006-01-02"), res.To.Format("2006-01-02"))
	log.Printf("Backtest | params: period=%d oversold=%.0f overbought=%.0f sl=%.2f%% tp=%.2f%% size=%.2f%%",
		res.Params.RSIPeriod, res.Params.OversoldThreshold, res.Params.OverboughtThreshold,
		res.Params.StopLossPct, res.Params.TakeProfitPct, res.Params.PositionSizePct)
	log.Printf("Backtest | equity: %.2f -> %.2f", res.StartingBalance, res.FinalEquity)

	keys := make([]string, 0, len(res.Metrics))
	for k := range res.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		log.Printf("Backtest | %-20s %.4f", k, res.Metrics[k])
	}
}

// SaveCSV writes the trade log of a run into resultsDir, one row per round
// trip, and returns the file path.
func SaveCSV(res *Result, resultsDir string) (string, error) {
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return "", fmt.Errorf("creating results dir: %w", err)
	}

	name := fmt.Sprintf("backtest_%s_%s_%s.csv",
		res.Symbol, res.Timeframe, time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(resultsDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating results file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"entry_time", "exit_time", "side", "quantity", "entry_price", "exit_price", "pnl", "exit_reason"}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for _, t := range res.Trades {
		row := []string{
			t.EntryTime.UTC().Format(time.RFC3339),
			t.ExitTime.UTC().Format(time.RFC3339),
			string(t.Side),
			strconv.FormatFloat(t.Quantity, 'f', 8, 64),
			strconv.FormatFloat(t.EntryPrice, 'f', 2, 64),
			strconv.FormatFloat(t.ExitPrice, 'f', 2, 64),
			strconv.FormatFloat(t.PnL, 'f', 4, 64),
			t.ExitReason,
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	return path, nil
}

// ToRecord converts a run into its persisted form. Non-finite metrics (a
// profit factor with no losing trades is +Inf) are dropped: JSON cannot
// carry them and an absent key reads the same as undefined.
func ToRecord(res *Result) db.BacktestRecord {
	metrics := make(map[string]float64, len(res.Metrics))
	for k, v := range res.Metrics {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		metrics[k] = v
	}

	return db.BacktestRecord{
		Symbol:    res.Symbol,
		Timeframe: res.Timeframe,
		From:      res.From,
		To:        res.To,
		Params: map[string]float64{
			"rsi_period":           float64(res.Params.RSIPeriod),
			"oversold_threshold":   res.Params.OversoldThreshold,
			"overbought_threshold": res.Params.OverboughtThreshold,
			"stop_loss_pct":        res.Params.StopLossPct,
			"take_profit_pct":      res.Params.TakeProfitPct,
			"position_size_pct":    res.Params.PositionSizePct,
		},
		Metrics: metrics,
	}
}
