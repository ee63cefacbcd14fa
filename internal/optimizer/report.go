package optimizer

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pouyanh/rsi-trader/internal/backtest"
)

// PrintTop logs the best n results with their parameters and headline
// metrics.
func PrintTop(results []*backtest.Result, n int) {
	if n > len(results) {
		n = len(results)
	}
	log.Printf("Optimizer | top %d of %d results", n, len(results))
	for i := 0; i < n; i++ {
		r := results[i]
		log.Printf("Optimizer | #%d sharpe=%.2f return=%.2f%% win=%.1f%% dd=%.2f%% trades=%.0f | os=%.0f ob=%.0f sl=%.2f tp=%.2f size=%.2f",
			i+1,
			r.Metrics["sharpe_ratio"], r.Metrics["total_return_pct"],
			r.Metrics["win_rate_pct"], r.Metrics["max_drawdown_pct"], r.Metrics["trades"],
			r.Params.OversoldThreshold, r.Params.OverboughtThreshold,
			r.Params.StopLossPct, r.Params.TakeProfitPct, r.Params.PositionSizePct)
	}
}

// ParamImpact is the mean performance across all results sharing one value
// of one parameter.
type ParamImpact struct {
	Param      string
	Value      float64
	MeanSharpe float64
	MeanReturn float64
	MeanWin    float64
	Count      int
}

// AnalyzeParameterImpact groups results by each parameter value and averages
// the headline metrics, showing which settings pull performance up or down
// independent of the rest of the grid.
func AnalyzeParameterImpact(results []*backtest.Result) []ParamImpact {
	type agg struct {
		sharpe, ret, win float64
		count            int
	}

	params := []struct {
		name string
		get  func(*backtest.Result) float64
	}{
		{"oversold_threshold", func(r *backtest.Result) float64 { return r.Params.OversoldThreshold }},
		{"overbought_threshold", func(r *backtest.Result) float64 { return r.Params.OverboughtThreshold }},
		{"stop_loss_pct", func(r *backtest.Result) float64 { return r.Params.StopLossPct }},
		{"take_profit_pct", func(r *backtest.Result) float64 { return r.Params.TakeProfitPct }},
		{"position_size_pct", func(r *backtest.Result) float64 { return r.Params.PositionSizePct }},
	}

	var out []ParamImpact
	for _, p := range params {
		groups := make(map[float64]*agg)
		for _, r := range results {
			v := p.get(r)
			g, ok := groups[v]
			if !ok {
				g = &agg{}
				groups[v] = g
			}
			g.sharpe += r.Metrics["sharpe_ratio"]
			g.ret += r.Metrics["total_return_pct"]
			g.win += r.Metrics["win_rate_pct"]
			g.count++
		}

		var impacts []ParamImpact
		for v, g := range groups {
			impacts = append(impacts, ParamImpact{
				Param:      p.name,
				Value:      v,
				MeanSharpe: g.sharpe / float64(g.count),
				MeanReturn: g.ret / float64(g.count),
				MeanWin:    g.win / float64(g.count),
				Count:      g.count,
			})
		}
		sort.Slice(impacts, func(i, j int) bool { return impacts[i].MeanSharpe > impacts[j].MeanSharpe })
		out = append(out, impacts...)
	}
	return out
}

// PrintParameterImpact logs the impact table grouped per parameter.
func PrintParameterImpact(impacts []ParamImpact) {
	var current string
	for _, im := range impacts {
		if im.Param != current {
			current = im.Param
			log.Printf("Optimizer | impact of %s:", current)
		}
		log.Printf("Optimizer |   %6.2f -> sharpe=%.2f return=%.2f%% win=%.1f%% (n=%d)",
			im.Value, im.MeanSharpe, im.MeanReturn, im.MeanWin, im.Count)
	}
}

// SaveCSV writes one row per tested combination and returns the file path.
func SaveCSV(results []*backtest.Result, resultsDir string) (string, error) {
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return "", fmt.Errorf("creating results dir: %w", err)
	}

	name := fmt.Sprintf("optimization_%s.csv", time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(resultsDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating results file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"oversold_threshold", "overbought_threshold", "stop_loss_pct", "take_profit_pct", "position_size_pct",
		"sharpe_ratio", "sortino_ratio", "total_return_pct", "max_drawdown_pct", "win_rate_pct", "profit_factor", "trades",
	}
	if err := w.Write(header); err != nil {
		return "", err
	}

	ff := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	for _, r := range results {
		row := []string{
			ff(r.Params.OversoldThreshold), ff(r.Params.OverboughtThreshold),
			ff(r.Params.StopLossPct), ff(r.Params.TakeProfitPct), ff(r.Params.PositionSizePct),
			ff(r.Metrics["sharpe_ratio"]), ff(r.Metrics["sortino_ratio"]),
			ff(r.Metrics["total_return_pct"]), ff(r.Metrics["max_drawdown_pct"]),
			ff(r.Metrics["win_rate_pct"]), ff(r.Metrics["profit_factor"]), ff(r.Metrics["trades"]),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	return path, nil
}

// SummaryReport renders the optimization outcome as a text report.
func SummaryReport(results []*backtest.Result, tested int) string {
	var b strings.Builder
	line := strings.Repeat("=", 72)

	fmt.Fprintln(&b, line)
	fmt.Fprintln(&b, "RSI STRATEGY OPTIMIZATION SUMMARY")
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "Combinations tested: %d\n", tested)
	fmt.Fprintf(&b, "Combinations passing filters: %d\n", len(results))

	if len(results) == 0 {
		fmt.Fprintln(&b, "No combination passed the filters.")
		fmt.Fprintln(&b, line)
		return b.String()
	}

	best := results[0]
	fmt.Fprintln(&b, "\nBEST PERFORMANCE:")
	fmt.Fprintf(&b, "  Sharpe Ratio: %.2f\n", best.Metrics["sharpe_ratio"])
	fmt.Fprintf(&b, "  Total Return: %.2f%%\n", best.Metrics["total_return_pct"])
	fmt.Fprintf(&b, "  Win Rate:     %.2f%%\n", best.Metrics["win_rate_pct"])
	fmt.Fprintf(&b, "  Max Drawdown: %.2f%%\n", best.Metrics["max_drawdown_pct"])
	fmt.Fprintf(&b, "  Trades:       %.0f\n", best.Metrics["trades"])

	fmt.Fprintln(&b, "\nOPTIMAL PARAMETERS:")
	fmt.Fprintf(&b, "  RSI Oversold:   %.0f\n", best.Params.OversoldThreshold)
	fmt.Fprintf(&b, "  RSI Overbought: %.0f\n", best.Params.OverboughtThreshold)
	fmt.Fprintf(&b, "  Stop Loss:      %.2f%%\n", best.Params.StopLossPct)
	fmt.Fprintf(&b, "  Take Profit:    %.2f%%\n", best.Params.TakeProfitPct)
	fmt.Fprintf(&b, "  Position Size:  %.2f%%\n", best.Params.PositionSizePct)

	top := 3
	if top > len(results) {
		top = len(results)
	}
	fmt.Fprintf(&b, "\nTOP %d COMBINATIONS:\n", top)
	for i := 0; i < top; i++ {
		r := results[i]
		fmt.Fprintf(&b, "  #%d: sharpe=%.2f os=%.0f ob=%.0f sl=%.2f tp=%.2f size=%.2f\n",
			i+1, r.Metrics["sharpe_ratio"],
			r.Params.OversoldThreshold, r.Params.OverboughtThreshold,
			r.Params.StopLossPct, r.Params.TakeProfitPct, r.Params.PositionSizePct)
	}

	fmt.Fprintln(&b, line)
	return b.String()
}

// SaveSummaryReport writes the text report next to the CSVs.
func SaveSummaryReport(report, resultsDir string) (string, error) {
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return "", fmt.Errorf("creating results dir: %w", err)
	}
	path := filepath.Join(resultsDir, fmt.Sprintf("summary_%s.txt", time.Now().UTC().Format("20060102_150405")))
	if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
		return "", fmt.Errorf("writing summary report: %w", err)
	}
	return path, nil
}
