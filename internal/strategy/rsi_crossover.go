package strategy

import (
	"fmt"

	"github.com/pouyanh/rsi-trader/internal/config"
	"github.com/pouyanh/rsi-trader/internal/indicator"
)

// RSICrossover feeds closing prices into a streaming RSI and emits entry
// signals on threshold crossovers. It is pure signal generation; order and
// position handling live in the controller that owns it.
type RSICrossover struct {
	params  config.StrategyParams
	rsi     *indicator.RSI
	prevRSI float64
	hasPrev bool
}

// NewRSICrossover validates the parameter bundle and builds the strategy.
func NewRSICrossover(params config.StrategyParams) (*RSICrossover, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid strategy params: %w", err)
	}
	rsi, err := indicator.NewRSI(params.RSIPeriod)
	if err != nil {
		return nil, err
	}
	return &RSICrossover{params: params, rsi: rsi}, nil
}

func (s *RSICrossover) Name() string { return "rsi-crossover" }

// WarmupPeriod is the number of closes consumed before OnClose can emit a
// signal: period+1 prices to initialize the RSI, plus one bar to establish
// the previous value for the crossover comparison.
func (s *RSICrossover) WarmupPeriod() int { return s.params.RSIPeriod + 2 }

// RSIValue returns the current RSI; ok is false during warmup.
func (s *RSICrossover) RSIValue() (float64, bool) { return s.rsi.Value() }

// OnClose consumes the next closing price and returns the signal for this
// bar. The first bar after the RSI initializes only records the baseline
// value; crossover detection starts on the bar after that.
func (s *RSICrossover) OnClose(price float64) Signal {
	s.rsi.Update(price)

	curr, ok := s.rsi.Value()
	if !ok {
		return NoSignal
	}
	if !s.hasPrev {
		s.prevRSI = curr
		s.hasPrev = true
		return NoSignal
	}

	sig := DetectCrossover(s.prevRSI, curr, s.params.OversoldThreshold, s.params.OverboughtThreshold)
	s.prevRSI = curr
	return sig
}
