// Package exchange
package exchange

import (
	"fmt"
	"time"

	"github.com/pouyanh/rsi-trader/internal/candle"
	"github.com/pouyanh/rsi-trader/internal/metrics"
	"github.com/pouyanh/rsi-trader/internal/order"
)

// EventHandler receives execution events from the simulated venue. Events
// are delivered synchronously, in submission order.
type EventHandler interface {
	OnFill(order.Fill)
	OnCancel(order.Cancellation)
	OnReject(order.Rejection)
}

// Sim is a paper venue for backtests. Market orders fill immediately at the
// current bar close adjusted for slippage; stop and limit orders rest on the
// book and trigger against subsequent bar ranges. Commission is charged per
// fill on the traded notional.
//
// Within one bar, resting stop orders are evaluated before limit orders, so
// a bar that spans both a stop-loss trigger and a take-profit limit resolves
// pessimistically to the stop.
type Sim struct {
	symbol        string
	cash          float64
	positionQty   float64 // signed, buys positive
	slippagePct   float64
	commissionPct float64

	lastPrice float64
	hasBar    bool
	barTime   time.Time

	handler EventHandler

	resting map[string]order.Order
	book    []string // resting tags in submission order
}

func NewSim(symbol string, startingCash, slippagePct, commissionPct float64) *Sim {
	return &Sim{
		symbol:        symbol,
		cash:          startingCash,
		slippagePct:   slippagePct,
		commissionPct: commissionPct,
		resting:       make(map[string]order.Order),
	}
}

// SetHandler registers the event consumer. Must be called before Submit.
func (s *Sim) SetHandler(h EventHandler) { s.handler = h }

// FreeEquity returns cash plus the open position marked at the last price.
func (s *Sim) FreeEquity() float64 {
	return s.cash + s.positionQty*s.lastPrice
}

func (s *Sim) LastPrice(symbol string) (float64, bool) {
	if symbol != s.symbol || !s.hasBar {
		return 0, false
	}
	return s.lastPrice, true
}

// OnBar advances the venue to the next bar: resting orders are matched
// against the bar range, then the mark price moves to the bar close.
func (s *Sim) OnBar(k candle.Candle) {
	s.lastPrice = k.Close
	s.hasBar = true
	s.barTime = k.Timestamp

	s.matchResting(k)
	metrics.EquityGauge.Set(s.FreeEquity())
}

func (s *Sim) matchResting(k candle.Candle) {
	// Snapshot: handlers may cancel or submit reentrantly during delivery.
	tags := make([]string, len(s.book))
	copy(tags, s.book)

	for _, kind := range []order.Kind{order.Stop, order.Limit} {
		for _, tag := range tags {
			o, ok := s.resting[tag]
			if !ok || o.Kind != kind {
				continue
			}
			if price, triggered := matchPrice(o, k); triggered {
				s.removeResting(tag)
				s.execute(o, price)
			}
		}
	}
}

func matchPrice(o order.Order, k candle.Candle) (float64, bool) {
	switch o.Kind {
	case order.Stop:
		if o.Side == order.Sell && k.Low <= o.TriggerPrice {
			return o.TriggerPrice, true
		}
		if o.Side == order.Buy && k.High >= o.TriggerPrice {
			return o.TriggerPrice, true
		}
	case order.Limit:
		if o.Side == order.Sell && k.High >= o.Price {
			return o.Price, true
		}
		if o.Side == order.Buy && k.Low <= o.Price {
			return o.Price, true
		}
	}
	return 0, false
}

// Submit accepts an order. Market orders execute before Submit returns;
// their fill reaches the handler first.
func (s *Sim) Submit(o order.Order) error {
	if s.handler == nil {
		return fmt.Errorf("sim: no event handler registered")
	}
	if reason := s.validate(o); reason != "" {
		s.handler.OnReject(order.Rejection{Tag: o.Tag, Reason: reason, Time: s.barTime})
		return nil
	}

	switch o.Kind {
	case order.Market:
		price := s.lastPrice
		if o.Side == order.Buy {
			price *= 1 + s.slippagePct/100
		} else {
			price *= 1 - s.slippagePct/100
		}
		s.execute(o, price)
	default:
		s.resting[o.Tag] = o
		s.book = append(s.book, o.Tag)
	}
	return nil
}

func (s *Sim) validate(o order.Order) string {
	if o.Symbol != "" && o.Symbol != s.symbol {
		return fmt.Sprintf("unknown symbol %q", o.Symbol)
	}
	if o.Quantity <= 0 {
		return "quantity must be positive"
	}
	if _, exists := s.resting[o.Tag]; exists {
		return fmt.Sprintf("duplicate tag %q", o.Tag)
	}
	switch o.Kind {
	case order.Market:
		if !s.hasBar {
			return "no market price yet"
		}
	case order.Stop:
		if o.TriggerPrice <= 0 {
			return "stop order needs a positive trigger price"
		}
	case order.Limit:
		if o.Price <= 0 {
			return "limit order needs a positive price"
		}
	default:
		return fmt.Sprintf("unsupported order kind %q", o.Kind)
	}
	return ""
}

func (s *Sim) execute(o order.Order, price float64) {
	notional := price * o.Quantity
	commission := notional * s.commissionPct / 100
	if o.Side == order.Buy {
		s.cash -= notional + commission
		s.positionQty += o.Quantity
	} else {
		s.cash += notional - commission
		s.positionQty -= o.Quantity
	}

	s.handler.OnFill(order.Fill{
		Tag:      o.Tag,
		Symbol:   s.symbol,
		Side:     o.Side,
		Price:    price,
		Quantity: o.Quantity,
		Time:     s.barTime,
	})
}

// CancelOrder removes a resting order and acknowledges the cancellation.
// Cancelling an unknown or already-closed tag is a silent no-op.
func (s *Sim) CancelOrder(tag string) error {
	if _, ok := s.resting[tag]; !ok {
		return nil
	}
	s.removeResting(tag)
	if s.handler != nil {
		s.handler.OnCancel(order.Cancellation{Tag: tag, Time: s.barTime})
	}
	return nil
}

func (s *Sim) removeResting(tag string) {
	delete(s.resting, tag)
	for i, t := range s.book {
		if t == tag {
			s.book = append(s.book[:i], s.book[i+1:]...)
			break
		}
	}
}

// OpenOrders returns the tags of resting orders, oldest first.
func (s *Sim) OpenOrders() []string {
	out := make([]string, len(s.book))
	copy(out, s.book)
	return out
}
