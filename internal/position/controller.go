// Package position
package position

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pouyanh/rsi-trader/internal/candle"
	"github.com/pouyanh/rsi-trader/internal/config"
	"github.com/pouyanh/rsi-trader/internal/journal"
	"github.com/pouyanh/rsi-trader/internal/metrics"
	"github.com/pouyanh/rsi-trader/internal/order"
	"github.com/pouyanh/rsi-trader/internal/risk"
	"github.com/pouyanh/rsi-trader/internal/strategy"
)

// State of the order lifecycle.
type State int8

const (
	Flat State = iota
	EntryPending
	PositionOpen
	ExitPending
)

func (s State) String() string {
	switch s {
	case Flat:
		return "FLAT"
	case EntryPending:
		return "ENTRY_PENDING"
	case PositionOpen:
		return "POSITION_OPEN"
	case ExitPending:
		return "EXIT_PENDING"
	default:
		return "UNKNOWN"
	}
}

// Trade is one completed round trip.
type Trade struct {
	Side       order.Side
	Quantity   float64
	EntryPrice float64
	ExitPrice  float64
	EntryTime  time.Time
	ExitTime   time.Time
	PnL        float64
	ExitReason string // "STOP_LOSS", "TAKE_PROFIT" or "FLATTEN"
}

// Controller runs the order lifecycle for a single instrument:
//
//	FLAT -> ENTRY_PENDING -> POSITION_OPEN -> FLAT
//
// Entries are market orders sized off free equity. On entry fill a protective
// stop-loss/take-profit pair is submitted; when either fills, the sibling is
// cancelled and the position returns to FLAT. ExitPending covers the
// end-of-data flatten, where the close is a market order rather than a
// protective fill.
//
// The controller is event driven and single threaded. None of its handlers
// return errors: recoverable failures (sizing, submission) are logged and the
// signal is skipped, leaving the state machine consistent.
type Controller struct {
	params    config.StrategyParams
	symbol    string
	venue     order.Submitter
	account   order.AccountView
	strat     *strategy.RSICrossover
	journaler journal.Journaler

	state State
	seq   int

	entryTag string
	slTag    string
	tpTag    string

	side             order.Side
	quantity         float64
	entryPrice       float64
	entryTime        time.Time
	siblingCancelled bool

	trades      []Trade
	realizedPnL float64
}

// NewController validates the parameter bundle and wires the controller to a
// venue and account view. The journaler is optional.
func NewController(params config.StrategyParams, symbol string, venue order.Submitter, account order.AccountView, journaler journal.Journaler) (*Controller, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	strat, err := strategy.NewRSICrossover(params)
	if err != nil {
		return nil, err
	}
	return &Controller{
		params:    params,
		symbol:    symbol,
		venue:     venue,
		account:   account,
		strat:     strat,
		journaler: journaler,
		state:     Flat,
	}, nil
}

func (c *Controller) State() State              { return c.state }
func (c *Controller) Side() order.Side          { return c.side }
func (c *Controller) EntryPrice() float64       { return c.entryPrice }
func (c *Controller) RSIValue() (float64, bool) { return c.strat.RSIValue() }
func (c *Controller) Trades() []Trade           { return c.trades }
func (c *Controller) RealizedPnL() float64      { return c.realizedPnL }
func (c *Controller) WarmupPeriod() int         { return c.strat.WarmupPeriod() }

// OnBar consumes the next closed candle. The indicator always sees the
// close, even while a position is open, so the RSI stream never gaps.
func (c *Controller) OnBar(k candle.Candle) {
	sig := c.strat.OnClose(k.Close)
	if sig == strategy.NoSignal {
		return
	}
	if c.state != Flat {
		// One position per instrument: entries are suppressed, not queued.
		log.Printf("[%s] %s signal ignored, state is %s", c.symbol, sig, c.state)
		return
	}

	side := order.Buy
	if sig == strategy.ShortEntry {
		side = order.Sell
	}
	c.enter(side, k)
}

func (c *Controller) enter(side order.Side, k candle.Candle) {
	price, ok := c.account.LastPrice(c.symbol)
	if !ok || price <= 0 {
		price = k.Close
	}
	if price <= 0 {
		log.Printf("[%s] skipping entry: no reference price", c.symbol)
		return
	}

	qty, err := risk.Size(c.account.FreeEquity(), c.params.PositionSizePct, price)
	if err != nil {
		log.Printf("[%s] skipping entry: %v", c.symbol, err)
		c.journal("error", fmt.Sprintf("entry skipped: %v", err), nil)
		return
	}

	c.seq++
	c.entryTag = fmt.Sprintf("%d-ENTRY", c.seq)
	o := order.Order{
		Tag:      c.entryTag,
		Symbol:   c.symbol,
		Side:     side,
		Kind:     order.Market,
		Quantity: qty,
	}
	if err := c.venue.Submit(o); err != nil {
		log.Printf("[%s] entry submit failed: %v", c.symbol, err)
		c.journal("error", fmt.Sprintf("entry submit failed: %v", err), nil)
		c.entryTag = ""
		return
	}

	c.state = EntryPending
	c.side = side
	c.quantity = qty
	metrics.OrdersSubmitted.WithLabelValues("entry").Inc()
	c.journal("order", "entry submitted", map[string]any{"tag": c.entryTag, "side": side, "qty": qty})
}

// OnFill routes a fill event by correlation tag. Fills for unknown or stale
// tags are logged and dropped.
func (c *Controller) OnFill(f order.Fill) {
	switch f.Tag {
	case c.entryTag:
		c.onEntryFill(f)
	case c.slTag:
		c.onProtectiveFill(f, "STOP_LOSS", c.tpTag)
	case c.tpTag:
		c.onProtectiveFill(f, "TAKE_PROFIT", c.slTag)
	default:
		log.Printf("[%s] stale fill for tag %q ignored", c.symbol, f.Tag)
	}
}

func (c *Controller) onEntryFill(f order.Fill) {
	if c.state != EntryPending {
		log.Printf("[%s] entry fill in state %s ignored", c.symbol, c.state)
		return
	}
	c.state = PositionOpen
	c.entryPrice = f.Price
	c.entryTime = f.Time
	c.quantity = f.Quantity
	c.siblingCancelled = false
	metrics.PositionsOpen.Inc()
	c.journal("fill", "entry filled", map[string]any{"tag": f.Tag, "price": f.Price, "qty": f.Quantity})

	c.attachProtectiveOrders(f)
}

func (c *Controller) attachProtectiveOrders(f order.Fill) {
	var slPrice, tpPrice float64
	if c.side == order.Buy {
		slPrice = f.Price * (1 - c.params.StopLossPct/100)
		tpPrice = f.Price * (1 + c.params.TakeProfitPct/100)
	} else {
		slPrice = f.Price * (1 + c.params.StopLossPct/100)
		tpPrice = f.Price * (1 - c.params.TakeProfitPct/100)
	}
	closing := c.side.Opposite()

	c.slTag = fmt.Sprintf("%d-STOP_LOSS", c.seq)
	sl := order.Order{
		Tag:          c.slTag,
		Symbol:       c.symbol,
		Side:         closing,
		Kind:         order.Stop,
		Quantity:     f.Quantity,
		TriggerPrice: slPrice,
	}
	if err := c.venue.Submit(sl); err != nil {
		log.Printf("[%s] stop-loss submit failed: %v", c.symbol, err)
		c.journal("error", fmt.Sprintf("stop-loss submit failed: %v", err), nil)
		c.slTag = ""
	} else {
		metrics.OrdersSubmitted.WithLabelValues("stop_loss").Inc()
	}

	c.tpTag = fmt.Sprintf("%d-TAKE_PROFIT", c.seq)
	tp := order.Order{
		Tag:      c.tpTag,
		Symbol:   c.symbol,
		Side:     closing,
		Kind:     order.Limit,
		Quantity: f.Quantity,
		Price:    tpPrice,
	}
	if err := c.venue.Submit(tp); err != nil {
		log.Printf("[%s] take-profit submit failed: %v", c.symbol, err)
		c.journal("error", fmt.Sprintf("take-profit submit failed: %v", err), nil)
		c.tpTag = ""
	} else {
		metrics.OrdersSubmitted.WithLabelValues("take_profit").Inc()
	}
}

func (c *Controller) onProtectiveFill(f order.Fill, reason, siblingTag string) {
	if c.state != PositionOpen && c.state != ExitPending {
		log.Printf("[%s] %s fill in state %s ignored", c.symbol, reason, c.state)
		return
	}
	if c.state == ExitPending {
		reason = "FLATTEN"
	}

	// Best-effort sibling cancel, issued once. Duplicate acknowledgements
	// are handled in OnCancel.
	if siblingTag != "" && !c.siblingCancelled {
		c.siblingCancelled = true
		if err := c.venue.CancelOrder(siblingTag); err != nil {
			log.Printf("[%s] sibling cancel %q failed: %v", c.symbol, siblingTag, err)
		}
	}

	c.closePosition(f.Price, f.Time, reason)
}

func (c *Controller) closePosition(exitPrice float64, exitTime time.Time, reason string) {
	pnl := (exitPrice - c.entryPrice) * c.quantity
	if c.side == order.Sell {
		pnl = -pnl
	}

	trade := Trade{
		Side:       c.side,
		Quantity:   c.quantity,
		EntryPrice: c.entryPrice,
		ExitPrice:  exitPrice,
		EntryTime:  c.entryTime,
		ExitTime:   exitTime,
		PnL:        pnl,
		ExitReason: reason,
	}
	c.trades = append(c.trades, trade)
	c.realizedPnL += pnl
	metrics.PositionsOpen.Dec()
	metrics.TradesClosed.WithLabelValues(reason).Inc()
	c.journal("trade", "position closed", map[string]any{
		"side": c.side, "entry": c.entryPrice, "exit": exitPrice, "pnl": pnl, "reason": reason,
	})
	log.Printf("[%s] closed %s %.6f @ %.2f -> %.2f pnl=%.2f (%s)",
		c.symbol, c.side, c.quantity, c.entryPrice, exitPrice, pnl, reason)

	c.reset()
}

// OnCancel handles cancellation acknowledgements. Expected cancels (the
// sibling of a filled protective order, or a flatten-time protective cancel)
// clear the matching tag; anything else is a stale ack and a no-op.
func (c *Controller) OnCancel(cx order.Cancellation) {
	switch cx.Tag {
	case "":
		return
	case c.entryTag:
		if c.state == EntryPending {
			log.Printf("[%s] entry %q cancelled, no retry", c.symbol, cx.Tag)
			c.journal("order", "entry cancelled", map[string]any{"tag": cx.Tag})
			c.reset()
		}
	case c.slTag:
		c.slTag = ""
	case c.tpTag:
		c.tpTag = ""
	default:
		// Duplicate or stale ack.
	}
}

// OnReject handles venue rejections. A rejected entry returns to FLAT with
// no retry; a rejected protective order leaves the position open and is
// logged for the operator.
func (c *Controller) OnReject(r order.Rejection) {
	metrics.OrdersRejected.Inc()
	switch r.Tag {
	case c.entryTag:
		if c.state == EntryPending {
			log.Printf("[%s] entry rejected: %s", c.symbol, r.Reason)
			c.journal("order", "entry rejected", map[string]any{"tag": r.Tag, "reason": r.Reason})
			c.reset()
		}
	case c.slTag:
		log.Printf("[%s] stop-loss rejected: %s", c.symbol, r.Reason)
		c.slTag = ""
	case c.tpTag:
		log.Printf("[%s] take-profit rejected: %s", c.symbol, r.Reason)
		c.tpTag = ""
	default:
		log.Printf("[%s] stale rejection for tag %q ignored", c.symbol, r.Tag)
	}
}

// Flatten force-closes any open position with a market order and cancels
// outstanding protective orders. Used at end of data.
func (c *Controller) Flatten() {
	if c.state != PositionOpen {
		return
	}
	c.state = ExitPending

	for _, tag := range []string{c.slTag, c.tpTag} {
		if tag == "" {
			continue
		}
		if err := c.venue.CancelOrder(tag); err != nil {
			log.Printf("[%s] flatten cancel %q failed: %v", c.symbol, tag, err)
		}
	}

	c.seq++
	c.entryTag = ""
	exitTag := fmt.Sprintf("%d-FLATTEN", c.seq)
	o := order.Order{
		Tag:      exitTag,
		Symbol:   c.symbol,
		Side:     c.side.Opposite(),
		Kind:     order.Market,
		Quantity: c.quantity,
	}
	// Reuse the stop-loss slot so the flatten fill routes through the
	// protective-fill path with both siblings already cancelled.
	c.slTag = exitTag
	c.tpTag = ""
	c.siblingCancelled = true
	if err := c.venue.Submit(o); err != nil {
		log.Printf("[%s] flatten submit failed: %v", c.symbol, err)
		return
	}
	metrics.OrdersSubmitted.WithLabelValues("flatten").Inc()
}

func (c *Controller) reset() {
	c.state = Flat
	c.entryTag = ""
	c.slTag = ""
	c.tpTag = ""
	c.side = ""
	c.quantity = 0
	c.entryPrice = 0
	c.entryTime = time.Time{}
	c.siblingCancelled = false
}

func (c *Controller) journal(eventType, desc string, data map[string]any) {
	if c.journaler == nil {
		return
	}
	ev := journal.Event{
		Time:        time.Now(),
		Type:        eventType,
		Description: desc,
		Data:        data,
	}
	if err := c.journaler.LogEvent(context.Background(), ev); err != nil {
		log.Printf("[%s] journal write failed: %v", c.symbol, err)
	}
}
