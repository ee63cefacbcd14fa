// Package order
package order

import "time"

// Side of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Opposite returns the closing side for a position opened with s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Kind of an order.
type Kind string

const (
	Market Kind = "market"
	Stop   Kind = "stop"
	Limit  Kind = "limit"
)

// Order is a request to the execution venue. Tag is the caller's correlation
// key: every event the venue emits for this order carries it back.
type Order struct {
	Tag          string
	Symbol       string
	Side         Side
	Kind         Kind
	Quantity     float64
	Price        float64 // limit price, Kind == Limit
	TriggerPrice float64 // trigger price, Kind == Stop
}

// Fill reports a (fully) executed order.
type Fill struct {
	Tag      string
	Symbol   string
	Side     Side
	Price    float64
	Quantity float64
	Time     time.Time
}

// Cancellation acknowledges that an order left the book without executing.
type Cancellation struct {
	Tag  string
	Time time.Time
}

// Rejection reports an order the venue refused to accept.
type Rejection struct {
	Tag    string
	Reason string
	Time   time.Time
}

// Submitter is the order entry surface of a venue.
type Submitter interface {
	Submit(o Order) error
	// CancelOrder is idempotent: cancelling an unknown or already-closed tag
	// is not an error.
	CancelOrder(tag string) error
}

// AccountView exposes the account state the sizing layer needs.
type AccountView interface {
	FreeEquity() float64
	LastPrice(symbol string) (float64, bool)
}
