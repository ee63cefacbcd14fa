package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pouyanh/rsi-trader/internal/candle"
	"github.com/pouyanh/rsi-trader/internal/order"
)

type recordingHandler struct {
	fills   []order.Fill
	cancels []order.Cancellation
	rejects []order.Rejection
}

func (h *recordingHandler) OnFill(f order.Fill)           { h.fills = append(h.fills, f) }
func (h *recordingHandler) OnCancel(c order.Cancellation) { h.cancels = append(h.cancels, c) }
func (h *recordingHandler) OnReject(r order.Rejection)    { h.rejects = append(h.rejects, r) }

func simBar(open, high, low, closePrice float64) candle.Candle {
	return candle.Candle{
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Open:      open, High: high, Low: low, Close: closePrice,
		Volume: 1000, Symbol: "ETH-USDT", Timeframe: "15m", Source: "test",
	}
}

func newSimWithBar(t *testing.T) (*Sim, *recordingHandler) {
	t.Helper()
	s := NewSim("ETH-USDT", 10000, 0, 0)
	h := &recordingHandler{}
	s.SetHandler(h)
	s.OnBar(simBar(2000, 2005, 1995, 2000))
	return s, h
}

func TestSimMarketFill(t *testing.T) {
	s, h := newSimWithBar(t)

	err := s.Submit(order.Order{Tag: "1-ENTRY", Side: order.Buy, Kind: order.Market, Quantity: 0.1})
	require.NoError(t, err)
	require.Len(t, h.fills, 1)
	assert.Equal(t, "1-ENTRY", h.fills[0].Tag)
	assert.Equal(t, 2000.0, h.fills[0].Price)

	// Cash down by notional, equity unchanged at the mark.
	assert.InDelta(t, 10000.0, s.FreeEquity(), 1e-9)
}

func TestSimMarketSlippageAndCommission(t *testing.T) {
	s := NewSim("ETH-USDT", 10000, 0.1, 0.05)
	h := &recordingHandler{}
	s.SetHandler(h)
	s.OnBar(simBar(2000, 2005, 1995, 2000))

	require.NoError(t, s.Submit(order.Order{Tag: "1-ENTRY", Side: order.Buy, Kind: order.Market, Quantity: 1}))
	require.Len(t, h.fills, 1)
	// Buy pays up: 2000 * 1.001 = 2002.
	assert.InDelta(t, 2002.0, h.fills[0].Price, 1e-9)
	// Commission comes out of equity: 2002 * 0.05% ~ 1.001.
	assert.InDelta(t, 10000-1.001-2.0, s.FreeEquity(), 1e-6)
}

func TestSimMarketWithoutPriceRejected(t *testing.T) {
	s := NewSim("ETH-USDT", 10000, 0, 0)
	h := &recordingHandler{}
	s.SetHandler(h)

	require.NoError(t, s.Submit(order.Order{Tag: "1-ENTRY", Side: order.Buy, Kind: order.Market, Quantity: 0.1}))
	assert.Empty(t, h.fills)
	require.Len(t, h.rejects, 1)
	assert.Equal(t, "1-ENTRY", h.rejects[0].Tag)
}

func TestSimStopTriggersOnLow(t *testing.T) {
	s, h := newSimWithBar(t)
	require.NoError(t, s.Submit(order.Order{Tag: "1-STOP_LOSS", Side: order.Sell, Kind: order.Stop, Quantity: 0.1, TriggerPrice: 1970}))
	assert.Empty(t, h.fills)

	s.OnBar(simBar(2000, 2001, 1980, 1990)) // low above trigger
	assert.Empty(t, h.fills)

	s.OnBar(simBar(1990, 1992, 1965, 1975)) // low crosses trigger
	require.Len(t, h.fills, 1)
	assert.Equal(t, "1-STOP_LOSS", h.fills[0].Tag)
	assert.Equal(t, 1970.0, h.fills[0].Price)
	assert.Empty(t, s.OpenOrders())
}

func TestSimLimitTriggersOnHigh(t *testing.T) {
	s, h := newSimWithBar(t)
	require.NoError(t, s.Submit(order.Order{Tag: "1-TAKE_PROFIT", Side: order.Sell, Kind: order.Limit, Quantity: 0.1, Price: 2060}))

	s.OnBar(simBar(2000, 2070, 1995, 2050))
	require.Len(t, h.fills, 1)
	assert.Equal(t, "1-TAKE_PROFIT", h.fills[0].Tag)
	assert.Equal(t, 2060.0, h.fills[0].Price)
}

func TestSimStopBeforeLimitInOneBar(t *testing.T) {
	s, h := newSimWithBar(t)
	require.NoError(t, s.Submit(order.Order{Tag: "1-TAKE_PROFIT", Side: order.Sell, Kind: order.Limit, Quantity: 0.1, Price: 2060}))
	require.NoError(t, s.Submit(order.Order{Tag: "1-STOP_LOSS", Side: order.Sell, Kind: order.Stop, Quantity: 0.1, TriggerPrice: 1970}))

	// One wide bar spans both prices: the stop wins.
	s.OnBar(simBar(2000, 2070, 1960, 2000))
	require.NotEmpty(t, h.fills)
	assert.Equal(t, "1-STOP_LOSS", h.fills[0].Tag)
}

func TestSimCancelIdempotent(t *testing.T) {
	s, h := newSimWithBar(t)
	require.NoError(t, s.Submit(order.Order{Tag: "1-TAKE_PROFIT", Side: order.Sell, Kind: order.Limit, Quantity: 0.1, Price: 2060}))

	require.NoError(t, s.CancelOrder("1-TAKE_PROFIT"))
	require.Len(t, h.cancels, 1)

	// Second cancel of the same tag, and one for a tag that never existed.
	require.NoError(t, s.CancelOrder("1-TAKE_PROFIT"))
	require.NoError(t, s.CancelOrder("99-ENTRY"))
	assert.Len(t, h.cancels, 1)
}

func TestSimRejectsBadOrders(t *testing.T) {
	s, h := newSimWithBar(t)

	tests := []struct {
		name string
		o    order.Order
	}{
		{"zero quantity", order.Order{Tag: "a", Side: order.Buy, Kind: order.Market}},
		{"wrong symbol", order.Order{Tag: "b", Symbol: "BTC-USDT", Side: order.Buy, Kind: order.Market, Quantity: 1}},
		{"stop without trigger", order.Order{Tag: "c", Side: order.Sell, Kind: order.Stop, Quantity: 1}},
		{"limit without price", order.Order{Tag: "d", Side: order.Sell, Kind: order.Limit, Quantity: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(h.rejects)
			require.NoError(t, s.Submit(tt.o))
			assert.Len(t, h.rejects, before+1)
		})
	}
	assert.Empty(t, h.fills)
}

func TestSimShortRoundTripEquity(t *testing.T) {
	s, h := newSimWithBar(t)

	require.NoError(t, s.Submit(order.Order{Tag: "1-ENTRY", Side: order.Sell, Kind: order.Market, Quantity: 1}))
	require.Len(t, h.fills, 1)

	// Price falls; buying back at 1900 banks the difference.
	s.OnBar(simBar(2000, 2000, 1890, 1900))
	require.NoError(t, s.Submit(order.Order{Tag: "2-FLATTEN", Side: order.Buy, Kind: order.Market, Quantity: 1}))
	assert.InDelta(t, 10100.0, s.FreeEquity(), 1e-9)
}
