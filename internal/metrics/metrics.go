package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsitrader_orders_submitted_total",
			Help: "Total number of orders submitted (by tag kind).",
		},
		[]string{"kind"},
	)

	OrdersRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rsitrader_orders_rejected_total",
			Help: "Total number of orders rejected by the venue.",
		},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rsitrader_positions_open",
			Help: "Current number of open positions.",
		},
	)

	TradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsitrader_trades_closed_total",
			Help: "Total number of closed round trips (by exit reason).",
		},
		[]string{"reason"},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rsitrader_equity",
			Help: "Current equity of the simulated account.",
		},
	)
)

func init() {
	prometheus.MustRegister(OrdersSubmitted, OrdersRejected, PositionsOpen, TradesClosed, EquityGauge)
}
