package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments exposed at /metrics.
type Metrics struct {
	registry         *prometheus.Registry
	requestsTotal    *prometheus.CounterVec
	decisionsTotal   *prometheus.CounterVec
	backtestsTotal   *prometheus.CounterVec
	ordersSubmitted  prometheus.Counter
	connectedClients prometheus.Gauge
}

// NewMetrics creates the instrument set on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_http_requests_total",
			Help: "HTTP requests served, by route and method.",
		}, []string{"route", "method"}),
		decisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_decisions_total",
			Help: "Terminal decision outcomes, by status.",
		}, []string{"status"}),
		backtestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_backtests_total",
			Help: "Backtest runs, by final status.",
		}, []string{"status"}),
		ordersSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "trading_orders_submitted_total",
			Help: "Orders submitted to the brokerage gateway.",
		}),
		connectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trading_websocket_clients",
			Help: "Currently connected WebSocket clients.",
		}),
	}
}
