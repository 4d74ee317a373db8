// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Trade metrics
	TradesExecuted  *prometheus.CounterVec
	TradesFailed    *prometheus.CounterVec
	TradeSizeSOL    *prometheus.HistogramVec
	TradeDuration   *prometheus.HistogramVec
	RealizedProfit  *prometheus.GaugeVec
	PositionBalance *prometheus.GaugeVec

	// Analytics metrics
	AnalyticsRefreshes *prometheus.CounterVec
	LastPrice          *prometheus.GaugeVec
	Volatility         *prometheus.GaugeVec
	RSI                *prometheus.GaugeVec

	// Agent metrics
	AgentsRunning prometheus.Gauge
	TickPanics    *prometheus.CounterVec

	// Latency metrics
	RPCCallLatency        *prometheus.HistogramVec
	AggregatorCallLatency *prometheus.HistogramVec
	BreakerState          *prometheus.GaugeVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Events metrics
	EventsPublished *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "mm_agent"
	}

	return &Metrics{
		// Trade metrics
		TradesExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "executed_total",
			Help:      "Total number of confirmed trades",
		}, []string{"agent", "direction"}),
		TradesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "failed_total",
			Help:      "Total number of failed trades by error kind",
		}, []string{"agent", "kind"}),
		TradeSizeSOL: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "size_sol",
			Help:      "Trade size in SOL",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50},
		}, []string{"agent"}),
		TradeDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "duration_seconds",
			Help:      "Quote-to-confirmation duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
		}, []string{"agent", "mode"}),
		RealizedProfit: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "realized_profit_sol",
			Help:      "Realized profit in SOL",
		}, []string{"agent"}),
		PositionBalance: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "balance",
			Help:      "Wallet balance by asset side",
		}, []string{"agent", "side"}),

		// Analytics metrics
		AnalyticsRefreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "refreshes_total",
			Help:      "Total number of analytics refreshes by outcome",
		}, []string{"agent", "status"}),
		LastPrice: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "last_price_sol",
			Help:      "Last observed asset price in SOL",
		}, []string{"agent"}),
		Volatility: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "volatility_percent",
			Help:      "Standard deviation of returns over the window, in percent",
		}, []string{"agent"}),
		RSI: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "rsi",
			Help:      "Relative strength index over the window",
		}, []string{"agent"}),

		// Agent metrics
		AgentsRunning: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "running",
			Help:      "Number of running agents",
		}),
		TickPanics: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "tick_panics_total",
			Help:      "Total number of recovered panics in timer callbacks",
		}, []string{"agent", "timer"}),

		// Latency metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		AggregatorCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "call_latency_seconds",
			Help:      "Swap aggregator call latency in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"endpoint", "status"}),
		BreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Events metrics
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of events published by subject and outcome",
		}, []string{"subject", "status"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTrade records a confirmed trade.
func RecordTrade(agent, direction string, sizeSOL, seconds float64, mode string) {
	DefaultMetrics.TradesExecuted.WithLabelValues(agent, direction).Inc()
	DefaultMetrics.TradeSizeSOL.WithLabelValues(agent).Observe(sizeSOL)
	DefaultMetrics.TradeDuration.WithLabelValues(agent, mode).Observe(seconds)
}

// RecordTradeFailure records a failed trade by error kind.
func RecordTradeFailure(agent, kind string) {
	DefaultMetrics.TradesFailed.WithLabelValues(agent, kind).Inc()
}

// UpdatePosition updates profit and balance gauges.
func UpdatePosition(agent string, assetBalance, quoteBalance, realizedProfit float64) {
	DefaultMetrics.PositionBalance.WithLabelValues(agent, "asset").Set(assetBalance)
	DefaultMetrics.PositionBalance.WithLabelValues(agent, "quote").Set(quoteBalance)
	DefaultMetrics.RealizedProfit.WithLabelValues(agent).Set(realizedProfit)
}

// RecordAnalytics records an analytics refresh.
func RecordAnalytics(agent string, priceAvailable bool, price, volatility, rsi float64) {
	if !priceAvailable {
		DefaultMetrics.AnalyticsRefreshes.WithLabelValues(agent, "price_unavailable").Inc()
		return
	}
	DefaultMetrics.AnalyticsRefreshes.WithLabelValues(agent, "ok").Inc()
	DefaultMetrics.LastPrice.WithLabelValues(agent).Set(price)
	DefaultMetrics.Volatility.WithLabelValues(agent).Set(volatility)
	DefaultMetrics.RSI.WithLabelValues(agent).Set(rsi)
}

// AgentStarted increments the running agents gauge.
func AgentStarted() {
	DefaultMetrics.AgentsRunning.Inc()
}

// AgentStopped decrements the running agents gauge.
func AgentStopped() {
	DefaultMetrics.AgentsRunning.Dec()
}

// RecordTickPanic records a recovered panic in a timer callback.
func RecordTickPanic(agent, timer string) {
	DefaultMetrics.TickPanics.WithLabelValues(agent, timer).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordAggregatorCall records swap aggregator call latency.
func RecordAggregatorCall(endpoint string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.AggregatorCallLatency.WithLabelValues(endpoint, status).Observe(seconds)
}

// SetBreakerState records the circuit breaker state.
func SetBreakerState(name string, state int) {
	DefaultMetrics.BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordEventPublished records a published event.
func RecordEventPublished(subject string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.EventsPublished.WithLabelValues(subject, status).Inc()
}
