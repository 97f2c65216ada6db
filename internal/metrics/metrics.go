package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Order metrics
	OrdersPlaced    *prometheus.CounterVec
	OrdersCancelled prometheus.Counter
	OrdersModified  prometheus.Counter
	OrdersRejected  *prometheus.CounterVec
	AddOrderLatency prometheus.Histogram
	RestingOrders   prometheus.Gauge
	QueueDepth      *prometheus.GaugeVec

	// Trade metrics
	TradesTotal prometheus.Counter
	TradeVolume prometheus.Counter

	// Stop scheduler metrics
	StopsPending   prometheus.Gauge
	StopsTriggered prometheus.Counter

	// WebSocket metrics
	WSConnections  prometheus.Gauge
	WSMessagesSent *prometheus.CounterVec

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// RabbitMQ metrics
	MQMessagesPublished *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		OrdersPlaced: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_placed_total",
				Help: "Total number of orders admitted, by discipline",
			},
			[]string{"type"},
		),
		OrdersCancelled: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "orders_cancelled_total",
				Help: "Total number of orders cancelled",
			},
		),
		OrdersModified: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "orders_modified_total",
				Help: "Total number of orders modified",
			},
		),
		OrdersRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_rejected_total",
				Help: "Total number of orders rejected at admission",
			},
			[]string{"reason"},
		),
		AddOrderLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "add_order_duration_seconds",
				Help:    "Order admission latency in seconds",
				Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
			},
		),
		RestingOrders: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "resting_orders",
				Help: "Number of limit orders resting in the book",
			},
		),
		QueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rematch_queue_depth",
				Help: "Backlog of the per-side re-match queues",
			},
			[]string{"side"},
		),

		TradesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "trades_total",
				Help: "Total number of trades executed",
			},
		),
		TradeVolume: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "trade_volume_total",
				Help: "Total traded quantity",
			},
		),

		StopsPending: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "stop_orders_pending",
				Help: "Number of stop orders awaiting their trigger",
			},
		),
		StopsTriggered: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "stop_orders_triggered_total",
				Help: "Total number of stop orders promoted to market orders",
			},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ws_connections_active",
				Help: "Current number of active WebSocket connections",
			},
		),
		WSMessagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ws_messages_sent_total",
				Help: "Total number of WebSocket messages sent",
			},
			[]string{"type"},
		),

		CacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
		),
		CacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
		),

		MQMessagesPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mq_messages_published_total",
				Help: "Total number of messages published to RabbitMQ",
			},
			[]string{"routing_key"},
		),
	}
}

// RecordOrderPlaced records a successful order admission.
func (m *Metrics) RecordOrderPlaced(orderType string, latencySeconds float64) {
	m.OrdersPlaced.WithLabelValues(orderType).Inc()
	m.AddOrderLatency.Observe(latencySeconds)
}

// RecordOrderRejected records an order rejected at admission.
func (m *Metrics) RecordOrderRejected(reason string) {
	m.OrdersRejected.WithLabelValues(reason).Inc()
}

// RecordTrade records a trade execution.
func (m *Metrics) RecordTrade(volume float64) {
	m.TradesTotal.Inc()
	m.TradeVolume.Add(volume)
}

// RecordStopTriggered records a stop order promotion.
func (m *Metrics) RecordStopTriggered() {
	m.StopsTriggered.Inc()
}

// RecordWSSent records a WebSocket message sent.
func (m *Metrics) RecordWSSent(msgType string) {
	m.WSMessagesSent.WithLabelValues(msgType).Inc()
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.CacheMisses.Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}
