package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// Metrics holds the prometheus collectors of the service and implements the
// ledger engine's Recorder.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	transferVolume    prometheus.Counter
	conflictsTotal    *prometheus.CounterVec
	discrepancies     prometheus.Gauge
}

// NewMetrics registers the collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chronos_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chronos_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chronos_ledger_operations_total",
				Help: "Total number of ledger operations by outcome",
			},
			[]string{"operation", "status"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chronos_ledger_operation_duration_seconds",
				Help:    "Ledger operation duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"operation"},
		),
		transferVolume: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chronos_transfer_volume_total",
				Help: "Sum of committed transfer amounts",
			},
		),
		conflictsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chronos_transaction_conflicts_total",
				Help: "Transaction attempts retried after a write conflict",
			},
			[]string{"operation"},
		),
		discrepancies: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chronos_reconciliation_discrepancies",
				Help: "Bancos whose capital disagreed with their movements in the last reconciliation",
			},
		),
	}
}

// RegisterSubscriptionsGauge exposes the number of live subscriptions
func RegisterSubscriptionsGauge(reg prometheus.Registerer, active func() int) {
	promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "chronos_active_subscriptions",
			Help: "Number of live realtime subscriptions",
		},
		func() float64 { return float64(active()) },
	)
}

// ObserveOperation records the outcome and latency of a ledger operation
func (m *Metrics) ObserveOperation(operation, status string, duration time.Duration) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveTransfer adds a committed transfer amount to the volume counter
func (m *Metrics) ObserveTransfer(monto decimal.Decimal) {
	amount, _ := monto.Float64()
	m.transferVolume.Add(amount)
}

// IncConflict counts a retried transaction
func (m *Metrics) IncConflict(operation string) {
	m.conflictsTotal.WithLabelValues(operation).Inc()
}

// SetDiscrepancies records the result of the last reconciliation
func (m *Metrics) SetDiscrepancies(count int) {
	m.discrepancies.Set(float64(count))
}

// RecordHTTPRequest records one served request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// Middleware records every request under its route template
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}
