package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics tracks order intake, webhook processing and channel
// round trips.
type PaymentMetrics struct {
	ordersCreated        *prometheus.CounterVec
	ordersSettled        *prometheus.CounterVec
	notifications        *prometheus.CounterVec
	refunds              *prometheus.CounterVec
	channelDuration      *prometheus.HistogramVec
	reconcileClaimed     prometheus.Counter
	settlementLag        prometheus.Histogram
}

var (
	paymentMetricsOnce sync.Once
	paymentMetrics     *PaymentMetrics
)

func Payment() *PaymentMetrics {
	return PaymentWithConfig(Config{})
}

func PaymentWithConfig(cfg Config) *PaymentMetrics {
	paymentMetricsOnce.Do(func() {
		paymentMetrics = newPaymentMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return paymentMetrics
}

func ResetPaymentMetricsForTest() {
	paymentMetricsOnce = sync.Once{}
	paymentMetrics = nil
}

// NewPayment registers a fresh metrics set on registerer. Production wiring
// goes through PaymentWithConfig; tests pass a private registry.
func NewPayment(registerer prometheus.Registerer, cfg Config) *PaymentMetrics {
	return newPaymentMetrics(registerer, cfg)
}

func newPaymentMetrics(registerer prometheus.Registerer, cfg Config) *PaymentMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "payflow"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}

	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	ordersCreated := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "payflow_orders_created_total",
			Help:        "Payment orders created by channel.",
			ConstLabels: constLabels,
		},
		[]string{"channel"},
	)

	ordersSettled := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "payflow_orders_settled_total",
			Help:        "Payment orders reaching a terminal status.",
			ConstLabels: constLabels,
		},
		[]string{"channel", "status"},
	)

	notifications := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "payflow_notifications_total",
			Help:        "Inbound channel notifications by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"channel", "result"}, // applied | replay | rejected
	)

	refunds := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "payflow_refunds_total",
			Help:        "Refund requests by channel and outcome.",
			ConstLabels: constLabels,
		},
		[]string{"channel", "result"}, // accepted | rejected | settled | failed
	)

	channelDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "payflow_channel_request_seconds",
			Help:        "Outbound channel API round-trip latency.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			ConstLabels: constLabels,
		},
		[]string{"channel", "operation"},
	)

	reconcileClaimed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:        "payflow_reconcile_claimed_total",
			Help:        "Stale processing orders claimed by the reconcile worker.",
			ConstLabels: constLabels,
		},
	)

	settlementLag := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "payflow_settlement_lag_seconds",
			Help: "Time between order creation and settlement.",
			Buckets: []float64{
				1, 5, 15, 60, 300, 900, 1800, // payment window boundary
			},
			ConstLabels: constLabels,
		},
	)

	registerer.MustRegister(
		ordersCreated,
		ordersSettled,
		notifications,
		refunds,
		channelDuration,
		reconcileClaimed,
		settlementLag,
	)

	return &PaymentMetrics{
		ordersCreated:    ordersCreated,
		ordersSettled:    ordersSettled,
		notifications:    notifications,
		refunds:          refunds,
		channelDuration:  channelDuration,
		reconcileClaimed: reconcileClaimed,
		settlementLag:    settlementLag,
	}
}

func (m *PaymentMetrics) IncOrderCreated(channel string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(channel).Inc()
}

func (m *PaymentMetrics) IncOrderSettled(channel, status string) {
	if m == nil {
		return
	}
	m.ordersSettled.WithLabelValues(channel, status).Inc()
}

func (m *PaymentMetrics) IncNotification(channel, result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(channel, result).Inc()
}

func (m *PaymentMetrics) IncRefund(channel, result string) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(channel, result).Inc()
}

func (m *PaymentMetrics) ObserveChannelRequest(channel, operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.channelDuration.WithLabelValues(channel, operation).Observe(duration.Seconds())
}

func (m *PaymentMetrics) AddReconcileClaimed(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.reconcileClaimed.Add(float64(count))
}

func (m *PaymentMetrics) ObserveSettlementLag(lag time.Duration) {
	if m == nil {
		return
	}
	seconds := lag.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.settlementLag.Observe(seconds)
}
