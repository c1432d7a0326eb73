package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики движка заказов и платежей.
type CheckoutMetrics struct {
	// Счётчики операций
	checkoutStarted   prometheus.Counter
	checkoutCompleted prometheus.Counter
	checkoutFailed    prometheus.Counter
	ordersCanceled    prometheus.Counter
	sweepCanceled     prometheus.Counter

	// Счётчики платежей по провайдерам
	paymentsSucceeded *prometheus.CounterVec
	paymentsFailed    *prometheus.CounterVec
	paymentsRefunded  *prometheus.CounterVec

	// Гистограммы времени выполнения
	checkoutDuration prometheus.Histogram
	settleDuration   *prometheus.HistogramVec

	// Счётчики событий timeline и outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Gauge для backlog outbox
	outboxBacklog prometheus.Gauge
}

// NewCheckoutMetrics создаёт новый экземпляр метрик движка.
func NewCheckoutMetrics() *CheckoutMetrics {
	return newCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		checkoutStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_started_total",
			Help: "Total number of checkout attempts",
		}),
		checkoutCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_completed_total",
			Help: "Total number of carts promoted to pending orders",
		}),
		checkoutFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_failed_total",
			Help: "Total number of checkout attempts rejected",
		}),
		ordersCanceled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_orders_canceled_total",
			Help: "Total number of orders canceled",
		}),
		sweepCanceled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_sweep_canceled_total",
			Help: "Total number of stale pending orders canceled by the sweeper",
		}),
		paymentsSucceeded: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_payments_succeeded_total",
			Help: "Total number of settled payments by provider",
		}, []string{"provider"}),
		paymentsFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_payments_failed_total",
			Help: "Total number of failed settlement attempts by provider",
		}, []string{"provider"}),
		paymentsRefunded: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_payments_refunded_total",
			Help: "Total number of refunds by provider",
		}, []string{"provider"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "checkout_duration_seconds",
			Help:    "Duration of the checkout critical section in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		settleDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "checkout_settle_duration_seconds",
			Help:    "Duration of settlement calls in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"provider"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		outboxBacklog: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "checkout_outbox_backlog",
			Help: "Number of outbox messages awaiting publication",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordCheckoutStarted увеличивает счётчик попыток checkout.
func (m *CheckoutMetrics) RecordCheckoutStarted() {
	m.checkoutStarted.Inc()
}

// RecordCheckoutCompleted увеличивает счётчик успешных checkout.
func (m *CheckoutMetrics) RecordCheckoutCompleted() {
	m.checkoutCompleted.Inc()
}

// RecordCheckoutFailed увеличивает счётчик отклонённых checkout.
func (m *CheckoutMetrics) RecordCheckoutFailed() {
	m.checkoutFailed.Inc()
}

// RecordOrderCanceled увеличивает счётчик отменённых заказов.
func (m *CheckoutMetrics) RecordOrderCanceled() {
	m.ordersCanceled.Inc()
}

// RecordSweepCanceled увеличивает счётчик заказов, отменённых sweep-воркером.
func (m *CheckoutMetrics) RecordSweepCanceled() {
	m.sweepCanceled.Inc()
}

// RecordPaymentSucceeded увеличивает счётчик успешных платежей провайдера.
func (m *CheckoutMetrics) RecordPaymentSucceeded(provider string) {
	m.paymentsSucceeded.WithLabelValues(provider).Inc()
}

// RecordPaymentFailed увеличивает счётчик неудачных попыток оплаты провайдера.
func (m *CheckoutMetrics) RecordPaymentFailed(provider string) {
	m.paymentsFailed.WithLabelValues(provider).Inc()
}

// RecordPaymentRefunded увеличивает счётчик возвратов провайдера.
func (m *CheckoutMetrics) RecordPaymentRefunded(provider string) {
	m.paymentsRefunded.WithLabelValues(provider).Inc()
}

// RecordCheckoutDuration записывает длительность критической секции checkout.
func (m *CheckoutMetrics) RecordCheckoutDuration(duration time.Duration) {
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordSettleDuration записывает длительность обращения к провайдеру.
func (m *CheckoutMetrics) RecordSettleDuration(provider string, duration time.Duration) {
	m.settleDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *CheckoutMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CheckoutMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// SetOutboxBacklog обновляет gauge backlog outbox.
func (m *CheckoutMetrics) SetOutboxBacklog(size int) {
	m.outboxBacklog.Set(float64(size))
}
