package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewCheckoutMetrics(t *testing.T) {
	metrics := NewCheckoutMetrics()

	if metrics == nil {
		t.Fatal("NewCheckoutMetrics should not return nil")
	}

	if metrics.checkoutStarted == nil {
		t.Error("checkoutStarted counter should not be nil")
	}
	if metrics.checkoutCompleted == nil {
		t.Error("checkoutCompleted counter should not be nil")
	}
	if metrics.checkoutFailed == nil {
		t.Error("checkoutFailed counter should not be nil")
	}
	if metrics.ordersCanceled == nil {
		t.Error("ordersCanceled counter should not be nil")
	}
	if metrics.sweepCanceled == nil {
		t.Error("sweepCanceled counter should not be nil")
	}
	if metrics.paymentsSucceeded == nil {
		t.Error("paymentsSucceeded counter vec should not be nil")
	}
	if metrics.paymentsFailed == nil {
		t.Error("paymentsFailed counter vec should not be nil")
	}
	if metrics.paymentsRefunded == nil {
		t.Error("paymentsRefunded counter vec should not be nil")
	}
	if metrics.checkoutDuration == nil {
		t.Error("checkoutDuration histogram should not be nil")
	}
	if metrics.settleDuration == nil {
		t.Error("settleDuration histogram vec should not be nil")
	}
	if metrics.timelineEvents == nil {
		t.Error("timelineEvents counter should not be nil")
	}
	if metrics.outboxEvents == nil {
		t.Error("outboxEvents counter should not be nil")
	}
	if metrics.outboxBacklog == nil {
		t.Error("outboxBacklog gauge should not be nil")
	}
}

// Повторное создание не должно паниковать: коллекторы уже зарегистрированы
// и переиспользуются.
func TestNewCheckoutMetricsIdempotent(t *testing.T) {
	first := NewCheckoutMetrics()
	second := NewCheckoutMetrics()

	if first.checkoutStarted != second.checkoutStarted {
		t.Error("expected re-registration to return the existing collector")
	}
}

func TestRecordCheckoutCounters(t *testing.T) {
	reg := prometheus.NewRegistry()

	started := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_checkout_started_total",
		Help: "Test counter",
	})
	completed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_checkout_completed_total",
		Help: "Test counter",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_checkout_failed_total",
		Help: "Test counter",
	})

	reg.MustRegister(started, completed, failed)

	metrics := &CheckoutMetrics{
		checkoutStarted:   started,
		checkoutCompleted: completed,
		checkoutFailed:    failed,
	}

	metrics.RecordCheckoutStarted()
	metrics.RecordCheckoutStarted()
	metrics.RecordCheckoutCompleted()
	metrics.RecordCheckoutFailed()

	assertCounter(t, started, 2.0)
	assertCounter(t, completed, 1.0)
	assertCounter(t, failed, 1.0)
}

func TestRecordPaymentsByProvider(t *testing.T) {
	reg := prometheus.NewRegistry()

	succeeded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_payments_succeeded_total",
		Help: "Test counter vec",
	}, []string{"provider"})

	reg.MustRegister(succeeded)

	metrics := &CheckoutMetrics{paymentsSucceeded: succeeded}

	metrics.RecordPaymentSucceeded("stripe")
	metrics.RecordPaymentSucceeded("stripe")
	metrics.RecordPaymentSucceeded("paypal")

	assertCounter(t, succeeded.WithLabelValues("stripe"), 2.0)
	assertCounter(t, succeeded.WithLabelValues("paypal"), 1.0)
}

func TestRecordCheckoutDuration(t *testing.T) {
	reg := prometheus.NewRegistry()

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_checkout_duration_seconds",
		Help:    "Test histogram",
		Buckets: prometheus.DefBuckets,
	})

	reg.MustRegister(duration)

	metrics := &CheckoutMetrics{checkoutDuration: duration}

	metrics.RecordCheckoutDuration(100 * time.Millisecond)
	metrics.RecordCheckoutDuration(500 * time.Millisecond)

	metric := &dto.Metric{}
	if err := duration.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 2 {
		t.Errorf("expected 2 samples, got %d", metric.Histogram.GetSampleCount())
	}
	sum := metric.Histogram.GetSampleSum()
	if sum < 0.55 || sum > 0.65 {
		t.Errorf("expected sum around 0.6, got %f", sum)
	}
}

func TestSetOutboxBacklog(t *testing.T) {
	reg := prometheus.NewRegistry()

	backlog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_outbox_backlog",
		Help: "Test gauge",
	})

	reg.MustRegister(backlog)

	metrics := &CheckoutMetrics{outboxBacklog: backlog}

	metrics.SetOutboxBacklog(7)

	metric := &dto.Metric{}
	if err := backlog.Write(metric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if metric.Gauge.GetValue() != 7.0 {
		t.Errorf("expected backlog 7.0, got %f", metric.Gauge.GetValue())
	}
}

func assertCounter(t *testing.T, counter prometheus.Counter, want float64) {
	t.Helper()

	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != want {
		t.Errorf("expected counter value %f, got %f", want, metric.Counter.GetValue())
	}
}
