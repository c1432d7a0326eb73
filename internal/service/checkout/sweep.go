package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	defaultSweepInterval   = 5 * time.Minute
	defaultSweepBatchSize  = 100
	defaultPendingOrderTTL = 30 * time.Minute
)

var (
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sweep_runs_total",
		Help: "Total number of pending-order sweep runs grouped by result.",
	}, []string{"result"})
	sweepLostRacesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_sweep_lost_races_total",
		Help: "Total number of sweep cancellations that lost to a concurrent transition.",
	})
	sweepLastCanceled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "checkout_sweep_last_canceled",
		Help: "Number of orders canceled during the last sweep run.",
	})
)

// SweepOptions задаёт параметры воркера отмены зависших pending-заказов.
type SweepOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
	TTL       time.Duration
}

// SweepOption настраивает SweepWorker.
type SweepOption func(*SweepOptions)

// WithSweepLogger задаёт logger для воркера.
func WithSweepLogger(logger *log.Entry) SweepOption {
	return func(opts *SweepOptions) {
		opts.Logger = logger
	}
}

// WithSweepInterval задаёт интервал между проходами.
func WithSweepInterval(interval time.Duration) SweepOption {
	return func(opts *SweepOptions) {
		opts.Interval = interval
	}
}

// WithSweepBatchSize задаёт число заказов, обрабатываемых за один проход.
func WithSweepBatchSize(batchSize int) SweepOption {
	return func(opts *SweepOptions) {
		opts.BatchSize = batchSize
	}
}

// WithPendingTTL задаёт время, после которого неоплаченный pending-заказ отменяется.
func WithPendingTTL(ttl time.Duration) SweepOption {
	return func(opts *SweepOptions) {
		opts.TTL = ttl
	}
}

// SweepWorker периодически отменяет pending-заказы, не дождавшиеся оплаты.
// Гонка с поздним подтверждением платежа решается optimistic lock'ом заказа:
// проигравшая сторона получает ErrIllegalTransition и не повторяет попытку.
type SweepWorker struct {
	orders    domain.OrderRepository
	machine   *Machine
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	ttl       time.Duration
}

// NewSweepWorker создаёт воркер отмены зависших заказов.
func NewSweepWorker(orders domain.OrderRepository, machine *Machine, options ...SweepOption) *SweepWorker {
	opts := SweepOptions{
		Interval:  defaultSweepInterval,
		BatchSize: defaultSweepBatchSize,
		TTL:       defaultPendingOrderTTL,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "pending-sweep-worker")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultSweepBatchSize
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultPendingOrderTTL
	}

	return &SweepWorker{
		orders:    orders,
		machine:   machine,
		logger:    logger,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		ttl:       opts.TTL,
	}
}

// Run запускает периодический sweep до отмены ctx.
func (w *SweepWorker) Run(ctx context.Context) {
	if w.orders == nil || w.machine == nil {
		w.logger.Warn("pending sweep worker is disabled: orders or machine is nil")
		return
	}

	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SweepWorker) sweep(ctx context.Context) {
	canceled, err := w.SweepOnce(ctx, time.Now().UTC())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		sweepRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("pending sweep run failed")
		return
	}

	sweepRunsTotal.WithLabelValues("ok").Inc()
	sweepLastCanceled.Set(float64(canceled))
	if canceled > 0 {
		w.logger.WithField("canceled", canceled).Info("pending sweep completed")
	}
}

// SweepOnce отменяет один батч pending-заказов, устаревших к моменту now.
// Возвращает число успешно отменённых заказов.
func (w *SweepWorker) SweepOnce(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	cutoff := now.Add(-w.ttl)

	stale, err := w.orders.ListPendingBefore(cutoff, w.batchSize)
	if err != nil {
		return 0, err
	}

	canceled := 0
	for _, order := range stale {
		if err := ctx.Err(); err != nil {
			return canceled, err
		}

		if _, err := w.machine.Cancel(order.ID, "payment window expired"); err != nil {
			// Заказ успел подтвердиться или отмениться параллельно — это не сбой.
			if errors.Is(err, domain.ErrIllegalTransition) {
				sweepLostRacesTotal.Inc()
				w.logger.WithFields(log.Fields{
					"order_id": order.ID,
				}).Info("sweep lost race to a concurrent transition, skipping")
				continue
			}
			w.logger.WithError(err).WithField("order_id", order.ID).Warn("sweep cancel failed")
			continue
		}

		canceled++
		if w.machine.metrics != nil {
			w.machine.metrics.RecordSweepCanceled()
		}
	}

	return canceled, nil
}
