package settlement

import (
	"encoding/json"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
)

// Типы событий платежей, публикуемых workflow через outbox.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventPaymentRefunded  = "payment.refunded"
)

// Workflow оркестрирует оплату заказа через подключаемые адаптеры провайдеров.
// Алгоритм settlement общий для intent- и redirect-протоколов: проверка
// оплачиваемости, сверка суммы, вызов адаптера, идемпотентная запись успеха.
// Идемпотентность обеспечивает уникальность (provider, provider_ref) в
// репозитории платежей: повторный confirm по успешному платежу — no-op.
type Workflow struct {
	orders   domain.OrderRepository
	payments domain.PaymentRepository
	outbox   domain.OutboxRepository
	machine  *checkout.Machine
	intent   domain.IntentGateway
	redirect domain.RedirectGateway
	logger   *log.Entry
	metrics  *metrics.CheckoutMetrics
}

// NewWorkflow создаёт workflow оплаты поверх машины состояний заказа.
func NewWorkflow(
	orders domain.OrderRepository,
	payments domain.PaymentRepository,
	outbox domain.OutboxRepository,
	machine *checkout.Machine,
	intent domain.IntentGateway,
	redirect domain.RedirectGateway,
	logger *log.Entry,
) *Workflow {
	if logger == nil {
		logger = log.WithField("component", "settlement-workflow")
	}
	return &Workflow{
		orders:   orders,
		payments: payments,
		outbox:   outbox,
		machine:  machine,
		intent:   intent,
		redirect: redirect,
		logger:   logger,
		metrics:  metrics.NewCheckoutMetrics(),
	}
}

// NewWorkflowWithoutMetrics создаёт workflow без метрик (для тестов).
func NewWorkflowWithoutMetrics(
	orders domain.OrderRepository,
	payments domain.PaymentRepository,
	outbox domain.OutboxRepository,
	machine *checkout.Machine,
	intent domain.IntentGateway,
	redirect domain.RedirectGateway,
	logger *log.Entry,
) *Workflow {
	w := NewWorkflow(orders, payments, outbox, machine, intent, redirect, logger)
	w.metrics = nil
	return w
}

// CreateIntent регистрирует намерение оплаты у intent-провайдера и сохраняет
// pending-платёж на полную сумму заказа.
func (w *Workflow) CreateIntent(orderID string) (domain.Payment, error) {
	order, err := w.payableOrder(orderID)
	if err != nil {
		return domain.Payment{}, err
	}

	ref, err := w.intent.CreateIntent(order)
	if err != nil {
		return domain.Payment{}, err
	}

	return w.recordPending(order, w.intent.Provider(), ref)
}

// CreateRemoteOrder создаёт заказ у redirect-провайдера; помимо платежа
// возвращает approval URL, на который нужно отправить покупателя.
func (w *Workflow) CreateRemoteOrder(orderID string) (domain.Payment, string, error) {
	order, err := w.payableOrder(orderID)
	if err != nil {
		return domain.Payment{}, "", err
	}

	ref, approvalURL, err := w.redirect.CreateRemoteOrder(order)
	if err != nil {
		return domain.Payment{}, "", err
	}

	payment, err := w.recordPending(order, w.redirect.Provider(), ref)
	if err != nil {
		return domain.Payment{}, "", err
	}
	return payment, approvalURL, nil
}

// Confirm подтверждает intent-платёж по provider reference.
func (w *Workflow) Confirm(providerRef string) (domain.Payment, error) {
	return w.settle(w.intent.Provider(), providerRef, func() (domain.PaymentStatus, error) {
		return w.intent.Confirm(providerRef)
	})
}

// Capture списывает средства по одобренному redirect-заказу.
func (w *Workflow) Capture(providerRef string) (domain.Payment, error) {
	return w.settle(w.redirect.Provider(), providerRef, func() (domain.PaymentStatus, error) {
		return w.redirect.Capture(providerRef)
	})
}

// Refund инициирует возврат по успешному платежу и помечает его refunded.
// Заказ при этом не переводится: возврат стока требует явной отмены.
func (w *Workflow) Refund(paymentID string, amountMinor int64) (domain.Payment, error) {
	payment, err := w.payments.Get(paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if payment.Status != domain.PaymentStatusSucceeded {
		return domain.Payment{}, domain.ErrPaymentNotRefundable
	}
	if amountMinor <= 0 || amountMinor > payment.AmountMinor {
		return domain.Payment{}, domain.ErrRefundAmountInvalid
	}

	gateway, err := w.gatewayFor(payment.Provider)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := gateway.Refund(payment.ProviderRef, amountMinor); err != nil {
		w.logger.WithError(err).WithField("payment_id", payment.ID).Warn("provider refund failed")
		return domain.Payment{}, err
	}

	payment.Status = domain.PaymentStatusRefunded
	if err := w.payments.Save(payment); err != nil {
		return domain.Payment{}, err
	}
	if w.metrics != nil {
		w.metrics.RecordPaymentRefunded(payment.Provider)
	}
	w.emitPaymentEvent(payment, EventPaymentRefunded)
	w.logger.WithFields(log.Fields{
		"payment_id":   payment.ID,
		"provider":     payment.Provider,
		"amount_minor": amountMinor,
	}).Info("payment refunded")

	return w.payments.Get(payment.ID)
}

// settle — общий алгоритм подтверждения платежа для обоих протоколов.
func (w *Workflow) settle(provider, providerRef string, capture func() (domain.PaymentStatus, error)) (domain.Payment, error) {
	payment, err := w.payments.GetByProviderRef(provider, providerRef)
	if err != nil {
		return domain.Payment{}, err
	}

	// Идемпотентный повтор: платёж уже подтверждён — это no-op успех,
	// заказ повторно не переводится.
	if payment.Status == domain.PaymentStatusSucceeded {
		w.logger.WithFields(log.Fields{
			"payment_id":   payment.ID,
			"provider_ref": providerRef,
		}).Debug("duplicate confirmation for settled payment, no-op")
		return payment, nil
	}
	if payment.Status == domain.PaymentStatusRefunded {
		return domain.Payment{}, domain.ErrOrderNotPayable
	}

	order, err := w.orders.Get(payment.OrderID)
	if err != nil {
		return domain.Payment{}, err
	}
	if order.Status != domain.OrderStatusPending {
		return domain.Payment{}, domain.ErrOrderNotPayable
	}
	if payment.AmountMinor != order.AmountMinor {
		return domain.Payment{}, domain.ErrAmountMismatch
	}

	start := time.Now()
	status, err := capture()
	if w.metrics != nil {
		w.metrics.RecordSettleDuration(provider, time.Since(start))
	}
	if err != nil {
		// Сетевые и неоднозначные ответы провайдера — это неудачная попытка,
		// заказ остаётся pending и покупатель может повторить оплату.
		w.markFailed(&payment)
		w.logger.WithError(err).WithFields(log.Fields{
			"payment_id": payment.ID,
			"provider":   provider,
		}).Warn("settlement attempt failed")
		return domain.Payment{}, err
	}
	if status != domain.PaymentStatusSucceeded {
		w.markFailed(&payment)
		return domain.Payment{}, domain.ErrPaymentDeclined
	}

	payment.Status = domain.PaymentStatusSucceeded
	if err := w.payments.Save(payment); err != nil {
		return domain.Payment{}, err
	}
	if w.metrics != nil {
		w.metrics.RecordPaymentSucceeded(provider)
	}
	w.emitPaymentEvent(payment, EventPaymentSucceeded)

	if _, err := w.machine.Transition(order.ID, domain.OrderStatusConfirmed, ""); err != nil {
		if errors.Is(err, domain.ErrIllegalTransition) {
			// Конкурирующий confirm успел подтвердить заказ первым: платёж
			// уже записан успешным, дубль вебхука получает no-op успех.
			if latest, readErr := w.orders.Get(order.ID); readErr == nil && latest.Status == domain.OrderStatusConfirmed {
				w.logger.WithFields(log.Fields{
					"order_id":   order.ID,
					"payment_id": payment.ID,
				}).Debug("concurrent duplicate confirmation, order already confirmed")
				return w.payments.Get(payment.ID)
			}
			// Sweep успел отменить заказ: фиксируем проигрыш гонки, но не
			// повторяем переход вслепую.
			w.logger.WithFields(log.Fields{
				"order_id":   order.ID,
				"payment_id": payment.ID,
			}).Warn("late settlement lost race to a concurrent transition")
		}
		return domain.Payment{}, err
	}

	w.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"payment_id":   payment.ID,
		"provider":     provider,
		"amount_minor": payment.AmountMinor,
	}).Info("payment settled, order confirmed")

	return w.payments.Get(payment.ID)
}

func (w *Workflow) markFailed(payment *domain.Payment) {
	payment.Status = domain.PaymentStatusFailed
	if err := w.payments.Save(*payment); err != nil {
		w.logger.WithError(err).WithField("payment_id", payment.ID).Error("failed to persist failed payment")
	}
	if w.metrics != nil {
		w.metrics.RecordPaymentFailed(payment.Provider)
	}
	w.emitPaymentEvent(*payment, EventPaymentFailed)
}

// emitPaymentEvent кладёт событие платежа в outbox. Ошибка постановки
// логируется и никогда не откатывает сам платёж.
func (w *Workflow) emitPaymentEvent(payment domain.Payment, eventType string) {
	if w.outbox == nil {
		return
	}
	data, err := json.Marshal(map[string]interface{}{
		"payment_id":   payment.ID,
		"order_id":     payment.OrderID,
		"provider":     payment.Provider,
		"status":       string(payment.Status),
		"amount_minor": payment.AmountMinor,
	})
	if err != nil {
		w.logger.WithError(err).WithField("payment_id", payment.ID).Error("marshal payment event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "payment",
		AggregateID:   payment.ID,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := w.outbox.Enqueue(msg); err != nil {
		w.logger.WithError(err).WithFields(log.Fields{
			"payment_id": payment.ID,
			"event":      eventType,
		}).Error("enqueue payment event failed")
	}
}

func (w *Workflow) payableOrder(orderID string) (domain.Order, error) {
	order, err := w.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.OrderStatusPending {
		return domain.Order{}, domain.ErrOrderNotPayable
	}
	return order, nil
}

func (w *Workflow) recordPending(order domain.Order, provider, ref string) (domain.Payment, error) {
	payment := domain.Payment{
		OrderID:     order.ID,
		Provider:    provider,
		ProviderRef: ref,
		Status:      domain.PaymentStatusPending,
		AmountMinor: order.AmountMinor,
	}
	if err := w.payments.Create(payment); err != nil {
		return domain.Payment{}, err
	}
	return w.payments.GetByProviderRef(provider, ref)
}

func (w *Workflow) gatewayFor(provider string) (domain.PaymentGateway, error) {
	switch provider {
	case w.intent.Provider():
		return w.intent, nil
	case w.redirect.Provider():
		return w.redirect, nil
	default:
		return nil, domain.ErrGatewayUnavailable
	}
}
