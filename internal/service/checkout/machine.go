package checkout

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/service/stock"
)

// Типы событий, публикуемых движком через outbox.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// Machine реализует машину состояний заказа: checkout (cart → pending)
// и дальнейшие переходы по закрытой таблице. Все переходы all-or-nothing:
// проверка таблицы происходит до любой мутации, конфликт версий решается
// перечитыванием и повторной проверкой.
type Machine struct {
	orders   domain.OrderRepository
	ledger   *stock.Ledger
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	logger   *log.Entry
	metrics  *metrics.CheckoutMetrics
	now      func() time.Time
}

// NewMachine создаёт машину состояний заказа.
func NewMachine(
	orders domain.OrderRepository,
	ledger *stock.Ledger,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Machine {
	if logger == nil {
		logger = log.WithField("component", "order-state-machine")
	}
	return &Machine{
		orders:   orders,
		ledger:   ledger,
		outbox:   outbox,
		timeline: timeline,
		logger:   logger,
		metrics:  metrics.NewCheckoutMetrics(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NewMachineWithoutMetrics создаёт машину без метрик (для тестов).
func NewMachineWithoutMetrics(
	orders domain.OrderRepository,
	ledger *stock.Ledger,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Machine {
	m := NewMachine(orders, ledger, outbox, timeline, logger)
	m.metrics = nil
	return m
}

// Checkout промотирует корзину покупателя в pending-заказ.
// Критическая секция: резервирование стока, присвоение номера и сохранение
// статуса. Любая ошибка после резервирования компенсируется возвратом стока,
// так что неудачный checkout оставляет корзину и склад нетронутыми.
func (m *Machine) Checkout(customerID string) (domain.Order, error) {
	start := time.Now()
	if m.metrics != nil {
		m.metrics.RecordCheckoutStarted()
		defer func() {
			m.metrics.RecordCheckoutDuration(time.Since(start))
		}()
	}

	cart, err := m.orders.GetCart(customerID)
	if err != nil {
		return domain.Order{}, m.failCheckout(err)
	}
	if len(cart.Items) == 0 {
		return domain.Order{}, m.failCheckout(domain.ErrCartEmpty)
	}

	if err := m.ledger.Reserve(cart.Items); err != nil {
		return domain.Order{}, m.failCheckout(err)
	}

	cart.Recalculate()
	cart.OrderNumber = m.newOrderNumber()
	cart.Status = domain.OrderStatusPending
	cart.UpdatedAt = m.now()

	if err := m.orders.Save(cart); err != nil {
		// Корзину успел изменить параллельный запрос: откатываем резервацию.
		if restoreErr := m.ledger.Restore(cart.Items); restoreErr != nil {
			m.logger.WithError(restoreErr).WithField("order_id", cart.ID).Error("compensating stock restore failed")
		}
		return domain.Order{}, m.failCheckout(err)
	}

	order, err := m.orders.Get(cart.ID)
	if err != nil {
		return domain.Order{}, err
	}

	if m.metrics != nil {
		m.metrics.RecordCheckoutCompleted()
	}
	m.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"amount_minor": order.AmountMinor,
	}).Info("cart promoted to pending order")

	m.emitEvent(&order, EventOrderCreated, map[string]interface{}{
		"customer_id":  order.CustomerID,
		"order_number": order.OrderNumber,
		"amount_minor": order.AmountMinor,
		"ts":           order.UpdatedAt.Format(time.RFC3339Nano),
	})
	return order, nil
}

// Transition переводит заказ в новый статус по таблице переходов.
// Отмена возвращает сток ровно один раз: флаг StockReleased сохраняется
// вместе со статусом, а restore выполняется только после выигранного
// optimistic-lock сохранения.
func (m *Machine) Transition(orderID string, to domain.OrderStatus, reason string) (domain.Order, error) {
	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		order, err := m.orders.Get(orderID)
		if err != nil {
			return domain.Order{}, err
		}

		if !domain.CanTransition(order.Status, to) {
			m.logger.WithFields(log.Fields{
				"order_id": order.ID,
				"from":     order.Status,
				"to":       to,
			}).Warn("illegal transition rejected")
			return domain.Order{}, domain.ErrIllegalTransition
		}

		restoreStock := to == domain.OrderStatusCanceled && !order.StockReleased
		order.Status = to
		if restoreStock {
			order.StockReleased = true
		}
		order.UpdatedAt = m.now()

		if err := m.orders.Save(order); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxRetries-1 {
				m.logger.WithFields(log.Fields{
					"order_id": order.ID,
					"attempt":  attempt + 1,
					"version":  order.Version,
				}).Warn("version conflict detected, retrying")
				time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			m.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"attempt":  attempt + 1,
			}).Error("failed to persist status")
			return domain.Order{}, err
		}

		// Save выиграл optimistic lock — эта горутина владеет переходом.
		if restoreStock {
			if err := m.ledger.Restore(order.Items); err != nil {
				m.logger.WithError(err).WithField("order_id", order.ID).Error("stock restore after cancel failed")
			}
		}
		if to == domain.OrderStatusCanceled && m.metrics != nil {
			m.metrics.RecordOrderCanceled()
		}

		payload := map[string]interface{}{
			"status": string(to),
			"ts":     order.UpdatedAt.Format(time.RFC3339Nano),
		}
		if reason != "" {
			payload["reason"] = reason
		}
		m.emitEvent(&order, EventOrderStatusChanged, payload)

		return m.orders.Get(order.ID)
	}

	return domain.Order{}, domain.ErrOrderVersionConflict
}

// Cancel отменяет заказ (pending или confirmed) с возвратом стока.
func (m *Machine) Cancel(orderID, reason string) (domain.Order, error) {
	return m.Transition(orderID, domain.OrderStatusCanceled, reason)
}

func (m *Machine) failCheckout(err error) error {
	if m.metrics != nil {
		m.metrics.RecordCheckoutFailed()
	}
	return err
}

// newOrderNumber генерирует номер заказа: дата + фрагмент uuid.
func (m *Machine) newOrderNumber() string {
	fragment := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return m.now().Format("20060102") + "-" + fragment
}

// emitEvent кладёт событие в outbox и timeline. Ошибка доставки логируется
// и никогда не откатывает породивший событие переход.
func (m *Machine) emitEvent(order *domain.Order, eventType string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["order_id"] = order.ID
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := m.outbox.Enqueue(msg); err != nil {
		m.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("enqueue event failed")
	} else if m.metrics != nil {
		m.metrics.RecordOutboxEvent()
	}

	if m.timeline != nil {
		var reason string
		if r, ok := payload["reason"].(string); ok {
			reason = r
		}
		event := domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     eventType,
			Reason:   reason,
			Occurred: order.UpdatedAt,
		}
		if err := m.timeline.Append(event); err != nil {
			m.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"event":    eventType,
			}).Warn("append timeline event failed")
		} else if m.metrics != nil {
			m.metrics.RecordTimelineEvent()
		}
	}
}
