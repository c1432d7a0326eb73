package kafka

import "time"

// EventType определяет тип события для Notification Dispatcher.
type EventType string

const (
	// События заказа: уведомляют покупателя об изменении статуса,
	// а админов — о появлении нового заказа.
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderStatusChanged EventType = "order.status_changed"

	// События платежей.
	EventTypePaymentSucceeded EventType = "payment.succeeded"
	EventTypePaymentFailed    EventType = "payment.failed"
	EventTypePaymentRefunded  EventType = "payment.refunded"
)

// Topics для Kafka.
const (
	TopicOrderEvents     = "checkout.order.events"
	TopicPaymentEvents   = "checkout.payment.events"
	TopicDeadLetterQueue = "checkout.dlq"
)

// Типы агрегатов в конверте события.
const (
	AggregateOrder   = "order"
	AggregatePayment = "payment"
)

// NotificationEvent — конверт события для Notification Dispatcher.
type NotificationEvent struct {
	EventType  EventType              `json:"event_type"`
	OrderID    string                 `json:"order_id"`
	CustomerID string                 `json:"customer_id,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewNotificationEvent создаёт событие для публикации.
func NewNotificationEvent(eventType EventType, orderID, customerID string, metadata map[string]interface{}) *NotificationEvent {
	return &NotificationEvent{
		EventType:  eventType,
		OrderID:    orderID,
		CustomerID: customerID,
		Timestamp:  time.Now(),
		Metadata:   metadata,
	}
}
