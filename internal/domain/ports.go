package domain

import "time"

// PaymentGateway — общая часть адаптеров платёжных провайдеров.
type PaymentGateway interface {
	// Provider возвращает код провайдера ("stripe", "paypal", ...).
	Provider() string
	// Refund инициирует возврат средств по ранее успешному платежу.
	Refund(providerRef string, amountMinor int64) error
}

// IntentGateway — адаптер провайдера с intent/confirm протоколом (карточные сети).
type IntentGateway interface {
	PaymentGateway
	// CreateIntent регистрирует намерение оплаты и возвращает provider reference.
	CreateIntent(order Order) (providerRef string, err error)
	// Confirm подтверждает intent; возвращает итоговый статус платежа у провайдера.
	Confirm(providerRef string) (PaymentStatus, error)
}

// RedirectGateway — адаптер провайдера с redirect/capture протоколом (кошельки).
type RedirectGateway interface {
	PaymentGateway
	// CreateRemoteOrder создаёт заказ на стороне провайдера и возвращает URL одобрения.
	CreateRemoteOrder(order Order) (providerRef, approvalURL string, err error)
	// Capture списывает средства по одобренному заказу провайдера.
	Capture(providerRef string) (PaymentStatus, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxMessage хранит данные для публикуемого события.
// Диспетчер уведомлений потребляет эти события асинхронно; ошибка доставки
// никогда не откатывает породивший событие переход.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
