package domain

import "time"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// GetCart возвращает корзину покупателя (единственный заказ в статусе cart)
	// или ErrCartNotFound. Инвариант "не более одной корзины" обеспечивает хранилище.
	GetCart(customerID string) (Order, error)
	// ListByCustomer возвращает заказы клиента с опциональным ограничением на количество.
	ListByCustomer(customerID string, limit int) ([]Order, error)
	// ListPendingBefore возвращает pending-заказы, созданные раньше cutoff.
	// Используется sweep-воркером для отмены зависших заказов.
	ListPendingBefore(cutoff time.Time, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
}

// ProductRepository — хранилище каталога и единственная точка мутации стока.
type ProductRepository interface {
	// Get возвращает снимок товара или ErrProductNotFound.
	Get(sku string) (Product, error)
	// Upsert создаёт или обновляет товар каталога.
	Upsert(product Product) error
	// ReserveStock атомарно проверяет и списывает сток по всем позициям:
	// либо все условные декременты проходят, либо ни один
	// (первый отказ возвращается как *InsufficientStockError).
	ReserveStock(changes []StockChange) error
	// RestoreStock возвращает сток по позициям отменённого заказа.
	RestoreStock(changes []StockChange) error
}

// CouponRepository описывает хранилище промокодов.
type CouponRepository interface {
	// GetByCode возвращает купон по каноническому коду или ErrCouponNotFound.
	GetByCode(code string) (Coupon, error)
	// Upsert создаёт или обновляет купон.
	Upsert(coupon Coupon) error
}

// PaymentRepository описывает хранилище платежей.
type PaymentRepository interface {
	// Create сохраняет платёж; дубликат (provider, provider_ref)
	// отклоняется с ErrPaymentRefConflict — это точка сериализации
	// для повторных confirm/capture.
	Create(payment Payment) error
	// Get возвращает платёж по идентификатору или ErrPaymentNotFound.
	Get(id string) (Payment, error)
	// GetByProviderRef возвращает платёж по паре (provider, provider_ref).
	GetByProviderRef(provider, providerRef string) (Payment, error)
	// ListByOrder возвращает платежи заказа в порядке создания.
	ListByOrder(orderID string) ([]Payment, error)
	// Save обновляет статус существующего платежа.
	Save(payment Payment) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}
