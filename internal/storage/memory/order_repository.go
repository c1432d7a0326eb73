package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// orderRepositoryInMemory — простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Order
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items: make(map[string]domain.Order),
	}
}

// Create сохраняет новый заказ, если ID ещё не занят.
// Вторая корзина одного покупателя отклоняется: инвариант
// "не более одного заказа в статусе cart на customer_id".
func (r *orderRepositoryInMemory) Create(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	if order.Status == domain.OrderStatusCart {
		for _, existing := range r.items {
			if existing.CustomerID == order.CustomerID && existing.Status == domain.OrderStatusCart {
				return domain.ErrOrderVersionConflict
			}
		}
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[order.ID] = cloneOrder(order)
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// GetCart возвращает корзину покупателя или ErrCartNotFound.
func (r *orderRepositoryInMemory) GetCart(customerID string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, order := range r.items {
		if order.CustomerID == customerID && order.Status == domain.OrderStatusCart {
			return cloneOrder(order), nil
		}
	}
	return domain.Order{}, domain.ErrCartNotFound
}

// ListByCustomer возвращает заказы клиента, ограничивая выборку limit (если >0).
// Корзина в выдачу не попадает: это ещё не заказ.
func (r *orderRepositoryInMemory) ListByCustomer(customerID string, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if order.CustomerID != customerID || order.Status == domain.OrderStatusCart {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// ListPendingBefore возвращает pending-заказы, обновлённые раньше cutoff.
func (r *orderRepositoryInMemory) ListPendingBefore(cutoff time.Time, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range r.items {
		if order.Status != domain.OrderStatusPending {
			continue
		}
		if !order.UpdatedAt.Before(cutoff) {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepositoryInMemory) Save(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	// Инкрементируем версию перед сохранением.
	order.Version++
	r.items[order.ID] = cloneOrder(order)
	return nil
}

// cloneOrder делает глубокую копию заказа: позиции и купон не должны
// разделять память с записью в репозитории.
func cloneOrder(order domain.Order) domain.Order {
	cp := order
	cp.Items = make([]domain.LineItem, len(order.Items))
	copy(cp.Items, order.Items)
	if order.Coupon != nil {
		coupon := *order.Coupon
		cp.Coupon = &coupon
	}
	return cp
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
