package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// couponRepositoryInMemory — in-memory хранилище промокодов.
// Ключ — канонический код, поэтому поиск регистронезависимый.
type couponRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Coupon
}

// NewCouponRepository возвращает in-memory реализацию CouponRepository.
func NewCouponRepository() domain.CouponRepository {
	return &couponRepositoryInMemory{items: make(map[string]domain.Coupon)}
}

// GetByCode возвращает купон по коду или ErrCouponNotFound.
func (r *couponRepositoryInMemory) GetByCode(code string) (domain.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	coupon, ok := r.items[domain.CanonicalCouponCode(code)]
	if !ok {
		return domain.Coupon{}, domain.ErrCouponNotFound
	}
	return coupon, nil
}

// Upsert создаёт или обновляет купон, канонизируя код.
func (r *couponRepositoryInMemory) Upsert(coupon domain.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	coupon.Code = domain.CanonicalCouponCode(coupon.Code)
	if coupon.Code == "" {
		return domain.ErrCouponCodeRequired
	}
	if coupon.CreatedAt.IsZero() {
		coupon.CreatedAt = time.Now().UTC()
	}
	r.items[coupon.Code] = coupon
	return nil
}

var _ domain.CouponRepository = (*couponRepositoryInMemory)(nil)
