package coupon

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Engine валидирует промокоды и считает скидку.
// Расчёт скидки — чистая функция: её можно безопасно дёргать для предпросмотра
// до фиксации купона на заказе.
type Engine struct {
	coupons domain.CouponRepository
	logger  *log.Entry
}

// NewEngine создаёт движок купонов поверх репозитория промокодов.
func NewEngine(coupons domain.CouponRepository, logger *log.Entry) *Engine {
	if logger == nil {
		logger = log.WithField("component", "coupon-engine")
	}
	return &Engine{coupons: coupons, logger: logger}
}

// Validate ищет активный купон по коду и проверяет минимальную сумму корзины.
// Код канонизируется (trim + upper); купон вне окна действия неотличим для
// вызывающей стороны от несуществующего.
func (e *Engine) Validate(code string, subtotalMinor int64, now time.Time) (domain.Coupon, error) {
	canonical := domain.CanonicalCouponCode(code)
	if canonical == "" {
		return domain.Coupon{}, domain.ErrCouponNotFound
	}

	coupon, err := e.coupons.GetByCode(canonical)
	if err != nil {
		return domain.Coupon{}, err
	}
	if !coupon.ActiveAt(now) {
		e.logger.WithFields(log.Fields{
			"code":      canonical,
			"starts_at": coupon.StartsAt,
			"ends_at":   coupon.EndsAt,
		}).Debug("coupon outside active window")
		return domain.Coupon{}, domain.ErrCouponNotFound
	}
	if subtotalMinor < coupon.MinAmountMinor {
		return domain.Coupon{}, domain.ErrBelowMinimumAmount
	}

	return coupon, nil
}

// Discount считает размер скидки для купона и суммы корзины.
// Гарантия: 0 <= discount <= subtotal при любых входных данных.
func Discount(coupon domain.Coupon, subtotalMinor int64) int64 {
	if subtotalMinor <= 0 {
		return 0
	}

	var discount int64
	switch coupon.Kind {
	case domain.CouponKindFixed:
		discount = coupon.Value
	case domain.CouponKindPercentage:
		discount = subtotalMinor * coupon.Value / 100
		if coupon.MaxDiscountMinor > 0 && discount > coupon.MaxDiscountMinor {
			discount = coupon.MaxDiscountMinor
		}
	default:
		return 0
	}

	if discount < 0 {
		return 0
	}
	if discount > subtotalMinor {
		discount = subtotalMinor
	}
	return discount
}
