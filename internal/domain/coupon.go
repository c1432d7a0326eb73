package domain

import (
	"strings"
	"time"
)

// CouponKind описывает тип скидки купона.
type CouponKind string

const (
	// CouponKindFixed — фиксированная скидка в минимальных денежных единицах.
	CouponKindFixed CouponKind = "fixed"
	// CouponKindPercentage — процент от суммы корзины.
	CouponKindPercentage CouponKind = "percentage"
)

// Coupon описывает промокод. Купон не хранит состояние по заказам:
// лимиты использования этим движком не учитываются.
type Coupon struct {
	// Code хранится в канонической форме (trim + upper).
	Code string
	Kind CouponKind
	// Value — сумма в minor units для fixed, процент (0..100] для percentage.
	Value int64
	// MinAmountMinor — минимальная сумма корзины для применения.
	MinAmountMinor int64
	// MaxDiscountMinor ограничивает скидку для percentage-купонов; 0 — без лимита.
	MaxDiscountMinor int64
	StartsAt         time.Time
	EndsAt           time.Time
	CreatedAt        time.Time
}

// CanonicalCouponCode приводит код к канонической форме: обрезает пробелы
// и поднимает регистр. Поиск купона регистронезависимый.
func CanonicalCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ActiveAt сообщает, попадает ли момент now в окно действия купона.
func (c *Coupon) ActiveAt(now time.Time) bool {
	if now.Before(c.StartsAt) {
		return false
	}
	if !c.EndsAt.IsZero() && now.After(c.EndsAt) {
		return false
	}
	return true
}

// Validate проверяет корректность полей купона.
func (c *Coupon) Validate() []error {
	var errs []error

	if c.Code == "" {
		errs = append(errs, ErrCouponCodeRequired)
	}
	switch c.Kind {
	case CouponKindFixed:
		if c.Value <= 0 {
			errs = append(errs, ErrCouponValueInvalid)
		}
	case CouponKindPercentage:
		if c.Value <= 0 || c.Value > 100 {
			errs = append(errs, ErrCouponValueInvalid)
		}
	default:
		errs = append(errs, ErrCouponKindInvalid)
	}

	return errs
}
