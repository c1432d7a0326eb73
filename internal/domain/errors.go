package domain

import (
	"errors"
	"fmt"
)

// Ошибки класса validation: запрос отклонён до любой мутации состояния.
var (
	// ErrInvalidQuantity — количество позиции меньше единицы.
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	// ErrProductNotFound — каталог не знает такого SKU.
	ErrProductNotFound = errors.New("product not found")
	// ErrCouponNotFound — купон отсутствует, неактивен или вне окна действия.
	ErrCouponNotFound = errors.New("coupon not found or not active")
	// ErrBelowMinimumAmount — сумма корзины меньше минимальной для купона.
	ErrBelowMinimumAmount = errors.New("order subtotal is below coupon minimum amount")
	// ErrCartEmpty — попытка оформить пустую корзину.
	ErrCartEmpty = errors.New("cart contains no items")
	// ErrRefundAmountInvalid — сумма возврата вне диапазона (0, amount].
	ErrRefundAmountInvalid = errors.New("refund amount must be positive and not exceed payment amount")
)

// Ошибки класса conflict: состояние системы не позволяет операцию,
// повтор после обновления данных может пройти.
var (
	// ErrIllegalTransition — переход статуса отсутствует в таблице переходов.
	ErrIllegalTransition = errors.New("illegal order status transition")
	// ErrOrderNotPayable — заказ не в статусе pending, оплата невозможна.
	ErrOrderNotPayable = errors.New("order is not payable")
	// ErrAmountMismatch — сумма к списанию не совпадает с итогом заказа.
	ErrAmountMismatch = errors.New("payment amount does not match order total")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrPaymentRefConflict — платёж с таким (provider, provider_ref) уже существует.
	ErrPaymentRefConflict = errors.New("payment provider reference already recorded")
	// ErrPaymentNotRefundable — возврат возможен только для succeeded платежа.
	ErrPaymentNotRefundable = errors.New("payment is not refundable")
)

// Ошибки отсутствующих сущностей.
var (
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrCartNotFound возвращается, если у покупателя нет активной корзины.
	ErrCartNotFound = errors.New("cart not found")
	// ErrPaymentNotFound возвращается, если платёж не найден.
	ErrPaymentNotFound = errors.New("payment not found")
)

// Ошибки внешнего контура: провайдер недоступен или отклонил операцию.
// Заказ в таких случаях остаётся pending и покупатель может повторить оплату.
var (
	// ErrPaymentDeclined — платёж отклонён провайдером (бизнес-ошибка).
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrGatewayUnavailable — временная ошибка платёжного провайдера.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// Ошибки инвариантов доменных сущностей.
var (
	ErrCustomerRequired        = errors.New("customer_id is required")
	ErrCurrencyRequired        = errors.New("currency is required")
	ErrOrderStatusInvalid      = errors.New("order status is not supported")
	ErrItemsRequired           = errors.New("order must contain at least one item")
	ErrOrderNumberRequired     = errors.New("order_number is required after checkout")
	ErrAmountNegative          = errors.New("amount_minor must be non-negative")
	ErrDiscountNegative        = errors.New("discount_minor must be non-negative")
	ErrDiscountExceedsSubtotal = errors.New("discount exceeds order subtotal")
	ErrAmountMismatchInvariant = errors.New("order amount does not match items sum minus discount")
	ErrItemQtyInvalid          = errors.New("item qty must be greater than zero")
	ErrItemPriceInvalid        = errors.New("item price must be non-negative")
	ErrItemDuplicateSKU        = errors.New("order contains duplicate sku")
	ErrOrderIDRequired         = errors.New("order_id is required")
	ErrPaymentProviderRequired = errors.New("payment provider is required")
	ErrPaymentRefRequired      = errors.New("payment provider reference is required")
	ErrPaymentAmountNegative   = errors.New("payment amount must be non-negative")
	ErrCouponCodeRequired      = errors.New("coupon code is required")
	ErrCouponValueInvalid      = errors.New("coupon value must be positive")
	ErrCouponKindInvalid       = errors.New("coupon kind is not supported")
)

// InsufficientStockError возвращается, когда на складе не хватает товара.
// Содержит SKU и фактическую доступность, чтобы вызывающая сторона могла
// показать покупателю, какую позицию нужно уменьшить.
type InsufficientStockError struct {
	SKU       string
	Requested int32
	Available int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.SKU, e.Requested, e.Available)
}

// StockShortage описывает мягкое предупреждение о нехватке стока.
// Используется корзиной: добавление не блокируется, но checkout не пройдёт.
type StockShortage struct {
	SKU       string
	Requested int32
	Available int32
}

// IsValidation относит ошибку к классу validation (чинится исправлением ввода).
func IsValidation(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrCouponNotFound),
		errors.Is(err, ErrBelowMinimumAmount),
		errors.Is(err, ErrCartEmpty),
		errors.Is(err, ErrRefundAmountInvalid):
		return true
	}
	return false
}

// IsConflict относит ошибку к классу conflict (чинится обновлением состояния и повтором).
func IsConflict(err error) bool {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		return true
	}
	switch {
	case errors.Is(err, ErrIllegalTransition),
		errors.Is(err, ErrOrderNotPayable),
		errors.Is(err, ErrAmountMismatch),
		errors.Is(err, ErrOrderVersionConflict),
		errors.Is(err, ErrPaymentRefConflict),
		errors.Is(err, ErrPaymentNotRefundable):
		return true
	}
	return false
}

// IsNotFound относит ошибку к классу "сущность отсутствует".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrCartNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}
