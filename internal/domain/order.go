package domain

import "time"

// OrderStatus описывает жизненный цикл заказа в checkout-движке.
type OrderStatus string

const (
	// OrderStatusCart — черновик заказа: изменяемая корзина покупателя.
	OrderStatusCart OrderStatus = "cart"
	// OrderStatusPending — корзина промотирована в заказ, сток зарезервирован, оплата не завершена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — оплата подтверждена платёжным провайдером.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен покупателю (терминальный статус).
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCanceled — заказ отменён до отгрузки (терминальный статус).
	OrderStatusCanceled OrderStatus = "canceled"
)

// orderTransitions — закрытая таблица допустимых переходов статусов.
// Всё, чего нет в таблице, отклоняется с ErrIllegalTransition до любой мутации.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCart:      {OrderStatusPending},
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCanceled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCanceled},
	OrderStatusShipped:   {OrderStatusDelivered},
}

// CanTransition сообщает, разрешён ли переход from → to таблицей переходов.
func CanTransition(from, to OrderStatus) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal сообщает, является ли статус конечным.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusCart, OrderStatusPending, OrderStatusConfirmed,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCanceled:
		return true
	default:
		return false
	}
}

// LineItem представляет одну позицию заказа.
// PriceMinor — снимок цены каталога на момент добавления/обновления позиции;
// он не пересчитывается задним числом при изменении цены в каталоге.
type LineItem struct {
	ID         string
	SKU        string
	Qty        int32
	PriceMinor int64
	CreatedAt  time.Time
}

// SubtotalMinor возвращает стоимость позиции: qty * price.
func (i LineItem) SubtotalMinor() int64 {
	return int64(i.Qty) * i.PriceMinor
}

// AppliedCoupon — денормализованный снимок применённого купона на заказе.
type AppliedCoupon struct {
	Code          string
	DiscountMinor int64
}

// Order агрегирует состояние заказа и его позиции.
// В статусе cart это изменяемая корзина (не более одной на покупателя);
// OrderNumber присваивается один раз при промоции cart → pending.
type Order struct {
	ID            string
	CustomerID    string
	OrderNumber   string
	Status        OrderStatus
	Currency      string
	Items         []LineItem
	DiscountMinor int64
	AmountMinor   int64
	Coupon        *AppliedCoupon
	// StockReleased отмечает, что сток по заказу уже возвращён на склад.
	// Флаг сохраняется вместе с отменой и защищает restore от повторного выполнения.
	StockReleased bool
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SubtotalMinor возвращает сумму позиций без учёта скидки.
func (o *Order) SubtotalMinor() int64 {
	var sum int64
	for _, item := range o.Items {
		sum += item.SubtotalMinor()
	}
	return sum
}

// Recalculate пересчитывает итог заказа из позиций и скидки.
// Вызывается на каждой мутации позиций и при применении купона;
// итог никогда не принимается из клиентского ввода.
func (o *Order) Recalculate() {
	if o.Coupon == nil {
		o.DiscountMinor = 0
	} else {
		o.DiscountMinor = o.Coupon.DiscountMinor
	}
	subtotal := o.SubtotalMinor()
	if o.DiscountMinor > subtotal {
		o.DiscountMinor = subtotal
		if o.Coupon != nil {
			o.Coupon.DiscountMinor = subtotal
		}
	}
	o.AmountMinor = subtotal - o.DiscountMinor
}

// FindItem возвращает позицию по SKU или nil, если её нет.
func (o *Order) FindItem(sku string) *LineItem {
	for idx := range o.Items {
		if o.Items[idx].SKU == sku {
			return &o.Items[idx]
		}
	}
	return nil
}

// RemoveItem удаляет позицию по SKU. Возвращает true, если позиция была.
func (o *Order) RemoveItem(sku string) bool {
	for idx := range o.Items {
		if o.Items[idx].SKU == sku {
			o.Items = append(o.Items[:idx], o.Items[idx+1:]...)
			return true
		}
	}
	return false
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrOrderStatusInvalid)
	}
	if o.Status != OrderStatusCart && len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.Status != OrderStatusCart && o.OrderNumber == "" {
		errs = append(errs, ErrOrderNumberRequired)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if o.DiscountMinor < 0 {
		errs = append(errs, ErrDiscountNegative)
	}

	// Сверяем итог заказа с суммой позиций за вычетом скидки.
	var subtotal int64
	seen := make(map[string]bool, len(o.Items))
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		if seen[item.SKU] {
			errs = append(errs, ErrItemDuplicateSKU)
		}
		seen[item.SKU] = true
		subtotal += item.SubtotalMinor()
	}
	if o.DiscountMinor > subtotal {
		errs = append(errs, ErrDiscountExceedsSubtotal)
	}
	if subtotal-o.DiscountMinor != o.AmountMinor {
		errs = append(errs, ErrAmountMismatchInvariant)
	}

	return errs
}
