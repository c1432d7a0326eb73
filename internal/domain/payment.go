package domain

import "time"

// PaymentStatus описывает состояние платежа в системе.
type PaymentStatus string

const (
	// PaymentStatusPending — платёж инициирован, но не подтверждён.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusSucceeded — провайдер подтвердил списание.
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	// PaymentStatusFailed — провайдер отклонил платёж или произошла ошибка.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded — деньги возвращены клиенту.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Платёжные провайдеры, известные движку. Конкретные адаптеры подключаются
// через порты IntentGateway/RedirectGateway, бизнес-логика по именам не ветвится.
const (
	ProviderStripe = "stripe"
	ProviderPayPal = "paypal"
)

// Payment описывает платёж, связанный с заказом.
// Пара (Provider, ProviderRef) уникальна — это якорь идемпотентности
// для повторных confirm/capture вызовов и дублей webhook-ов.
type Payment struct {
	ID          string
	OrderID     string
	Provider    string
	ProviderRef string
	Status      PaymentStatus
	AmountMinor int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate проверяет корректность полей платежа и возвращает ошибки, если они есть.
func (p *Payment) Validate() []error {
	var errs []error

	if p.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if p.Provider == "" {
		errs = append(errs, ErrPaymentProviderRequired)
	}
	if p.ProviderRef == "" {
		errs = append(errs, ErrPaymentRefRequired)
	}
	if p.AmountMinor < 0 {
		errs = append(errs, ErrPaymentAmountNegative)
	}

	return errs
}
