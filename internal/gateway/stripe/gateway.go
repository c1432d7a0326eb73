package stripe

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// intent хранит зарегистрированное намерение оплаты.
type intent struct {
	orderID     string
	amountMinor int64
}

// Gateway — локальный детерминированный адаптер intent-протокола
// (карточные сети). Конфигурируемое поведение и счётчики вызовов позволяют
// использовать его в dev-окружении и тестах; продакшен подменяет его
// реальным клиентом за тем же портом.
type Gateway struct {
	// Decline заставляет Confirm возвращать failed (карта отклонена).
	Decline bool
	// Unavailable имитирует сетевую недоступность провайдера.
	Unavailable bool
	// ConfirmHook вызывается внутри Confirm перед возвратом статуса;
	// позволяет смоделировать конкурирующий вебхук в тестах.
	ConfirmHook func()

	CreateCalls  int
	ConfirmCalls int
	RefundCalls  int

	mu      sync.Mutex
	intents map[string]intent
}

// NewGateway возвращает адаптер с успешным сценарием по умолчанию.
func NewGateway() *Gateway {
	return &Gateway{intents: make(map[string]intent)}
}

// Provider возвращает код провайдера.
func (g *Gateway) Provider() string {
	return domain.ProviderStripe
}

// CreateIntent регистрирует намерение оплаты и возвращает provider reference.
func (g *Gateway) CreateIntent(order domain.Order) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.CreateCalls++
	if g.Unavailable {
		return "", domain.ErrGatewayUnavailable
	}

	ref := "pi_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
	g.intents[ref] = intent{orderID: order.ID, amountMinor: order.AmountMinor}
	return ref, nil
}

// Confirm подтверждает ранее созданный intent.
func (g *Gateway) Confirm(providerRef string) (domain.PaymentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ConfirmCalls++
	if g.Unavailable {
		return "", domain.ErrGatewayUnavailable
	}
	if _, ok := g.intents[providerRef]; !ok {
		return "", domain.ErrGatewayUnavailable
	}
	if g.Decline {
		return domain.PaymentStatusFailed, nil
	}
	if g.ConfirmHook != nil {
		g.ConfirmHook()
	}
	return domain.PaymentStatusSucceeded, nil
}

// Refund инициирует возврат по подтверждённому intent.
func (g *Gateway) Refund(providerRef string, amountMinor int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.RefundCalls++
	if g.Unavailable {
		return domain.ErrGatewayUnavailable
	}
	if _, ok := g.intents[providerRef]; !ok {
		return domain.ErrGatewayUnavailable
	}
	return nil
}

var _ domain.IntentGateway = (*Gateway)(nil)
