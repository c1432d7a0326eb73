package paypal

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// remoteOrder хранит заказ, созданный на стороне провайдера.
type remoteOrder struct {
	orderID     string
	amountMinor int64
}

// Gateway — локальный детерминированный адаптер redirect-протокола
// (кошельки): создание удалённого заказа с approval URL и последующий capture.
type Gateway struct {
	// Decline заставляет Capture возвращать failed.
	Decline bool
	// Unavailable имитирует сетевую недоступность провайдера.
	Unavailable bool

	CreateCalls  int
	CaptureCalls int
	RefundCalls  int

	mu     sync.Mutex
	orders map[string]remoteOrder
}

// NewGateway возвращает адаптер с успешным сценарием по умолчанию.
func NewGateway() *Gateway {
	return &Gateway{orders: make(map[string]remoteOrder)}
}

// Provider возвращает код провайдера.
func (g *Gateway) Provider() string {
	return domain.ProviderPayPal
}

// CreateRemoteOrder создаёт заказ на стороне провайдера и возвращает
// reference вместе с approval URL для редиректа покупателя.
func (g *Gateway) CreateRemoteOrder(order domain.Order) (string, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.CreateCalls++
	if g.Unavailable {
		return "", "", domain.ErrGatewayUnavailable
	}

	ref := "PAY-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:17])
	g.orders[ref] = remoteOrder{orderID: order.ID, amountMinor: order.AmountMinor}
	return ref, "https://paypal.example/checkoutnow?token=" + ref, nil
}

// Capture списывает средства по одобренному удалённому заказу.
func (g *Gateway) Capture(providerRef string) (domain.PaymentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.CaptureCalls++
	if g.Unavailable {
		return "", domain.ErrGatewayUnavailable
	}
	if _, ok := g.orders[providerRef]; !ok {
		return "", domain.ErrGatewayUnavailable
	}
	if g.Decline {
		return domain.PaymentStatusFailed, nil
	}
	return domain.PaymentStatusSucceeded, nil
}

// Refund инициирует возврат по captured-заказу.
func (g *Gateway) Refund(providerRef string, amountMinor int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.RefundCalls++
	if g.Unavailable {
		return domain.ErrGatewayUnavailable
	}
	if _, ok := g.orders[providerRef]; !ok {
		return domain.ErrGatewayUnavailable
	}
	return nil
}

var _ domain.RedirectGateway = (*Gateway)(nil)
