package settlement

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/gateway/paypal"
	"github.com/vladislavdragonenkov/checkout/internal/gateway/stripe"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
	"github.com/vladislavdragonenkov/checkout/internal/service/stock"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

type fixture struct {
	workflow *Workflow
	machine  *checkout.Machine
	orders   domain.OrderRepository
	payments domain.PaymentRepository
	products domain.ProductRepository
	outbox   domain.OutboxRepository
	stripe   *stripe.Gateway
	paypal   *paypal.Gateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	orders := memory.NewOrderRepository()
	products := memory.NewProductRepository()
	payments := memory.NewPaymentRepository()
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()

	if err := products.Upsert(domain.Product{SKU: "product-a", Name: "Product A", PriceMinor: 1000, Stock: 10}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	ledger := stock.NewLedger(products, nil)
	machine := checkout.NewMachineWithoutMetrics(orders, ledger, outbox, timeline, nil)

	stripeGw := stripe.NewGateway()
	paypalGw := paypal.NewGateway()

	return &fixture{
		workflow: NewWorkflowWithoutMetrics(orders, payments, outbox, machine, stripeGw, paypalGw, nil),
		machine:  machine,
		orders:   orders,
		payments: payments,
		products: products,
		outbox:   outbox,
		stripe:   stripeGw,
		paypal:   paypalGw,
	}
}

// seedPendingOrder создаёт pending-заказ на 2500 через полноценный checkout.
func (f *fixture) seedPendingOrder(t *testing.T) domain.Order {
	t.Helper()

	now := time.Now().UTC()
	cart := domain.Order{
		ID:         uuid.NewString(),
		CustomerID: "customer-1",
		Status:     domain.OrderStatusCart,
		Currency:   "USD",
		Items: []domain.LineItem{
			{ID: uuid.NewString(), SKU: "product-a", Qty: 1, PriceMinor: 2500, CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	cart.Recalculate()
	if err := f.orders.Create(cart); err != nil {
		t.Fatalf("seed cart: %v", err)
	}

	order, err := f.machine.Checkout("customer-1")
	if err != nil {
		t.Fatalf("seed checkout: %v", err)
	}
	return order
}

func TestCreateIntentAndConfirm(t *testing.T) {
	f := newFixture(t)
	order := f.seedPendingOrder(t)

	payment, err := f.workflow.CreateIntent(order.ID)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if payment.Status != domain.PaymentStatusPending || payment.AmountMinor != order.AmountMinor {
		t.Fatalf("unexpected payment: %+v", payment)
	}

	settled, err := f.workflow.Confirm(payment.ProviderRef)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if settled.Status != domain.PaymentStatusSucceeded {
		t.Fatalf("status = %s, want succeeded", settled.Status)
	}

	got, _ := f.orders.Get(order.ID)
	if got.Status != domain.OrderStatusConfirmed {
		t.Fatalf("order status = %s, want confirmed", got.Status)
	}
}

func TestCreateRemoteOrderAndCapture(t *testing.T) {
	f := newFixture(t)
	order := f.seedPendingOrder(t)

	payment, approvalURL, err := f.workflow.CreateRemoteOrder(order.ID)
	if err != nil {
		t.Fatalf("create remote order: %v", err)
	}
	if approvalURL == "" {
		t.Fatal("expected approval url")
	}
	if payment.Provider != domain.ProviderPayPal {
		t.Fatalf("provider = %s, want paypal", payment.Provider)
	}

	settled, err := f.workflow.Capture(payment.ProviderRef)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if settled.Status != domain.PaymentStatusSucceeded {
		t.Fatalf("status = %s, want succeeded", settled.Status)
	}

	got, _ := f.orders.Get(order.ID)
	if got.Status != domain.OrderStatusConfirmed {
		t.Fatalf("order status = %s, want confirmed", got.Status)
	}
}

func TestCreateIntent_OrderNotPayable(t *testing.T) {
	f := newFixture(t)
	order := f.seedPendingOrder(t)

	if _, err := f.machine.Cancel(order.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := f.workflow.CreateIntent(order.ID); !errors.Is(err, domain.ErrOrderNotPayable) {
		t.Fatalf("expected ErrOrderNotPayable, got %v", err)
	}
}

func TestConfirm_AmountMismatch(t *testing.T) {
	f := newFixture(t)
	order := f.seedPendingOrder(t)

	payment, err := f.workflow.CreateIntent(order.ID)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	// Итог заказа меняется после создания intent (например, применён купон).
	mutated, _ := f.orders.Get(order.ID)
	mutated.DiscountMinor = 500
	mutated.AmountMinor = mutated.SubtotalMinor() - 500
	if err := f.orders.Save(mutated); err != nil {
		t.Fatalf("mutate order: %v", err)
	}

	if _, err := f.workflow.Confirm(payment.ProviderRef); !errors.Is(err, domain.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
}

// Идемпотентность settlement: повторный confirm после успеха — no-op,
// заказ не переводится повторно и дубликат платежа не появляется.
func TestConfirm_IdempotentDuplicate(t *testing.T) {
	f := newFixture(t)
	order := f.seedPendingOrder(t)

	payment, err := f.workflow.CreateIntent(order.ID)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	first, err := f.workflow.Confirm(payment.ProviderRef)
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	confirmCallsAfterFirst := f.stripe.ConfirmCalls

	second, err := f.workflow.Confirm(payment.ProviderRef)
	if err != nil {
		t.Fatalf("duplicate confirm: %v", err)
	}
	if second.ID != first.ID || second.Status != domain.PaymentStatusSucceeded {
		t.Fatalf("duplicate confirm must return the same payment, got %+v", second)
	}

	// Провайдер повторно не вызывается.
	if f.stripe.ConfirmCalls != confirmCallsAfterFirst {
		t.Fatalf("duplicate confirm must not hit the provider again")
	}

	payments, _ := f.payments.ListByOrder(order.ID)
	if len(payments) != 1 {
		t.Fatalf("expected exactly one payment row, got %d", len(payments))
	}

	got, _ := f.orders.Get(order.ID)
	if got.Status != domain.OrderStatusConfirmed {
		t.Fatalf("order status = %s, want confirmed", got.Status)
	}
}

// Два вебхука confirm в полёте одновременно: оба проходят идемпотентную
// проверку до записи успеха, проигравший переход получает no-op успех,
// а не ошибку, и заказ подтверждается ровно один раз.
func TestConfirm_ConcurrentDuplicateIsNoOp(t *testing.T) {
	f := newFixture(t)
	order := f.seedPendingOrder(t)

	payment, err := f.workflow.CreateIntent(order.ID)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	// Конкурент завершает settlement, пока наш вызов ждёт провайдера.
	f.stripe.ConfirmHook = func() {
		f.stripe.ConfirmHook = nil
		winner, err := f.payments.GetByProviderRef(domain.ProviderStripe, payment.ProviderRef)
		if err != nil {
			t.Fatalf("winner payment: %v", err)
		}
		winner.Status = domain.PaymentStatusSucceeded
		if err := f.payments.Save(winner); err != nil {
			t.Fatalf("winner save: %v", err)
		}
		if _, err := f.machine.Transition(order.ID, domain.OrderStatusConfirmed, ""); err != nil {
			t.Fatalf("winner transition: %v", err)
		}
	}

	settled, err := f.workflow.Confirm(payment.ProviderRef)
	if err != nil {
		t.Fatalf("losing confirm must be a no-op success, got %v", err)
	}
	if settled.Status != domain.PaymentStatusSucceeded {
		t.Fatalf("status = %s, want succeeded", settled.Status)
	}

	got, _ := f.orders.Get(order.ID)
	if got.Status != domain.OrderStatusConfirmed {
		t.Fatalf("order status = %s, want confirmed", got.Status)
	}

	payments, _ := f.payments.ListByOrder(order.ID)
	if len(payments) != 1 {
		t.Fatalf("expected exactly one payment row, got %d", len(payments))
	}
}

// Сценарий: карта отклонена, заказ остаётся pending со списанным стоком,
// повторная оплата через redirect-провайдера проходит.
func TestDeclinedThenRetryWithOtherProvider(t *testing.T) {
	f := newFixture(t)
	order := f.seedPendingOrder(t)
	f.stripe.Decline = true

	payment, err := f.workflow.CreateIntent(order.ID)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if _, err := f.workflow.Confirm(payment.ProviderRef); !errors.Is(err, domain.ErrPaymentDeclined) {
		t.Fatalf("expected ErrPaymentDeclined, got %v", err)
	}

	// Заказ остаётся pending, сток остаётся списанным.
	got, _ := f.orders.Get(order.ID)
	if got.Status != domain.OrderStatusPending {
		t.Fatalf("declined payment must leave order pending, got %s", got.Status)
	}
	product, _ := f.products.Get("product-a")
	if product.Stock != 9 {
		t.Fatalf("stock must stay reserved during retries, got %d", product.Stock)
	}

	failed, _ := f.payments.GetByProviderRef(domain.ProviderStripe, payment.ProviderRef)
	if failed.Status != domain.PaymentStatusFailed {
		t.Fatalf("expected failed payment row, got %s", failed.Status)
	}

	// Повтор через PayPal.
	retry, _, err := f.workflow.CreateRemoteOrder(order.ID)
	if err != nil {
		t.Fatalf("create remote order: %v", err)
	}
	if _, err := f.workflow.Capture(retry.ProviderRef); err != nil {
		t.Fatalf("capture: %v", err)
	}

	got, _ = f.orders.Get(order.ID)
	if got.Status != domain.OrderStatusConfirmed {
		t.Fatalf("order status = %s, want confirmed", got.Status)
	}

	succeeded := 0
	payments, _ := f.payments.ListByOrder(order.ID)
	for _, p := range payments {
		if p.Status == domain.PaymentStatusSucceeded {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one succeeded payment, got %d", succeeded)
	}
}

func TestConfirm_GatewayUnavailable(t *testing.T) {
	f := newFixture(t)
	order := f.seedPendingOrder(t)

	payment, err := f.workflow.CreateIntent(order.ID)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	f.stripe.Unavailable = true
	if _, err := f.workflow.Confirm(payment.ProviderRef); !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}

	// Неоднозначный ответ провайдера никогда не подтверждает заказ.
	got, _ := f.orders.Get(order.ID)
	if got.Status != domain.OrderStatusPending {
		t.Fatalf("order status = %s, want pending", got.Status)
	}
}

// Гонка sweep против позднего подтверждения: заказ уже отменён,
// подтверждение проигрывает с ErrIllegalTransition.
func TestConfirm_LosesRaceToCancel(t *testing.T) {
	f := newFixture(t)
	order := f.seedPendingOrder(t)

	payment, err := f.workflow.CreateIntent(order.ID)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if _, err := f.machine.Cancel(order.ID, "payment window expired"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := f.workflow.Confirm(payment.ProviderRef); !errors.Is(err, domain.ErrOrderNotPayable) {
		t.Fatalf("expected ErrOrderNotPayable, got %v", err)
	}

	got, _ := f.orders.Get(order.ID)
	if got.Status != domain.OrderStatusCanceled {
		t.Fatalf("order status = %s, want canceled", got.Status)
	}
}

// Workflow публикует события платежей через outbox: отклонение, успех
// и возврат оставляют по сообщению payment-агрегата для диспетчера уведомлений.
func TestSettlementEmitsPaymentEvents(t *testing.T) {
	f := newFixture(t)
	order := f.seedPendingOrder(t)

	f.stripe.Decline = true
	declined, err := f.workflow.CreateIntent(order.ID)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if _, err := f.workflow.Confirm(declined.ProviderRef); !errors.Is(err, domain.ErrPaymentDeclined) {
		t.Fatalf("expected ErrPaymentDeclined, got %v", err)
	}

	f.stripe.Decline = false
	payment, err := f.workflow.CreateIntent(order.ID)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	settled, err := f.workflow.Confirm(payment.ProviderRef)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := f.workflow.Refund(settled.ID, settled.AmountMinor); err != nil {
		t.Fatalf("refund: %v", err)
	}

	pending, err := f.outbox.PullPending(100)
	if err != nil {
		t.Fatalf("pull outbox: %v", err)
	}

	seen := map[string]int{}
	for _, msg := range pending {
		if msg.AggregateType != "payment" {
			continue
		}
		seen[msg.EventType]++
	}
	for _, want := range []string{EventPaymentFailed, EventPaymentSucceeded, EventPaymentRefunded} {
		if seen[want] != 1 {
			t.Fatalf("expected exactly one %s event, got %d (all: %v)", want, seen[want], seen)
		}
	}
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	order := f.seedPendingOrder(t)

	payment, err := f.workflow.CreateIntent(order.ID)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	// Возврат до успеха невозможен.
	if _, err := f.workflow.Refund(payment.ID, payment.AmountMinor); !errors.Is(err, domain.ErrPaymentNotRefundable) {
		t.Fatalf("expected ErrPaymentNotRefundable, got %v", err)
	}

	settled, err := f.workflow.Confirm(payment.ProviderRef)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// Сумма возврата вне диапазона.
	if _, err := f.workflow.Refund(settled.ID, 0); !errors.Is(err, domain.ErrRefundAmountInvalid) {
		t.Fatalf("expected ErrRefundAmountInvalid, got %v", err)
	}
	if _, err := f.workflow.Refund(settled.ID, settled.AmountMinor+1); !errors.Is(err, domain.ErrRefundAmountInvalid) {
		t.Fatalf("expected ErrRefundAmountInvalid, got %v", err)
	}

	refunded, err := f.workflow.Refund(settled.ID, settled.AmountMinor)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != domain.PaymentStatusRefunded {
		t.Fatalf("status = %s, want refunded", refunded.Status)
	}

	// Возврат сам по себе не переводит заказ.
	got, _ := f.orders.Get(order.ID)
	if got.Status != domain.OrderStatusConfirmed {
		t.Fatalf("refund must not transition the order, got %s", got.Status)
	}
}
