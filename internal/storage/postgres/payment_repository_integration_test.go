package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func TestPaymentRepositoryIntegration_ProviderRefUnique(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	orders := NewOrderRepository(store)
	repo := NewPaymentRepository(store)

	order := makeIntegrationOrder("cust-1", domain.OrderStatusPending)
	if err := orders.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	payment := domain.Payment{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		Provider:    domain.ProviderStripe,
		ProviderRef: "pi_integration_1",
		Status:      domain.PaymentStatusPending,
		AmountMinor: order.AmountMinor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.Create(payment); err != nil {
		t.Fatalf("create payment: %v", err)
	}

	duplicate := payment
	duplicate.ID = uuid.NewString()
	if err := repo.Create(duplicate); !errors.Is(err, domain.ErrPaymentRefConflict) {
		t.Fatalf("expected ErrPaymentRefConflict, got %v", err)
	}

	// Тот же reference у другого провайдера — отдельный платёж.
	otherProvider := payment
	otherProvider.ID = uuid.NewString()
	otherProvider.Provider = domain.ProviderPayPal
	if err := repo.Create(otherProvider); err != nil {
		t.Fatalf("create payment with other provider: %v", err)
	}
}

func TestPaymentRepositoryIntegration_SaveAndLookup(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	orders := NewOrderRepository(store)
	repo := NewPaymentRepository(store)

	order := makeIntegrationOrder("cust-1", domain.OrderStatusPending)
	if err := orders.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	payment := domain.Payment{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		Provider:    domain.ProviderStripe,
		ProviderRef: "pi_integration_2",
		Status:      domain.PaymentStatusPending,
		AmountMinor: order.AmountMinor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.Create(payment); err != nil {
		t.Fatalf("create payment: %v", err)
	}

	payment.Status = domain.PaymentStatusSucceeded
	payment.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	if err := repo.Save(payment); err != nil {
		t.Fatalf("save payment: %v", err)
	}

	byRef, err := repo.GetByProviderRef(domain.ProviderStripe, "pi_integration_2")
	if err != nil {
		t.Fatalf("get by provider ref: %v", err)
	}
	if byRef.Status != domain.PaymentStatusSucceeded {
		t.Fatalf("status = %s, want succeeded", byRef.Status)
	}

	listed, err := repo.ListByOrder(order.ID)
	if err != nil {
		t.Fatalf("list by order: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != payment.ID {
		t.Fatalf("unexpected payments list: %+v", listed)
	}
}
