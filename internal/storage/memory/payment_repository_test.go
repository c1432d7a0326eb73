package memory

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func TestPaymentRepository_ProviderRefUnique(t *testing.T) {
	repo := NewPaymentRepository()

	first := domain.Payment{
		OrderID:     "order-1",
		Provider:    domain.ProviderStripe,
		ProviderRef: "pi_123",
		Status:      domain.PaymentStatusPending,
		AmountMinor: 2500,
	}
	if err := repo.Create(first); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := first
	dup.OrderID = "order-2"
	if err := repo.Create(dup); !errors.Is(err, domain.ErrPaymentRefConflict) {
		t.Fatalf("expected ErrPaymentRefConflict, got %v", err)
	}

	// Та же ссылка у другого провайдера — не конфликт.
	other := first
	other.Provider = domain.ProviderPayPal
	if err := repo.Create(other); err != nil {
		t.Fatalf("create with other provider: %v", err)
	}
}

func TestPaymentRepository_GetByProviderRef(t *testing.T) {
	repo := NewPaymentRepository()

	payment := domain.Payment{
		OrderID:     "order-1",
		Provider:    domain.ProviderPayPal,
		ProviderRef: "PAY-42",
		Status:      domain.PaymentStatusPending,
		AmountMinor: 900,
	}
	if err := repo.Create(payment); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetByProviderRef(domain.ProviderPayPal, "PAY-42")
	if err != nil {
		t.Fatalf("get by ref: %v", err)
	}
	if got.OrderID != "order-1" || got.ID == "" {
		t.Fatalf("unexpected payment: %+v", got)
	}

	if _, err := repo.GetByProviderRef(domain.ProviderStripe, "PAY-42"); !errors.Is(err, domain.ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}

func TestPaymentRepository_SaveAndListByOrder(t *testing.T) {
	repo := NewPaymentRepository()

	for _, ref := range []string{"pi_1", "pi_2"} {
		err := repo.Create(domain.Payment{
			OrderID:     "order-1",
			Provider:    domain.ProviderStripe,
			ProviderRef: ref,
			Status:      domain.PaymentStatusPending,
			AmountMinor: 100,
		})
		if err != nil {
			t.Fatalf("create %s: %v", ref, err)
		}
	}

	payments, err := repo.ListByOrder("order-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(payments))
	}

	payments[0].Status = domain.PaymentStatusSucceeded
	if err := repo.Save(payments[0]); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.Get(payments[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.PaymentStatusSucceeded {
		t.Fatalf("expected succeeded, got %s", got.Status)
	}

	if err := repo.Save(domain.Payment{ID: "missing"}); !errors.Is(err, domain.ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}
