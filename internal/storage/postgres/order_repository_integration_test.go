package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func makeIntegrationOrder(customerID string, status domain.OrderStatus) domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	order := domain.Order{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Status:     status,
		Currency:   "USD",
		Items: []domain.LineItem{
			{ID: uuid.NewString(), SKU: "sku-a", Qty: 2, PriceMinor: 1000, CreatedAt: now},
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if status != domain.OrderStatusCart {
		order.OrderNumber = "20260831-TESTTEST"
	}
	order.Recalculate()
	return order
}

func TestOrderRepositoryIntegration_CreateAndGet(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	order := makeIntegrationOrder("cust-1", domain.OrderStatusPending)
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	loaded, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if loaded.Status != domain.OrderStatusPending || loaded.AmountMinor != 2000 {
		t.Fatalf("unexpected loaded order: %+v", loaded)
	}
	if len(loaded.Items) != 1 || loaded.Items[0].SKU != "sku-a" {
		t.Fatalf("unexpected items: %+v", loaded.Items)
	}
}

func TestOrderRepositoryIntegration_SingleCartPerCustomer(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	first := makeIntegrationOrder("cust-1", domain.OrderStatusCart)
	if err := repo.Create(first); err != nil {
		t.Fatalf("create first cart: %v", err)
	}

	second := makeIntegrationOrder("cust-1", domain.OrderStatusCart)
	if err := repo.Create(second); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected conflict for second cart, got %v", err)
	}

	cart, err := repo.GetCart("cust-1")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if cart.ID != first.ID {
		t.Fatalf("cart id = %s, want %s", cart.ID, first.ID)
	}
}

func TestOrderRepositoryIntegration_SaveOptimisticLocking(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	order := makeIntegrationOrder("cust-1", domain.OrderStatusPending)
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	fresh, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}

	fresh.Status = domain.OrderStatusConfirmed
	if err := repo.Save(fresh); err != nil {
		t.Fatalf("first save: %v", err)
	}

	// Сохранение с устаревшей версией отклоняется.
	stale := fresh
	stale.Status = domain.OrderStatusCanceled
	if err := repo.Save(stale); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	reloaded, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if reloaded.Status != domain.OrderStatusConfirmed {
		t.Fatalf("status = %s, want confirmed", reloaded.Status)
	}
	if reloaded.Version != fresh.Version+1 {
		t.Fatalf("version = %d, want %d", reloaded.Version, fresh.Version+1)
	}
}

func TestOrderRepositoryIntegration_ListPendingBefore(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	stale := makeIntegrationOrder("cust-1", domain.OrderStatusPending)
	stale.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	stale.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	if err := repo.Create(stale); err != nil {
		t.Fatalf("create stale order: %v", err)
	}

	fresh := makeIntegrationOrder("cust-2", domain.OrderStatusPending)
	if err := repo.Create(fresh); err != nil {
		t.Fatalf("create fresh order: %v", err)
	}

	pending, err := repo.ListPendingBefore(time.Now().UTC().Add(-30*time.Minute), 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != stale.ID {
		t.Fatalf("expected only the stale order, got %+v", pending)
	}
}

// Корзина может жить сколько угодно до checkout: окно ожидания оплаты
// отсчитывается от момента промоции (updated_at), а не от created_at корзины.
func TestOrderRepositoryIntegration_ListPendingBeforeUsesPromotionTime(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	justPromoted := makeIntegrationOrder("cust-1", domain.OrderStatusPending)
	justPromoted.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	if err := repo.Create(justPromoted); err != nil {
		t.Fatalf("create order: %v", err)
	}

	pending, err := repo.ListPendingBefore(time.Now().UTC().Add(-30*time.Minute), 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("freshly promoted order must not be swept, got %+v", pending)
	}
}

func TestOrderRepositoryIntegration_CouponRoundTrip(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	order := makeIntegrationOrder("cust-1", domain.OrderStatusCart)
	order.Coupon = &domain.AppliedCoupon{Code: "SAVE20", DiscountMinor: 500}
	order.Recalculate()
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	loaded, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if loaded.Coupon == nil || loaded.Coupon.Code != "SAVE20" || loaded.Coupon.DiscountMinor != 500 {
		t.Fatalf("unexpected coupon: %+v", loaded.Coupon)
	}
	if loaded.AmountMinor != 1500 {
		t.Fatalf("amount = %d, want 1500", loaded.AmountMinor)
	}
}
