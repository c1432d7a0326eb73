package postgres

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func TestProductRepositoryIntegration_ReserveStockAllOrNothing(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewProductRepository(store)

	seedIntegrationProduct(t, repo, "sku-a", 10)
	seedIntegrationProduct(t, repo, "sku-b", 1)

	err := repo.ReserveStock([]domain.StockChange{
		{SKU: "sku-a", Qty: 3},
		{SKU: "sku-b", Qty: 5},
	})

	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.SKU != "sku-b" || stockErr.Available != 1 {
		t.Fatalf("unexpected shortage details: %+v", stockErr)
	}

	// Транзакция откатилась целиком: sku-a не тронут.
	assertIntegrationStock(t, repo, "sku-a", 10)
	assertIntegrationStock(t, repo, "sku-b", 1)
}

func TestProductRepositoryIntegration_ReserveAndRestore(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewProductRepository(store)

	seedIntegrationProduct(t, repo, "sku-a", 10)

	changes := []domain.StockChange{{SKU: "sku-a", Qty: 4}}
	if err := repo.ReserveStock(changes); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	assertIntegrationStock(t, repo, "sku-a", 6)

	if err := repo.RestoreStock(changes); err != nil {
		t.Fatalf("restore: %v", err)
	}
	assertIntegrationStock(t, repo, "sku-a", 10)
}

func TestProductRepositoryIntegration_ReserveUnknownSKU(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewProductRepository(store)

	err := repo.ReserveStock([]domain.StockChange{{SKU: "no-such", Qty: 1}})
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func seedIntegrationProduct(t *testing.T, repo domain.ProductRepository, sku string, stock int32) {
	t.Helper()
	if err := repo.Upsert(domain.Product{SKU: sku, Name: sku, PriceMinor: 1000, Stock: stock}); err != nil {
		t.Fatalf("seed product %s: %v", sku, err)
	}
}

func assertIntegrationStock(t *testing.T, repo domain.ProductRepository, sku string, want int32) {
	t.Helper()
	product, err := repo.Get(sku)
	if err != nil {
		t.Fatalf("get product %s: %v", sku, err)
	}
	if product.Stock != want {
		t.Fatalf("stock for %s = %d, want %d", sku, product.Stock, want)
	}
}
