package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// productRepositoryInMemory — in-memory каталог с условным списанием стока.
// Один mutex на весь каталог делает ReserveStock атомарным сразу по всем
// позициям: либо проходят все декременты, либо ни один.
type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Product
}

// NewProductRepository возвращает in-memory реализацию ProductRepository.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{items: make(map[string]domain.Product)}
}

// Get возвращает снимок товара или ErrProductNotFound.
func (r *productRepositoryInMemory) Get(sku string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[sku]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// Upsert создаёт или обновляет товар каталога.
func (r *productRepositoryInMemory) Upsert(product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product.UpdatedAt = time.Now().UTC()
	r.items[product.SKU] = product
	return nil
}

// ReserveStock проверяет и списывает сток по всем позициям под одним lock.
// Проверка и декремент не разнесены: два конкурентных checkout на последний
// экземпляр товара не могут пройти оба.
func (r *productRepositoryInMemory) ReserveStock(changes []domain.StockChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, change := range changes {
		product, ok := r.items[change.SKU]
		if !ok {
			return domain.ErrProductNotFound
		}
		if product.Stock < change.Qty {
			return &domain.InsufficientStockError{
				SKU:       change.SKU,
				Requested: change.Qty,
				Available: product.Stock,
			}
		}
	}

	now := time.Now().UTC()
	for _, change := range changes {
		product := r.items[change.SKU]
		product.Stock -= change.Qty
		product.UpdatedAt = now
		r.items[change.SKU] = product
	}
	return nil
}

// RestoreStock возвращает сток по позициям отменённого заказа.
func (r *productRepositoryInMemory) RestoreStock(changes []domain.StockChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for _, change := range changes {
		product, ok := r.items[change.SKU]
		if !ok {
			return domain.ErrProductNotFound
		}
		product.Stock += change.Qty
		product.UpdatedAt = now
		r.items[change.SKU] = product
	}
	return nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
