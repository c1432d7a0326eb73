package stock

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Ledger инкапсулирует работу с остатками товара: атомарное резервирование
// при checkout и возврат при отмене. Сам ledger не хранит состояние — все
// гарантии атомарности обеспечивает репозиторий (условный UPDATE в postgres,
// единая блокировка в памяти).
type Ledger struct {
	products domain.ProductRepository
	logger   *log.Entry
}

// NewLedger создаёт ledger поверх репозитория товаров.
func NewLedger(products domain.ProductRepository, logger *log.Entry) *Ledger {
	if logger == nil {
		logger = log.WithField("component", "stock-ledger")
	}
	return &Ledger{products: products, logger: logger}
}

// Reserve списывает остатки под все позиции заказа целиком.
// При нехватке хотя бы одной позиции ничего не списывается и возвращается
// *domain.InsufficientStockError с деталями первой нехватки.
func (l *Ledger) Reserve(items []domain.LineItem) error {
	changes := domain.StockChangesFor(items)
	if len(changes) == 0 {
		return nil
	}

	if err := l.products.ReserveStock(changes); err != nil {
		l.logger.WithError(err).WithField("lines", len(changes)).Warn("stock reservation rejected")
		return err
	}

	l.logger.WithField("lines", len(changes)).Debug("stock reserved")
	return nil
}

// Restore возвращает остатки по позициям заказа. Вызывается ровно один раз
// на заказ: идемпотентность обеспечивает флаг StockReleased на самом заказе.
func (l *Ledger) Restore(items []domain.LineItem) error {
	changes := domain.StockChangesFor(items)
	if len(changes) == 0 {
		return nil
	}

	if err := l.products.RestoreStock(changes); err != nil {
		l.logger.WithError(err).WithField("lines", len(changes)).Error("stock restore failed")
		return err
	}

	l.logger.WithField("lines", len(changes)).Debug("stock restored")
	return nil
}

// Shortages проверяет остатки без списания и возвращает список нехваток.
// Используется для мягких предупреждений при наполнении корзины.
func (l *Ledger) Shortages(items []domain.LineItem) ([]domain.StockShortage, error) {
	var shortages []domain.StockShortage
	for _, change := range domain.StockChangesFor(items) {
		product, err := l.products.Get(change.SKU)
		if err != nil {
			return nil, err
		}
		if product.Stock < change.Qty {
			shortages = append(shortages, domain.StockShortage{
				SKU:       change.SKU,
				Requested: change.Qty,
				Available: product.Stock,
			})
		}
	}
	return shortages, nil
}
