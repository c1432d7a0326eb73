package domain

import "time"

// Product — снимок товара каталога: цена и доступный остаток.
// Каталог — источник истины по стоку; движок меняет Stock только
// через ReserveStock/RestoreStock, привязанные к заказу.
type Product struct {
	SKU        string
	Name       string
	PriceMinor int64
	Stock      int32
	UpdatedAt  time.Time
}

// StockChange — изменение остатка одного товара в рамках заказа.
type StockChange struct {
	SKU string
	Qty int32
}

// StockChangesFor строит список изменений стока по позициям заказа.
func StockChangesFor(items []LineItem) []StockChange {
	changes := make([]StockChange, 0, len(items))
	for _, item := range items {
		changes = append(changes, StockChange{SKU: item.SKU, Qty: item.Qty})
	}
	return changes
}
