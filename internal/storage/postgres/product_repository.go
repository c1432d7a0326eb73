package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) Get(sku string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var product domain.Product
	err := r.db.QueryRowContext(ctx, `
		SELECT sku, name, price_minor, stock, updated_at
		FROM products
		WHERE sku = $1
	`, sku).Scan(&product.SKU, &product.Name, &product.PriceMinor, &product.Stock, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}

	return product, nil
}

func (r *productRepository) Upsert(product domain.Product) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO products (sku, name, price_minor, stock, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (sku) DO UPDATE
		SET name = EXCLUDED.name,
		    price_minor = EXCLUDED.price_minor,
		    stock = EXCLUDED.stock,
		    updated_at = EXCLUDED.updated_at
	`, product.SKU, product.Name, product.PriceMinor, product.Stock, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}

	return nil
}

// ReserveStock выполняет условные декременты в одной транзакции:
// UPDATE проходит только если стока хватает, иначе вся транзакция
// откатывается и ни одна позиция не списывается.
func (r *productRepository) ReserveStock(changes []domain.StockChange) error {
	if len(changes) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, change := range changes {
		var res sql.Result
		res, err = tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $2,
			    updated_at = NOW()
			WHERE sku = $1
			  AND stock >= $2
		`, change.SKU, change.Qty)
		if err != nil {
			return fmt.Errorf("reserve stock for %s: %w", change.SKU, err)
		}

		var affected int64
		affected, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			available, lookupErr := r.availableTx(ctx, tx, change.SKU)
			if lookupErr != nil {
				err = lookupErr
				return err
			}
			err = &domain.InsufficientStockError{
				SKU:       change.SKU,
				Requested: change.Qty,
				Available: available,
			}
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit stock reservation: %w", err)
	}

	return nil
}

func (r *productRepository) RestoreStock(changes []domain.StockChange) error {
	if len(changes) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, change := range changes {
		var res sql.Result
		res, err = tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + $2,
			    updated_at = NOW()
			WHERE sku = $1
		`, change.SKU, change.Qty)
		if err != nil {
			return fmt.Errorf("restore stock for %s: %w", change.SKU, err)
		}

		var affected int64
		affected, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			err = domain.ErrProductNotFound
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit stock restore: %w", err)
	}

	return nil
}

func (r *productRepository) availableTx(ctx context.Context, tx *sql.Tx, sku string) (int32, error) {
	var available int32
	err := tx.QueryRowContext(ctx, `SELECT stock FROM products WHERE sku = $1`, sku).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("check product stock: %w", err)
	}
	return available, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
