package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type couponRepository struct {
	db *sql.DB
}

// NewCouponRepository создаёт PostgreSQL-реализацию CouponRepository.
func NewCouponRepository(store *Store) domain.CouponRepository {
	return &couponRepository{db: store.DB()}
}

func (r *couponRepository) GetByCode(code string) (domain.Coupon, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		coupon domain.Coupon
		kind   string
		endsAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT code, kind, value, min_amount_minor, max_discount_minor, starts_at, ends_at, created_at
		FROM coupons
		WHERE code = $1
	`, domain.CanonicalCouponCode(code)).Scan(
		&coupon.Code, &kind, &coupon.Value,
		&coupon.MinAmountMinor, &coupon.MaxDiscountMinor,
		&coupon.StartsAt, &endsAt, &coupon.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Coupon{}, domain.ErrCouponNotFound
		}
		return domain.Coupon{}, fmt.Errorf("select coupon: %w", err)
	}

	coupon.Kind = domain.CouponKind(kind)
	if endsAt.Valid {
		coupon.EndsAt = endsAt.Time.UTC()
	}

	return coupon, nil
}

func (r *couponRepository) Upsert(coupon domain.Coupon) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var endsAt sql.NullTime
	if !coupon.EndsAt.IsZero() {
		endsAt = sql.NullTime{Time: coupon.EndsAt, Valid: true}
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO coupons (code, kind, value, min_amount_minor, max_discount_minor, starts_at, ends_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (code) DO UPDATE
		SET kind = EXCLUDED.kind,
		    value = EXCLUDED.value,
		    min_amount_minor = EXCLUDED.min_amount_minor,
		    max_discount_minor = EXCLUDED.max_discount_minor,
		    starts_at = EXCLUDED.starts_at,
		    ends_at = EXCLUDED.ends_at
	`,
		domain.CanonicalCouponCode(coupon.Code), string(coupon.Kind), coupon.Value,
		coupon.MinAmountMinor, coupon.MaxDiscountMinor,
		coupon.StartsAt, endsAt, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("upsert coupon: %w", err)
	}

	return nil
}

var _ domain.CouponRepository = (*couponRepository)(nil)
