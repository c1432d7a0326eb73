package coupon

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

func seedCoupon(t *testing.T, repo domain.CouponRepository, coupon domain.Coupon) {
	t.Helper()
	if err := repo.Upsert(coupon); err != nil {
		t.Fatalf("seed coupon: %v", err)
	}
}

func TestEngineValidate(t *testing.T) {
	now := time.Now().UTC()
	repo := memory.NewCouponRepository()
	seedCoupon(t, repo, domain.Coupon{
		Code:           "SAVE20",
		Kind:           domain.CouponKindFixed,
		Value:          2000,
		MinAmountMinor: 2000,
		StartsAt:       now.Add(-time.Hour),
		EndsAt:         now.Add(time.Hour),
	})

	engine := NewEngine(repo, nil)

	// Поиск регистронезависимый и устойчив к пробелам.
	if _, err := engine.Validate("  save20 ", 2500, now); err != nil {
		t.Fatalf("expected valid coupon, got %v", err)
	}

	if _, err := engine.Validate("NOPE", 2500, now); !errors.Is(err, domain.ErrCouponNotFound) {
		t.Fatalf("expected ErrCouponNotFound, got %v", err)
	}

	if _, err := engine.Validate("SAVE20", 2500, now.Add(2*time.Hour)); !errors.Is(err, domain.ErrCouponNotFound) {
		t.Fatalf("expected expired coupon to read as not found, got %v", err)
	}

	if _, err := engine.Validate("SAVE20", 1999, now); !errors.Is(err, domain.ErrBelowMinimumAmount) {
		t.Fatalf("expected ErrBelowMinimumAmount, got %v", err)
	}

	if _, err := engine.Validate("   ", 2500, now); !errors.Is(err, domain.ErrCouponNotFound) {
		t.Fatalf("expected empty code to read as not found, got %v", err)
	}
}

func TestDiscount(t *testing.T) {
	cases := []struct {
		name     string
		coupon   domain.Coupon
		subtotal int64
		want     int64
	}{
		{
			name:     "fixed below subtotal",
			coupon:   domain.Coupon{Kind: domain.CouponKindFixed, Value: 2000},
			subtotal: 2500,
			want:     2000,
		},
		{
			name:     "fixed capped at subtotal",
			coupon:   domain.Coupon{Kind: domain.CouponKindFixed, Value: 2000},
			subtotal: 1500,
			want:     1500,
		},
		{
			name:     "percentage",
			coupon:   domain.Coupon{Kind: domain.CouponKindPercentage, Value: 10},
			subtotal: 2500,
			want:     250,
		},
		{
			name:     "percentage capped by max discount",
			coupon:   domain.Coupon{Kind: domain.CouponKindPercentage, Value: 50, MaxDiscountMinor: 300},
			subtotal: 2500,
			want:     300,
		},
		{
			name:     "percentage full off capped at subtotal",
			coupon:   domain.Coupon{Kind: domain.CouponKindPercentage, Value: 100},
			subtotal: 2500,
			want:     2500,
		},
		{
			name:     "zero subtotal",
			coupon:   domain.Coupon{Kind: domain.CouponKindFixed, Value: 2000},
			subtotal: 0,
			want:     0,
		},
		{
			name:     "unknown kind",
			coupon:   domain.Coupon{Kind: "bogus", Value: 2000},
			subtotal: 2500,
			want:     0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Discount(tc.coupon, tc.subtotal)
			if got != tc.want {
				t.Fatalf("Discount() = %d, want %d", got, tc.want)
			}
			if got < 0 || got > tc.subtotal {
				t.Fatalf("discount %d outside [0, %d]", got, tc.subtotal)
			}
		})
	}
}

// Скидка остаётся в границах [0, subtotal] на сетке входов — инвариант движка.
func TestDiscountNeverExceedsSubtotal(t *testing.T) {
	coupons := []domain.Coupon{
		{Kind: domain.CouponKindFixed, Value: 1},
		{Kind: domain.CouponKindFixed, Value: 10_000},
		{Kind: domain.CouponKindPercentage, Value: 1},
		{Kind: domain.CouponKindPercentage, Value: 99},
		{Kind: domain.CouponKindPercentage, Value: 100, MaxDiscountMinor: 77},
	}
	subtotals := []int64{0, 1, 99, 100, 2500, 1_000_000}

	for _, coupon := range coupons {
		for _, subtotal := range subtotals {
			got := Discount(coupon, subtotal)
			if got < 0 || got > subtotal {
				t.Fatalf("discount %d outside [0, %d] for %+v", got, subtotal, coupon)
			}
		}
	}
}
