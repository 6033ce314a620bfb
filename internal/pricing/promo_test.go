package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ridecore/internal/domain"
)

func fixedClock(now time.Time) PromoOption {
	return WithClock(func() time.Time { return now })
}

func basePromo(now time.Time) domain.Promotion {
	return domain.Promotion{
		Code:          "WELCOME",
		DiscountType:  domain.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(20),
		MaxDiscount:   15000,
		MinOrderValue: 20000,
		UsageLimit:    100,
		UsedCount:     10,
		ValidFrom:     now.Add(-7 * 24 * time.Hour),
		ValidTo:       now.Add(7 * 24 * time.Hour),
		Status:        domain.PromotionActive,
	}
}

func TestPromoValidator_Evaluate(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	v := NewPromoValidator(fixedClock(now))

	tests := []struct {
		name         string
		mutate       func(p *domain.Promotion)
		subtotal     domain.Money
		alreadyUsed  bool
		wantValid    bool
		wantDiscount domain.Money
		wantReason   string
	}{
		{
			name:         "percentage under cap",
			subtotal:     50000,
			wantValid:    true,
			wantDiscount: 10000,
		},
		{
			name:         "percentage capped",
			subtotal:     100000,
			wantValid:    true,
			wantDiscount: 15000,
		},
		{
			name:         "zero cap means uncapped",
			mutate:       func(p *domain.Promotion) { p.MaxDiscount = 0 },
			subtotal:     100000,
			wantValid:    true,
			wantDiscount: 20000,
		},
		{
			name: "fixed discount clamped to subtotal",
			mutate: func(p *domain.Promotion) {
				p.DiscountType = domain.DiscountFixed
				p.DiscountValue = decimal.NewFromInt(50000)
				p.MinOrderValue = 0
			},
			subtotal:     30000,
			wantValid:    true,
			wantDiscount: 30000,
		},
		{
			name:       "disabled",
			mutate:     func(p *domain.Promotion) { p.Status = domain.PromotionDisabled },
			subtotal:   50000,
			wantReason: ReasonInactive,
		},
		{
			name:       "not started",
			mutate:     func(p *domain.Promotion) { p.ValidFrom = now.Add(time.Hour) },
			subtotal:   50000,
			wantReason: ReasonNotStarted,
		},
		{
			name:       "expired",
			mutate:     func(p *domain.Promotion) { p.ValidTo = now.Add(-time.Second) },
			subtotal:   50000,
			wantReason: ReasonExpired,
		},
		{
			name:       "usage limit reached",
			mutate:     func(p *domain.Promotion) { p.UsedCount = p.UsageLimit },
			subtotal:   50000,
			wantReason: ReasonExhausted,
		},
		{
			name:        "already used by passenger",
			subtotal:    50000,
			alreadyUsed: true,
			wantReason:  ReasonAlreadyUsed,
		},
		{
			name:       "below minimum order value",
			subtotal:   19999,
			wantReason: ReasonBelowMinimum,
		},
		{
			name:       "negative value",
			mutate:     func(p *domain.Promotion) { p.DiscountValue = decimal.NewFromInt(-5) },
			subtotal:   50000,
			wantReason: ReasonInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := basePromo(now)
			if tt.mutate != nil {
				tt.mutate(&p)
			}

			got := v.Evaluate(&p, tt.subtotal, tt.alreadyUsed)
			if got.Valid != tt.wantValid {
				t.Fatalf("Valid = %v, want %v (reason %q)", got.Valid, tt.wantValid, got.Reason)
			}
			if got.Discount != tt.wantDiscount {
				t.Errorf("Discount = %d, want %d", got.Discount, tt.wantDiscount)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
			if got.Discount > tt.subtotal {
				t.Errorf("discount %d exceeds subtotal %d", got.Discount, tt.subtotal)
			}
		})
	}
}

func TestTimeOfDaySurge(t *testing.T) {
	s := DefaultTimeOfDaySurge(time.UTC)
	ctx := context.Background()

	tests := []struct {
		hour int
		want string
	}{
		{6, "1"},
		{7, "1.5"},
		{9, "1.5"},
		{12, "1"},
		{18, "1.5"},
		{22, "1.3"},
		{2, "1.3"},
		{5, "1.3"},
	}
	for _, tt := range tests {
		at := time.Date(2026, 1, 15, tt.hour, 30, 0, 0, time.UTC)
		got := s.Multiplier(ctx, 10.77, 106.69, at)
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("hour %d: got %s, want %s", tt.hour, got, tt.want)
		}
	}

	if got := (FlatSurge{}).Multiplier(ctx, 0, 0, time.Now()); !got.Equal(decimal.NewFromInt(1)) {
		t.Errorf("flat surge should be 1, got %s", got)
	}
}
