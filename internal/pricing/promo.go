package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"ridecore/internal/domain"
)

// Reasons a promotion is rejected.
const (
	ReasonInactive      = "promotion is not active"
	ReasonNotStarted    = "promotion has not started"
	ReasonExpired       = "promotion has expired"
	ReasonExhausted     = "promotion usage limit reached"
	ReasonAlreadyUsed   = "promotion already used by this passenger"
	ReasonBelowMinimum  = "fare below promotion minimum order value"
	ReasonInvalidAmount = "promotion discount value is invalid"
)

var hundred = decimal.NewFromInt(100)

// PromoResult is the outcome of applying a promotion to a subtotal.
type PromoResult struct {
	Valid    bool
	Discount domain.Money
	Reason   string
}

// PromoValidator decides whether a promotion applies and how much it takes off.
type PromoValidator struct {
	now func() time.Time
}

// PromoOption configures a PromoValidator.
type PromoOption func(*PromoValidator)

// WithClock overrides the validator's time source.
func WithClock(now func() time.Time) PromoOption {
	return func(v *PromoValidator) { v.now = now }
}

// NewPromoValidator creates a PromoValidator using the wall clock unless overridden.
func NewPromoValidator(opts ...PromoOption) *PromoValidator {
	v := &PromoValidator{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Evaluate checks p against subtotal. The discount never exceeds the subtotal.
func (v *PromoValidator) Evaluate(p *domain.Promotion, subtotal domain.Money, alreadyUsed bool) PromoResult {
	now := v.now()

	switch {
	case p.Status != domain.PromotionActive:
		return PromoResult{Reason: ReasonInactive}
	case now.Before(p.ValidFrom):
		return PromoResult{Reason: ReasonNotStarted}
	case !p.ValidTo.IsZero() && now.After(p.ValidTo):
		return PromoResult{Reason: ReasonExpired}
	case p.UsedCount >= p.UsageLimit:
		return PromoResult{Reason: ReasonExhausted}
	case alreadyUsed:
		return PromoResult{Reason: ReasonAlreadyUsed}
	case subtotal < p.MinOrderValue:
		return PromoResult{Reason: ReasonBelowMinimum}
	case p.DiscountValue.IsNegative():
		return PromoResult{Reason: ReasonInvalidAmount}
	}

	var discount domain.Money
	switch p.DiscountType {
	case domain.DiscountPercentage:
		amount := decimal.NewFromInt(int64(subtotal)).Mul(p.DiscountValue).Div(hundred).Floor()
		discount = domain.Money(amount.IntPart())
		if p.MaxDiscount > 0 && discount > p.MaxDiscount {
			discount = p.MaxDiscount
		}
	case domain.DiscountFixed:
		discount = domain.Money(p.DiscountValue.Floor().IntPart())
	default:
		return PromoResult{Reason: ReasonInvalidAmount}
	}

	if discount > subtotal {
		discount = subtotal
	}
	return PromoResult{Valid: true, Discount: discount}
}
