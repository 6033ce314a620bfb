package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType is how a promotion reduces the fare.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// PromotionStatus represents whether a promotion can be applied.
type PromotionStatus string

const (
	PromotionActive   PromotionStatus = "active"
	PromotionExpired  PromotionStatus = "expired"
	PromotionDisabled PromotionStatus = "disabled"
)

// Promotion is a discount code with usage limits.
type Promotion struct {
	Code          string
	Description   string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	// MaxDiscount caps percentage discounts; zero means uncapped.
	MaxDiscount   Money
	MinOrderValue Money
	UsageLimit    int
	UsedCount     int
	ValidFrom     time.Time
	ValidTo       time.Time
	Status        PromotionStatus
}
