package repository

import (
	"context"

	"ridecore/internal/domain"
)

// PromotionRepository defines persistence for promotion codes and their usage.
type PromotionRepository interface {
	// GetByCode retrieves a promotion by its code.
	GetByCode(ctx context.Context, code string) (*domain.Promotion, error)

	// HasUsed reports whether userID already redeemed code.
	HasUsed(ctx context.Context, code, userID string) (bool, error)

	// Redeem records one usage of code by userID for rideID. It fails with
	// ErrPromoAlreadyUsed or ErrPromoExhausted without changing anything.
	Redeem(ctx context.Context, code, userID, rideID string) error

	// Unredeem undoes a Redeem whose ride was never stored.
	Unredeem(ctx context.Context, code, userID string) error
}
