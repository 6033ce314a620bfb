package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a conditional write lost to a concurrent writer
	// or the entity is no longer in the expected state.
	ErrConflict = errors.New("conflicting update")

	// ErrDriverUnavailable is returned when a driver cannot be claimed for a ride.
	ErrDriverUnavailable = fmt.Errorf("%w: driver not available", ErrConflict)

	// ErrPromoExhausted is returned when a promotion has no usages left.
	ErrPromoExhausted = fmt.Errorf("%w: promotion usage limit reached", ErrConflict)

	// ErrPromoAlreadyUsed is returned when the user already redeemed the promotion.
	ErrPromoAlreadyUsed = fmt.Errorf("%w: promotion already used", ErrConflict)

	// ErrUnavailable is returned when a storage dependency failed.
	ErrUnavailable = errors.New("dependency unavailable")

	// ErrViewsStale marks a ride whose secondary views could not be updated.
	ErrViewsStale = errors.New("ride views out of date")
)

// Unavailable wraps a storage failure with the operation that hit it.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// ViewError reports that the authoritative ride record was written but one or
// more of its views were not. The ride is queued for reconciliation; a failed
// enqueue is reported in Err.
type ViewError struct {
	RideID string
	Err    error
}

func (e *ViewError) Error() string {
	return fmt.Sprintf("ride %s: %v: %v", e.RideID, ErrViewsStale, e.Err)
}

func (e *ViewError) Unwrap() []error {
	return []error{ErrViewsStale, e.Err}
}
