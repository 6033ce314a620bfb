package repository

import (
	"context"
	"time"

	"ridecore/internal/domain"
)

// TransitionRequest describes a conditional status change of a ride.
type TransitionRequest struct {
	// Expected is the status the caller observed; empty skips the check.
	Expected domain.RideStatus
	To       domain.RideStatus
	// DriverID is attached when moving to accepted.
	DriverID    string
	Reason      string
	CancelledBy domain.Actor
	At          time.Time
}

// RatingRequest carries post-ride ratings; nil fields are left untouched.
type RatingRequest struct {
	DriverRating    *int
	PassengerRating *int
}

// RideStore is the authoritative ride record plus its by-passenger,
// by-driver and by-status views.
type RideStore interface {
	// Create stores a new ride and indexes it.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// Transition atomically changes a ride's status and updates its views.
	Transition(ctx context.Context, id string, req TransitionRequest) (*domain.Ride, error)

	// Cancel moves a ride to cancelled.
	Cancel(ctx context.Context, id string, expected domain.RideStatus, by domain.Actor, reason string) (*domain.Ride, error)

	// Rate records ratings on a completed ride.
	Rate(ctx context.Context, id string, req RatingRequest) (*domain.Ride, error)

	// ListByPassenger returns a passenger's rides, newest first.
	ListByPassenger(ctx context.Context, passengerID string, limit int64) ([]*domain.Ride, error)

	// ListByDriver returns a driver's rides, newest first.
	ListByDriver(ctx context.Context, driverID string, limit int64) ([]*domain.Ride, error)

	// ListByStatus returns rides currently in status, newest first.
	ListByStatus(ctx context.Context, status domain.RideStatus, limit int64) ([]*domain.Ride, error)

	// Reindex rebuilds every view of a ride from its record. Idempotent.
	Reindex(ctx context.Context, id string) error

	// Verify reports whether the views of a ride agree with its record.
	Verify(ctx context.Context, id string) (bool, error)

	// PendingRepairs returns up to n rides queued after a failed view write.
	PendingRepairs(ctx context.Context, n int64) ([]string, error)

	// ScanIDs iterates over stored ride IDs.
	ScanIDs(ctx context.Context, cursor uint64, count int64) ([]string, uint64, error)
}
