package repository

import (
	"context"

	"ridecore/internal/domain"
)

// DriverReleaser detaches a driver from a ride that reached a terminal status.
type DriverReleaser interface {
	// Release frees the driver only if it is still attached to rideID. It
	// reports whether anything changed, so repeating it is harmless.
	Release(ctx context.Context, driverID, rideID string, outcome domain.ReleaseOutcome, fare domain.Money) (bool, error)
}

// DriverRepository defines the persistence operations for drivers.
type DriverRepository interface {
	DriverReleaser

	// GetByID retrieves a driver by ID.
	GetByID(ctx context.Context, id string) (*domain.Driver, error)

	// GetByIDs retrieves the drivers that exist among ids.
	GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Driver, error)

	// UpdateLocation records the driver's last known position.
	UpdateLocation(ctx context.Context, id string, lat, lng float64) error

	// SetPresence changes online status and availability of a driver with no active ride.
	SetPresence(ctx context.Context, id string, status domain.OnlineStatus, available bool) error

	// Claim atomically marks an available, online driver as busy with rideID.
	// Returns ErrDriverUnavailable when the driver was not dispatchable.
	Claim(ctx context.Context, driverID, rideID string) error
}

// VehicleRepository reads vehicle records.
type VehicleRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Vehicle, error)
}

// UserRepository reads user accounts.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}
