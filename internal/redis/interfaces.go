package redis

import (
	"context"
	"time"

	"ridecore/internal/domain"
)

// GeoIndex defines driver position indexing by geohash cell.
type GeoIndex interface {
	Upsert(ctx context.Context, entry LocationEntry) error
	SetAvailability(ctx context.Context, driverID string, available bool) error
	Remove(ctx context.Context, driverID string) error
	Get(ctx context.Context, driverID string) (*LocationEntry, error)
	Query(ctx context.Context, lat, lng float64, precision uint) ([]LocationEntry, error)
	Nearby(ctx context.Context, lat, lng, radiusKm float64) ([]LocationEntry, error)
}

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquireRideLock(ctx context.Context, rideID string, ttl time.Duration) (string, bool, error)
	ReleaseRideLock(ctx context.Context, rideID, token string) error
}

// ProfileCache defines read-through caching of vehicles and users.
type ProfileCache interface {
	GetVehiclesBatch(ctx context.Context, ids []string) (map[string]*domain.Vehicle, []string, error)
	SetVehiclesBatch(ctx context.Context, vehicles []*domain.Vehicle) error
	GetUsersBatch(ctx context.Context, ids []string) (map[string]*domain.User, []string, error)
	SetUsersBatch(ctx context.Context, users []*domain.User) error
}

// Ensure concrete types implement interfaces.
var (
	_ GeoIndex           = (*LocationStore)(nil)
	_ LockStoreInterface = (*LockStore)(nil)
	_ ProfileCache       = (*CacheStore)(nil)
)
