package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"ridecore/internal/domain"
)

// CacheStore handles profile caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// Cache TTL constants
const (
	VehicleCacheTTL = 30 * time.Second
	UserCacheTTL    = 30 * time.Second
)

// Key prefixes
const (
	vehicleCachePrefix = "cache:vehicle:"
	userCachePrefix    = "cache:user:"
)

// GetVehiclesBatch retrieves vehicles from cache using a pipeline.
// Returns the hits keyed by ID and the IDs that missed.
func (s *CacheStore) GetVehiclesBatch(ctx context.Context, ids []string) (map[string]*domain.Vehicle, []string, error) {
	return getBatch[domain.Vehicle](ctx, s.client, vehicleCachePrefix, ids)
}

// SetVehiclesBatch stores vehicles in cache using a pipeline.
func (s *CacheStore) SetVehiclesBatch(ctx context.Context, vehicles []*domain.Vehicle) error {
	return setBatch(ctx, s.client, vehicleCachePrefix, VehicleCacheTTL, vehicles, func(v *domain.Vehicle) string { return v.ID })
}

// InvalidateVehicle removes a vehicle from cache.
func (s *CacheStore) InvalidateVehicle(ctx context.Context, id string) error {
	return s.client.Del(ctx, vehicleCachePrefix+id).Err()
}

// GetUsersBatch retrieves users from cache using a pipeline.
func (s *CacheStore) GetUsersBatch(ctx context.Context, ids []string) (map[string]*domain.User, []string, error) {
	return getBatch[domain.User](ctx, s.client, userCachePrefix, ids)
}

// SetUsersBatch stores users in cache using a pipeline.
func (s *CacheStore) SetUsersBatch(ctx context.Context, users []*domain.User) error {
	return setBatch(ctx, s.client, userCachePrefix, UserCacheTTL, users, func(u *domain.User) string { return u.ID })
}

// InvalidateUser removes a user from cache.
func (s *CacheStore) InvalidateUser(ctx context.Context, id string) error {
	return s.client.Del(ctx, userCachePrefix+id).Err()
}

func getBatch[T any](ctx context.Context, client *redis.Client, prefix string, ids []string) (map[string]*T, []string, error) {
	result := make(map[string]*T, len(ids))
	if len(ids) == 0 {
		return result, nil, nil
	}

	pipe := client.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(ids))
	for _, id := range ids {
		cmds[id] = pipe.Get(ctx, prefix+id)
	}

	// Exec reports redis.Nil when any key is missing; each command is checked below.
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return result, ids, err
	}

	var missing []string
	for id, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			missing = append(missing, id)
			continue
		}

		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			missing = append(missing, id)
			continue
		}
		result[id] = &v
	}

	return result, missing, nil
}

func setBatch[T any](ctx context.Context, client *redis.Client, prefix string, ttl time.Duration, items []*T, id func(*T) string) error {
	if len(items) == 0 {
		return nil
	}

	pipe := client.Pipeline()
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			continue
		}
		pipe.Set(ctx, prefix+id(item), data, ttl)
	}

	_, err := pipe.Exec(ctx)
	return err
}
