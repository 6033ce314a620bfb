package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ridecore/internal/geo"
	"ridecore/internal/repository"
)

const (
	cellKeyPrefix     = "geo:cell:"
	driverRegPrefix   = "geo:driver:"
	maxLocationWrites = 5
	nearbyPrecision   = 5
)

// LocationEntry is a driver's indexed position.
type LocationEntry struct {
	DriverID  string    `json:"driver_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Available bool      `json:"available"`
	Rating    float64   `json:"rating"`
	UpdatedAt time.Time `json:"updated_at"`
}

// registration remembers which cells currently hold a driver.
type registration struct {
	Entry LocationEntry `json:"entry"`
	Cells []string      `json:"cells"`
}

// LocationStore indexes driver positions under geohash cells at several
// precisions. Each cell is a hash of driver ID to entry.
type LocationStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client, now: time.Now}
}

func cellKey(cell string) string { return cellKeyPrefix + cell }

func driverRegKey(driverID string) string { return driverRegPrefix + driverID }

// Upsert moves a driver to its new position. Cells that no longer contain the
// driver are cleared in the same transaction as the new cells are written.
func (s *LocationStore) Upsert(ctx context.Context, entry LocationEntry) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = s.now().UTC()
	}
	cells := geo.Cells(entry.Lat, entry.Lng, geo.IndexPrecisions...)

	return s.mutate(ctx, entry.DriverID, func(prev *registration) (*registration, error) {
		return &registration{Entry: entry, Cells: cells}, nil
	})
}

// SetAvailability flips the available flag of an indexed driver in place.
func (s *LocationStore) SetAvailability(ctx context.Context, driverID string, available bool) error {
	return s.mutate(ctx, driverID, func(prev *registration) (*registration, error) {
		if prev == nil {
			return nil, repository.ErrNotFound
		}
		next := *prev
		next.Entry.Available = available
		return &next, nil
	})
}

// Remove deletes a driver from every cell.
func (s *LocationStore) Remove(ctx context.Context, driverID string) error {
	return s.mutate(ctx, driverID, func(prev *registration) (*registration, error) {
		return nil, nil
	})
}

// Get returns the driver's indexed entry.
func (s *LocationStore) Get(ctx context.Context, driverID string) (*LocationEntry, error) {
	reg, err := s.loadRegistration(ctx, s.client, driverID)
	if err != nil {
		return nil, repository.Unavailable("get driver location", err)
	}
	if reg == nil {
		return nil, repository.ErrNotFound
	}
	return &reg.Entry, nil
}

// mutate applies fn to the driver's registration under optimistic locking
// and rewrites the affected cells. A nil result removes the driver.
func (s *LocationStore) mutate(ctx context.Context, driverID string, fn func(*registration) (*registration, error)) error {
	regKey := driverRegKey(driverID)

	txf := func(tx *redis.Tx) error {
		prev, err := s.loadRegistration(ctx, tx, driverID)
		if err != nil {
			return err
		}
		next, err := fn(prev)
		if err != nil {
			return err
		}

		var payload, regPayload []byte
		if next != nil {
			if payload, err = json.Marshal(next.Entry); err != nil {
				return err
			}
			if regPayload, err = json.Marshal(next); err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if prev != nil {
				for _, c := range prev.Cells {
					if next == nil || !containsCell(next.Cells, c) {
						pipe.HDel(ctx, cellKey(c), driverID)
					}
				}
			}
			if next == nil {
				pipe.Del(ctx, regKey)
				return nil
			}
			for _, c := range next.Cells {
				pipe.HSet(ctx, cellKey(c), driverID, payload)
			}
			pipe.Set(ctx, regKey, regPayload, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxLocationWrites; i++ {
		err := s.client.Watch(ctx, txf, regKey)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return repository.Unavailable("update driver location", err)
	}
	return fmt.Errorf("%w: driver %s location", repository.ErrConflict, driverID)
}

// getter is satisfied by *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *LocationStore) loadRegistration(ctx context.Context, c getter, driverID string) (*registration, error) {
	data, err := c.Get(ctx, driverRegKey(driverID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var reg registration
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Query returns the drivers indexed in the cell containing the point and its
// eight neighbours at the given precision.
func (s *LocationStore) Query(ctx context.Context, lat, lng float64, precision uint) ([]LocationEntry, error) {
	cells := geo.SearchCells(lat, lng, precision)

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(cells))
	for i, c := range cells {
		cmds[i] = pipe.HGetAll(ctx, cellKey(c))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, repository.Unavailable("query driver cells", err)
	}

	byDriver := make(map[string]LocationEntry)
	for _, cmd := range cmds {
		for driverID, raw := range cmd.Val() {
			var e LocationEntry
			if err := json.Unmarshal([]byte(raw), &e); err != nil {
				continue
			}
			e.DriverID = driverID
			if cur, ok := byDriver[driverID]; ok && cur.UpdatedAt.After(e.UpdatedAt) {
				continue
			}
			byDriver[driverID] = e
		}
	}

	entries := make([]LocationEntry, 0, len(byDriver))
	for _, e := range byDriver {
		entries = append(entries, e)
	}
	return entries, nil
}

// Nearby returns drivers within radiusKm of the point, nearest first.
func (s *LocationStore) Nearby(ctx context.Context, lat, lng, radiusKm float64) ([]LocationEntry, error) {
	entries, err := s.Query(ctx, lat, lng, nearbyPrecision)
	if err != nil {
		return nil, err
	}

	within := entries[:0]
	for _, e := range entries {
		if geo.HaversineKm(lat, lng, e.Lat, e.Lng) <= radiusKm {
			within = append(within, e)
		}
	}
	geo.SortByDistance(within, func(e LocationEntry) float64 {
		return geo.HaversineKm(lat, lng, e.Lat, e.Lng)
	})
	return within, nil
}

func containsCell(cells []string, c string) bool {
	for _, x := range cells {
		if x == c {
			return true
		}
	}
	return false
}
