package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ridecore/internal/domain"
	"ridecore/internal/repository"
)

const (
	rideKeyPrefix       = "ride:"
	passengerViewPrefix = "rides:passenger:"
	driverViewPrefix    = "rides:driver:"
	statusViewPrefix    = "rides:status:"
	reconcileKey        = "rides:reconcile"
	maxViewWrites       = 5
)

func rideKey(id string) string { return rideKeyPrefix + id }

func passengerViewKey(passengerID string) string { return passengerViewPrefix + passengerID }

func driverViewKey(driverID string) string { return driverViewPrefix + driverID }

func statusViewKey(status domain.RideStatus) string { return statusViewPrefix + string(status) }

// driverViewEntry mirrors the fields a driver's ride list is sorted and filtered by.
type driverViewEntry struct {
	Status    domain.RideStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

// RideStore keeps the authoritative ride record under ride:{id} and derives
// the by-passenger, by-driver and by-status views from it.
//
// Record writes are compare-and-set under WATCH. Views are always rebuilt
// from the record as it is at view-write time, so a late writer cannot
// overwrite a newer status. When a view write fails the ride ID is added to
// rides:reconcile and the caller receives a *repository.ViewError together
// with the committed ride.
type RideStore struct {
	client   *redis.Client
	releaser repository.DriverReleaser
	now      func() time.Time
}

// NewRideStore creates a new RideStore. releaser may be nil.
func NewRideStore(client *redis.Client, releaser repository.DriverReleaser) *RideStore {
	return &RideStore{client: client, releaser: releaser, now: time.Now}
}

var _ repository.RideStore = (*RideStore)(nil)

// Create stores a new ride in requesting state and indexes it.
func (s *RideStore) Create(ctx context.Context, ride *domain.Ride) error {
	if ride.Status != domain.RideStatusRequesting {
		return fmt.Errorf("%w: new ride %s must be %s, got %q",
			repository.ErrConflict, ride.ID, domain.RideStatusRequesting, ride.Status)
	}
	if ride.CreatedAt.IsZero() {
		ride.CreatedAt = s.now().UTC()
	}
	ride.Version = 1

	data, err := json.Marshal(ride)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, rideKey(ride.ID), data, 0).Result()
	if err != nil {
		return repository.Unavailable("create ride", err)
	}
	if !ok {
		return fmt.Errorf("%w: ride %s already exists", repository.ErrConflict, ride.ID)
	}

	return s.afterWrite(ctx, ride)
}

// GetByID retrieves a ride by ID.
func (s *RideStore) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	ride, err := s.load(ctx, s.client, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, repository.Unavailable("get ride", err)
	}
	return ride, nil
}

// Transition changes a ride's status if it is still req.Expected and the
// lifecycle graph has the edge. Losing a concurrent race yields ErrConflict.
func (s *RideStore) Transition(ctx context.Context, id string, req repository.TransitionRequest) (*domain.Ride, error) {
	at := req.At
	if at.IsZero() {
		at = s.now().UTC()
	}

	ride, err := s.update(ctx, id, func(r *domain.Ride) error {
		if req.Expected != "" && r.Status != req.Expected {
			return fmt.Errorf("%w: ride %s is %s, expected %s", repository.ErrConflict, id, r.Status, req.Expected)
		}
		if !domain.CanAdvance(r.Status, req.To) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, r.Status, req.To)
		}

		if req.To == domain.RideStatusAccepted {
			if req.DriverID == "" {
				return fmt.Errorf("%w: accepting ride %s without a driver", repository.ErrConflict, id)
			}
			r.DriverID = req.DriverID
		}
		if req.To == domain.RideStatusCancelled {
			r.CancellationReason = req.Reason
			r.CancelledBy = req.CancelledBy
		}
		r.Status = req.To
		r.Stamp(req.To, at)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ride, s.afterWrite(ctx, ride)
}

// Cancel moves a ride to cancelled. The attached driver, if any, is released.
func (s *RideStore) Cancel(ctx context.Context, id string, expected domain.RideStatus, by domain.Actor, reason string) (*domain.Ride, error) {
	return s.Transition(ctx, id, repository.TransitionRequest{
		Expected:    expected,
		To:          domain.RideStatusCancelled,
		Reason:      reason,
		CancelledBy: by,
	})
}

// Rate records ratings on a completed ride. A rating already given is not replaced.
func (s *RideStore) Rate(ctx context.Context, id string, req repository.RatingRequest) (*domain.Ride, error) {
	return s.update(ctx, id, func(r *domain.Ride) error {
		if r.Status != domain.RideStatusCompleted {
			return fmt.Errorf("%w: ride %s is %s, only completed rides can be rated", repository.ErrConflict, id, r.Status)
		}
		if req.DriverRating != nil {
			if r.DriverRating != nil {
				return fmt.Errorf("%w: driver already rated", repository.ErrConflict)
			}
			v := *req.DriverRating
			r.DriverRating = &v
		}
		if req.PassengerRating != nil {
			if r.PassengerRating != nil {
				return fmt.Errorf("%w: passenger already rated", repository.ErrConflict)
			}
			v := *req.PassengerRating
			r.PassengerRating = &v
		}
		return nil
	})
}

// update applies fn to the current record and writes it back if nobody else
// wrote in between.
func (s *RideStore) update(ctx context.Context, id string, fn func(*domain.Ride) error) (*domain.Ride, error) {
	key := rideKey(id)
	var updated *domain.Ride

	txf := func(tx *redis.Tx) error {
		ride, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(ride); err != nil {
			return err
		}
		ride.Version++

		data, err := json.Marshal(ride)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = ride
		return nil
	}

	err := s.client.Watch(ctx, txf, key)
	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, redis.TxFailedErr):
		return nil, fmt.Errorf("%w: ride %s was modified concurrently", repository.ErrConflict, id)
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrConflict),
		errors.Is(err, domain.ErrInvalidTransition):
		return nil, err
	default:
		return nil, repository.Unavailable("update ride", err)
	}
}

func (s *RideStore) load(ctx context.Context, c getter, id string) (*domain.Ride, error) {
	data, err := c.Get(ctx, rideKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	var ride domain.Ride
	if err := json.Unmarshal(data, &ride); err != nil {
		return nil, err
	}
	return &ride, nil
}

// afterWrite brings the views in line with the record and releases the
// driver of a ride that just ended. Failures queue the ride for repair.
func (s *RideStore) afterWrite(ctx context.Context, ride *domain.Ride) error {
	var errs []error
	if err := s.syncViews(ctx, ride.ID); err != nil {
		errs = append(errs, err)
	}
	if err := s.releaseDriver(ctx, ride); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}

	// An unqueued ride is left for the sweep to find.
	if err := s.client.SAdd(context.WithoutCancel(ctx), reconcileKey, ride.ID).Err(); err != nil {
		errs = append(errs, fmt.Errorf("queue repair: %w", err))
	}
	return &repository.ViewError{RideID: ride.ID, Err: errors.Join(errs...)}
}

func (s *RideStore) releaseDriver(ctx context.Context, ride *domain.Ride) error {
	if s.releaser == nil || !ride.Status.IsTerminal() || ride.DriverID == "" {
		return nil
	}
	outcome := domain.ReleaseCancelled
	if ride.Status == domain.RideStatusCompleted {
		outcome = domain.ReleaseCompleted
	}
	_, err := s.releaser.Release(ctx, ride.DriverID, ride.ID, outcome, ride.Fare.Total)
	return err
}

// syncViews rewrites every view of a ride from the record, retrying if the
// record changes while the views are being written.
func (s *RideStore) syncViews(ctx context.Context, id string) error {
	key := rideKey(id)

	txf := func(tx *redis.Tx) error {
		ride, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		entry, err := json.Marshal(driverViewEntry{Status: ride.Status, CreatedAt: ride.CreatedAt})
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			score := float64(ride.CreatedAt.UnixMilli())
			pipe.ZAdd(ctx, passengerViewKey(ride.PassengerID), redis.Z{Score: score, Member: ride.ID})
			for _, st := range domain.AllRideStatuses {
				if st != ride.Status {
					pipe.ZRem(ctx, statusViewKey(st), ride.ID)
				}
			}
			pipe.ZAdd(ctx, statusViewKey(ride.Status), redis.Z{Score: score, Member: ride.ID})
			if ride.DriverID != "" {
				pipe.HSet(ctx, driverViewKey(ride.DriverID), ride.ID, entry)
			}
			pipe.SRem(ctx, reconcileKey, ride.ID)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxViewWrites; i++ {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

// Reindex rebuilds all views of a ride from its record and re-applies the
// driver release for a ride that already ended. Safe to repeat.
func (s *RideStore) Reindex(ctx context.Context, id string) error {
	ride, err := s.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = s.client.SRem(ctx, reconcileKey, id).Err()
		}
		return err
	}
	return s.afterWrite(ctx, ride)
}

// Verify reports whether the views of a ride agree with its record.
func (s *RideStore) Verify(ctx context.Context, id string) (bool, error) {
	ride, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}

	pipe := s.client.Pipeline()
	passengerCmd := pipe.ZScore(ctx, passengerViewKey(ride.PassengerID), id)
	statusCmds := make(map[domain.RideStatus]*redis.FloatCmd, len(domain.AllRideStatuses))
	for _, st := range domain.AllRideStatuses {
		statusCmds[st] = pipe.ZScore(ctx, statusViewKey(st), id)
	}
	var driverCmd *redis.StringCmd
	if ride.DriverID != "" {
		driverCmd = pipe.HGet(ctx, driverViewKey(ride.DriverID), id)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return false, repository.Unavailable("verify ride views", err)
	}

	if passengerCmd.Err() != nil {
		return false, nil
	}
	for st, cmd := range statusCmds {
		present := cmd.Err() == nil
		if present != (st == ride.Status) {
			return false, nil
		}
	}
	if driverCmd != nil {
		data, err := driverCmd.Bytes()
		if err != nil {
			return false, nil
		}
		var entry driverViewEntry
		if err := json.Unmarshal(data, &entry); err != nil || entry.Status != ride.Status {
			return false, nil
		}
	}
	return true, nil
}

// PendingRepairs returns up to n ride IDs queued for reconciliation.
func (s *RideStore) PendingRepairs(ctx context.Context, n int64) ([]string, error) {
	ids, err := s.client.SRandMemberN(ctx, reconcileKey, n).Result()
	if err != nil {
		return nil, repository.Unavailable("list pending repairs", err)
	}
	return ids, nil
}

// ScanIDs walks the ride keyspace.
func (s *RideStore) ScanIDs(ctx context.Context, cursor uint64, count int64) ([]string, uint64, error) {
	keys, next, err := s.client.Scan(ctx, cursor, rideKeyPrefix+"*", count).Result()
	if err != nil {
		return nil, 0, repository.Unavailable("scan rides", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, rideKeyPrefix))
	}
	return ids, next, nil
}

// ListByPassenger returns a passenger's rides, newest first.
func (s *RideStore) ListByPassenger(ctx context.Context, passengerID string, limit int64) ([]*domain.Ride, error) {
	ids, err := s.client.ZRevRange(ctx, passengerViewKey(passengerID), 0, limit-1).Result()
	if err != nil {
		return nil, repository.Unavailable("list passenger rides", err)
	}
	rides, err := s.getMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	return filterRides(rides, func(r *domain.Ride) bool { return r.PassengerID == passengerID }), nil
}

// ListByDriver returns a driver's rides, newest first.
func (s *RideStore) ListByDriver(ctx context.Context, driverID string, limit int64) ([]*domain.Ride, error) {
	raw, err := s.client.HGetAll(ctx, driverViewKey(driverID)).Result()
	if err != nil {
		return nil, repository.Unavailable("list driver rides", err)
	}

	type item struct {
		id string
		at time.Time
	}
	items := make([]item, 0, len(raw))
	for id, v := range raw {
		var entry driverViewEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			continue
		}
		items = append(items, item{id: id, at: entry.CreatedAt})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].at.After(items[j].at) })
	if limit > 0 && int64(len(items)) > limit {
		items = items[:limit]
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	rides, err := s.getMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	return filterRides(rides, func(r *domain.Ride) bool { return r.DriverID == driverID }), nil
}

// ListByStatus returns rides currently in status, newest first.
func (s *RideStore) ListByStatus(ctx context.Context, status domain.RideStatus, limit int64) ([]*domain.Ride, error) {
	ids, err := s.client.ZRevRange(ctx, statusViewKey(status), 0, limit-1).Result()
	if err != nil {
		return nil, repository.Unavailable("list rides by status", err)
	}
	rides, err := s.getMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	return filterRides(rides, func(r *domain.Ride) bool { return r.Status == status }), nil
}

func (s *RideStore) getMany(ctx context.Context, ids []string) ([]*domain.Ride, error) {
	if len(ids) == 0 {
		return []*domain.Ride{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = rideKey(id)
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, repository.Unavailable("load rides", err)
	}

	rides := make([]*domain.Ride, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var ride domain.Ride
		if err := json.Unmarshal([]byte(str), &ride); err != nil {
			continue
		}
		rides = append(rides, &ride)
	}
	return rides, nil
}

// filterRides drops entries a stale view still points at.
func filterRides(rides []*domain.Ride, keep func(*domain.Ride) bool) []*domain.Ride {
	out := rides[:0]
	for _, r := range rides {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
