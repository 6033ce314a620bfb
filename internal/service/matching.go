package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ridecore/internal/domain"
	"ridecore/internal/geo"
	"ridecore/internal/pricing"
	"ridecore/internal/redis"
	"ridecore/internal/repository"
)

const (
	defaultSearchRadiusKm = 5.0
	rideLockTTL           = 30 * time.Second // Lock ride during matching
	driverETAFloorMinutes = 2
)

// MatchingConfig tunes the nearest-driver search.
type MatchingConfig struct {
	RadiusKm float64
	// MinCandidates stops widening the search once this many eligible drivers are in range.
	MinCandidates int
	LockTTL       time.Duration
}

// DefaultMatchingConfig returns the default matching configuration.
func DefaultMatchingConfig() MatchingConfig {
	return MatchingConfig{
		RadiusKm:      defaultSearchRadiusKm,
		MinCandidates: 1,
		LockTTL:       rideLockTTL,
	}
}

// DriverAssignment is a ranked, eligible driver for a pickup point.
type DriverAssignment struct {
	Driver     *domain.Driver  `json:"driver"`
	Vehicle    *domain.Vehicle `json:"vehicle"`
	DriverName string          `json:"driver_name"`
	Phone      string          `json:"phone"`
	Location   domain.Location `json:"location"`
	DistanceKm float64         `json:"distance_km"`
	ETAMinutes int             `json:"eta_minutes"`

	// Ride is set once the driver was assigned to a ride.
	Ride *domain.Ride `json:"ride,omitempty"`
}

// MatchingServiceInterface defines the matching service contract.
type MatchingServiceInterface interface {
	FindNearestDriver(ctx context.Context, lat, lng float64, vt domain.VehicleType) (*DriverAssignment, error)
	Dispatch(ctx context.Context, ride *domain.Ride) (*DriverAssignment, error)
	Assign(ctx context.Context, ride *domain.Ride, driverID string) (*DriverAssignment, error)
}

// Ensure MatchingService implements MatchingServiceInterface.
var _ MatchingServiceInterface = (*MatchingService)(nil)

// MatchingService handles driver-passenger matching.
type MatchingService struct {
	locations redis.GeoIndex
	locks     redis.LockStoreInterface
	cache     redis.ProfileCache
	drivers   repository.DriverRepository
	vehicles  repository.VehicleRepository
	users     repository.UserRepository
	rides     repository.RideStore
	logger    logrus.FieldLogger
	cfg       MatchingConfig
	now       func() time.Time
}

// NewMatchingService creates a new MatchingService. cache may be nil.
func NewMatchingService(
	locations redis.GeoIndex,
	locks redis.LockStoreInterface,
	cache redis.ProfileCache,
	drivers repository.DriverRepository,
	vehicles repository.VehicleRepository,
	users repository.UserRepository,
	rides repository.RideStore,
	logger logrus.FieldLogger,
	cfg MatchingConfig,
) *MatchingService {
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = defaultSearchRadiusKm
	}
	if cfg.MinCandidates <= 0 {
		cfg.MinCandidates = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = rideLockTTL
	}
	return &MatchingService{
		locations: locations,
		locks:     locks,
		cache:     cache,
		drivers:   drivers,
		vehicles:  vehicles,
		users:     users,
		rides:     rides,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// FindNearestDriver returns the closest eligible driver for vt, or
// ErrNoDriverAvailable. It does not reserve the driver.
func (s *MatchingService) FindNearestDriver(ctx context.Context, lat, lng float64, vt domain.VehicleType) (*DriverAssignment, error) {
	if !geo.ValidCoordinate(lat, lng) {
		return nil, ErrInvalidLocation
	}
	if _, ok := pricing.DefaultRates[vt]; !ok {
		return nil, ErrInvalidVehicleType
	}

	ranked, err := s.rank(ctx, lat, lng, vt)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, ErrNoDriverAvailable
	}
	return ranked[0], nil
}

// Dispatch assigns the nearest eligible driver to a requesting ride. Drivers
// taken by a concurrent dispatch are skipped.
func (s *MatchingService) Dispatch(ctx context.Context, ride *domain.Ride) (*DriverAssignment, error) {
	if ride.Status != domain.RideStatusRequesting {
		return nil, ErrRideNotRequesting
	}

	release, err := s.lockRide(ctx, ride.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	ranked, err := s.rank(ctx, ride.Pickup.Lat, ride.Pickup.Lng, ride.VehicleType)
	if err != nil {
		return nil, err
	}

	for _, candidate := range ranked {
		assignment, err := s.assign(ctx, ride, candidate)
		if errors.Is(err, repository.ErrDriverUnavailable) || errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return assignment, nil
	}

	return nil, ErrNoDriverAvailable
}

// Assign gives a requesting ride to a specific driver, typically one that
// picked it from the open rides list.
func (s *MatchingService) Assign(ctx context.Context, ride *domain.Ride, driverID string) (*DriverAssignment, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	if ride.Status != domain.RideStatusRequesting {
		return nil, ErrRideNotRequesting
	}

	release, err := s.lockRide(ctx, ride.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	driver, err := s.drivers.GetByID(ctx, driverID)
	if err != nil {
		return nil, err
	}

	loc := domain.Location{}
	if entry, err := s.locations.Get(ctx, driverID); err == nil {
		loc = domain.Location{Lat: entry.Lat, Lng: entry.Lng}
	} else if driver.CurrentLocation != nil {
		loc = *driver.CurrentLocation
	}

	candidates, err := s.eligible(ctx, []redis.LocationEntry{{DriverID: driverID, Lat: loc.Lat, Lng: loc.Lng}},
		map[string]*domain.Driver{driverID: driver}, ride.Pickup.Lat, ride.Pickup.Lng, ride.VehicleType)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s", repository.ErrDriverUnavailable, driverID)
	}

	return s.assign(ctx, ride, candidates[0])
}

// assign claims the driver, then moves the ride to accepted. A ride that is
// no longer requesting gives the driver back.
func (s *MatchingService) assign(ctx context.Context, ride *domain.Ride, a *DriverAssignment) (*DriverAssignment, error) {
	driverID := a.Driver.ID
	log := s.logger.WithFields(logrus.Fields{"ride_id": ride.ID, "driver_id": driverID})

	if err := s.drivers.Claim(ctx, driverID, ride.ID); err != nil {
		log.WithError(err).Debug("driver claim missed")
		return nil, err
	}

	updated, err := s.rides.Transition(ctx, ride.ID, repository.TransitionRequest{
		Expected: domain.RideStatusRequesting,
		To:       domain.RideStatusAccepted,
		DriverID: driverID,
		At:       s.now().UTC(),
	})
	var viewErr *repository.ViewError
	switch {
	case errors.As(err, &viewErr) && updated != nil:
		log.WithError(err).Warn("ride views queued for repair")
	case err != nil:
		if _, relErr := s.drivers.Release(ctx, driverID, ride.ID, domain.ReleaseCancelled, 0); relErr != nil {
			log.WithError(relErr).Error("failed to release claimed driver")
		}
		if errors.Is(err, repository.ErrConflict) || errors.Is(err, domain.ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: %w", ErrRideNotRequesting, err)
		}
		return nil, err
	}

	if err := s.locations.SetAvailability(ctx, driverID, false); err != nil {
		log.WithError(err).Warn("failed to mark driver unavailable in geo index")
	}

	a.Driver.IsAvailable = false
	a.Driver.OnlineStatus = domain.OnlineStatusBusy
	a.Driver.CurrentRideID = ride.ID
	a.Ride = updated
	log.WithField("distance_km", a.DistanceKm).Info("driver assigned")
	return a, nil
}

func (s *MatchingService) lockRide(ctx context.Context, rideID string) (func(), error) {
	token, ok, err := s.locks.AcquireRideLock(ctx, rideID, s.cfg.LockTTL)
	if err != nil {
		return nil, repository.Unavailable("acquire ride lock", err)
	}
	if !ok {
		// Another dispatcher is handling this ride.
		return nil, fmt.Errorf("%w: ride %s is being dispatched", repository.ErrConflict, rideID)
	}
	return func() {
		if err := s.locks.ReleaseRideLock(context.WithoutCancel(ctx), rideID, token); err != nil {
			s.logger.WithError(err).WithField("ride_id", rideID).Warn("failed to release ride lock")
		}
	}, nil
}

// rank returns eligible drivers for a pickup point, nearest first. The
// geohash search widens from the finest precision until enough drivers pass
// eligibility.
func (s *MatchingService) rank(ctx context.Context, lat, lng float64, vt domain.VehicleType) ([]*DriverAssignment, error) {
	var ranked []*DriverAssignment
	for _, precision := range geo.IndexPrecisions {
		nearby, err := s.candidates(ctx, lat, lng, precision)
		if err != nil {
			return nil, err
		}
		if len(nearby) == 0 {
			continue
		}

		ids := make([]string, len(nearby))
		for i, e := range nearby {
			ids[i] = e.DriverID
		}
		drivers, err := s.drivers.GetByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}

		// A coarser neighbourhood contains the finer one, so each pass replaces the last.
		ranked, err = s.eligible(ctx, nearby, drivers, lat, lng, vt)
		if err != nil {
			return nil, err
		}
		if len(ranked) >= s.cfg.MinCandidates {
			break
		}
	}
	return ranked, nil
}

// candidates returns the available drivers within the radius around a point
// at one geohash precision, nearest first.
func (s *MatchingService) candidates(ctx context.Context, lat, lng float64, precision uint) ([]redis.LocationEntry, error) {
	entries, err := s.locations.Query(ctx, lat, lng, precision)
	if err != nil {
		return nil, err
	}

	var found []redis.LocationEntry
	for _, e := range entries {
		if !e.Available {
			continue
		}
		if geo.HaversineKm(lat, lng, e.Lat, e.Lng) > s.cfg.RadiusKm {
			continue
		}
		found = append(found, e)
	}

	geo.SortByDistance(found, func(e redis.LocationEntry) float64 {
		return geo.HaversineKm(lat, lng, e.Lat, e.Lng)
	})
	return found, nil
}

// eligible keeps the entries whose driver, vehicle and account may take a ride of type vt.
func (s *MatchingService) eligible(
	ctx context.Context,
	entries []redis.LocationEntry,
	drivers map[string]*domain.Driver,
	lat, lng float64,
	vt domain.VehicleType,
) ([]*DriverAssignment, error) {
	var vehicleIDs, userIDs []string
	for _, e := range entries {
		d, ok := drivers[e.DriverID]
		if !ok || !d.Dispatchable() {
			continue
		}
		vehicleIDs = append(vehicleIDs, d.VehicleID)
		userIDs = append(userIDs, d.UserID)
	}
	if len(vehicleIDs) == 0 {
		return nil, nil
	}

	vehicles, err := s.loadVehicles(ctx, vehicleIDs)
	if err != nil {
		return nil, err
	}
	users, err := s.loadUsers(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	speed := pricing.SpeedFor(vt)
	var out []*DriverAssignment
	for _, e := range entries {
		d, ok := drivers[e.DriverID]
		if !ok || !d.Dispatchable() {
			continue
		}
		v, ok := vehicles[d.VehicleID]
		if !ok || !v.Serves(vt) {
			continue
		}
		u, ok := users[d.UserID]
		if !ok || !u.Active() {
			continue
		}

		dist := geo.HaversineKm(lat, lng, e.Lat, e.Lng)
		out = append(out, &DriverAssignment{
			Driver:     d,
			Vehicle:    v,
			DriverName: u.FullName,
			Phone:      u.Phone,
			Location:   domain.Location{Lat: e.Lat, Lng: e.Lng},
			DistanceKm: dist,
			ETAMinutes: geo.ETAMinutes(dist, speed, driverETAFloorMinutes),
		})
	}
	return out, nil
}

// loadVehicles reads vehicles through the profile cache.
func (s *MatchingService) loadVehicles(ctx context.Context, ids []string) (map[string]*domain.Vehicle, error) {
	found, missing := map[string]*domain.Vehicle{}, ids
	if s.cache != nil {
		hits, miss, err := s.cache.GetVehiclesBatch(ctx, ids)
		if err != nil {
			s.logger.WithError(err).Warn("vehicle cache read failed")
		} else {
			found, missing = hits, miss
		}
	}

	var fetched []*domain.Vehicle
	for _, id := range missing {
		if _, ok := found[id]; ok {
			continue
		}
		v, err := s.vehicles.GetByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		found[id] = v
		fetched = append(fetched, v)
	}

	if s.cache != nil && len(fetched) > 0 {
		if err := s.cache.SetVehiclesBatch(ctx, fetched); err != nil {
			s.logger.WithError(err).Warn("vehicle cache write failed")
		}
	}
	return found, nil
}

// loadUsers reads driver accounts through the profile cache.
func (s *MatchingService) loadUsers(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	found, missing := map[string]*domain.User{}, ids
	if s.cache != nil {
		hits, miss, err := s.cache.GetUsersBatch(ctx, ids)
		if err != nil {
			s.logger.WithError(err).Warn("user cache read failed")
		} else {
			found, missing = hits, miss
		}
	}

	var fetched []*domain.User
	for _, id := range missing {
		if _, ok := found[id]; ok {
			continue
		}
		u, err := s.users.GetByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		found[id] = u
		fetched = append(fetched, u)
	}

	if s.cache != nil && len(fetched) > 0 {
		if err := s.cache.SetUsersBatch(ctx, fetched); err != nil {
			s.logger.WithError(err).Warn("user cache write failed")
		}
	}
	return found, nil
}
