package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"ridecore/internal/domain"
	"ridecore/internal/geo"
	"ridecore/internal/redis"
	"ridecore/internal/repository"
)

// DriverService handles driver presence and position.
type DriverService struct {
	locations redis.GeoIndex
	drivers   repository.DriverRepository
	notifier  Notifier
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewDriverService creates a new DriverService.
func NewDriverService(
	locations redis.GeoIndex,
	drivers repository.DriverRepository,
	notifier Notifier,
	logger logrus.FieldLogger,
) *DriverService {
	return &DriverService{
		locations: locations,
		drivers:   drivers,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// UpdateLocationRequest contains the parameters for updating driver location.
type UpdateLocationRequest struct {
	DriverID string
	Lat      float64
	Lng      float64
}

// UpdateLocation records a driver's position. Online and busy drivers are
// re-indexed for matching; the passenger of an active ride is notified.
func (s *DriverService) UpdateLocation(ctx context.Context, req UpdateLocationRequest) error {
	if req.DriverID == "" {
		return ErrInvalidDriverID
	}
	if !geo.ValidCoordinate(req.Lat, req.Lng) {
		return ErrInvalidLocation
	}

	driver, err := s.drivers.GetByID(ctx, req.DriverID)
	if err != nil {
		return err
	}

	if err := s.drivers.UpdateLocation(ctx, req.DriverID, req.Lat, req.Lng); err != nil {
		return err
	}

	if driver.OnlineStatus != domain.OnlineStatusOffline {
		entry := redis.LocationEntry{
			DriverID:  driver.ID,
			Lat:       req.Lat,
			Lng:       req.Lng,
			Available: driver.Dispatchable(),
			Rating:    driver.Rating,
			UpdatedAt: s.now().UTC(),
		}
		if err := s.locations.Upsert(ctx, entry); err != nil {
			return err
		}
	}

	if driver.CurrentRideID != "" && s.notifier != nil {
		if err := s.notifier.NotifyDriverLocation(ctx, driver.CurrentRideID, req.Lat, req.Lng); err != nil {
			s.logger.WithError(err).WithField("ride_id", driver.CurrentRideID).Warn("failed to publish driver location")
		}
	}
	return nil
}

// GoOnline makes a driver with no active ride available for dispatch.
func (s *DriverService) GoOnline(ctx context.Context, driverID string) (*domain.Driver, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	if err := s.drivers.SetPresence(ctx, driverID, domain.OnlineStatusOnline, true); err != nil {
		return nil, err
	}

	driver, err := s.drivers.GetByID(ctx, driverID)
	if err != nil {
		return nil, err
	}

	// Drivers with no known position are indexed on their first location update.
	if driver.CurrentLocation != nil {
		entry := redis.LocationEntry{
			DriverID:  driver.ID,
			Lat:       driver.CurrentLocation.Lat,
			Lng:       driver.CurrentLocation.Lng,
			Available: true,
			Rating:    driver.Rating,
			UpdatedAt: s.now().UTC(),
		}
		if err := s.locations.Upsert(ctx, entry); err != nil {
			return nil, err
		}
	}

	s.logger.WithField("driver_id", driverID).Info("driver online")
	return driver, nil
}

// GoOffline takes a driver with no active ride out of matching.
func (s *DriverService) GoOffline(ctx context.Context, driverID string) error {
	if driverID == "" {
		return ErrInvalidDriverID
	}

	if err := s.drivers.SetPresence(ctx, driverID, domain.OnlineStatusOffline, false); err != nil {
		return err
	}

	if err := s.locations.Remove(ctx, driverID); err != nil {
		return err
	}

	s.logger.WithField("driver_id", driverID).Info("driver offline")
	return nil
}

// DriverReleaser frees the driver record and makes the driver matchable
// again in the geo index.
type DriverReleaser struct {
	drivers   repository.DriverReleaser
	locations redis.GeoIndex
	logger    logrus.FieldLogger
}

// NewDriverReleaser creates a new DriverReleaser.
func NewDriverReleaser(drivers repository.DriverReleaser, locations redis.GeoIndex, logger logrus.FieldLogger) *DriverReleaser {
	return &DriverReleaser{drivers: drivers, locations: locations, logger: logger}
}

var _ repository.DriverReleaser = (*DriverReleaser)(nil)

// Release detaches the driver from rideID. The geo index is only touched
// when the database release changed something; a failed index write is
// corrected by the driver's next location update.
func (r *DriverReleaser) Release(ctx context.Context, driverID, rideID string, outcome domain.ReleaseOutcome, fare domain.Money) (bool, error) {
	changed, err := r.drivers.Release(ctx, driverID, rideID, outcome, fare)
	if err != nil || !changed {
		return changed, err
	}

	log := r.logger.WithFields(logrus.Fields{
		"driver_id": driverID,
		"ride_id":   rideID,
		"outcome":   outcome,
	})

	// Drivers that went offline are not indexed.
	if err := r.locations.SetAvailability(ctx, driverID, true); err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.WithError(err).Warn("failed to mark driver available in geo index")
	}

	log.Info("driver released")
	return true, nil
}
