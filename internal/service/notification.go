package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"ridecore/internal/domain"
)

// Notifier delivers ride events to interested parties. Delivery is best
// effort: callers log failures and never undo the change that triggered them.
type Notifier interface {
	NotifyRideStatusChanged(ctx context.Context, rideID string, status domain.RideStatus) error
	NotifyDriverLocation(ctx context.Context, rideID string, lat, lng float64) error
}

// LogNotifier writes events to the application log. It is used when no
// message broker is configured.
type LogNotifier struct {
	logger logrus.FieldLogger
}

// NewLogNotifier creates a new LogNotifier.
func NewLogNotifier(logger logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

var _ Notifier = (*LogNotifier)(nil)

// NotifyRideStatusChanged logs a ride status change.
func (n *LogNotifier) NotifyRideStatusChanged(_ context.Context, rideID string, status domain.RideStatus) error {
	n.logger.WithFields(logrus.Fields{
		"ride_id": rideID,
		"status":  status,
	}).Info("ride status changed")
	return nil
}

// NotifyDriverLocation logs a driver position for an active ride.
func (n *LogNotifier) NotifyDriverLocation(_ context.Context, rideID string, lat, lng float64) error {
	n.logger.WithFields(logrus.Fields{
		"ride_id": rideID,
		"lat":     lat,
		"lng":     lng,
	}).Debug("driver location")
	return nil
}
