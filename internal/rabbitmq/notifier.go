package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	"ridecore/internal/domain"
)

const (
	// RouteRideStatusPrefix is followed by the new status, e.g. ride.status.accepted.
	RouteRideStatusPrefix = "ride.status."
	RouteRideLocation     = "ride.location"
)

// Publisher sends a message body under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// RideStatusEvent is published when a ride changes status.
type RideStatusEvent struct {
	RideID     string            `json:"ride_id"`
	Status     domain.RideStatus `json:"status"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// DriverLocationEvent is published when the driver of an active ride moves.
type DriverLocationEvent struct {
	RideID     string    `json:"ride_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier publishes ride events to the broker.
type Notifier struct {
	pub Publisher
	now func() time.Time
}

// NewNotifier creates a new Notifier.
func NewNotifier(pub Publisher) *Notifier {
	return &Notifier{pub: pub, now: time.Now}
}

// NotifyRideStatusChanged publishes a RideStatusEvent.
func (n *Notifier) NotifyRideStatusChanged(ctx context.Context, rideID string, status domain.RideStatus) error {
	return n.publish(ctx, RouteRideStatusPrefix+string(status), RideStatusEvent{
		RideID:     rideID,
		Status:     status,
		OccurredAt: n.now().UTC(),
	})
}

// NotifyDriverLocation publishes a DriverLocationEvent.
func (n *Notifier) NotifyDriverLocation(ctx context.Context, rideID string, lat, lng float64) error {
	return n.publish(ctx, RouteRideLocation, DriverLocationEvent{
		RideID:     rideID,
		Lat:        lat,
		Lng:        lng,
		OccurredAt: n.now().UTC(),
	})
}

func (n *Notifier) publish(ctx context.Context, key string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.pub.Publish(ctx, key, body)
}
