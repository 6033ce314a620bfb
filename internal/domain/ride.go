package domain

import "time"

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusRequesting RideStatus = "requesting"
	RideStatusAccepted   RideStatus = "accepted"
	RideStatusArrived    RideStatus = "arrived"
	RideStatusInProgress RideStatus = "in_progress"
	RideStatusCompleted  RideStatus = "completed"
	RideStatusCancelled  RideStatus = "cancelled"
)

// AllRideStatuses lists every status in lifecycle order.
var AllRideStatuses = []RideStatus{
	RideStatusRequesting,
	RideStatusAccepted,
	RideStatusArrived,
	RideStatusInProgress,
	RideStatusCompleted,
	RideStatusCancelled,
}

// IsTerminal reports whether no further transition can leave this status.
func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// Valid reports whether s is a known ride status.
func (s RideStatus) Valid() bool {
	for _, st := range AllRideStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// PaymentMethod represents the payment method for a ride.
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodWallet PaymentMethod = "wallet"
)

// PaymentStatus tracks settlement of the ride fare.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Location is a geographic point with an optional human-readable address.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// Ride is the authoritative record of a single ride request.
type Ride struct {
	ID                string        `json:"id"`
	PassengerID       string        `json:"passenger_id"`
	DriverID          string        `json:"driver_id,omitempty"`
	Status            RideStatus    `json:"status"`
	Pickup            Location      `json:"pickup"`
	Dropoff           Location      `json:"dropoff"`
	VehicleType       VehicleType   `json:"vehicle_type"`
	EstimatedDistance float64       `json:"estimated_distance_km"`
	ActualDistance    *float64      `json:"actual_distance_km,omitempty"`
	EstimatedDuration int           `json:"estimated_duration_min"`
	ActualDuration    *int          `json:"actual_duration_min,omitempty"`
	Fare              FareBreakdown `json:"fare"`
	SurgeMultiplier   string        `json:"surge_multiplier"`
	PaymentMethod     PaymentMethod `json:"payment_method"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	PromoCode         string        `json:"promo_code,omitempty"`
	Notes             string        `json:"notes,omitempty"`

	CreatedAt          time.Time  `json:"created_at"`
	AcceptedAt         *time.Time `json:"accepted_at,omitempty"`
	ArrivedAt          *time.Time `json:"arrived_at,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CancelledBy        Actor      `json:"cancelled_by,omitempty"`

	DriverRating    *int `json:"driver_rating,omitempty"`
	PassengerRating *int `json:"passenger_rating,omitempty"`

	// Version increases by one on every write of the record.
	Version int64 `json:"version"`
}

// Stamp records the timestamp that belongs to entering status s.
func (r *Ride) Stamp(s RideStatus, at time.Time) {
	t := at
	switch s {
	case RideStatusAccepted:
		r.AcceptedAt = &t
	case RideStatusArrived:
		r.ArrivedAt = &t
	case RideStatusInProgress:
		r.StartedAt = &t
	case RideStatusCompleted:
		r.CompletedAt = &t
	case RideStatusCancelled:
		r.CancelledAt = &t
	}
}

// HasParticipant reports whether userID is the ride's passenger or driver.
func (r *Ride) HasParticipant(userID string) bool {
	return userID != "" && (r.PassengerID == userID || r.DriverID == userID)
}
