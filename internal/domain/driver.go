package domain

import (
	"strings"
	"time"
)

// OnlineStatus represents a driver's presence.
type OnlineStatus string

const (
	OnlineStatusOnline  OnlineStatus = "online"
	OnlineStatusOffline OnlineStatus = "offline"
	OnlineStatusBusy    OnlineStatus = "busy"
)

// Driver represents a driver in the system.
type Driver struct {
	ID              string       `json:"id"`
	UserID          string       `json:"user_id"`
	LicenseNumber   string       `json:"license_number,omitempty"`
	VehicleID       string       `json:"vehicle_id"`
	CurrentLocation *Location    `json:"current_location,omitempty"`
	IsAvailable     bool         `json:"is_available"`
	OnlineStatus    OnlineStatus `json:"online_status"`
	Rating          float64      `json:"rating"`
	CompletedTrips  int          `json:"completed_trips"`
	TotalEarnings   Money        `json:"total_earnings"`
	CurrentRideID   string       `json:"current_ride_id,omitempty"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Dispatchable reports whether the driver may receive a new ride.
func (d *Driver) Dispatchable() bool {
	return d.IsAvailable && d.OnlineStatus == OnlineStatusOnline && d.CurrentRideID == ""
}

// VehicleStatus represents whether a vehicle may be used for rides.
type VehicleStatus string

const (
	VehicleStatusActive      VehicleStatus = "active"
	VehicleStatusInactive    VehicleStatus = "inactive"
	VehicleStatusMaintenance VehicleStatus = "maintenance"
)

// Vehicle is the car or bike a driver operates.
type Vehicle struct {
	ID          string        `json:"id"`
	Type        VehicleType   `json:"type"`
	Brand       string        `json:"brand"`
	Model       string        `json:"model"`
	Color       string        `json:"color"`
	PlateNumber string        `json:"plate_number"`
	Status      VehicleStatus `json:"status"`
}

// Serves reports whether the vehicle is active and of the requested type.
func (v *Vehicle) Serves(vt VehicleType) bool {
	return v.Status == VehicleStatusActive && strings.EqualFold(string(v.Type), string(vt))
}

// ReleaseOutcome describes why a driver is detached from a ride.
type ReleaseOutcome string

const (
	ReleaseCompleted ReleaseOutcome = "completed"
	ReleaseCancelled ReleaseOutcome = "cancelled"
)
