package domain

import (
	"errors"
	"fmt"
	"strings"
)

// VehicleType is the service class a ride is booked for.
type VehicleType string

const (
	VehicleTypeBike     VehicleType = "bike"
	VehicleTypeCar      VehicleType = "car"
	VehicleTypeBusiness VehicleType = "business"
)

// VehicleTypes lists the supported vehicle types.
var VehicleTypes = []VehicleType{VehicleTypeBike, VehicleTypeCar, VehicleTypeBusiness}

// ErrUnknownVehicleType is returned for a vehicle type outside the closed set.
var ErrUnknownVehicleType = errors.New("unknown vehicle type")

// ParseVehicleType normalises s and rejects anything outside the closed set.
func ParseVehicleType(s string) (VehicleType, error) {
	vt := VehicleType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range VehicleTypes {
		if vt == known {
			return vt, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVehicleType, s)
}

// Money is an amount in minor currency units.
type Money int64

// FareBreakdown is the itemised price of a ride for one vehicle type.
type FareBreakdown struct {
	VehicleType     VehicleType `json:"vehicle_type"`
	DisplayName     string      `json:"display_name"`
	Currency        string      `json:"currency"`
	DistanceKm      float64     `json:"distance_km"`
	DurationMinutes int         `json:"duration_min"`
	SurgeMultiplier string      `json:"surge_multiplier"`

	BaseFare     Money `json:"base_fare"`
	DistanceFare Money `json:"distance_fare"`
	TimeFare     Money `json:"time_fare"`
	SurgeFare    Money `json:"surge_fare"`
	Discount     Money `json:"discount"`
	Total        Money `json:"total"`

	PromoCode   string `json:"promo_code,omitempty"`
	PromoReason string `json:"promo_reason,omitempty"`
}

// Subtotal is the fare before any promotional discount.
func (f FareBreakdown) Subtotal() Money {
	return f.BaseFare + f.DistanceFare + f.TimeFare + f.SurgeFare
}

// Balanced reports whether the components add up to the total.
func (f FareBreakdown) Balanced() bool {
	return f.Total == f.Subtotal()-f.Discount && f.Total >= 0 && f.Discount <= f.Subtotal()
}
