// Package pricing computes ride fares and promotional discounts.
package pricing

import "ridecore/internal/domain"

// Rate is the tariff for one vehicle type, in minor currency units.
type Rate struct {
	DisplayName string
	BaseFare    domain.Money
	PerKm       domain.Money
	PerMinute   domain.Money
	MinFare     domain.Money
	// SpeedKmh is the assumed average speed used for duration and ETA estimates.
	SpeedKmh float64
}

// DefaultCurrency is the ISO code of the minor units in DefaultRates.
const DefaultCurrency = "VND"

// DefaultRates is the tariff table for each supported vehicle type.
var DefaultRates = map[domain.VehicleType]Rate{
	domain.VehicleTypeBike: {
		DisplayName: "Motorbike",
		BaseFare:    10000,
		PerKm:       3000,
		PerMinute:   500,
		MinFare:     15000,
		SpeedKmh:    25,
	},
	domain.VehicleTypeCar: {
		DisplayName: "Car (4 seats)",
		BaseFare:    15000,
		PerKm:       5000,
		PerMinute:   1000,
		MinFare:     25000,
		SpeedKmh:    30,
	},
	domain.VehicleTypeBusiness: {
		DisplayName: "Car (7 seats)",
		BaseFare:    25000,
		PerKm:       8000,
		PerMinute:   1500,
		MinFare:     50000,
		SpeedKmh:    25,
	},
}

// SpeedFor returns the assumed speed for vt, falling back to the car speed.
func SpeedFor(vt domain.VehicleType) float64 {
	if r, ok := DefaultRates[vt]; ok {
		return r.SpeedKmh
	}
	return DefaultRates[domain.VehicleTypeCar].SpeedKmh
}
