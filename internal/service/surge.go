package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ridecore/internal/domain"
	"ridecore/internal/geo"
	"ridecore/internal/pricing"
	"ridecore/internal/redis"
	"ridecore/internal/repository"
)

// SurgeConfig contains surge pricing configuration.
type SurgeConfig struct {
	RadiusKm       float64 // Radius to check for supply/demand
	LowSurgeRatio  float64 // Demand/supply ratio for 1.25x surge
	MedSurgeRatio  float64 // Demand/supply ratio for 1.5x surge
	HighSurgeRatio float64 // Demand/supply ratio for MaxSurge
	MaxSurge       float64
	// DemandSample bounds how many open requests are inspected.
	DemandSample int64
}

// DefaultSurgeConfig returns the default surge configuration.
func DefaultSurgeConfig() SurgeConfig {
	return SurgeConfig{
		RadiusKm:       5.0,
		LowSurgeRatio:  1.2,
		MedSurgeRatio:  1.5,
		HighSurgeRatio: 2.0,
		MaxSurge:       2.0,
		DemandSample:   500,
	}
}

// DemandSurge prices by the ratio of open ride requests to available
// drivers around the pickup point.
type DemandSurge struct {
	locations redis.GeoIndex
	rides     repository.RideStore
	logger    logrus.FieldLogger
	cfg       SurgeConfig
}

// NewDemandSurge creates a new DemandSurge.
func NewDemandSurge(locations redis.GeoIndex, rides repository.RideStore, logger logrus.FieldLogger, cfg SurgeConfig) *DemandSurge {
	return &DemandSurge{locations: locations, rides: rides, logger: logger, cfg: cfg}
}

var _ pricing.SurgePolicy = (*DemandSurge)(nil)

// Multiplier returns 1 when there is no surge, up to MaxSurge under high demand.
// Lookup failures fail open to no surge.
func (s *DemandSurge) Multiplier(ctx context.Context, lat, lng float64, _ time.Time) decimal.Decimal {
	supply, err := s.countDrivers(ctx, lat, lng)
	if err != nil {
		s.logger.WithError(err).Warn("surge supply lookup failed")
		return decimal.NewFromInt(1)
	}
	demand, err := s.countRequests(ctx, lat, lng)
	if err != nil {
		s.logger.WithError(err).Warn("surge demand lookup failed")
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromFloat(s.calculate(supply, demand))
}

func (s *DemandSurge) countDrivers(ctx context.Context, lat, lng float64) (int, error) {
	entries, err := s.locations.Nearby(ctx, lat, lng, s.cfg.RadiusKm)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.Available {
			n++
		}
	}
	return n, nil
}

func (s *DemandSurge) countRequests(ctx context.Context, lat, lng float64) (int, error) {
	rides, err := s.rides.ListByStatus(ctx, domain.RideStatusRequesting, s.cfg.DemandSample)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range rides {
		if geo.HaversineKm(lat, lng, r.Pickup.Lat, r.Pickup.Lng) <= s.cfg.RadiusKm {
			n++
		}
	}
	return n, nil
}

// calculate determines the multiplier based on the demand/supply ratio.
func (s *DemandSurge) calculate(supply, demand int) float64 {
	if supply == 0 {
		if demand > 0 {
			return s.cfg.MaxSurge
		}
		return 1.0
	}

	ratio := float64(demand) / float64(supply)
	switch {
	case ratio >= s.cfg.HighSurgeRatio:
		return s.cfg.MaxSurge
	case ratio >= s.cfg.MedSurgeRatio:
		return 1.5
	case ratio >= s.cfg.LowSurgeRatio:
		return 1.25
	default:
		return 1.0
	}
}
