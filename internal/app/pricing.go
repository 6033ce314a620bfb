package app

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ridecore/internal/config"
	"ridecore/internal/pricing"
	"ridecore/internal/redis"
	"ridecore/internal/repository"
	"ridecore/internal/service"
)

// NewSurgePolicy selects the surge policy named by the pricing config.
func NewSurgePolicy(cfg config.PricingConfig, locations redis.GeoIndex, rides repository.RideStore, logger logrus.FieldLogger) (pricing.SurgePolicy, error) {
	switch cfg.SurgeMode {
	case "", config.SurgeModeFlat:
		return pricing.FlatSurge{}, nil
	case config.SurgeModeTimeOfDay:
		loc, err := time.LoadLocation(cfg.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("surge time zone: %w", err)
		}
		return pricing.DefaultTimeOfDaySurge(loc), nil
	case config.SurgeModeDemand:
		return service.NewDemandSurge(locations, rides, logger, service.DefaultSurgeConfig()), nil
	default:
		return nil, fmt.Errorf("unknown surge mode %q", cfg.SurgeMode)
	}
}
