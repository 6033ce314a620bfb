package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"ridecore/internal/repository"
)

// ReconcileConfig controls how often ride views are repaired.
type ReconcileConfig struct {
	// Interval between drains of the repair queue.
	Interval time.Duration
	// SweepInterval between full scans of the ride keyspace; zero disables sweeps.
	SweepInterval time.Duration
	BatchSize     int64
}

// DefaultReconcileConfig returns the default reconcile configuration.
func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		Interval:      10 * time.Second,
		SweepInterval: 15 * time.Minute,
		BatchSize:     100,
	}
}

// Reconciler repairs ride views left behind by partially failed writes.
type Reconciler struct {
	rides  repository.RideStore
	logger logrus.FieldLogger
	cfg    ReconcileConfig
}

// NewReconciler creates a new Reconciler.
func NewReconciler(rides repository.RideStore, logger logrus.FieldLogger, cfg ReconcileConfig) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultReconcileConfig().Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultReconcileConfig().BatchSize
	}
	return &Reconciler{rides: rides, logger: logger, cfg: cfg}
}

// RepairPending reindexes rides from the repair queue and returns how many
// were repaired. Rides that fail again stay queued.
func (r *Reconciler) RepairPending(ctx context.Context) (int, error) {
	ids, err := r.rides.PendingRepairs(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, id := range ids {
		if r.repair(ctx, id, "queued") {
			repaired++
		}
	}
	return repaired, nil
}

// Sweep verifies every stored ride and reindexes the ones whose views
// disagree with the record.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	var cursor uint64
	repaired := 0
	for {
		ids, next, err := r.rides.ScanIDs(ctx, cursor, r.cfg.BatchSize)
		if err != nil {
			return repaired, err
		}

		for _, id := range ids {
			ok, err := r.rides.Verify(ctx, id)
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			if err != nil {
				r.logger.WithError(err).WithField("ride_id", id).Warn("ride view check failed")
				continue
			}
			if !ok && r.repair(ctx, id, "sweep") {
				repaired++
			}
		}

		if next == 0 {
			return repaired, nil
		}
		cursor = next

		if err := ctx.Err(); err != nil {
			return repaired, err
		}
	}
}

func (r *Reconciler) repair(ctx context.Context, id, source string) bool {
	log := r.logger.WithFields(logrus.Fields{"ride_id": id, "source": source})
	if err := r.rides.Reindex(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("dropped repair for missing ride")
			return false
		}
		log.WithError(err).Warn("ride repair failed")
		return false
	}
	log.Info("ride views repaired")
	return true
}

// Run drains the repair queue and sweeps periodically until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	var sweep <-chan time.Time
	if r.cfg.SweepInterval > 0 {
		sweepTicker := time.NewTicker(r.cfg.SweepInterval)
		defer sweepTicker.Stop()
		sweep = sweepTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RepairPending(ctx); err != nil {
				r.logger.WithError(err).Warn("repair queue drain failed")
			}
		case <-sweep:
			n, err := r.Sweep(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				r.logger.WithError(err).Warn("ride view sweep failed")
			}
			r.logger.WithField("repaired", n).Debug("ride view sweep finished")
		}
	}
}
