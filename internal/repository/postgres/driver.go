package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"ridecore/internal/domain"
	"ridecore/internal/repository"
)

// DriverRepository is a PostgreSQL implementation of repository.DriverRepository.
type DriverRepository struct {
	q Querier
}

// NewDriverRepository creates a new PostgreSQL driver repository.
func NewDriverRepository(db *sql.DB) *DriverRepository {
	return &DriverRepository{q: db}
}

var _ repository.DriverRepository = (*DriverRepository)(nil)

const driverColumns = `driver_id, user_id, COALESCE(license_number, ''), COALESCE(vehicle_id, ''),
	current_lat, current_lng, is_available, online_status, rating, completed_trips,
	total_earnings, COALESCE(current_ride_id, ''), updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDriver(row rowScanner) (*domain.Driver, error) {
	var (
		d        domain.Driver
		lat, lng sql.NullFloat64
	)
	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.LicenseNumber,
		&d.VehicleID,
		&lat,
		&lng,
		&d.IsAvailable,
		&d.OnlineStatus,
		&d.Rating,
		&d.CompletedTrips,
		&d.TotalEarnings,
		&d.CurrentRideID,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat.Valid && lng.Valid {
		d.CurrentLocation = &domain.Location{Lat: lat.Float64, Lng: lng.Float64}
	}
	return &d, nil
}

// GetByID retrieves a driver by ID.
func (r *DriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE driver_id = $1`

	driver, err := scanDriver(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, repository.Unavailable("get driver", err)
	}
	return driver, nil
}

// GetByIDs retrieves the drivers that exist among ids in a single query.
func (r *DriverRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Driver, error) {
	drivers := make(map[string]*domain.Driver, len(ids))
	if len(ids) == 0 {
		return drivers, nil
	}

	query := `SELECT ` + driverColumns + ` FROM drivers WHERE driver_id = ANY($1)`
	rows, err := r.q.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, repository.Unavailable("get drivers", err)
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, repository.Unavailable("scan driver", err)
		}
		drivers[d.ID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, repository.Unavailable("get drivers", err)
	}
	return drivers, nil
}

// UpdateLocation records the driver's last known position.
func (r *DriverRepository) UpdateLocation(ctx context.Context, id string, lat, lng float64) error {
	query := `UPDATE drivers SET current_lat = $2, current_lng = $3, updated_at = NOW() WHERE driver_id = $1`

	result, err := r.q.ExecContext(ctx, query, id, lat, lng)
	if err != nil {
		return repository.Unavailable("update driver location", err)
	}
	return requireRow(result)
}

// SetPresence changes online status and availability of a driver with no active ride.
func (r *DriverRepository) SetPresence(ctx context.Context, id string, status domain.OnlineStatus, available bool) error {
	query := `UPDATE drivers SET online_status = $2, is_available = $3, updated_at = NOW()
		WHERE driver_id = $1 AND current_ride_id IS NULL`

	result, err := r.q.ExecContext(ctx, query, id, status, available)
	if err != nil {
		return repository.Unavailable("set driver presence", err)
	}
	if err := requireRow(result); err != nil {
		return r.explainMiss(ctx, id)
	}
	return nil
}

// Claim atomically marks an available, online driver as busy with rideID.
func (r *DriverRepository) Claim(ctx context.Context, driverID, rideID string) error {
	query := `UPDATE drivers
		SET is_available = FALSE, online_status = 'busy', current_ride_id = $2, updated_at = NOW()
		WHERE driver_id = $1 AND is_available AND online_status = 'online' AND current_ride_id IS NULL`

	result, err := r.q.ExecContext(ctx, query, driverID, rideID)
	if err != nil {
		return repository.Unavailable("claim driver", err)
	}
	if err := requireRow(result); err != nil {
		return r.explainMiss(ctx, driverID)
	}
	return nil
}

// Release frees the driver if it is still attached to rideID. A completed
// ride also credits the driver's trip count and earnings.
func (r *DriverRepository) Release(ctx context.Context, driverID, rideID string, outcome domain.ReleaseOutcome, fare domain.Money) (bool, error) {
	var earned domain.Money
	var trips int
	if outcome == domain.ReleaseCompleted {
		earned, trips = fare, 1
	}

	query := `UPDATE drivers
		SET is_available = TRUE,
			online_status = CASE WHEN online_status = 'busy' THEN 'online' ELSE online_status END,
			current_ride_id = NULL,
			completed_trips = completed_trips + $3,
			total_earnings = total_earnings + $4,
			updated_at = NOW()
		WHERE driver_id = $1 AND current_ride_id = $2`

	result, err := r.q.ExecContext(ctx, query, driverID, rideID, trips, earned)
	if err != nil {
		return false, repository.Unavailable("release driver", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, repository.Unavailable("release driver", err)
	}
	return rows > 0, nil
}

// explainMiss tells a missing driver apart from one in the wrong state.
func (r *DriverRepository) explainMiss(ctx context.Context, id string) error {
	var exists bool
	err := r.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM drivers WHERE driver_id = $1)`, id).Scan(&exists)
	if err != nil {
		return repository.Unavailable("check driver", err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return fmt.Errorf("%w: %s", repository.ErrDriverUnavailable, id)
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
