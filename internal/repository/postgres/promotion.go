package postgres

import (
	"context"
	"database/sql"
	"errors"

	"ridecore/internal/domain"
	"ridecore/internal/repository"
)

// PromotionRepository is a PostgreSQL implementation of repository.PromotionRepository.
type PromotionRepository struct {
	db *sql.DB
}

// NewPromotionRepository creates a new PostgreSQL promotion repository.
func NewPromotionRepository(db *sql.DB) *PromotionRepository {
	return &PromotionRepository{db: db}
}

var _ repository.PromotionRepository = (*PromotionRepository)(nil)

// GetByCode retrieves a promotion by its code.
func (r *PromotionRepository) GetByCode(ctx context.Context, code string) (*domain.Promotion, error) {
	query := `SELECT promo_code, COALESCE(description, ''), discount_type, discount_value,
		COALESCE(max_discount, 0), COALESCE(min_order_value, 0), usage_limit, used_count,
		valid_from, valid_to, status
		FROM promotions WHERE promo_code = $1`

	var p domain.Promotion
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&p.Code,
		&p.Description,
		&p.DiscountType,
		&p.DiscountValue,
		&p.MaxDiscount,
		&p.MinOrderValue,
		&p.UsageLimit,
		&p.UsedCount,
		&p.ValidFrom,
		&p.ValidTo,
		&p.Status,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, repository.Unavailable("get promotion", err)
	}
	return &p, nil
}

// HasUsed reports whether userID already redeemed code.
func (r *PromotionRepository) HasUsed(ctx context.Context, code, userID string) (bool, error) {
	var used bool
	query := `SELECT EXISTS(SELECT 1 FROM promotion_usages WHERE promo_code = $1 AND user_id = $2)`
	if err := r.db.QueryRowContext(ctx, query, code, userID).Scan(&used); err != nil {
		return false, repository.Unavailable("check promotion usage", err)
	}
	return used, nil
}

// Redeem records one usage of code by userID. The per-user record and the
// bounded counter increment commit together or not at all.
func (r *PromotionRepository) Redeem(ctx context.Context, code, userID, rideID string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return repository.Unavailable("begin promotion redeem", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO promotion_usages (promo_code, user_id, ride_id, used_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (promo_code, user_id) DO NOTHING`,
		code, userID, rideID)
	if err != nil {
		return repository.Unavailable("record promotion usage", err)
	}
	if err = requireRow(result); err != nil {
		return repository.ErrPromoAlreadyUsed
	}

	result, err = tx.ExecContext(ctx,
		`UPDATE promotions SET used_count = used_count + 1
		WHERE promo_code = $1 AND status = 'active' AND used_count < usage_limit`,
		code)
	if err != nil {
		return repository.Unavailable("increment promotion usage", err)
	}
	if err = requireRow(result); err != nil {
		return repository.ErrPromoExhausted
	}

	if err = tx.Commit(); err != nil {
		return repository.Unavailable("commit promotion redeem", err)
	}
	return nil
}

// Unredeem reverses a Redeem for a ride that was never stored.
func (r *PromotionRepository) Unredeem(ctx context.Context, code, userID string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return repository.Unavailable("begin promotion unredeem", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM promotion_usages WHERE promo_code = $1 AND user_id = $2`, code, userID)
	if err != nil {
		return repository.Unavailable("delete promotion usage", err)
	}
	if err = requireRow(result); err != nil {
		// Nothing to undo.
		err = nil
		return tx.Commit()
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE promotions SET used_count = used_count - 1 WHERE promo_code = $1 AND used_count > 0`,
		code); err != nil {
		return repository.Unavailable("decrement promotion usage", err)
	}

	if err = tx.Commit(); err != nil {
		return repository.Unavailable("commit promotion unredeem", err)
	}
	return nil
}
