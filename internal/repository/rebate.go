package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jvaldez-dev/mlm-rewards/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateRebates inserts pending rebate rows, skipping any (purchase, level)
// pair that already exists. Recomputing a purchase is therefore idempotent
// and never touches rows written by an earlier pass.
func (r *Repository) CreateRebates(ctx context.Context, rebates []models.Rebate) error {
	if len(rebates) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "purchase_id"}, {Name: "level"}},
			DoNothing: true,
		}).
		Create(&rebates).Error
	if err != nil {
		return fmt.Errorf("failed to create rebates: %w", err)
	}
	return nil
}

func (r *Repository) GetRebatesByPurchase(ctx context.Context, purchaseID uint) ([]models.Rebate, error) {
	var rebates []models.Rebate
	err := r.db.WithContext(ctx).
		Where("purchase_id = ?", purchaseID).
		Order("level ASC").
		Find(&rebates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get rebates for purchase %d: %w", purchaseID, err)
	}
	return rebates, nil
}

func (r *Repository) GetPendingRebates(ctx context.Context) ([]*models.Rebate, error) {
	var rebates []*models.Rebate
	err := r.db.WithContext(ctx).
		Where("status = ?", models.RebateStatusPending).
		Order("created_at ASC").
		Find(&rebates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get pending rebates: %w", err)
	}
	return rebates, nil
}

// ClaimRebateProcessed flips one pending row to processed. The WHERE on the
// current status is the claim: a row already taken by a concurrent worker
// (or a previous crashed run) yields RowsAffected == 0 and is reported as
// not claimed, not as an error.
func (r *Repository) ClaimRebateProcessed(ctx context.Context, rebateID string, tx *gorm.DB) (bool, error) {
	db := tx
	if tx == nil {
		db = r.db
	}

	now := time.Now()
	res := db.WithContext(ctx).
		Model(&models.Rebate{}).
		Where("id = ? AND status = ?", rebateID, models.RebateStatusPending).
		Updates(map[string]interface{}{
			"status":       models.RebateStatusProcessed,
			"processed_at": now,
		})

	if res.Error != nil {
		return false, fmt.Errorf("failed to claim rebate %s: %w", rebateID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkRebateFailed records a per-row failure so the batch can continue.
// Only pending rows can fail; a processed row is never rewritten.
func (r *Repository) MarkRebateFailed(ctx context.Context, rebateID, reason string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Rebate{}).
		Where("id = ? AND status = ?", rebateID, models.RebateStatusPending).
		Updates(map[string]interface{}{
			"status":      models.RebateStatusFailed,
			"fail_reason": reason,
		})

	if res.Error != nil {
		r.logger.Errorf("failed to mark rebate %s failed: %v", rebateID, res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("rebate already left pending state")
	}
	return nil
}
