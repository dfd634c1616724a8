package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jvaldez-dev/mlm-rewards/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *Repository) GetPlacement(ctx context.Context, userID uint) (*models.BinaryPlacement, error) {
	var placement models.BinaryPlacement
	err := r.db.WithContext(ctx).First(&placement, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get placement for user %d: %w", userID, err)
	}
	return &placement, nil
}

func (r *Repository) CreatePlacement(ctx context.Context, placement *models.BinaryPlacement, tx *gorm.DB) error {
	db := tx
	if tx == nil {
		db = r.db
	}
	return db.WithContext(ctx).Create(placement).Error
}

func (r *Repository) UpdatePlacement(ctx context.Context, placement *models.BinaryPlacement, tx *gorm.DB) error {
	db := tx
	if tx == nil {
		db = r.db
	}
	return db.WithContext(ctx).Save(placement).Error
}

// GetAllPlacements loads the whole binary placement relation in one scan.
// The snapshot run builds an in-memory adjacency map from it instead of
// chasing per-node pointer queries.
func (r *Repository) GetAllPlacements(ctx context.Context) (map[uint]*models.BinaryPlacement, error) {
	var placements []*models.BinaryPlacement
	if err := r.db.WithContext(ctx).Find(&placements).Error; err != nil {
		return nil, fmt.Errorf("failed to load placements: %w", err)
	}

	byUser := make(map[uint]*models.BinaryPlacement, len(placements))
	for _, p := range placements {
		byUser[p.UserID] = p
	}
	return byUser, nil
}

// UpsertMonthlyPerformance writes one user's period snapshot. The conflict
// target (user_id, year, month) makes a re-run overwrite the previous
// snapshot instead of accumulating on top of it.
func (r *Repository) UpsertMonthlyPerformance(ctx context.Context, perf *models.MonthlyPerformance) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "year"}, {Name: "month"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"personal_pv", "left_leg_pv", "right_leg_pv", "total_group_pv",
				"direct_referral_bonus", "level_commissions", "group_volume_bonus",
				"total_earnings", "computed_at",
			}),
		}).
		Create(perf).Error
	if err != nil {
		return fmt.Errorf("failed to upsert monthly performance for user %d: %w", perf.UserID, err)
	}
	return nil
}

func (r *Repository) GetMonthlyPerformance(ctx context.Context, userID uint, year, month int) (*models.MonthlyPerformance, error) {
	var perf models.MonthlyPerformance
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND year = ? AND month = ?", userID, year, month).
		First(&perf).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get monthly performance: %w", err)
	}
	return &perf, nil
}
