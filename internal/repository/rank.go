package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jvaldez-dev/mlm-rewards/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) GetRank(ctx context.Context, rankID uint) (*models.Rank, error) {
	var rank models.Rank
	err := r.db.WithContext(ctx).First(&rank, "id = ?", rankID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get rank %d: %w", rankID, err)
	}
	return &rank, nil
}

func (r *Repository) GetRankByLevel(ctx context.Context, level int) (*models.Rank, error) {
	var rank models.Rank
	err := r.db.WithContext(ctx).First(&rank, "level = ?", level).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get rank level %d: %w", level, err)
	}
	return &rank, nil
}

func (r *Repository) CreateRankAdvancement(ctx context.Context, advancement *models.RankAdvancement, tx *gorm.DB) error {
	db := tx
	if tx == nil {
		db = r.db
	}
	return db.WithContext(ctx).Create(advancement).Error
}

func (r *Repository) GetRankAdvancements(ctx context.Context, userID uint) ([]models.RankAdvancement, error) {
	var advancements []models.RankAdvancement
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&advancements).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get rank advancements for user %d: %w", userID, err)
	}
	return advancements, nil
}
