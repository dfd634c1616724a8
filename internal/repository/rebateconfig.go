package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jvaldez-dev/mlm-rewards/internal/models"
	"gorm.io/gorm"
)

// GetConfigsForProduct returns the payout rules of a product keyed by level.
func (r *Repository) GetConfigsForProduct(ctx context.Context, productID uint) (map[int]models.RebateConfig, error) {
	var configs []models.RebateConfig
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("level ASC").
		Find(&configs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get rebate configs for product %d: %w", productID, err)
	}

	byLevel := make(map[int]models.RebateConfig, len(configs))
	for _, cfg := range configs {
		byLevel[cfg.Level] = cfg
	}
	return byLevel, nil
}

func (r *Repository) GetConfig(ctx context.Context, productID uint, level int) (*models.RebateConfig, error) {
	var cfg models.RebateConfig
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND level = ?", productID, level).
		First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rebate config: %w", err)
	}
	return &cfg, nil
}

// SaveConfig creates or replaces the rule for (product, level).
func (r *Repository) SaveConfig(ctx context.Context, cfg *models.RebateConfig) error {
	var existing models.RebateConfig
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND level = ?", cfg.ProductID, cfg.Level).
		First(&existing).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return r.db.WithContext(ctx).Create(cfg).Error
		}
		return err
	}

	cfg.ID = existing.ID
	return r.db.WithContext(ctx).Save(cfg).Error
}
