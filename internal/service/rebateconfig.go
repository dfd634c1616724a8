package service

import (
	"context"
	"fmt"

	"github.com/jvaldez-dev/mlm-rewards/internal/models"
	"github.com/shopspring/decimal"
)

var maxPercentage = decimal.NewFromInt(100)

// UpsertRebateConfig validates and writes one (product, level) payout rule.
// Malformed rules are rejected here, at write time; the payout path trusts
// what it reads.
func (s *Service) UpsertRebateConfig(ctx context.Context, cfg *models.RebateConfig) error {
	if cfg.Level < 1 {
		return fmt.Errorf("%w: level must be >= 1", ErrInvalidConfig)
	}

	product, err := s.repo.GetProduct(ctx, cfg.ProductID)
	if err != nil {
		return err
	}
	if product == nil {
		return fmt.Errorf("product %d: %w", cfg.ProductID, ErrNotFound)
	}

	switch cfg.RewardType {
	case models.RewardTypePercentage:
		if cfg.Value.IsNegative() || cfg.Value.GreaterThan(maxPercentage) {
			return fmt.Errorf("%w: percentage must be within [0,100], got %s", ErrInvalidConfig, cfg.Value)
		}
	case models.RewardTypeFixed:
		if cfg.Value.IsNegative() {
			return fmt.Errorf("%w: fixed amount must be >= 0, got %s", ErrInvalidConfig, cfg.Value)
		}
	default:
		return fmt.Errorf("%w: unknown reward type %q", ErrInvalidConfig, cfg.RewardType)
	}

	if err := s.repo.SaveConfig(ctx, cfg); err != nil {
		return fmt.Errorf("failed to save rebate config: %w", err)
	}

	s.logger.Infof("Saved rebate config product=%d level=%d %s=%s", cfg.ProductID, cfg.Level, cfg.RewardType, cfg.Value)
	return nil
}
