package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jvaldez-dev/mlm-rewards/internal/models"
	"github.com/jvaldez-dev/mlm-rewards/utils"
	"github.com/shopspring/decimal"
)

// BatchSummary reports the outcome of one batch pass. Per-item failures are
// counted here, never fatal to the run.
type BatchSummary struct {
	Processed int `json:"processed"`
	Advanced  int `json:"advanced"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// ComputeRebatesForPurchase walks the buyer's upline one hop per level and
// creates one pending rebate row for every level that has both a receiver
// and a non-zero payout rule. The chain running out before the configured
// depth produces fewer rows, not an error.
//
// Amounts are snapshotted into the rows at creation: later config edits
// never alter rebates already computed for a purchase.
func (s *Service) ComputeRebatesForPurchase(ctx context.Context, purchaseID uint) ([]models.Rebate, error) {
	purchase, err := s.repo.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if purchase == nil {
		return nil, fmt.Errorf("purchase %d: %w", purchaseID, ErrNotFound)
	}
	if purchase.Status != models.PurchaseStatusCompleted {
		return nil, fmt.Errorf("purchase %d is %s, rebates only apply to completed purchases", purchaseID, purchase.Status)
	}

	configs, err := s.repo.GetConfigsForProduct(ctx, purchase.ProductID)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		s.logger.Debugf("no rebate configs for product %d, purchase %d generates no rebates", purchase.ProductID, purchaseID)
		return nil, nil
	}

	buyer, err := s.repo.GetUser(ctx, purchase.UserID)
	if err != nil {
		return nil, err
	}
	if buyer == nil {
		return nil, fmt.Errorf("buyer %d: %w", purchase.UserID, ErrNotFound)
	}

	var rebates []models.Rebate
	sponsorID := buyer.SponsorID

	for level := 1; level <= s.config.MaxRebateLevel && sponsorID != nil; level++ {
		receiver, err := s.repo.GetUser(ctx, *sponsorID)
		if err != nil {
			return nil, err
		}
		if receiver == nil {
			// broken chain link, nothing above this point is reachable
			s.logger.Warnf("upline user %d of purchase %d no longer exists, stopping at level %d", *sponsorID, purchaseID, level)
			break
		}

		if cfg, ok := configs[level]; ok && !cfg.Value.IsZero() {
			rebates = append(rebates, models.Rebate{
				ID:          uuid.NewString(),
				PurchaseID:  purchase.ID,
				GeneratorID: purchase.UserID,
				ReceiverID:  receiver.ID,
				Level:       level,
				RewardType:  cfg.RewardType,
				ConfigValue: cfg.Value,
				Amount:      rebateAmount(cfg, purchase),
				Status:      models.RebateStatusPending,
			})
		}

		sponsorID = receiver.SponsorID
	}

	if err := s.repo.CreateRebates(ctx, rebates); err != nil {
		return nil, err
	}

	s.logger.Infof("Computed %d rebate row(s) for purchase %d", len(rebates), purchaseID)
	return rebates, nil
}

// rebateAmount applies one payout rule to a purchase. Percentage rebates are
// rounded half-up to the centavo exactly once, here.
func rebateAmount(cfg models.RebateConfig, purchase *models.Purchase) decimal.Decimal {
	if cfg.RewardType == models.RewardTypeFixed {
		return utils.RoundCentavos(cfg.Value)
	}
	return utils.ApplyPercentage(purchase.TotalAmount, cfg.Value)
}

// ProcessPendingRebates credits every pending rebate to its receiver's
// wallet. Each row is claimed by flipping its status inside the same DB
// transaction as the wallet credit, so a re-run (or a concurrent run) acts
// only on rows still pending and can never double-credit.
func (s *Service) ProcessPendingRebates(ctx context.Context) (*BatchSummary, error) {
	pending, err := s.repo.GetPendingRebates(ctx)
	if err != nil {
		return nil, err
	}

	summary := &BatchSummary{}

	for _, rebate := range pending {
		err := s.processRebate(ctx, rebate)
		switch {
		case err == nil:
			summary.Processed++
		case errors.Is(err, ErrAlreadyClaimed):
			// another run claimed the row between our read and our claim
			summary.Skipped++
		default:
			s.logger.Errorf("rebate %s failed: %v", rebate.ID, err)
			if markErr := s.repo.MarkRebateFailed(ctx, rebate.ID, err.Error()); markErr != nil {
				s.logger.Warnf("could not mark rebate %s failed: %v", rebate.ID, markErr)
			}
			summary.Failed++
		}
	}

	s.logger.Infof("Rebate pass: %d processed, %d failed, %d skipped", summary.Processed, summary.Failed, summary.Skipped)
	return summary, nil
}

func (s *Service) processRebate(ctx context.Context, rebate *models.Rebate) error {
	tx, err := s.repo.BeginTransaction(ctx)
	if err != nil {
		return err
	}

	claimed, err := s.repo.ClaimRebateProcessed(ctx, rebate.ID, tx)
	if err != nil {
		s.repo.Rollback(tx)
		return err
	}
	if !claimed {
		// benign race: another run already owns this row
		s.repo.Rollback(tx)
		return ErrAlreadyClaimed
	}

	if err := s.repo.CreditWalletBalance(ctx, rebate.ReceiverID, rebate.Amount, tx); err != nil {
		s.repo.Rollback(tx)
		return err
	}

	return s.repo.Commit(tx)
}
