package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jvaldez-dev/mlm-rewards/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func (r *Repository) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Preload("Rank").First(&user, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *Repository) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "referral_code = ?", code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by referral code %s: %w", code, err)
	}
	return &user, nil
}

func (r *Repository) CreateUser(ctx context.Context, user *models.User, tx *gorm.DB) error {
	db := tx
	if tx == nil {
		db = r.db
	}
	return db.WithContext(ctx).Create(user).Error
}

func (r *Repository) UpdateUser(ctx context.Context, user *models.User, tx *gorm.DB) error {
	db := tx
	if tx == nil {
		db = r.db
	}
	return db.WithContext(ctx).Save(user).Error
}

// GetAllUserIDs returns every user id ordered ascending. Batch passes
// (snapshots, rank advancement) iterate this list.
func (r *Repository) GetAllUserIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	return ids, nil
}

// CreditWalletBalance adds amount to the receiver's wallet with a single
// atomic UPDATE. Never read-modify-write here: concurrent rebate workers
// crediting the same receiver must not lose updates.
func (r *Repository) CreditWalletBalance(ctx context.Context, userID uint, amount decimal.Decimal, tx *gorm.DB) error {
	db := tx
	if tx == nil {
		db = r.db
	}

	res := db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("wallet_balance", gorm.Expr("wallet_balance + ?", amount))

	if res.Error != nil {
		r.logger.Errorf("failed to credit wallet of user %d: %v", userID, res.Error)
		return fmt.Errorf("failed to credit wallet: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %d not found for wallet credit", userID)
	}
	return nil
}

// AdvanceUserRank moves the user from one rank row to another. The guard on
// the current rank makes the update a claim: a concurrent advancement that
// already changed the rank leaves RowsAffected at zero.
func (r *Repository) AdvanceUserRank(ctx context.Context, userID, fromRankID, toRankID uint, tx *gorm.DB) (bool, error) {
	db := tx
	if tx == nil {
		db = r.db
	}

	res := db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND rank_id = ?", userID, fromRankID).
		Update("rank_id", toRankID)

	if res.Error != nil {
		return false, fmt.Errorf("failed to advance rank of user %d: %w", userID, res.Error)
	}
	return res.RowsAffected > 0, nil
}
