package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jvaldez-dev/mlm-rewards/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GetChildren returns the direct downline of every parent in one batched
// query. The genealogy walk issues one of these per level instead of one
// query per node.
func (r *Repository) GetChildren(ctx context.Context, parentIDs []uint) ([]*models.User, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}

	var children []*models.User
	err := r.db.WithContext(ctx).
		Where("sponsor_id IN ?", parentIDs).
		Order("created_at ASC, id ASC").
		Find(&children).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get children: %w", err)
	}
	return children, nil
}

// childOrders whitelists caller-supplied sort keys; id breaks ties so
// pagination stays stable either way.
var childOrders = map[string]string{
	"":                     "created_at ASC, id ASC",
	models.SortByCreatedAt: "created_at ASC, id ASC",
	models.SortByName:      "name ASC, id ASC",
}

func childQuery(db *gorm.DB, parentID uint, filter models.DownlineFilter) *gorm.DB {
	query := db.Model(&models.User{}).Where("sponsor_id = ?", parentID)
	if filter.RankID != nil {
		query = query.Where("rank_id = ?", *filter.RankID)
	}
	if filter.JoinedAfter != nil {
		query = query.Where("created_at >= ?", *filter.JoinedAfter)
	}
	return query
}

// GetChildrenPage returns one page of a user's direct downline matching the
// filter, ordered by creation time unless the filter names another sort key.
func (r *Repository) GetChildrenPage(ctx context.Context, parentID uint, offset, limit int, filter models.DownlineFilter) ([]*models.User, error) {
	order, ok := childOrders[filter.SortBy]
	if !ok {
		return nil, fmt.Errorf("unsupported sort key %q", filter.SortBy)
	}

	var children []*models.User
	err := childQuery(r.db.WithContext(ctx), parentID, filter).
		Order(order).
		Offset(offset).
		Limit(limit).
		Find(&children).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get children page: %w", err)
	}
	return children, nil
}

// CountChildren applies the same filter as GetChildrenPage so pagination
// totals match the filtered pages.
func (r *Repository) CountChildren(ctx context.Context, parentID uint, filter models.DownlineFilter) (int64, error) {
	var count int64
	err := childQuery(r.db.WithContext(ctx), parentID, filter).
		Count(&count).Error
	return count, err
}

func (r *Repository) CountDirectReferrals(ctx context.Context, userID uint) (int64, error) {
	return r.CountChildren(ctx, userID, models.DownlineFilter{})
}

// CountUsersCreatedSince counts members of the given id set created after
// the cutoff (used for the 30-day new-team-members metric).
func (r *Repository) CountUsersCreatedSince(ctx context.Context, userIDs []uint, since time.Time) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id IN ? AND created_at >= ?", userIDs, since).
		Count(&count).Error
	return count, err
}

// SumCompletedPurchases totals completed purchase amounts over a user id set.
func (r *Repository) SumCompletedPurchases(ctx context.Context, userIDs []uint) (decimal.Decimal, error) {
	if len(userIDs) == 0 {
		return decimal.Zero, nil
	}

	var sum decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("user_id IN ? AND status = ?", userIDs, models.PurchaseStatusCompleted).
		Select("COALESCE(SUM(total_amount),0)").
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum purchases: %w", err)
	}
	return sum, nil
}

// SumProcessedRebates totals processed rebate amounts credited to a user.
func (r *Repository) SumProcessedRebates(ctx context.Context, userID uint) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&models.Rebate{}).
		Where("receiver_id = ? AND status = ?", userID, models.RebateStatusProcessed).
		Select("COALESCE(SUM(amount),0)").
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum rebates: %w", err)
	}
	return sum, nil
}
