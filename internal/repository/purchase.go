package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jvaldez-dev/mlm-rewards/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func (r *Repository) GetPurchase(ctx context.Context, purchaseID uint) (*models.Purchase, error) {
	var purchase models.Purchase
	err := r.db.WithContext(ctx).
		Preload("Product").
		First(&purchase, "id = ?", purchaseID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get purchase %d: %w", purchaseID, err)
	}
	return &purchase, nil
}

func (r *Repository) CreatePurchase(ctx context.Context, purchase *models.Purchase) error {
	return r.db.WithContext(ctx).Create(purchase).Error
}

func (r *Repository) UpdatePurchaseStatus(ctx context.Context, purchaseID uint, status string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ?", purchaseID).
		Update("status", status)

	if res.Error != nil {
		return fmt.Errorf("failed to update purchase status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("purchase %d not found for status update", purchaseID)
	}
	return nil
}

func (r *Repository) GetProduct(ctx context.Context, productID uint) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).First(&product, "id = ?", productID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get product %d: %w", productID, err)
	}
	return &product, nil
}

func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// SumPersonalPVByUser returns the period's point volume grouped per buyer
// in a single query.
func (r *Repository) SumPersonalPVByUser(ctx context.Context, from, to time.Time) (map[uint]decimal.Decimal, error) {
	var rows []struct {
		UserID uint
		PV     decimal.Decimal
	}

	err := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Joins("JOIN products ON products.id = purchases.product_id").
		Where("purchases.status = ? AND purchases.created_at >= ? AND purchases.created_at < ?",
			models.PurchaseStatusCompleted, from, to).
		Select("purchases.user_id AS user_id, COALESCE(SUM(products.point_value * purchases.quantity),0) AS pv").
		Group("purchases.user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum personal PV per user: %w", err)
	}

	pv := make(map[uint]decimal.Decimal, len(rows))
	for _, row := range rows {
		pv[row.UserID] = row.PV
	}
	return pv, nil
}

// CountReferralsBySponsor returns the number of accounts each sponsor
// signed up inside the period, grouped in a single query.
func (r *Repository) CountReferralsBySponsor(ctx context.Context, from, to time.Time) (map[uint]int64, error) {
	var rows []struct {
		SponsorID uint
		Total     int64
	}

	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("sponsor_id IS NOT NULL AND created_at >= ? AND created_at < ?", from, to).
		Select("sponsor_id AS sponsor_id, COUNT(*) AS total").
		Group("sponsor_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count referrals per sponsor: %w", err)
	}

	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.SponsorID] = row.Total
	}
	return counts, nil
}
