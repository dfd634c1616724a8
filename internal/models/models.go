package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Name          string          `json:"name"`
	Email         string          `gorm:"uniqueIndex" json:"email"`
	ReferralCode  string          `gorm:"uniqueIndex;type:varchar(16)" json:"referral_code"`
	SponsorID     *uint           `gorm:"index" json:"sponsor_id"` // nil for root accounts
	RankID        uint            `json:"rank_id"`
	WalletBalance decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"wallet_balance"`
	CreatedAt     time.Time       `json:"created_at"`

	Sponsor *User `gorm:"foreignKey:SponsorID" json:"sponsor,omitempty"`
	Rank    *Rank `gorm:"foreignKey:RankID" json:"rank,omitempty"`
}

const (
	SortByCreatedAt = "created_at"
	SortByName      = "name"
)

// DownlineFilter narrows and orders a downline page. The zero value matches
// every child, ordered by creation time.
type DownlineFilter struct {
	RankID      *uint      `json:"rank_id,omitempty"`
	JoinedAfter *time.Time `json:"joined_after,omitempty"`
	SortBy      string     `json:"sort_by,omitempty"` // created_at (default), name
}

type Rank struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	Level              int             `gorm:"uniqueIndex" json:"level"`
	Name               string          `json:"name"`
	MinDirectReferrals int             `json:"min_direct_referrals"`
	MinGroupVolume     decimal.Decimal `gorm:"type:decimal(20,2)" json:"min_group_volume"`
	Benefits           string          `json:"benefits"`
}

const (
	RewardTypePercentage = "percentage"
	RewardTypeFixed      = "fixed"
)

type RebateConfig struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	ProductID  uint            `gorm:"uniqueIndex:idx_product_level" json:"product_id"`
	Level      int             `gorm:"uniqueIndex:idx_product_level" json:"level"`
	RewardType string          `gorm:"type:varchar(16)" json:"reward_type"` // percentage, fixed
	Value      decimal.Decimal `gorm:"type:decimal(20,2)" json:"value"`
}

type Product struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `gorm:"type:decimal(20,2)" json:"price"`
	PointValue decimal.Decimal `gorm:"type:decimal(20,2)" json:"point_value"`
}

const (
	PurchaseStatusPending   = "pending"
	PurchaseStatusCompleted = "completed"
	PurchaseStatusCancelled = "cancelled"
)

type Purchase struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	UserID      uint            `gorm:"index" json:"user_id"`
	ProductID   uint            `gorm:"index" json:"product_id"`
	Quantity    int             `gorm:"default:1" json:"quantity"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(20,2)" json:"total_amount"`
	Status      string          `gorm:"default:pending" json:"status"` // pending, completed, cancelled
	CreatedAt   time.Time       `json:"created_at"`

	User    *User    `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

const (
	RebateStatusPending   = "pending"
	RebateStatusProcessed = "processed"
	RebateStatusFailed    = "failed"
)

// Rebate is one per-level payout row generated by a completed purchase.
// (purchase_id, level) is unique so recomputation can never duplicate a row.
type Rebate struct {
	ID          string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PurchaseID  uint            `gorm:"uniqueIndex:idx_purchase_level" json:"purchase_id"`
	GeneratorID uint            `gorm:"index" json:"generator_id"`
	ReceiverID  uint            `gorm:"index" json:"receiver_id"`
	Level       int             `gorm:"uniqueIndex:idx_purchase_level" json:"level"`
	RewardType  string          `gorm:"type:varchar(16)" json:"reward_type"`
	ConfigValue decimal.Decimal `gorm:"type:decimal(20,2)" json:"config_value"` // percentage or fixed amount, per RewardType
	Amount      decimal.Decimal `gorm:"type:decimal(20,2)" json:"amount"`
	Status      string          `gorm:"default:pending;index" json:"status"` // pending, processed, failed
	FailReason  string          `json:"fail_reason,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

// BinaryPlacement holds the left/right leg slots of the binary plan.
// This is a separate relation from User.SponsorID: the sponsor chain drives
// rebates, the placement tree drives leg point-volume.
type BinaryPlacement struct {
	UserID  uint  `gorm:"primaryKey" json:"user_id"`
	LeftID  *uint `json:"left_id"`
	RightID *uint `json:"right_id"`
}

type MonthlyPerformance struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"uniqueIndex:idx_user_period" json:"user_id"`
	Year   int  `gorm:"uniqueIndex:idx_user_period" json:"year"`
	Month  int  `gorm:"uniqueIndex:idx_user_period" json:"month"`

	PersonalPV   decimal.Decimal `gorm:"type:decimal(20,2)" json:"personal_pv"`
	LeftLegPV    decimal.Decimal `gorm:"type:decimal(20,2)" json:"left_leg_pv"`
	RightLegPV   decimal.Decimal `gorm:"type:decimal(20,2)" json:"right_leg_pv"`
	TotalGroupPV decimal.Decimal `gorm:"type:decimal(20,2)" json:"total_group_pv"`

	DirectReferralBonus decimal.Decimal `gorm:"type:decimal(20,2)" json:"direct_referral_bonus"`
	LevelCommissions    decimal.Decimal `gorm:"type:decimal(20,2)" json:"level_commissions"`
	GroupVolumeBonus    decimal.Decimal `gorm:"type:decimal(20,2)" json:"group_volume_bonus"`
	TotalEarnings       decimal.Decimal `gorm:"type:decimal(20,2)" json:"total_earnings"`

	ComputedAt time.Time `json:"computed_at"`
}

// RankAdvancement is an immutable audit row, appended on every committed
// rank transition.
type RankAdvancement struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID     uint      `gorm:"index" json:"user_id"`
	FromRankID uint      `json:"from_rank_id"`
	ToRankID   uint      `json:"to_rank_id"`
	CreatedAt  time.Time `json:"created_at"`
}
