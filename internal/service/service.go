package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jvaldez-dev/mlm-rewards/config"
	"github.com/jvaldez-dev/mlm-rewards/internal/models"
	"github.com/jvaldez-dev/mlm-rewards/utils"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service struct {
	repo       Repository
	cache      *redis.Client
	logger     *utils.Logger
	config     *config.Config
	binaryPlan BinaryPlanConfig
}

type Repository interface {
	GetUser(ctx context.Context, userID uint) (*models.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User, tx *gorm.DB) error
	UpdateUser(ctx context.Context, user *models.User, tx *gorm.DB) error
	GetAllUserIDs(ctx context.Context) ([]uint, error)
	CreditWalletBalance(ctx context.Context, userID uint, amount decimal.Decimal, tx *gorm.DB) error
	AdvanceUserRank(ctx context.Context, userID, fromRankID, toRankID uint, tx *gorm.DB) (bool, error)

	GetChildren(ctx context.Context, parentIDs []uint) ([]*models.User, error)
	GetChildrenPage(ctx context.Context, parentID uint, offset, limit int, filter models.DownlineFilter) ([]*models.User, error)
	CountChildren(ctx context.Context, parentID uint, filter models.DownlineFilter) (int64, error)
	CountDirectReferrals(ctx context.Context, userID uint) (int64, error)
	CountUsersCreatedSince(ctx context.Context, userIDs []uint, since time.Time) (int64, error)
	SumCompletedPurchases(ctx context.Context, userIDs []uint) (decimal.Decimal, error)
	SumProcessedRebates(ctx context.Context, userID uint) (decimal.Decimal, error)

	GetPurchase(ctx context.Context, purchaseID uint) (*models.Purchase, error)
	CreatePurchase(ctx context.Context, purchase *models.Purchase) error
	UpdatePurchaseStatus(ctx context.Context, purchaseID uint, status string) error
	GetProduct(ctx context.Context, productID uint) (*models.Product, error)
	CreateProduct(ctx context.Context, product *models.Product) error
	SumPersonalPVByUser(ctx context.Context, from, to time.Time) (map[uint]decimal.Decimal, error)
	CountReferralsBySponsor(ctx context.Context, from, to time.Time) (map[uint]int64, error)

	GetConfigsForProduct(ctx context.Context, productID uint) (map[int]models.RebateConfig, error)
	GetConfig(ctx context.Context, productID uint, level int) (*models.RebateConfig, error)
	SaveConfig(ctx context.Context, cfg *models.RebateConfig) error

	CreateRebates(ctx context.Context, rebates []models.Rebate) error
	GetRebatesByPurchase(ctx context.Context, purchaseID uint) ([]models.Rebate, error)
	GetPendingRebates(ctx context.Context) ([]*models.Rebate, error)
	ClaimRebateProcessed(ctx context.Context, rebateID string, tx *gorm.DB) (bool, error)
	MarkRebateFailed(ctx context.Context, rebateID, reason string) error

	GetPlacement(ctx context.Context, userID uint) (*models.BinaryPlacement, error)
	GetAllPlacements(ctx context.Context) (map[uint]*models.BinaryPlacement, error)
	CreatePlacement(ctx context.Context, placement *models.BinaryPlacement, tx *gorm.DB) error
	UpdatePlacement(ctx context.Context, placement *models.BinaryPlacement, tx *gorm.DB) error
	UpsertMonthlyPerformance(ctx context.Context, perf *models.MonthlyPerformance) error
	GetMonthlyPerformance(ctx context.Context, userID uint, year, month int) (*models.MonthlyPerformance, error)

	GetRank(ctx context.Context, rankID uint) (*models.Rank, error)
	GetRankByLevel(ctx context.Context, level int) (*models.Rank, error)
	CreateRankAdvancement(ctx context.Context, advancement *models.RankAdvancement, tx *gorm.DB) error
	GetRankAdvancements(ctx context.Context, userID uint) ([]models.RankAdvancement, error)

	BeginTransaction(ctx context.Context) (*gorm.DB, error)
	Commit(tx *gorm.DB) error
	Rollback(tx *gorm.DB)
}

func NewService(repo Repository, cache *redis.Client, cfg *config.Config, logger *utils.Logger) *Service {
	return &Service{
		repo:       repo,
		cache:      cache,
		logger:     logger,
		config:     cfg,
		binaryPlan: DefaultBinaryPlan(),
	}
}

// CreateUser registers a member under the sponsor owning the referral code
// (empty code creates a root account), assigns the starting rank and places
// the account into the binary tree.
func (s *Service) CreateUser(ctx context.Context, name, email, sponsorCode string) (*models.User, error) {
	var sponsorID *uint
	if sponsorCode != "" {
		sponsor, err := s.repo.GetUserByReferralCode(ctx, sponsorCode)
		if err != nil {
			return nil, err
		}
		if sponsor == nil {
			return nil, fmt.Errorf("sponsor with code %s: %w", sponsorCode, ErrNotFound)
		}
		sponsorID = &sponsor.ID
	}

	startingRank, err := s.repo.GetRankByLevel(ctx, 1)
	if err != nil {
		return nil, err
	}
	if startingRank == nil {
		return nil, fmt.Errorf("starting rank: %w", ErrNotFound)
	}

	code, err := utils.GenerateReferralCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate referral code: %w", err)
	}

	user := &models.User{
		Name:          name,
		Email:         email,
		ReferralCode:  code,
		SponsorID:     sponsorID,
		RankID:        startingRank.ID,
		WalletBalance: decimal.Zero,
	}

	tx, err := s.repo.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateUser(ctx, user, tx); err != nil {
		s.repo.Rollback(tx)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if sponsorID != nil {
		if err := s.placeInBinaryTree(ctx, *sponsorID, user.ID, tx); err != nil {
			s.repo.Rollback(tx)
			return nil, fmt.Errorf("failed to place user in binary tree: %w", err)
		}
	}

	if err := s.repo.Commit(tx); err != nil {
		return nil, err
	}

	s.logger.Infof("Created user %d (sponsor %v)", user.ID, sponsorID)
	return user, nil
}

// CompletePurchase is the checkout collaborator boundary: it marks the
// purchase completed and computes its pending rebate rows. Wallets are only
// touched later by ProcessPendingRebates.
func (s *Service) CompletePurchase(ctx context.Context, purchaseID uint) error {
	purchase, err := s.repo.GetPurchase(ctx, purchaseID)
	if err != nil {
		return err
	}
	if purchase == nil {
		return fmt.Errorf("purchase %d: %w", purchaseID, ErrNotFound)
	}
	if purchase.Status == models.PurchaseStatusCompleted {
		return nil
	}

	if err := s.repo.UpdatePurchaseStatus(ctx, purchaseID, models.PurchaseStatusCompleted); err != nil {
		return err
	}

	if _, err := s.ComputeRebatesForPurchase(ctx, purchaseID); err != nil {
		return fmt.Errorf("failed to compute rebates for purchase %d: %w", purchaseID, err)
	}
	return nil
}

func (s *Service) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	return s.repo.GetUser(ctx, userID)
}
