package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jvaldez-dev/mlm-rewards/config"
	"github.com/jvaldez-dev/mlm-rewards/internal/models"
	"github.com/jvaldez-dev/mlm-rewards/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// fakeRepo is an in-memory Repository used by the service tests. It mirrors
// the semantics the real gorm repository guarantees: claim updates guarded
// by current status, RowsAffected-style booleans, stable child ordering.
type fakeRepo struct {
	mu sync.Mutex

	users        map[uint]*models.User
	ranks        map[uint]*models.Rank
	products     map[uint]*models.Product
	purchases    map[uint]*models.Purchase
	configs      map[uint]map[int]models.RebateConfig
	rebates      map[string]*models.Rebate
	placements   map[uint]*models.BinaryPlacement
	performances map[string]*models.MonthlyPerformance
	advancements []models.RankAdvancement

	nextID uint

	// per-transaction undo logs keyed by the token BeginTransaction hands
	// out; Rollback replays one log in reverse, mirroring what the real DB
	// transaction would discard. Keying by token keeps concurrent
	// transactions from reverting each other's writes.
	txLogs map[*gorm.DB][]func()
}

func (f *fakeRepo) recordUndo(tx *gorm.DB, undo func()) {
	if undos, ok := f.txLogs[tx]; ok {
		f.txLogs[tx] = append(undos, undo)
	}
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:        make(map[uint]*models.User),
		ranks:        make(map[uint]*models.Rank),
		products:     make(map[uint]*models.Product),
		purchases:    make(map[uint]*models.Purchase),
		configs:      make(map[uint]map[int]models.RebateConfig),
		rebates:      make(map[string]*models.Rebate),
		placements:   make(map[uint]*models.BinaryPlacement),
		performances: make(map[string]*models.MonthlyPerformance),
		txLogs:       make(map[*gorm.DB][]func()),
	}
}

func newTestService(repo *fakeRepo) *Service {
	logger := utils.InitLogger()
	logger.SetLevel(logrus.ErrorLevel)
	cfg := &config.Config{
		MaxRebateLevel:     10,
		MetricsCacheTTLSec: 60,
	}
	return NewService(repo, nil, cfg, logger)
}

func (f *fakeRepo) allocID() uint {
	f.nextID++
	return f.nextID
}

// --- users ---

// GetUser returns a copy, like a fresh row scan would; callers racing an
// update never observe a half-written struct.
func (f *fakeRepo) GetUser(_ context.Context, userID uint) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (f *fakeRepo) GetUserByReferralCode(_ context.Context, code string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.ReferralCode == code {
			copied := *user
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) CreateUser(_ context.Context, user *models.User, tx *gorm.DB) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user.ID == 0 {
		user.ID = f.allocID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	f.users[user.ID] = user
	f.recordUndo(tx, func() { delete(f.users, user.ID) })
	return nil
}

func (f *fakeRepo) UpdateUser(_ context.Context, user *models.User, _ *gorm.DB) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	return nil
}

func (f *fakeRepo) GetAllUserIDs(_ context.Context) ([]uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]uint, 0, len(f.users))
	for id := range f.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *fakeRepo) CreditWalletBalance(_ context.Context, userID uint, amount decimal.Decimal, tx *gorm.DB) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return fmt.Errorf("user %d not found for wallet credit", userID)
	}
	user.WalletBalance = user.WalletBalance.Add(amount)
	f.recordUndo(tx, func() {
		user.WalletBalance = user.WalletBalance.Sub(amount)
	})
	return nil
}

func (f *fakeRepo) AdvanceUserRank(_ context.Context, userID, fromRankID, toRankID uint, tx *gorm.DB) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok || user.RankID != fromRankID {
		return false, nil
	}
	user.RankID = toRankID
	f.recordUndo(tx, func() { user.RankID = fromRankID })
	return true, nil
}

// --- tree ---

func (f *fakeRepo) sortedChildren(parentIDs map[uint]bool) []*models.User {
	var children []*models.User
	for _, user := range f.users {
		if user.SponsorID != nil && parentIDs[*user.SponsorID] {
			children = append(children, user)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		if !children[i].CreatedAt.Equal(children[j].CreatedAt) {
			return children[i].CreatedAt.Before(children[j].CreatedAt)
		}
		return children[i].ID < children[j].ID
	})
	return children
}

func (f *fakeRepo) GetChildren(_ context.Context, parentIDs []uint) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := make(map[uint]bool, len(parentIDs))
	for _, id := range parentIDs {
		set[id] = true
	}
	return f.sortedChildren(set), nil
}

func (f *fakeRepo) filteredChildren(parentID uint, filter models.DownlineFilter) ([]*models.User, error) {
	children := f.sortedChildren(map[uint]bool{parentID: true})

	var matched []*models.User
	for _, child := range children {
		if filter.RankID != nil && child.RankID != *filter.RankID {
			continue
		}
		if filter.JoinedAfter != nil && child.CreatedAt.Before(*filter.JoinedAfter) {
			continue
		}
		matched = append(matched, child)
	}

	switch filter.SortBy {
	case "", models.SortByCreatedAt:
	case models.SortByName:
		sort.Slice(matched, func(i, j int) bool {
			if matched[i].Name != matched[j].Name {
				return matched[i].Name < matched[j].Name
			}
			return matched[i].ID < matched[j].ID
		})
	default:
		return nil, fmt.Errorf("unsupported sort key %q", filter.SortBy)
	}
	return matched, nil
}

func (f *fakeRepo) GetChildrenPage(_ context.Context, parentID uint, offset, limit int, filter models.DownlineFilter) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	children, err := f.filteredChildren(parentID, filter)
	if err != nil {
		return nil, err
	}
	if offset >= len(children) {
		return nil, nil
	}
	end := offset + limit
	if end > len(children) {
		end = len(children)
	}
	return children[offset:end], nil
}

func (f *fakeRepo) CountChildren(_ context.Context, parentID uint, filter models.DownlineFilter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	children, err := f.filteredChildren(parentID, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(children)), nil
}

func (f *fakeRepo) CountDirectReferrals(ctx context.Context, userID uint) (int64, error) {
	return f.CountChildren(ctx, userID, models.DownlineFilter{})
}

func (f *fakeRepo) CountUsersCreatedSince(_ context.Context, userIDs []uint, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, id := range userIDs {
		if user, ok := f.users[id]; ok && !user.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeRepo) SumCompletedPurchases(_ context.Context, userIDs []uint) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := make(map[uint]bool, len(userIDs))
	for _, id := range userIDs {
		set[id] = true
	}
	sum := decimal.Zero
	for _, purchase := range f.purchases {
		if set[purchase.UserID] && purchase.Status == models.PurchaseStatusCompleted {
			sum = sum.Add(purchase.TotalAmount)
		}
	}
	return sum, nil
}

func (f *fakeRepo) SumProcessedRebates(_ context.Context, userID uint) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum := decimal.Zero
	for _, rebate := range f.rebates {
		if rebate.ReceiverID == userID && rebate.Status == models.RebateStatusProcessed {
			sum = sum.Add(rebate.Amount)
		}
	}
	return sum, nil
}

// --- purchases / products ---

func (f *fakeRepo) GetPurchase(_ context.Context, purchaseID uint) (*models.Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	purchase, ok := f.purchases[purchaseID]
	if !ok {
		return nil, nil
	}
	return purchase, nil
}

func (f *fakeRepo) CreatePurchase(_ context.Context, purchase *models.Purchase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if purchase.ID == 0 {
		purchase.ID = f.allocID()
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now()
	}
	f.purchases[purchase.ID] = purchase
	return nil
}

func (f *fakeRepo) UpdatePurchaseStatus(_ context.Context, purchaseID uint, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	purchase, ok := f.purchases[purchaseID]
	if !ok {
		return fmt.Errorf("purchase %d not found for status update", purchaseID)
	}
	purchase.Status = status
	return nil
}

func (f *fakeRepo) GetProduct(_ context.Context, productID uint) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	product, ok := f.products[productID]
	if !ok {
		return nil, nil
	}
	return product, nil
}

func (f *fakeRepo) CreateProduct(_ context.Context, product *models.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if product.ID == 0 {
		product.ID = f.allocID()
	}
	f.products[product.ID] = product
	return nil
}

func (f *fakeRepo) SumPersonalPVByUser(_ context.Context, from, to time.Time) (map[uint]decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pv := make(map[uint]decimal.Decimal)
	for _, purchase := range f.purchases {
		if purchase.Status != models.PurchaseStatusCompleted {
			continue
		}
		if purchase.CreatedAt.Before(from) || !purchase.CreatedAt.Before(to) {
			continue
		}
		product, ok := f.products[purchase.ProductID]
		if !ok {
			continue
		}
		qty := decimal.NewFromInt(int64(purchase.Quantity))
		pv[purchase.UserID] = pv[purchase.UserID].Add(product.PointValue.Mul(qty))
	}
	return pv, nil
}

func (f *fakeRepo) CountReferralsBySponsor(_ context.Context, from, to time.Time) (map[uint]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[uint]int64)
	for _, user := range f.users {
		if user.SponsorID == nil {
			continue
		}
		if user.CreatedAt.Before(from) || !user.CreatedAt.Before(to) {
			continue
		}
		counts[*user.SponsorID]++
	}
	return counts, nil
}

// --- rebate configs ---

func (f *fakeRepo) GetConfigsForProduct(_ context.Context, productID uint) (map[int]models.RebateConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byLevel := make(map[int]models.RebateConfig, len(f.configs[productID]))
	for level, cfg := range f.configs[productID] {
		byLevel[level] = cfg
	}
	return byLevel, nil
}

func (f *fakeRepo) GetConfig(_ context.Context, productID uint, level int) (*models.RebateConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.configs[productID][level]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (f *fakeRepo) SaveConfig(_ context.Context, cfg *models.RebateConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.configs[cfg.ProductID] == nil {
		f.configs[cfg.ProductID] = make(map[int]models.RebateConfig)
	}
	if cfg.ID == 0 {
		cfg.ID = f.allocID()
	}
	f.configs[cfg.ProductID][cfg.Level] = *cfg
	return nil
}

// --- rebates ---

func (f *fakeRepo) CreateRebates(_ context.Context, rebates []models.Rebate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range rebates {
		rebate := rebates[i]
		if f.hasRebate(rebate.PurchaseID, rebate.Level) {
			continue
		}
		if rebate.CreatedAt.IsZero() {
			rebate.CreatedAt = time.Now()
		}
		f.rebates[rebate.ID] = &rebate
	}
	return nil
}

func (f *fakeRepo) hasRebate(purchaseID uint, level int) bool {
	for _, rebate := range f.rebates {
		if rebate.PurchaseID == purchaseID && rebate.Level == level {
			return true
		}
	}
	return false
}

func (f *fakeRepo) GetRebatesByPurchase(_ context.Context, purchaseID uint) ([]models.Rebate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rebates []models.Rebate
	for _, rebate := range f.rebates {
		if rebate.PurchaseID == purchaseID {
			rebates = append(rebates, *rebate)
		}
	}
	sort.Slice(rebates, func(i, j int) bool { return rebates[i].Level < rebates[j].Level })
	return rebates, nil
}

func (f *fakeRepo) GetPendingRebates(_ context.Context) ([]*models.Rebate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pending []*models.Rebate
	for _, rebate := range f.rebates {
		if rebate.Status == models.RebateStatusPending {
			pending = append(pending, rebate)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

func (f *fakeRepo) ClaimRebateProcessed(_ context.Context, rebateID string, tx *gorm.DB) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rebate, ok := f.rebates[rebateID]
	if !ok || rebate.Status != models.RebateStatusPending {
		return false, nil
	}
	now := time.Now()
	rebate.Status = models.RebateStatusProcessed
	rebate.ProcessedAt = &now
	f.recordUndo(tx, func() {
		rebate.Status = models.RebateStatusPending
		rebate.ProcessedAt = nil
	})
	return true, nil
}

func (f *fakeRepo) MarkRebateFailed(_ context.Context, rebateID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rebate, ok := f.rebates[rebateID]
	if !ok || rebate.Status != models.RebateStatusPending {
		return fmt.Errorf("rebate already left pending state")
	}
	rebate.Status = models.RebateStatusFailed
	rebate.FailReason = reason
	return nil
}

// --- binary ---

func (f *fakeRepo) GetPlacement(_ context.Context, userID uint) (*models.BinaryPlacement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	placement, ok := f.placements[userID]
	if !ok {
		return nil, nil
	}
	return placement, nil
}

func (f *fakeRepo) GetAllPlacements(_ context.Context) (map[uint]*models.BinaryPlacement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byUser := make(map[uint]*models.BinaryPlacement, len(f.placements))
	for id, placement := range f.placements {
		byUser[id] = placement
	}
	return byUser, nil
}

func (f *fakeRepo) CreatePlacement(_ context.Context, placement *models.BinaryPlacement, _ *gorm.DB) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placements[placement.UserID] = placement
	return nil
}

func (f *fakeRepo) UpdatePlacement(_ context.Context, placement *models.BinaryPlacement, _ *gorm.DB) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placements[placement.UserID] = placement
	return nil
}

func perfKey(userID uint, year, month int) string {
	return fmt.Sprintf("%d-%d-%d", userID, year, month)
}

func (f *fakeRepo) UpsertMonthlyPerformance(_ context.Context, perf *models.MonthlyPerformance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *perf
	f.performances[perfKey(perf.UserID, perf.Year, perf.Month)] = &copied
	return nil
}

func (f *fakeRepo) GetMonthlyPerformance(_ context.Context, userID uint, year, month int) (*models.MonthlyPerformance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	perf, ok := f.performances[perfKey(userID, year, month)]
	if !ok {
		return nil, nil
	}
	copied := *perf
	return &copied, nil
}

// --- ranks ---

func (f *fakeRepo) GetRank(_ context.Context, rankID uint) (*models.Rank, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rank, ok := f.ranks[rankID]
	if !ok {
		return nil, nil
	}
	return rank, nil
}

func (f *fakeRepo) GetRankByLevel(_ context.Context, level int) (*models.Rank, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rank := range f.ranks {
		if rank.Level == level {
			return rank, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) CreateRankAdvancement(_ context.Context, advancement *models.RankAdvancement, tx *gorm.DB) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advancements = append(f.advancements, *advancement)
	f.recordUndo(tx, func() {
		f.advancements = f.advancements[:len(f.advancements)-1]
	})
	return nil
}

func (f *fakeRepo) GetRankAdvancements(_ context.Context, userID uint) ([]models.RankAdvancement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.RankAdvancement
	for _, advancement := range f.advancements {
		if advancement.UserID == userID {
			result = append(result, advancement)
		}
	}
	return result, nil
}

// --- transactions ---

func (f *fakeRepo) BeginTransaction(_ context.Context) (*gorm.DB, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx := &gorm.DB{}
	f.txLogs[tx] = []func(){}
	return tx, nil
}

func (f *fakeRepo) Commit(tx *gorm.DB) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.txLogs, tx)
	return nil
}

func (f *fakeRepo) Rollback(tx *gorm.DB) {
	f.mu.Lock()
	defer f.mu.Unlock()
	undos := f.txLogs[tx]
	for i := len(undos) - 1; i >= 0; i-- {
		undos[i]()
	}
	delete(f.txLogs, tx)
}

// --- test fixtures ---

func (f *fakeRepo) addRank(level int, name string, minDirects int, minVolume int64) *models.Rank {
	rank := &models.Rank{
		ID:                 uint(1000 + level),
		Level:              level,
		Name:               name,
		MinDirectReferrals: minDirects,
		MinGroupVolume:     decimal.NewFromInt(minVolume),
	}
	f.ranks[rank.ID] = rank
	return rank
}

func (f *fakeRepo) addUser(id uint, sponsorID *uint, rankID uint, createdAt time.Time) *models.User {
	user := &models.User{
		ID:            id,
		Name:          fmt.Sprintf("user-%d", id),
		Email:         fmt.Sprintf("user-%d@example.com", id),
		ReferralCode:  fmt.Sprintf("CODE%04d", id),
		SponsorID:     sponsorID,
		RankID:        rankID,
		WalletBalance: decimal.Zero,
		CreatedAt:     createdAt,
	}
	f.users[id] = user
	if id > f.nextID {
		f.nextID = id
	}
	return user
}
