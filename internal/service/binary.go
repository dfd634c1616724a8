package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jvaldez-dev/mlm-rewards/internal/models"
	"github.com/jvaldez-dev/mlm-rewards/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GroupBonusTier pays Bonus for every full PairPV matched on the weaker leg.
type GroupBonusTier struct {
	PairPV decimal.Decimal
	Bonus  decimal.Decimal
}

// BinaryPlanConfig holds the bonus rules of the binary compensation plan.
type BinaryPlanConfig struct {
	// DirectReferralBonus is paid per new direct referral in the period.
	DirectReferralBonus decimal.Decimal
	// LevelRates are percentages applied to each binary level's PV;
	// index 0 is level 1. Length bounds the commission depth.
	LevelRates []decimal.Decimal
	// GroupBonusTiers are matched against min(leftPV, rightPV), highest
	// PairPV first.
	GroupBonusTiers []GroupBonusTier
}

func DefaultBinaryPlan() BinaryPlanConfig {
	return BinaryPlanConfig{
		DirectReferralBonus: decimal.NewFromInt(250),
		LevelRates: []decimal.Decimal{
			decimal.NewFromInt(5),
			decimal.NewFromInt(3),
			decimal.NewFromInt(2),
			decimal.NewFromInt(1),
			decimal.NewFromInt(1),
		},
		GroupBonusTiers: []GroupBonusTier{
			{PairPV: decimal.NewFromInt(500), Bonus: decimal.NewFromInt(2500)},
			{PairPV: decimal.NewFromInt(100), Bonus: decimal.NewFromInt(500)},
		},
	}
}

// SetBinaryPlan replaces the plan rules. Intended for wiring and tests.
func (s *Service) SetBinaryPlan(plan BinaryPlanConfig) {
	s.binaryPlan = plan
}

// RunMonthlySnapshot recomputes every account's MonthlyPerformance row for
// the period. It is a pure function of the period's purchases and the
// placement tree: re-running overwrites each row with identical values
// instead of accumulating. A malformed placement skips that one user.
func (s *Service) RunMonthlySnapshot(ctx context.Context, year, month int) (*BatchSummary, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("invalid month %d", month)
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	userIDs, err := s.repo.GetAllUserIDs(ctx)
	if err != nil {
		return nil, err
	}

	placements, err := s.repo.GetAllPlacements(ctx)
	if err != nil {
		return nil, err
	}

	personalPV, err := s.repo.SumPersonalPVByUser(ctx, from, to)
	if err != nil {
		return nil, err
	}

	referrals, err := s.repo.CountReferralsBySponsor(ctx, from, to)
	if err != nil {
		return nil, err
	}

	summary := &BatchSummary{}
	computedAt := time.Now()

	for _, userID := range userIDs {
		perf, err := s.computeUserSnapshot(userID, year, month, placements, personalPV, referrals)
		if err != nil {
			s.logger.Errorf("snapshot for user %d skipped: %v", userID, err)
			summary.Failed++
			continue
		}
		// ComputedAt is run metadata, the one column a re-run is allowed
		// to change; everything else is a pure function of the period
		perf.ComputedAt = computedAt

		if err := s.repo.UpsertMonthlyPerformance(ctx, perf); err != nil {
			s.logger.Errorf("failed to store snapshot for user %d: %v", userID, err)
			summary.Failed++
			continue
		}
		summary.Processed++
	}

	s.logger.Infof("Monthly snapshot %d-%02d: %d processed, %d failed", year, month, summary.Processed, summary.Failed)
	return summary, nil
}

func (s *Service) computeUserSnapshot(
	userID uint,
	year, month int,
	placements map[uint]*models.BinaryPlacement,
	personalPV map[uint]decimal.Decimal,
	referrals map[uint]int64,
) (*models.MonthlyPerformance, error) {
	var leftRoot, rightRoot *uint
	if placement, ok := placements[userID]; ok {
		leftRoot = placement.LeftID
		rightRoot = placement.RightID
	}

	maxDepth := len(s.binaryPlan.LevelRates)

	leftPV, leftLevels, err := walkLeg(leftRoot, placements, personalPV, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("left leg: %w", err)
	}
	rightPV, rightLevels, err := walkLeg(rightRoot, placements, personalPV, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("right leg: %w", err)
	}

	directBonus := s.binaryPlan.DirectReferralBonus.Mul(decimal.NewFromInt(referrals[userID]))

	levelCommissions := decimal.Zero
	for i, rate := range s.binaryPlan.LevelRates {
		levelPV := decimal.Zero
		if i < len(leftLevels) {
			levelPV = levelPV.Add(leftLevels[i])
		}
		if i < len(rightLevels) {
			levelPV = levelPV.Add(rightLevels[i])
		}
		levelCommissions = levelCommissions.Add(utils.ApplyPercentage(levelPV, rate))
	}

	groupBonus := groupVolumeBonus(leftPV, rightPV, s.binaryPlan.GroupBonusTiers)

	return &models.MonthlyPerformance{
		UserID:              userID,
		Year:                year,
		Month:               month,
		PersonalPV:          personalPV[userID],
		LeftLegPV:           leftPV,
		RightLegPV:          rightPV,
		TotalGroupPV:        leftPV.Add(rightPV),
		DirectReferralBonus: directBonus,
		LevelCommissions:    levelCommissions,
		GroupVolumeBonus:    groupBonus,
		TotalEarnings:       directBonus.Add(levelCommissions).Add(groupBonus),
	}, nil
}

// walkLeg sums PV over one leg's whole subtree, breadth-first over the
// in-memory placement map. It also returns PV per level (1-based, capped at
// maxDepth) for the level commissions. A node met twice means the placement
// relation has a cycle; the user is reported instead of looping forever.
func walkLeg(
	start *uint,
	placements map[uint]*models.BinaryPlacement,
	personalPV map[uint]decimal.Decimal,
	maxDepth int,
) (decimal.Decimal, []decimal.Decimal, error) {
	total := decimal.Zero
	perLevel := make([]decimal.Decimal, maxDepth)
	for i := range perLevel {
		perLevel[i] = decimal.Zero
	}

	if start == nil {
		return total, perLevel, nil
	}

	visited := make(map[uint]bool)
	frontier := []uint{*start}
	level := 1

	for len(frontier) > 0 {
		var next []uint
		for _, id := range frontier {
			if visited[id] {
				return decimal.Zero, nil, fmt.Errorf("cyclic placement at user %d", id)
			}
			visited[id] = true

			pv := personalPV[id]
			total = total.Add(pv)
			if level <= maxDepth {
				perLevel[level-1] = perLevel[level-1].Add(pv)
			}

			if placement, ok := placements[id]; ok {
				if placement.LeftID != nil {
					next = append(next, *placement.LeftID)
				}
				if placement.RightID != nil {
					next = append(next, *placement.RightID)
				}
			}
		}
		frontier = next
		level++
	}

	return total, perLevel, nil
}

// groupVolumeBonus pays out against the weaker leg only: the matched volume
// is min(left, right), so stacking one leg earns nothing extra.
func groupVolumeBonus(leftPV, rightPV decimal.Decimal, tiers []GroupBonusTier) decimal.Decimal {
	matched := decimal.Min(leftPV, rightPV)

	for _, tier := range tiers {
		if tier.PairPV.IsZero() {
			continue
		}
		pairs := matched.Div(tier.PairPV).Floor()
		if pairs.IsPositive() {
			return pairs.Mul(tier.Bonus)
		}
	}
	return decimal.Zero
}

// placeInBinaryTree drops the new account into the nearest empty slot below
// the sponsor, left leg first (spillover). Breadth-first so the tree fills
// level by level.
func (s *Service) placeInBinaryTree(ctx context.Context, sponsorID, newUserID uint, tx *gorm.DB) error {
	visited := make(map[uint]bool)
	queue := []uint{sponsorID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			return fmt.Errorf("cyclic placement at user %d", current)
		}
		visited[current] = true

		placement, err := s.repo.GetPlacement(ctx, current)
		if err != nil {
			return err
		}

		if placement == nil {
			placement = &models.BinaryPlacement{UserID: current, LeftID: &newUserID}
			return s.repo.CreatePlacement(ctx, placement, tx)
		}
		if placement.LeftID == nil {
			placement.LeftID = &newUserID
			return s.repo.UpdatePlacement(ctx, placement, tx)
		}
		if placement.RightID == nil {
			placement.RightID = &newUserID
			return s.repo.UpdatePlacement(ctx, placement, tx)
		}

		queue = append(queue, *placement.LeftID, *placement.RightID)
	}

	return fmt.Errorf("no placement slot found below sponsor %d", sponsorID)
}
