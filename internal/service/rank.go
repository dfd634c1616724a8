package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jvaldez-dev/mlm-rewards/internal/models"
)

type Eligibility struct {
	Eligible            bool         `json:"eligible"`
	NextRank            *models.Rank `json:"next_rank,omitempty"`
	MissingRequirements []string     `json:"missing_requirements"`
}

type AdvancementResult struct {
	Advanced bool         `json:"advanced"`
	NewRank  *models.Rank `json:"new_rank,omitempty"`
}

// CheckEligibility compares the user's direct referral count and group
// volume against the next rank's thresholds. Only the immediately next
// level is considered; ranks never move backwards.
func (s *Service) CheckEligibility(ctx context.Context, userID uint) (*Eligibility, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}

	current, err := s.repo.GetRank(ctx, user.RankID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("rank %d: %w", user.RankID, ErrNotFound)
	}

	next, err := s.repo.GetRankByLevel(ctx, current.Level+1)
	if err != nil {
		return nil, err
	}
	if next == nil {
		// already at the top of the ladder
		return &Eligibility{Eligible: false}, nil
	}

	directs, err := s.repo.CountDirectReferrals(ctx, userID)
	if err != nil {
		return nil, err
	}

	// metrics may be slightly stale (cached); eligibility checks are
	// idempotent to re-run, so that is acceptable
	metrics, err := s.GetPerformanceMetrics(ctx, userID)
	if err != nil {
		return nil, err
	}

	var missing []string
	if directs < int64(next.MinDirectReferrals) {
		missing = append(missing, fmt.Sprintf("direct referrals: %d of %d", directs, next.MinDirectReferrals))
	}
	if metrics.TeamSales.LessThan(next.MinGroupVolume) {
		missing = append(missing, fmt.Sprintf("group volume: %s of %s", metrics.TeamSales, next.MinGroupVolume))
	}

	return &Eligibility{
		Eligible:            len(missing) == 0,
		NextRank:            next,
		MissingRequirements: missing,
	}, nil
}

// ProcessAdvancement promotes the user one rank if eligible, appending the
// audit row in the same transaction as the rank change. Not eligible is a
// no-op, not an error. A concurrent run that already advanced the user
// loses the guarded update and no-ops too.
func (s *Service) ProcessAdvancement(ctx context.Context, userID uint) (*AdvancementResult, error) {
	eligibility, err := s.CheckEligibility(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !eligibility.Eligible {
		return &AdvancementResult{Advanced: false}, nil
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}

	tx, err := s.repo.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}

	claimed, err := s.repo.AdvanceUserRank(ctx, userID, user.RankID, eligibility.NextRank.ID, tx)
	if err != nil {
		s.repo.Rollback(tx)
		return nil, err
	}
	if !claimed {
		// rank changed under us, treat as benign no-op
		s.repo.Rollback(tx)
		return &AdvancementResult{Advanced: false}, nil
	}

	advancement := &models.RankAdvancement{
		ID:         uuid.NewString(),
		UserID:     userID,
		FromRankID: user.RankID,
		ToRankID:   eligibility.NextRank.ID,
		CreatedAt:  time.Now(),
	}
	if err := s.repo.CreateRankAdvancement(ctx, advancement, tx); err != nil {
		s.repo.Rollback(tx)
		return nil, err
	}

	if err := s.repo.Commit(tx); err != nil {
		return nil, err
	}

	s.logger.Infof("User %d advanced to rank %s", userID, eligibility.NextRank.Name)
	return &AdvancementResult{Advanced: true, NewRank: eligibility.NextRank}, nil
}

// ProcessAllRankAdvancements runs an advancement pass over every user.
// Per-user failures are counted, never fatal to the batch.
func (s *Service) ProcessAllRankAdvancements(ctx context.Context) (*BatchSummary, error) {
	userIDs, err := s.repo.GetAllUserIDs(ctx)
	if err != nil {
		return nil, err
	}

	summary := &BatchSummary{}
	for _, userID := range userIDs {
		result, err := s.ProcessAdvancement(ctx, userID)
		if err != nil {
			s.logger.Errorf("rank advancement for user %d failed: %v", userID, err)
			summary.Failed++
			continue
		}
		summary.Processed++
		if result.Advanced {
			summary.Advanced++
		}
	}

	s.logger.Infof("Rank pass: %d processed, %d advanced, %d failed", summary.Processed, summary.Advanced, summary.Failed)
	return summary, nil
}
