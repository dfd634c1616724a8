package worker

import (
	"context"
	"time"

	"github.com/jvaldez-dev/mlm-rewards/internal/service"
	"github.com/jvaldez-dev/mlm-rewards/utils"
)

// Scheduler drives the batch passes: pending rebates on a fixed interval,
// and the previous month's snapshot plus a rank pass once per month
// rollover. Every pass is idempotent, so overlapping with a manual trigger
// is harmless.
type Scheduler struct {
	service  *service.Service
	logger   *utils.Logger
	interval time.Duration

	lastSnapshotPeriod string
}

func NewScheduler(svc *service.Service, logger *utils.Logger, interval time.Duration) *Scheduler {
	return &Scheduler{
		service:  svc,
		logger:   logger,
		interval: interval,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Background rewards worker started")

	// Run once at start
	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Background rewards worker stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if summary, err := s.service.ProcessPendingRebates(ctx); err != nil {
		s.logger.Errorf("scheduled rebate pass failed: %v", err)
	} else if summary.Processed > 0 || summary.Failed > 0 {
		s.logger.Infof("Scheduled rebate pass: %d processed, %d failed", summary.Processed, summary.Failed)
	}

	s.maybeRunMonthly(ctx)
}

// maybeRunMonthly runs the previous month's snapshot and a rank pass the
// first time a cycle lands in a new month. The snapshot upsert makes an
// accidental second run overwrite with identical rows.
func (s *Scheduler) maybeRunMonthly(ctx context.Context) {
	now := time.Now()
	period := now.Format("2006-01")
	if period == s.lastSnapshotPeriod {
		return
	}

	// anchor on the first of the month so date normalization near month
	// ends cannot skip a period
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	year, month := prev.Year(), int(prev.Month())

	if _, err := s.service.RunMonthlySnapshot(ctx, year, month); err != nil {
		s.logger.Errorf("scheduled monthly snapshot %d-%02d failed: %v", year, month, err)
		return
	}

	if _, err := s.service.ProcessAllRankAdvancements(ctx); err != nil {
		s.logger.Errorf("scheduled rank pass failed: %v", err)
		return
	}

	s.lastSnapshotPeriod = period
}
