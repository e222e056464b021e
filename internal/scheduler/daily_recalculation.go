package scheduler

import (
	"context"
	"time"

	scoringsvc "leadscoring_backend/internal/scoring/service"
	"leadscoring_backend/platform/logger"
)

const defaultDailyRecalcInterval = 24 * time.Hour

// BulkRecalculator rescores every active lead.
type BulkRecalculator interface {
	RecalculateAll(ctx context.Context) (scoringsvc.BulkResult, error)
}

// DailyRecalculation periodically rescores the whole active lead base so
// time-sensitive criteria (lead age windows, dwell-based stages) stay
// current even when no attribute changes.
type DailyRecalculation struct {
	scores   BulkRecalculator
	log      *logger.Logger
	interval time.Duration
}

func NewDailyRecalculation(scores BulkRecalculator, log *logger.Logger, interval time.Duration) *DailyRecalculation {
	if interval <= 0 {
		interval = defaultDailyRecalcInterval
	}

	return &DailyRecalculation{
		scores:   scores,
		log:      log,
		interval: interval,
	}
}

func (r *DailyRecalculation) Run(ctx context.Context) {
	if r == nil || r.scores == nil {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.recalculate(ctx)
		}
	}
}

func (r *DailyRecalculation) recalculate(ctx context.Context) {
	started := time.Now()

	result, err := r.scores.RecalculateAll(ctx)
	if err != nil {
		r.log.Warn("daily score recalculation failed", "error", err)
		return
	}

	r.log.Info("daily score recalculation completed",
		"succeeded", len(result.Results),
		"failed", len(result.Errors),
		"duration", time.Since(started).String())
}
