package scheduler

import (
	"context"
	"time"

	"leadscoring_backend/platform/logger"
)

const defaultQualificationSweepInterval = time.Hour

// TimeBasedSweeper evaluates time_based workflows against lead stage dwell
// times and enqueues the executions that are due.
type TimeBasedSweeper interface {
	RunTimeBasedSweep(ctx context.Context) error
}

// QualificationSweep periodically fires workflows whose trigger is a lead
// sitting in a stage for a configured number of days.
type QualificationSweep struct {
	workflows TimeBasedSweeper
	log       *logger.Logger
	interval  time.Duration
}

func NewQualificationSweep(workflows TimeBasedSweeper, log *logger.Logger, interval time.Duration) *QualificationSweep {
	if interval <= 0 {
		interval = defaultQualificationSweepInterval
	}

	return &QualificationSweep{
		workflows: workflows,
		log:       log,
		interval:  interval,
	}
}

func (s *QualificationSweep) Run(ctx context.Context) {
	if s == nil || s.workflows == nil {
		return
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *QualificationSweep) sweep(ctx context.Context) {
	if err := s.workflows.RunTimeBasedSweep(ctx); err != nil {
		s.log.Warn("time based workflow sweep failed", "error", err)
	}
}
