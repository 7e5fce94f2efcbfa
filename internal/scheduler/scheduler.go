package scheduler

import (
	"context"
	"time"

	"tradepulse/internal/logger"
)

// Interval runs a task on a fixed period until the context is cancelled.
type Interval struct {
	Every          time.Duration
	RunImmediately bool
}

// Run blocks until ctx is done. A panicking task is logged and does not
// kill the loop; the next tick runs normally.
func (s Interval) Run(ctx context.Context, name string, task func(context.Context)) {
	if task == nil {
		logger.Warnf("scheduler: %s task is nil, exit", name)
		return
	}
	if s.Every <= 0 {
		logger.Warnf("scheduler: %s invalid interval=%s, exit", name, s.Every)
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger.Infof("scheduler: %s started interval=%s run_immediately=%v", name, s.Every, s.RunImmediately)

	if s.RunImmediately {
		s.safeRun(ctx, name, task)
	}

	ticker := time.NewTicker(s.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Infof("scheduler: %s ctx done, exit", name)
			return
		case <-ticker.C:
			s.safeRun(ctx, name, task)
		}
	}
}

func (s Interval) safeRun(ctx context.Context, name string, task func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("scheduler: %s task panic recovered: %v", name, r)
		}
	}()
	task(ctx)
}
