package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const defaultJobTimeout = 5 * time.Minute

// Purger removes expired rows and reports how many were deleted.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// Scheduler runs maintenance jobs on cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		logger: logger,
	}
}

// AddPurge runs p on the cron schedule. An empty schedule leaves the job disabled.
func (s *Scheduler) AddPurge(name, schedule string, p Purger) error {
	if schedule == "" {
		s.logger.Info("scheduled job disabled", zap.String("job", name))
		return nil
	}
	_, err := s.cron.AddFunc(schedule, func() { s.runPurge(name, p) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.logger.Info("scheduled job registered", zap.String("job", name), zap.String("schedule", schedule))
	return nil
}

func (s *Scheduler) runPurge(name string, p Purger) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultJobTimeout)
	defer cancel()

	started := time.Now()
	removed, err := p.Purge(ctx)
	if err != nil {
		s.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
		return
	}
	s.logger.Info("scheduled job completed",
		zap.String("job", name),
		zap.Int64("removed", removed),
		zap.Duration("took", time.Since(started)),
	)
}

// Run starts the scheduler and blocks until ctx is done, then waits for running jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}
