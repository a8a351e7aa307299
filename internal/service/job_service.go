package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type holdSweeper interface {
	SweepExpiredHolds(ctx context.Context) (int, error)
}

// JobService runs the periodic maintenance jobs.
type JobService struct {
	sweeper holdSweeper
	logger  *zap.Logger
	cron    *cron.Cron
}

func NewJobService(sweeper holdSweeper, logger *zap.Logger) *JobService {
	return &JobService{sweeper: sweeper, logger: logger}
}

// ReleaseExpiredHolds runs one sweep. Exposed so an external scheduler can trigger it.
func (s *JobService) ReleaseExpiredHolds(ctx context.Context) (int, error) {
	released, err := s.sweeper.SweepExpiredHolds(ctx)
	if err != nil {
		return 0, fmt.Errorf("cron job: %w", err)
	}
	if released > 0 {
		s.logger.Info("cron job: expired holds released", zap.Int("released", released))
	}
	return released, nil
}

// Start schedules the sweep. Overlapping runs are skipped; the sweep is idempotent
// anyway but there is no point queuing them.
func (s *JobService) Start(schedule string) error {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.ReleaseExpiredHolds(ctx); err != nil {
			s.logger.Error("sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.cron = c
	c.Start()
	s.logger.Info("sweep scheduled", zap.String("schedule", schedule))
	return nil
}

// Stop waits for a running sweep to finish.
func (s *JobService) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}
