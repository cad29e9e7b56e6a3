package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Domenick1991/carrental/internal/domain"
	"github.com/Domenick1991/carrental/internal/logger"
)

type PendingExpirer interface {
	ExpireStalePending(ctx context.Context) ([]domain.Rental, error)
}

// Scheduler runs the periodic rental maintenance jobs.
type Scheduler struct {
	cron    *cron.Cron
	rentals PendingExpirer
	timeout time.Duration
}

// NewScheduler registers the pending-expiry sweep on schedule, a six-field cron spec
// evaluated in UTC.
func NewScheduler(rentals PendingExpirer, schedule string) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithSeconds(),
		),
		rentals: rentals,
		timeout: time.Minute,
	}

	if _, err := s.cron.AddFunc(schedule, s.runWithRecovery("expire_pending", s.ExpirePending)); err != nil {
		return nil, fmt.Errorf("register expire_pending job: %w", err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	logger.Info("starting cron scheduler", "jobs", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("cron scheduler stopped")
}

// ExpirePending cancels PENDING rentals held past their payment window.
func (s *Scheduler) ExpirePending() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	expired, err := s.rentals.ExpireStalePending(ctx)
	if err != nil {
		logger.Error("expire pending rentals", "error", err)
		return
	}
	if len(expired) > 0 {
		logger.Info("expired pending rentals", "count", len(expired))
	}
}

func (s *Scheduler) runWithRecovery(name string, job func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job panicked", "job", name, "panic", r)
			}
		}()
		job()
	}
}
