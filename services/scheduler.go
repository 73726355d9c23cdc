// services/scheduler.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const jobTimeout = 5 * time.Minute

// Scheduler runs the league's cron jobs in UTC. With a locker only one replica
// runs each scheduled occurrence.
type Scheduler struct {
	sched gocron.Scheduler
	log   *zap.Logger
}

func NewScheduler(clock clockwork.Clock, locker gocron.Locker, log *zap.Logger) (*Scheduler, error) {
	opts := []gocron.SchedulerOption{
		gocron.WithLocation(time.UTC),
		gocron.WithClock(clock),
	}
	if locker != nil {
		opts = append(opts, gocron.WithDistributedLocker(locker))
	}
	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{sched: sched, log: log}, nil
}

// Every registers fn under name on a standard 5-field cron expression.
func (s *Scheduler) Every(name, cronExpr string, fn func(ctx context.Context) error) error {
	_, err := s.sched.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()

			start := time.Now()
			if err := fn(ctx); err != nil {
				s.log.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
				return
			}
			s.log.Info("scheduled job done", zap.String("job", name), zap.Duration("took", time.Since(start)))
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// ScheduleDailyTournament creates the next daily tournament on cronExpr.
// A tournament that already exists for the date is not an error here.
func (s *Scheduler) ScheduleDailyTournament(reg *TournamentRegistry, cronExpr string) error {
	return s.Every("create-daily-tournament", cronExpr, func(ctx context.Context) error {
		_, err := reg.CreateDaily(ctx)
		if errors.Is(err, ErrDuplicateTournament) {
			s.log.Warn("daily tournament already exists", zap.Error(err))
			return nil
		}
		return err
	})
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
