package maintenance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

type Schedules struct {
	Rotate    string
	Backup    string
	Prune     string
	PruneDays int
}

// Scheduler runs the jobs on cron schedules. An empty schedule disables a job.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

func NewScheduler(jobs *Jobs, s Schedules, logger *slog.Logger) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	entries := []struct {
		name string
		expr string
		run  func(ctx context.Context) error
	}{
		{"rotate", s.Rotate, func(ctx context.Context) error {
			_, err := jobs.Rotate(ctx)
			return err
		}},
		{"backup", s.Backup, func(ctx context.Context) error {
			_, err := jobs.Backup(ctx)
			return err
		}},
		{"prune", s.Prune, func(ctx context.Context) error {
			_, err := jobs.Prune(ctx, s.PruneDays)
			return err
		}},
	}

	for _, e := range entries {
		if e.expr == "" {
			continue
		}
		name, run := e.name, e.run
		_, err := c.AddFunc(e.expr, func() {
			if err := run(context.Background()); err != nil {
				logger.Error("maintenance job failed", "job", name, "error", err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", name, e.expr, err)
		}
		logger.Info("maintenance job scheduled", "job", name, "cron", e.expr)
	}

	return &Scheduler{cron: c, logger: logger}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("maintenance jobs still running at shutdown")
	}
}

// Len reports how many jobs are scheduled.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}
