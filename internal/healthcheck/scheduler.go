package healthcheck

import (
	"context"
	"fmt"
	"time"

	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Scheduler re-runs the registry on a cron spec with a seconds field.
// Extra jobs, e.g. session sweeping, can share its cron goroutine.
// An empty spec schedules no health checks, only the extra jobs.
type Scheduler struct {
	cron     *cron.Cron
	registry *Registry
	logger   logger.Logger
}

func NewScheduler(registry *Registry, spec string, log logger.Logger) (*Scheduler, error) {
	c := cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC))
	s := &Scheduler{
		cron:     c,
		registry: registry,
		logger:   log,
	}

	if spec == "" {
		return s, nil
	}
	if _, err := c.AddFunc(spec, s.runChecks); err != nil {
		return nil, fmt.Errorf("invalid health check schedule %q: %w", spec, err)
	}
	return s, nil
}

// AddJob schedules fn on spec alongside the health checks.
func (s *Scheduler) AddJob(spec string, fn func()) error {
	if _, err := s.cron.AddFunc(spec, fn); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Len reports the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler", "entries", s.Len())
	s.cron.Start()
}

// Stop waits for running jobs to finish, or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.logger.Info("Stopping scheduler")
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) runChecks() {
	results := s.registry.RunAll(context.Background())

	failed := 0
	for _, res := range results {
		if res.Status == StatusError {
			failed++
		}
	}
	s.logger.Debug("Health checks completed", "checks", len(results), "failed", failed)
}
