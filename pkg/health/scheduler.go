package health

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler refreshes the health snapshot on a cron schedule so the cached
// aggregate and the backend_up metrics stay current between external probes.
type Scheduler struct {
	aggregator *Aggregator
	cron       *cron.Cron
	logger     *slog.Logger
}

// NewScheduler creates a scheduler running Check on the given cron spec.
func NewScheduler(aggregator *Aggregator, schedule string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		aggregator: aggregator,
		cron:       cron.New(),
		logger:     logger.With("component", "health.scheduler"),
	}
	_, err := s.cron.AddFunc(schedule, func() {
		snapshot := s.aggregator.Check(context.Background())
		if !snapshot.Healthy() {
			unhealthy := make([]string, 0)
			for name, b := range snapshot.Backends {
				if !b.Healthy {
					unhealthy = append(unhealthy, name)
				}
			}
			s.logger.Warn("scheduled health check found degraded backends", "backends", unhealthy)
		}
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins scheduled refreshes.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("health refresh scheduler started")
}

// Stop halts the schedule and waits for a running check to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
