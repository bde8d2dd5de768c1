// Package scheduler runs periodic index refreshes on a cron schedule.
package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	appLog "evcal/internal/log"
)

// cronLogger routes cron's own logging through the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}

// Scheduler triggers Refresher.Refresh on a cron spec.
type Scheduler struct {
	cron      *cron.Cron
	spec      string
	refresher *Refresher
}

// New creates a Scheduler evaluating spec in loc.
func New(spec string, loc *time.Location, refresher *Refresher) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	return &Scheduler{cron: c, spec: spec, refresher: refresher}
}

// Start runs one refresh immediately, then blocks running the schedule
// until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.run(ctx) }); err != nil {
		return errors.Wrapf(err, "add refresh schedule %q", s.spec)
	}

	s.run(ctx)

	s.cron.Start()
	appLog.Info("scheduler started", "spec", s.spec)

	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	appLog.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.refresher.Refresh(ctx); err != nil {
		appLog.Error("scheduled refresh failed", err)
	}
}
