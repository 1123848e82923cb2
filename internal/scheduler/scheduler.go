// Package scheduler triggers digest runs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work. It receives the scheduler's context,
// which is cancelled on shutdown.
type Job func(ctx context.Context)

// Scheduler runs a Job on a standard five-field cron spec in UTC.
// Overlapping ticks are skipped while a run is still in flight.
type Scheduler struct {
	spec       string
	schedule   cron.Schedule
	job        Job
	log        *slog.Logger
	runOnStart bool
	location   *time.Location
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRunOnStart runs the job once before waiting for the first tick.
func WithRunOnStart() Option {
	return func(s *Scheduler) { s.runOnStart = true }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// New validates spec and creates a scheduler.
func New(spec string, job Job, opts ...Option) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	s := &Scheduler{
		spec:     spec,
		schedule: schedule,
		job:      job,
		log:      slog.Default(),
		location: time.UTC,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Next returns the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.location))
}

// Run blocks until ctx is cancelled, then waits for an in-flight job to
// finish before returning ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(cronLogger{s.log}),
		cron.WithChain(cron.Recover(cronLogger{s.log}), cron.SkipIfStillRunning(cronLogger{s.log})),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		s.log.Info("scheduled run triggered")
		s.job(ctx)
	}))

	if s.runOnStart {
		s.log.Info("initial run")
		s.job(ctx)
	}

	c.Start()
	s.log.Info("scheduler running", "cron", s.spec, "next", s.Next(time.Now()).Format(time.RFC3339))

	<-ctx.Done()
	s.log.Info("scheduler stopping")
	<-c.Stop().Done()
	return ctx.Err()
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
