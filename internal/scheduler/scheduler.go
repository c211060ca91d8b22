// Package scheduler runs the scan on a cron spec, one run at a time.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one scheduled run. Its error is logged; the schedule continues.
type Job func(ctx context.Context) error

type Scheduler struct {
	cron       *cron.Cron
	spec       string
	runOnStart bool
	job        cron.Job
	logger     zerolog.Logger

	// initial tracks the run-on-start scan, which cron does not know about
	initial sync.WaitGroup
}

// New builds a scheduler for spec (standard 5-field cron or descriptors like
// "@every 6h"). Runs never overlap: a tick that arrives while the previous
// run is still going is skipped.
func New(spec string, runOnStart bool, job Job, logger zerolog.Logger) *Scheduler {
	cl := cronLogger{logger}
	s := &Scheduler{
		cron:       cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		spec:       spec,
		runOnStart: runOnStart,
		logger:     logger,
	}
	s.job = cron.NewChain(cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() {
		logger.Info().Msg("⏰ Scheduled scan starting")
		if err := job(context.Background()); err != nil {
			logger.Error().Err(err).Msg("❌ Scheduled scan failed")
			return
		}
		logger.Info().Msg("✅ Scheduled scan finished")
	}))
	return s
}

// Start registers the job and starts the cron loop. With runOnStart the first
// run begins immediately instead of waiting for the first tick.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddJob(s.spec, s.job); err != nil {
		return fmt.Errorf("cron.AddJob %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Info().Str("spec", s.spec).Msg("🗓️ Scheduler started")

	if s.runOnStart {
		s.initial.Add(1)
		go func() {
			defer s.initial.Done()
			s.job.Run()
		}()
	}
	return nil
}

// Stop stops new ticks and waits, until ctx ends, for every running scan
// including the one started by runOnStart.
func (s *Scheduler) Stop(ctx context.Context) error {
	cronDone := s.cron.Stop()
	idle := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.initial.Wait()
		close(idle)
	}()
	select {
	case <-idle:
		s.logger.Info().Msg("🛑 Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
