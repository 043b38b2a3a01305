// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tomtom215/catalogmirror/internal/config"
	"github.com/tomtom215/catalogmirror/internal/logging"
	"github.com/tomtom215/catalogmirror/internal/metrics"
	"github.com/tomtom215/catalogmirror/internal/models"
	"github.com/tomtom215/catalogmirror/internal/validation"
)

// JobRunner is the part of the sync Manager the scheduler drives.
type JobRunner interface {
	SyncAll(ctx context.Context) []*models.SyncResult
	SyncRecentlyAdded(ctx context.Context, limit int) []*models.SyncResult
	BackfillAll(ctx context.Context) []*models.HistoricalSyncResult
}

// SchedulerConfig holds the cron schedules. Empty schedules disable the job.
type SchedulerConfig struct {
	FullSchedule      string
	RecentSchedule    string
	RecentLimit       int
	BackfillSchedule  string
	RunOnStartup      bool // full pass at startup
	BackfillOnStartup bool
}

// SchedulerConfigFrom derives the scheduler settings. An enabled backfill
// without a schedule runs once at startup.
func SchedulerConfigFrom(cfg *config.Config) SchedulerConfig {
	sc := SchedulerConfig{
		FullSchedule:   cfg.Sync.Schedule,
		RecentSchedule: cfg.Sync.RecentSchedule,
		RecentLimit:    cfg.Sync.RecentLimit,
		RunOnStartup:   cfg.Sync.OnStartup,
	}
	if cfg.Backfill.Enabled {
		sc.BackfillSchedule = cfg.Backfill.Schedule
		sc.BackfillOnStartup = cfg.Backfill.Schedule == ""
	}
	return sc
}

type scheduledJob struct {
	name     string
	schedule cron.Schedule
	run      func(ctx context.Context) (ok, failed int)
}

// SchedulerService fires sync and backfill passes on cron schedules.
type SchedulerService struct {
	jobs    []scheduledJob
	startup []scheduledJob
}

// NewSchedulerService parses every schedule up front so a bad expression
// fails at startup rather than at the first firing.
func NewSchedulerService(runner JobRunner, cfg SchedulerConfig) (*SchedulerService, error) {
	full := func(ctx context.Context) (int, int) { return countSync(runner.SyncAll(ctx)) }
	recent := func(ctx context.Context) (int, int) {
		return countSync(runner.SyncRecentlyAdded(ctx, cfg.RecentLimit))
	}
	hist := func(ctx context.Context) (int, int) { return countBackfill(runner.BackfillAll(ctx)) }

	s := &SchedulerService{}
	for _, def := range []struct {
		name string
		spec string
		run  func(context.Context) (int, int)
	}{
		{"catalog-full", cfg.FullSchedule, full},
		{"catalog-recent", cfg.RecentSchedule, recent},
		{"backfill", cfg.BackfillSchedule, hist},
	} {
		if def.spec == "" {
			continue
		}
		sched, err := validation.ParseCron(def.spec)
		if err != nil {
			return nil, fmt.Errorf("invalid %s schedule %q: %w", def.name, def.spec, err)
		}
		s.jobs = append(s.jobs, scheduledJob{name: def.name, schedule: sched, run: def.run})
	}

	if cfg.RunOnStartup {
		s.startup = append(s.startup, scheduledJob{name: "catalog-full", run: full})
	}
	if cfg.BackfillOnStartup {
		s.startup = append(s.startup, scheduledJob{name: "backfill", run: hist})
	}
	return s, nil
}

// Serve implements suture.Service.
func (s *SchedulerService) Serve(ctx context.Context) error {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	for _, job := range s.jobs {
		job := job
		c.Schedule(job.schedule, cron.FuncJob(func() { s.runJob(ctx, job, "schedule") }))
		logging.Info().
			Str("job", job.name).
			Time("next", job.schedule.Next(time.Now())).
			Msg("Scheduled job registered")
	}
	c.Start()

	var wg sync.WaitGroup
	for _, job := range s.startup {
		wg.Add(1)
		go func(job scheduledJob) {
			defer wg.Done()
			s.runJob(ctx, job, "startup")
		}(job)
	}

	<-ctx.Done()

	// Stop only prevents new firings; running jobs observe ctx.
	<-c.Stop().Done()
	wg.Wait()
	logging.Info().Msg("Scheduler stopped")
	return ctx.Err()
}

func (s *SchedulerService) runJob(ctx context.Context, job scheduledJob, trigger string) {
	if ctx.Err() != nil {
		return
	}
	ctx = logging.ContextWithNewCorrelationID(ctx)
	metrics.SchedulerJobRuns.WithLabelValues(job.name, trigger).Inc()

	start := time.Now()
	logging.Ctx(ctx).Info().Str("job", job.name).Str("trigger", trigger).Msg("Job started")
	ok, failed := job.run(ctx)
	logging.Ctx(ctx).Info().
		Str("job", job.name).
		Int("succeeded", ok).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Job finished")
}

func (s *SchedulerService) String() string {
	return "scheduler"
}

func countSync(results []*models.SyncResult) (ok, failed int) {
	for _, r := range results {
		if r.Status == models.SyncStatusError {
			failed++
		} else {
			ok++
		}
	}
	return ok, failed
}

func countBackfill(results []*models.HistoricalSyncResult) (ok, failed int) {
	for _, r := range results {
		if r.Status == models.SyncStatusError {
			failed++
		} else {
			ok++
		}
	}
	return ok, failed
}

// cronLogger routes cron's internal logging through zerolog. cron reports
// every schedule tick at Info, which is demoted to Debug.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logging.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
