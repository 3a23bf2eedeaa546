// Package schedule re-forecasts datasets on a recurring plan. Each
// firing scans the configured directory and submits one job per
// dataset file it finds.
package schedule

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	redislock "github.com/go-co-op/gocron-redis-lock/v2"
	"github.com/go-co-op/gocron/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sfs/forecast-engine/internal/config"
	"sfs/forecast-engine/pkg/logger"
	"sfs/forecast-engine/pkg/types"
)

// SubmitFunc submits one forecast job and returns its ID.
type SubmitFunc func(ctx context.Context, spec *types.JobSpec) (string, error)

// Scheduler fires recurring dataset refreshes.
type Scheduler struct {
	config    *config.ScheduleConfig
	submit    SubmitFunc
	scheduler gocron.Scheduler
}

type options struct {
	redisClient redis.UniversalClient
}

// Option customizes the scheduler.
type Option func(*options)

// WithRedisLock takes a distributed lock per firing so only one engine
// instance refreshes when several share the schedule.
func WithRedisLock(client redis.UniversalClient) Option {
	return func(o *options) { o.redisClient = client }
}

// New builds the refresh scheduler. The job is registered but does not
// fire until Start is called.
func New(cfg *config.ScheduleConfig, submit SubmitFunc, opts ...Option) (*Scheduler, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("scheduler is not enabled")
	}
	if submit == nil {
		return nil, fmt.Errorf("submit function is required")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var schedOpts []gocron.SchedulerOption
	if o.redisClient != nil {
		locker, err := redislock.NewRedisLocker(o.redisClient)
		if err != nil {
			return nil, fmt.Errorf("creating redis locker: %w", err)
		}
		schedOpts = append(schedOpts, gocron.WithDistributedLocker(locker))
	}

	gs, err := gocron.NewScheduler(schedOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}

	s := &Scheduler{
		config:    cfg,
		submit:    submit,
		scheduler: gs,
	}

	var def gocron.JobDefinition
	if cfg.Cron != "" {
		def = gocron.CronJob(cfg.Cron, false)
	} else {
		def = gocron.DurationJob(cfg.Interval)
	}

	_, err = gs.NewJob(def,
		gocron.NewTask(s.refresh),
		gocron.WithName("dataset-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = gs.Shutdown()
		return nil, fmt.Errorf("registering refresh job: %w", err)
	}

	return s, nil
}

// Start begins firing refreshes.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	logger.Info("refresh scheduler started",
		zap.String("dir", s.config.DatasetDir),
		zap.String("cron", s.config.Cron),
		zap.Duration("interval", s.config.Interval))
}

// Shutdown stops the scheduler and waits for a running refresh to
// finish.
func (s *Scheduler) Shutdown() error {
	return s.scheduler.Shutdown()
}

// refresh submits one job per dataset file.
func (s *Scheduler) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	specs, err := s.scan()
	if err != nil {
		logger.Error("dataset refresh scan failed", zap.Error(err))
		return
	}
	if len(specs) == 0 {
		logger.Debug("dataset refresh found nothing to do",
			zap.String("dir", s.config.DatasetDir))
		return
	}

	for _, spec := range specs {
		jobID, err := s.submit(ctx, spec)
		if err != nil {
			logger.Warn("dataset refresh submission failed",
				zap.String("dataset", spec.DatasetPath),
				zap.Error(err))
			continue
		}
		logger.Info("dataset refresh submitted",
			zap.String("dataset", spec.DatasetPath),
			zap.String("job_id", jobID))
	}
}

// scan builds a job spec per forecastable file in the dataset
// directory.
func (s *Scheduler) scan() ([]*types.JobSpec, error) {
	entries, err := os.ReadDir(s.config.DatasetDir)
	if err != nil {
		return nil, fmt.Errorf("reading dataset dir: %w", err)
	}

	var specs []*types.JobSpec
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".csv") && !strings.HasSuffix(name, ".csv.gz") {
			continue
		}
		specs = append(specs, &types.JobSpec{
			Name:        strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ".csv"),
			DatasetPath: filepath.Join(s.config.DatasetDir, name),
			FreqIn:      types.Frequency(s.config.Freq),
			Horizon:     s.config.Horizon,
		})
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].DatasetPath < specs[j].DatasetPath })
	return specs, nil
}
