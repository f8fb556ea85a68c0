// Package scheduler runs the worker's periodic jobs on gocron: rolling
// counter resets and stale impact recomputation.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/fiberfriends/companion-engine/pkg/logger"
)

var (
	ErrNilJob           = errors.New("scheduler: job is nil")
	ErrNilSchedule      = errors.New("scheduler: schedule is nil")
	ErrJobAlreadyExists = errors.New("scheduler: job already registered")
	ErrJobNotFound      = errors.New("scheduler: job not found")
	ErrNotRunning       = errors.New("scheduler: not running")
	ErrAlreadyRunning   = errors.New("scheduler: already running")
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job. The context is cancelled when the scheduler stops.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// JobResult contains the result of a job execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler registers jobs with a gocron scheduler and keeps a run history.
type Scheduler struct {
	mu sync.RWMutex

	cron     gocron.Scheduler
	clock    clockwork.Clock
	log      *logger.Logger
	timeout  time.Duration
	maxHist  int
	jobs     map[string]*scheduledJob
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
	lastRuns map[string]JobResult
	history  []JobResult
}

type scheduledJob struct {
	job       Job
	schedule  Schedule
	handle    gocron.Job
	runCount  int64
	failCount int64
}

// Config contains configuration for the Scheduler.
type Config struct {
	Logger *logger.Logger

	// Clock drives both gocron and the recorded timestamps. Defaults to the
	// real clock.
	Clock clockwork.Clock

	// Timezone for calendar schedules (default: UTC).
	Timezone *time.Location

	// JobTimeout bounds a single run. Zero means no limit.
	JobTimeout time.Duration

	// MaxHistorySize caps the run history.
	MaxHistorySize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timezone:       time.UTC,
		JobTimeout:     10 * time.Minute,
		MaxHistorySize: 200,
	}
}

// New creates a Scheduler. Jobs do not run until Start.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.MaxHistorySize <= 0 {
		cfg.MaxHistorySize = 200
	}

	log := cfg.Logger.With(logger.Component("scheduler"))
	cron, err := gocron.NewScheduler(
		gocron.WithClock(cfg.Clock),
		gocron.WithLocation(cfg.Timezone),
		gocron.WithLogger(cronLogger{log: log}),
	)
	if err != nil {
		return nil, fmt.Errorf("scheduler: create: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron,
		clock:    cfg.Clock,
		log:      log,
		timeout:  cfg.JobTimeout,
		maxHist:  cfg.MaxHistorySize,
		jobs:     make(map[string]*scheduledJob),
		ctx:      ctx,
		cancel:   cancel,
		lastRuns: make(map[string]JobResult),
	}, nil
}

// Register adds a job with the given schedule. Overlapping runs of the same
// job are skipped, not queued.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	sj := &scheduledJob{job: job, schedule: schedule}
	handle, err := s.cron.NewJob(
		schedule.Definition(),
		gocron.NewTask(func() { s.runJob(s.ctx, sj) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduler: register %s: %w", name, err)
	}
	sj.handle = handle
	s.jobs[name] = sj

	s.log.Info("job registered",
		logger.String("job", name),
		logger.String("schedule", schedule.String()),
		logger.String("description", job.Description()),
	)
	return nil
}

// Start begins executing registered jobs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.cron.Start()
	s.log.Info("scheduler started", logger.Int("jobs", len(s.jobs)))
	return nil
}

// Stop cancels running jobs and waits for gocron to shut down.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("scheduler: shutdown: %w", err)
	}
	s.log.Info("scheduler stopped")
	return nil
}

// IsRunning reports whether Start has been called without Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// RunNow executes a job synchronously outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (JobResult, error) {
	s.mu.RLock()
	sj, ok := s.jobs[jobName]
	s.mu.RUnlock()
	if !ok {
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	return s.runJob(ctx, sj), nil
}

func (s *Scheduler) runJob(ctx context.Context, sj *scheduledJob) JobResult {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	name := sj.job.Name()
	result := JobResult{JobName: name, StartedAt: s.clock.Now()}
	err := s.safeRun(ctx, sj.job)
	result.CompletedAt = s.clock.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)
	result.Success = err == nil
	result.Error = err

	s.mu.Lock()
	sj.runCount++
	if err != nil {
		sj.failCount++
	}
	s.lastRuns[name] = result
	s.history = append(s.history, result)
	if len(s.history) > s.maxHist {
		s.history = s.history[len(s.history)-s.maxHist:]
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("job failed", logger.String("job", name), logger.Latency(result.Duration), logger.Err(err))
	} else {
		s.log.Debug("job completed", logger.String("job", name), logger.Latency(result.Duration))
	}
	return result
}

func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
	LastRun     *JobResult
}

// ListJobs returns all registered jobs sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		info := JobInfo{
			Name:        name,
			Description: sj.job.Description(),
			Schedule:    sj.schedule.String(),
			RunCount:    sj.runCount,
			FailCount:   sj.failCount,
		}
		if next, err := sj.handle.NextRun(); err == nil {
			info.NextRun = next
		}
		if last, ok := s.lastRuns[name]; ok {
			info.LastRun = &last
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// History returns up to limit of the most recent results, newest last.
func (s *Scheduler) History(limit int) []JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]JobResult, limit)
	copy(out, s.history[len(s.history)-limit:])
	return out
}

// cronLogger adapts pkg/logger to gocron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Debug(msg string, args ...any) { l.log.Zap().Sugar().Debugw(msg, args...) }
func (l cronLogger) Info(msg string, args ...any)  { l.log.Zap().Sugar().Infow(msg, args...) }
func (l cronLogger) Warn(msg string, args ...any)  { l.log.Zap().Sugar().Warnw(msg, args...) }
func (l cronLogger) Error(msg string, args ...any) { l.log.Zap().Sugar().Errorw(msg, args...) }
