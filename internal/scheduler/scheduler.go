// Package scheduler runs the named periodic jobs (spec §4.8): ingest,
// extract, cluster, score, lifecycle_sweep, and fixed-wall-clock briefing
// jobs. Each job gets its own cron-style schedule and a max-concurrency of
// 1 — a run that is still in flight when its next tick fires is skipped,
// not queued. Lifecycle (start/stop, per-job state) follows the teacher's
// WorkerPool pattern; scheduling itself uses robfig/cron for parsing.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// JobFunc is one job's unit of work. It should observe ctx cancellation at
// iteration boundaries (spec §5 "Cancellation").
type JobFunc func(ctx context.Context) error

// Job is one named, scheduled unit of recurring work.
type Job struct {
	Name     string
	Schedule string // cron expression, e.g. "*/5 * * * *"
	Run      JobFunc

	running int32 // atomic; guards max-concurrency-1 per job
}

// Scheduler owns a cron engine and the set of registered jobs.
type Scheduler struct {
	cron *cron.Cron
	jobs []*Job
	log  *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	baseCtx context.Context
}

// New constructs a Scheduler. baseCtx is the parent context every job run
// derives from; cancelling it (via Stop) cancels any in-flight run.
func New(baseCtx context.Context, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(),
		log:     log,
		baseCtx: baseCtx,
	}
}

// Register adds a named job with its cron schedule. Must be called before
// Start.
func (s *Scheduler) Register(name, schedule string, run JobFunc) error {
	job := &Job{Name: name, Schedule: schedule, Run: run}
	_, err := s.cron.AddFunc(schedule, func() { s.runOnce(job) })
	if err != nil {
		return err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// runOnce executes a job if it is not already running, enforcing
// max-concurrency 1 per job name (spec §4.8).
func (s *Scheduler) runOnce(job *Job) {
	if !atomic.CompareAndSwapInt32(&job.running, 0, 1) {
		s.log.Debug("scheduler: skipping tick, previous run still in flight", "job", job.Name)
		return
	}
	defer atomic.StoreInt32(&job.running, 0)

	ctx, cancel := context.WithCancel(s.baseCtx)
	defer cancel()

	s.log.Info("scheduler: job starting", "job", job.Name)
	if err := job.Run(ctx); err != nil {
		s.log.Error("scheduler: job failed", "job", job.Name, "error", err)
		return
	}
	s.log.Info("scheduler: job completed", "job", job.Name)
}

// Start begins the cron engine. Non-blocking; jobs run on the cron
// library's own goroutines.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Start()
}

// Stop waits for in-flight job runs to finish (cron.Cron.Stop's documented
// behavior) and then returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunNow triggers a named job immediately, outside its schedule; used by
// the CLI's one-shot subcommands (cmd/cryptonews-cli).
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	for _, j := range s.jobs {
		if j.Name == name {
			return j.Run(ctx)
		}
	}
	return nil
}
