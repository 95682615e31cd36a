// Package scheduler runs named jobs on fixed intervals, cooperatively. A
// job that is still running when its next tick fires is skipped rather
// than run concurrently with itself; a job that fails is not retried
// immediately — the interval itself is the retry cadence. Shutdown is
// cooperative: jobs are expected to check ctx at their own suspension
// points (a page fetch, a sleep), the scheduler never force-kills one.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"polymarket-signals/internal/metrics"
)

// Job is one named, independently-scheduled unit of work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Status is the most recently observed outcome of a job, read by tests and
// an operator status snapshot.
type Status struct {
	Name        string
	Running     bool
	LastStarted time.Time
	LastSuccess time.Time
	LastFailure time.Time
	LastError   error
}

// Scheduler owns a set of named jobs and runs each on its own ticker.
type Scheduler struct {
	jobs    []Job
	metric  *metrics.Registry
	log     *slog.Logger

	mu     sync.Mutex
	status map[string]*Status
	busy   map[string]bool
}

// New builds a Scheduler for the given jobs.
func New(jobs []Job, m *metrics.Registry, log *slog.Logger) *Scheduler {
	s := &Scheduler{
		jobs:   jobs,
		metric: m,
		log:    log.With("component", "scheduler"),
		status: make(map[string]*Status, len(jobs)),
		busy:   make(map[string]bool, len(jobs)),
	}
	for _, j := range jobs {
		s.status[j.Name] = &Status{Name: j.Name}
	}
	return s
}

// Run launches every job's ticker loop and blocks until ctx is cancelled
// and all in-flight job runs have returned.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			s.runLoop(ctx, j)
		}(job)
	}
	wg.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.tick(ctx, job) // run once immediately on startup

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, job)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, job Job) {
	s.mu.Lock()
	if s.busy[job.Name] {
		s.mu.Unlock()
		s.log.Warn("job still running, skipping tick", "job_name", job.Name)
		return
	}
	s.busy[job.Name] = true
	s.status[job.Name].Running = true
	s.status[job.Name].LastStarted = time.Now()
	s.mu.Unlock()

	start := time.Now()
	err := job.Run(ctx)
	duration := time.Since(start)

	s.mu.Lock()
	s.busy[job.Name] = false
	st := s.status[job.Name]
	st.Running = false
	if err != nil {
		st.LastFailure = time.Now()
		st.LastError = err
	} else {
		st.LastSuccess = time.Now()
		st.LastError = nil
	}
	s.mu.Unlock()

	if s.metric != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		s.metric.JobRunsTotal.WithLabelValues(job.Name, outcome).Inc()
		s.metric.JobDurationSecs.WithLabelValues(job.Name).Observe(duration.Seconds())
		if err != nil {
			s.metric.JobLastFailureTS.WithLabelValues(job.Name).Set(float64(time.Now().Unix()))
		} else {
			s.metric.JobLastSuccessTS.WithLabelValues(job.Name).Set(float64(time.Now().Unix()))
		}
	}

	if err != nil {
		s.log.Error("job failed", "job_name", job.Name, "duration_ms", duration.Milliseconds(), "err", err)
		return
	}
	s.log.Info("job completed", "job_name", job.Name, "duration_ms", duration.Milliseconds())
}

// Status returns a snapshot of every job's last-run status.
func (s *Scheduler) Status() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, *st)
	}
	return out
}
