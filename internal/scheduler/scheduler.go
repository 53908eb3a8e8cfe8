// Package scheduler runs background maintenance jobs on cron schedules.
package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// JobStatus describes a registered job and its most recent run.
type JobStatus struct {
	Name      string    `json:"name" msgpack:"name"`
	Schedule  string    `json:"schedule" msgpack:"schedule"`
	NextRun   time.Time `json:"next_run" msgpack:"next_run"`
	LastRun   time.Time `json:"last_run,omitempty" msgpack:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty" msgpack:"last_error,omitempty"`
	Runs      int       `json:"runs" msgpack:"runs"`
}

type registration struct {
	id     cron.EntryID
	status JobStatus
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*registration
}

// New creates a new scheduler. Schedules carry a leading seconds field.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
		jobs: make(map[string]*registration),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", s.Jobs()).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job with a cron schedule. Job names must be unique.
// Schedule examples:
//   - "0 0 3 * * *"  - 03:00 every day
//   - "@hourly"      - Every hour
//   - "@every 30s"   - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return DuplicateJobError{Name: job.Name()}
	}

	id, err := s.cron.AddFunc(schedule, func() {
		_ = s.run(job)
	})
	if err != nil {
		return err
	}

	s.jobs[job.Name()] = &registration{
		id:     id,
		status: JobStatus{Name: job.Name(), Schedule: schedule},
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// Jobs returns the number of registered jobs
func (s *Scheduler) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return s.run(job)
}

// Status returns every registered job, sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, reg := range s.jobs {
		status := reg.status
		status.NextRun = s.cron.Entry(reg.id).Next
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) run(job Job) error {
	s.log.Debug().Str("job", job.Name()).Msg("Running job")

	started := time.Now()
	err := job.Run()

	if err != nil {
		s.log.Error().
			Err(err).
			Str("job", job.Name()).
			Msg("Job failed")
	} else {
		s.log.Debug().
			Str("job", job.Name()).
			Dur("duration_ms", time.Since(started)).
			Msg("Job completed")
	}

	s.mu.Lock()
	if reg, ok := s.jobs[job.Name()]; ok {
		reg.status.LastRun = started
		reg.status.Runs++
		reg.status.LastError = ""
		if err != nil {
			reg.status.LastError = err.Error()
		}
	}
	s.mu.Unlock()

	return err
}

// DuplicateJobError reports a second registration under an existing job name.
type DuplicateJobError struct {
	Name string
}

func (e DuplicateJobError) Error() string {
	return "job " + e.Name + " is already registered"
}
