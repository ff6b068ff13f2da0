package cron

import (
	"context"
	"sync"
	"time"
)

// Job is a unit of maintenance work run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Periodic jobs run at most once per Every() instead of on every cycle.
type Periodic interface {
	Every() time.Duration
}

// Registry holds jobs in registration order and remembers when each last
// succeeded.
type Registry struct {
	mu      sync.Mutex
	jobs    []Job
	lastRun map[string]time.Time
}

// NewRegistry builds a registry preloaded with the provided jobs.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{lastRun: map[string]time.Time{}}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register adds a job. Nil jobs are ignored.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

// Due returns the jobs that should run at now.
func (r *Registry) Due(now time.Time) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	due := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		periodic, ok := job.(Periodic)
		if !ok || periodic.Every() <= 0 {
			due = append(due, job)
			continue
		}
		last, ran := r.lastRun[job.Name()]
		if !ran || now.Sub(last) >= periodic.Every() {
			due = append(due, job)
		}
	}
	return due
}

// MarkSucceeded records a successful run so periodic jobs wait a full period.
func (r *Registry) MarkSucceeded(name string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastRun == nil {
		r.lastRun = map[string]time.Time{}
	}
	r.lastRun[name] = at
}
