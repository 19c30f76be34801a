package cron

import (
	"context"
	"time"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type scheduledJob struct {
	job   Job
	every time.Duration
	next  time.Time
}

// Registry tracks registered cron jobs and when each is next due.
type Registry struct {
	jobs []*scheduledJob
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a job that runs every interval. A non-positive interval runs
// the job on every scheduler tick.
func (r *Registry) Register(job Job, every time.Duration) {
	if job == nil {
		return
	}
	r.jobs = append(r.jobs, &scheduledJob{job: job, every: every})
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, 0, len(r.jobs))
	for _, sj := range r.jobs {
		jobs = append(jobs, sj.job)
	}
	return jobs
}

func (r *Registry) due(now time.Time) []*scheduledJob {
	var out []*scheduledJob
	for _, sj := range r.jobs {
		if sj.next.IsZero() || !now.Before(sj.next) {
			out = append(out, sj)
		}
	}
	return out
}

func (sj *scheduledJob) advance(now time.Time) {
	sj.next = now.Add(sj.every)
}
