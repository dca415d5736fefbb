// Package jobs hands accepted model jobs to the execution layer.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/NOAA-OWP/DMOD-sub000/allocation"
	"github.com/NOAA-OWP/DMOD-sub000/domain"
	"github.com/NOAA-OWP/DMOD-sub000/hydrofabric"
)

// Job is a fully resolved and planned model execution.
type Job struct {
	ID           string                   `json:"job_id"`
	JobType      string                   `json:"job_type"`
	CPUCount     int                      `json:"cpu_count"`
	Allocation   *allocation.Plan         `json:"allocation"`
	Requirements []domain.DataRequirement `json:"data_requirements"`
	// Scope is the catchment subset an ngen job runs over.
	Scope          *hydrofabric.Subset `json:"scope,omitempty"`
	HydrofabricUID string              `json:"hydrofabric_uid,omitempty"`
	SubmittedAt    time.Time           `json:"submitted_at"`
}

// Sink accepts jobs for execution.
type Sink interface {
	Submit(ctx context.Context, job *Job) error
}

// Recorder keeps submitted jobs in memory.
type Recorder struct {
	mu   sync.Mutex
	jobs []*Job
	// Err, when set, is returned by Submit and the job is not kept.
	Err error
}

// Submit implements Sink.
func (r *Recorder) Submit(_ context.Context, job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns the submitted jobs in order.
func (r *Recorder) Jobs() []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Job(nil), r.jobs...)
}
