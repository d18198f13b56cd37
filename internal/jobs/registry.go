// Package jobs keeps the in-memory table of send jobs that status
// requests read and the engine updates.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"CampaignMailer/internal/errs"
	"CampaignMailer/internal/models"
)

// Spec describes a job at registration time.
type Spec struct {
	ID         string
	Total      int
	CampaignID int64
	Scheduled  bool
}

type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// Create registers a running job with zero progress. The job's stop
// token derives from parent, so cancelling parent stops the job at its
// next recipient boundary.
func (r *Registry) Create(parent context.Context, spec Spec) (*Record, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("%w: empty job id", errs.ErrValidation)
	}

	stop, cancel := context.WithCancel(parent)
	rec := &Record{
		status: models.JobStatus{
			ID:         spec.ID,
			CampaignID: spec.CampaignID,
			Scheduled:  spec.Scheduled,
			Total:      spec.Total,
			StartTime:  r.now(),
		},
		stop:   stop,
		cancel: cancel,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[spec.ID]; exists {
		cancel()
		return nil, fmt.Errorf("%w: job %q already exists", errs.ErrValidation, spec.ID)
	}
	r.records[spec.ID] = rec
	return rec, nil
}

func (r *Registry) Get(id string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	return rec, ok
}

// Status returns a snapshot of the job, or ErrJobNotFound.
func (r *Registry) Status(id string) (models.JobStatus, error) {
	rec, ok := r.Get(id)
	if !ok {
		return models.JobStatus{}, fmt.Errorf("%w: %s", errs.ErrJobNotFound, id)
	}
	return rec.Snapshot(), nil
}

// List returns snapshots of every job, oldest first.
func (r *Registry) List() []models.JobStatus {
	r.mu.RLock()
	out := make([]models.JobStatus, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Stop requests a cooperative stop of a job.
func (r *Registry) Stop(id string) error {
	rec, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", errs.ErrJobNotFound, id)
	}
	rec.RequestStop()
	return nil
}

// StopCampaign requests a stop on every running job of a campaign and
// returns how many were signalled.
func (r *Registry) StopCampaign(campaignID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, rec := range r.records {
		if rec.campaignID() != campaignID || !rec.Snapshot().Running() {
			continue
		}
		rec.RequestStop()
		n++
	}
	return n
}

// StopAll requests a stop on every running job.
func (r *Registry) StopAll() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, rec := range r.records {
		if rec.Snapshot().Running() {
			rec.RequestStop()
			n++
		}
	}
	return n
}

// Delete removes a job. An engine still running it sees the job as
// stop-requested at its next boundary.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	rec, ok := r.records[id]
	delete(r.records, id)
	r.mu.Unlock()

	if ok {
		rec.RequestStop()
	}
	return ok
}

// Sweep deletes completed jobs that ended more than retention ago and
// returns how many were reclaimed. Running jobs are never touched.
func (r *Registry) Sweep(retention time.Duration) int {
	cutoff := r.now().Add(-retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, rec := range r.records {
		if rec.finishedBefore(cutoff) {
			delete(r.records, id)
			n++
		}
	}
	return n
}

// Active counts jobs that are neither completed nor stopped.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, rec := range r.records {
		if rec.Snapshot().Running() {
			n++
		}
	}
	return n
}
