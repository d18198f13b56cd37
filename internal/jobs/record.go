package jobs

import (
	"context"
	"sync"
	"time"

	"CampaignMailer/internal/models"
)

// Record is the live progress of one send job. The engine running the
// job is its only writer; status readers take snapshots.
type Record struct {
	mu     sync.RWMutex
	status models.JobStatus

	// stop is the job's cancellation token. It is checked between
	// recipients, never mid-send.
	stop   context.Context
	cancel context.CancelFunc
}

// Snapshot returns a copy safe to hand to another goroutine.
func (r *Record) Snapshot() models.JobStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.status
	if s.EndTime != nil {
		end := *s.EndTime
		s.EndTime = &end
	}
	return s
}

func (r *Record) RequestStop() {
	r.cancel()
}

func (r *Record) StopRequested() bool {
	return r.stop.Err() != nil
}

// SetProgress publishes the engine's counters. Values that would break
// sent+failed <= total are clamped.
func (r *Record) SetProgress(sent, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sent > r.status.Total {
		sent = r.status.Total
	}
	if sent+failed > r.status.Total {
		failed = r.status.Total - sent
	}
	r.status.Sent = sent
	r.status.Failed = failed
}

func (r *Record) MarkStopped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Stopped = true
}

// Finish freezes the record. errMsg is empty unless the job hit a fatal
// error.
func (r *Record) Finish(at time.Time, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.Completed {
		return
	}
	r.status.Completed = true
	r.status.EndTime = &at
	if errMsg != "" {
		r.status.Error = errMsg
	}
	r.cancel()
}

func (r *Record) campaignID() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status.CampaignID
}

func (r *Record) finishedBefore(cutoff time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status.Completed && r.status.EndTime != nil && r.status.EndTime.Before(cutoff)
}
