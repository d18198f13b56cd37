package models

import "time"

// JobStatus is a point-in-time copy of a send job's progress.
type JobStatus struct {
	ID         string     `json:"jobId"`
	CampaignID int64      `json:"campaignId,omitempty"`
	Scheduled  bool       `json:"isScheduled"`
	Total      int        `json:"total"`
	Sent       int        `json:"sent"`
	Failed     int        `json:"failed"`
	Completed  bool       `json:"completed"`
	Stopped    bool       `json:"stopped"`
	Error      string     `json:"error,omitempty"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime"`
}

// Running reports whether the job has neither finished nor been stopped.
func (s JobStatus) Running() bool {
	return !s.Completed && !s.Stopped
}
