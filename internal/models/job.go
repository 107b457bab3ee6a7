package models

import "time"

// Job is the durable record for one unit of orchestrated remote work.
// The Data map carries free-form stage bookkeeping (paths, frame counts,
// cost estimates) and is shallow-merged on update, never replaced.
type Job struct {
	JobID     string         `json:"job_id"`
	JobType   JobType        `json:"job_type"`
	Status    JobStatus      `json:"status"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// JobType identifies which pipeline stage a job record belongs to
type JobType string

const (
	JobTypeUpload         JobType = "upload"
	JobTypeReconstruction JobType = "reconstruction"
	JobTypeTraining       JobType = "training"
	JobTypeRendering      JobType = "rendering"
)

// JobStatus defines the execution state of a job
type JobStatus string

const (
	JobStatusIdle       JobStatus = "idle"
	JobStatusProcessing JobStatus = "processing"
	JobStatusComplete   JobStatus = "complete"
	JobStatusFailed     JobStatus = "failed"
)

// IsValidJobType checks if the job type is recognized
func IsValidJobType(t JobType) bool {
	switch t {
	case JobTypeUpload, JobTypeReconstruction, JobTypeTraining, JobTypeRendering:
		return true
	default:
		return false
	}
}

// IsValidJobStatus checks if the job status is recognized
func IsValidJobStatus(s JobStatus) bool {
	switch s {
	case JobStatusIdle, JobStatusProcessing, JobStatusComplete, JobStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status ends a job record's lifecycle.
// Terminal records never transition again; a retry mints a new derived
// job id and the old record stays as history.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

// CanTransitionTo checks if a status transition is valid
// Valid transitions:
//
//	idle -> processing | failed
//	processing -> complete | failed
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusIdle:
		return next == JobStatusProcessing || next == JobStatusFailed
	case JobStatusProcessing:
		return next == JobStatusComplete || next == JobStatusFailed
	default:
		return false
	}
}
