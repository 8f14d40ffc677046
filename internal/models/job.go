// Package models defines the GORM entities and shared error taxonomy for
// alchemist.
package models

import (
	"fmt"
	"time"
)

// JobState represents the lifecycle state of a transcode job.
type JobState string

const (
	// JobStateQueued indicates the job is waiting to be claimed.
	JobStateQueued JobState = "queued"
	// JobStateAnalyzing indicates a worker is probing and deciding.
	JobStateAnalyzing JobState = "analyzing"
	// JobStateEncoding indicates ffmpeg is running.
	JobStateEncoding JobState = "encoding"
	// JobStateCompleted indicates the output was verified and finalized.
	JobStateCompleted JobState = "completed"
	// JobStateSkipped indicates the decision engine declined the file.
	JobStateSkipped JobState = "skipped"
	// JobStateFailed indicates encoding or finalization failed.
	JobStateFailed JobState = "failed"
	// JobStateCancelled indicates the job was cancelled.
	JobStateCancelled JobState = "cancelled"
)

// AllJobStates lists every valid state, in lifecycle order.
var AllJobStates = []JobState{
	JobStateQueued,
	JobStateAnalyzing,
	JobStateEncoding,
	JobStateCompleted,
	JobStateSkipped,
	JobStateFailed,
	JobStateCancelled,
}

// ParseJobState validates a state string.
func ParseJobState(s string) (JobState, error) {
	for _, st := range AllJobStates {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown job state %q", s)
}

// IsTerminal reports whether the state is final. Terminal jobs are never
// picked up by the claim loop; they can only leave via Restart.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateCompleted, JobStateSkipped, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}

// IsActive reports whether a worker currently owns the job.
func (s JobState) IsActive() bool {
	return s == JobStateAnalyzing || s == JobStateEncoding
}

// Job represents one media file tracked by the transcode queue. InputPath is
// the identity: re-scanning the same file updates the existing row instead of
// inserting a duplicate.
type Job struct {
	ID        int64     `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index:idx_jobs_claim,priority:3" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// InputPath is the absolute path of the source file.
	InputPath string `gorm:"uniqueIndex;not null;size:4096" json:"input_path"`

	// OutputPath is where the encoded file will be written.
	OutputPath string `gorm:"not null;size:4096" json:"output_path"`

	// State is the current lifecycle state.
	State JobState `gorm:"not null;default:'queued';size:16;index:idx_jobs_claim,priority:1" json:"state"`

	// Priority orders the queue; higher claims first, ties break FIFO.
	Priority int `gorm:"not null;default:0;index:idx_jobs_claim,priority:2,sort:desc" json:"priority"`

	// AttemptCount is incremented each time the job is claimed.
	AttemptCount int `gorm:"not null;default:0" json:"attempt_count"`

	// MtimeHash is an opaque fingerprint of the source file version
	// (mtime + size). A changed hash requeues a terminal job on rescan.
	MtimeHash string `gorm:"size:64" json:"mtime_hash,omitempty"`

	// DecisionReason records why the job was skipped or transcoded.
	DecisionReason *string `gorm:"size:512" json:"decision_reason,omitempty"`

	// ErrorDetail carries failure detail, typically the tail of ffmpeg
	// stderr.
	ErrorDetail *string `gorm:"type:text" json:"error_detail,omitempty"`

	// ProgressPct is the last persisted encode progress, 0-100.
	ProgressPct float64 `gorm:"not null;default:0" json:"progress_pct"`
}

// TableName overrides the GORM table name.
func (Job) TableName() string {
	return "jobs"
}
