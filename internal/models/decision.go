package models

import "time"

// DecisionAction is the outcome of an analyze pass.
type DecisionAction string

const (
	// DecisionTranscode indicates the file is worth re-encoding.
	DecisionTranscode DecisionAction = "transcode"
	// DecisionSkip indicates the file should be left alone.
	DecisionSkip DecisionAction = "skip"
)

// Decision records one analyze pass over a job. Re-runs append rows, so the
// history of verdicts for a file survives restarts.
type Decision struct {
	ID        int64     `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	JobID int64 `gorm:"not null;index" json:"job_id"`

	Action DecisionAction `gorm:"not null;size:16" json:"action"`

	// Reason is the human-readable rule outcome; it surfaces verbatim in
	// the API and notifications.
	Reason string `gorm:"not null;size:512" json:"reason"`

	// Encoder is the planned ffmpeg encoder id; empty for skips.
	Encoder string `gorm:"size:64" json:"encoder,omitempty"`

	// BPP is the computed bits-per-pixel of the source at decision time,
	// 0 when bitrate or dimensions were unknown.
	BPP float64 `json:"bpp"`
}

// TableName overrides the GORM table name.
func (Decision) TableName() string {
	return "decisions"
}
