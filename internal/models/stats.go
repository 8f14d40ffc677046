package models

import "time"

// EncodeStat records the measured outcome of one completed encode. One row
// per job; re-encodes after a restart overwrite the previous row.
type EncodeStat struct {
	ID        int64     `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	JobID int64 `gorm:"uniqueIndex;not null" json:"job_id"`

	InputSizeBytes  int64 `gorm:"not null" json:"input_size_bytes"`
	OutputSizeBytes int64 `gorm:"not null" json:"output_size_bytes"`

	// ReductionPct is the size saving as a percentage, 0-100.
	ReductionPct float64 `json:"reduction_pct"`

	// EncodeSeconds is wall-clock encode time.
	EncodeSeconds float64 `json:"encode_seconds"`

	// EncodeSpeed is media seconds encoded per wall second (2.0 = twice
	// realtime).
	EncodeSpeed float64 `json:"encode_speed"`

	// AvgBitrateKbps is the overall bitrate of the output file.
	AvgBitrateKbps float64 `json:"avg_bitrate_kbps"`

	// VMAFScore is set only when the quality gate ran.
	VMAFScore *float64 `gorm:"column:vmaf_score" json:"vmaf_score,omitempty"`

	// Encoder is the ffmpeg encoder id that produced the output.
	Encoder string `gorm:"size:64" json:"encoder"`
}

// TableName overrides the GORM table name.
func (EncodeStat) TableName() string {
	return "encode_stats"
}
