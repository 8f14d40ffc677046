package models

import "time"

// Codec identifies a target video codec family.
type Codec string

const (
	CodecAV1  Codec = "av1"
	CodecHEVC Codec = "hevc"
	CodecH264 Codec = "h264"
)

// ParseCodec validates a codec string.
func ParseCodec(s string) (Codec, bool) {
	switch Codec(s) {
	case CodecAV1, CodecHEVC, CodecH264:
		return Codec(s), true
	}
	return "", false
}

// QualityProfile trades encode quality against speed.
type QualityProfile string

const (
	ProfileQuality  QualityProfile = "quality"
	ProfileBalanced QualityProfile = "balanced"
	ProfileSpeed    QualityProfile = "speed"
)

// CPUPreset maps to the -preset of the CPU encoders.
type CPUPreset string

const (
	PresetSlow      CPUPreset = "slow"
	PresetMedium    CPUPreset = "medium"
	PresetFast      CPUPreset = "fast"
	PresetUltrafast CPUPreset = "ultrafast"
)

// ReplaceStrategy controls behavior when the output file already exists.
type ReplaceStrategy string

const (
	// ReplaceKeep skips the job when the output exists.
	ReplaceKeep ReplaceStrategy = "keep"
	// ReplaceOverwrite re-encodes over the existing output.
	ReplaceOverwrite ReplaceStrategy = "overwrite"
)

// Settings is the runtime-tunable behavior of the engine, stored as a
// singleton row (id=1) and editable over the API. Workers snapshot the row
// at claim time, so a running job never sees mid-flight changes.
type Settings struct {
	ID        int64     `gorm:"primarykey" json:"-"`
	UpdatedAt time.Time `json:"updated_at"`

	// TargetCodec is the codec files are converted to.
	TargetCodec Codec `gorm:"not null;size:8" json:"target_codec"`

	// QualityProfile selects the rate-control tier for every encoder.
	QualityProfile QualityProfile `gorm:"not null;size:16" json:"quality_profile"`

	// CPUPreset is passed to libx264/libx265 and scales their crf.
	CPUPreset CPUPreset `gorm:"not null;size:16" json:"cpu_preset"`

	// AllowCPUFallback permits falling back to a CPU encoder when no
	// hardware encoder can produce the target codec.
	AllowCPUFallback bool `json:"allow_cpu_fallback"`

	// AllowCPUEncoding gates whether CPU-only encode paths run at all;
	// false makes the decision engine skip files that would need one.
	AllowCPUEncoding bool `json:"allow_cpu_encoding"`

	// SizeReductionThreshold is the minimum fractional size saving an
	// encode must achieve to be kept, 0-1.
	SizeReductionThreshold float64 `json:"size_reduction_threshold"`

	// MinBPPThreshold is the bits-per-pixel floor below which a source is
	// considered already efficient enough.
	MinBPPThreshold float64 `json:"min_bpp_threshold"`

	// MinFileSizeMB skips files smaller than this.
	MinFileSizeMB int64 `json:"min_file_size_mb"`

	// ConcurrentJobs sizes the worker pool; applied live on update.
	ConcurrentJobs int `json:"concurrent_jobs"`

	// Threads caps ffmpeg threads, 0 = ffmpeg default.
	Threads int `json:"threads"`

	// EnableVMAF turns on the post-encode quality gate.
	EnableVMAF bool `json:"enable_vmaf"`

	// MinVMAFScore is the quality gate threshold, 0-100.
	MinVMAFScore float64 `json:"min_vmaf_score"`

	// RevertOnLowQuality removes outputs that score below MinVMAFScore.
	RevertOnLowQuality bool `json:"revert_on_low_quality"`

	// DeleteSource removes the input file after successful finalization.
	DeleteSource bool `json:"delete_source"`

	// OutputExtension is the container extension of outputs, without dot.
	OutputExtension string `gorm:"not null;size:8" json:"output_extension"`

	// OutputSuffix is appended to the stem of output filenames.
	OutputSuffix string `gorm:"not null;size:64" json:"output_suffix"`

	// ReplaceStrategy controls collisions with existing outputs.
	ReplaceStrategy ReplaceStrategy `gorm:"not null;size:16" json:"replace_strategy"`

	// MonitoringPollInterval is the progress persist/publish interval in
	// seconds.
	MonitoringPollInterval float64 `json:"monitoring_poll_interval"`

	// NotifyOnComplete fires notification targets on completed jobs.
	NotifyOnComplete bool `json:"notify_on_complete"`

	// NotifyOnFailure fires notification targets on failed jobs.
	NotifyOnFailure bool `json:"notify_on_failure"`
}

// TableName overrides the GORM table name.
func (Settings) TableName() string {
	return "settings"
}

// DefaultSettings returns the seed row written on first boot.
func DefaultSettings() Settings {
	return Settings{
		ID:                     1,
		TargetCodec:            CodecAV1,
		QualityProfile:         ProfileBalanced,
		CPUPreset:              PresetMedium,
		AllowCPUFallback:       true,
		AllowCPUEncoding:       true,
		SizeReductionThreshold: 0.3,
		MinBPPThreshold:        0.1,
		MinFileSizeMB:          50,
		ConcurrentJobs:         1,
		Threads:                0,
		EnableVMAF:             false,
		MinVMAFScore:           90.0,
		RevertOnLowQuality:     true,
		DeleteSource:           false,
		OutputExtension:        "mkv",
		OutputSuffix:           "-alchemist",
		ReplaceStrategy:        ReplaceKeep,
		MonitoringPollInterval: 2.0,
		NotifyOnComplete:       true,
		NotifyOnFailure:        true,
	}
}

// Validate checks every field against its allowed range.
func (s *Settings) Validate() error {
	if _, ok := ParseCodec(string(s.TargetCodec)); !ok {
		return ErrValidation{Field: "target_codec", Message: "must be one of av1, hevc, h264"}
	}
	switch s.QualityProfile {
	case ProfileQuality, ProfileBalanced, ProfileSpeed:
	default:
		return ErrValidation{Field: "quality_profile", Message: "must be one of quality, balanced, speed"}
	}
	switch s.CPUPreset {
	case PresetSlow, PresetMedium, PresetFast, PresetUltrafast:
	default:
		return ErrValidation{Field: "cpu_preset", Message: "must be one of slow, medium, fast, ultrafast"}
	}
	if s.SizeReductionThreshold < 0 || s.SizeReductionThreshold > 1 {
		return ErrValidation{Field: "size_reduction_threshold", Message: "must be between 0 and 1"}
	}
	if s.MinBPPThreshold < 0 {
		return ErrValidation{Field: "min_bpp_threshold", Message: "must be >= 0"}
	}
	if s.MinFileSizeMB < 0 {
		return ErrValidation{Field: "min_file_size_mb", Message: "must be >= 0"}
	}
	if s.ConcurrentJobs < 1 {
		return ErrValidation{Field: "concurrent_jobs", Message: "must be >= 1"}
	}
	if s.Threads < 0 {
		return ErrValidation{Field: "threads", Message: "must be >= 0"}
	}
	if s.MinVMAFScore < 0 || s.MinVMAFScore > 100 {
		return ErrValidation{Field: "min_vmaf_score", Message: "must be between 0 and 100"}
	}
	if s.OutputExtension == "" {
		return ErrValidation{Field: "output_extension", Message: "is required"}
	}
	switch s.ReplaceStrategy {
	case ReplaceKeep, ReplaceOverwrite:
	default:
		return ErrValidation{Field: "replace_strategy", Message: "must be keep or overwrite"}
	}
	if s.MonitoringPollInterval < 0.5 || s.MonitoringPollInterval > 10.0 {
		return ErrValidation{Field: "monitoring_poll_interval", Message: "must be between 0.5 and 10 seconds"}
	}
	return nil
}
