package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alchemist-av/alchemist/internal/ffmpeg"
	"github.com/alchemist-av/alchemist/internal/hardware"
	"github.com/alchemist-av/alchemist/internal/models"
)

// fullCaps has a hardware path and all CPU encoders.
func fullCaps(vendor hardware.Vendor, encoders ...string) *ffmpeg.Capabilities {
	return &ffmpeg.Capabilities{
		VideoEncoders: encoders,
		Hardware:      hardware.Info{Vendor: vendor},
	}
}

func baseInfo() *ffmpeg.MediaInfo {
	return &ffmpeg.MediaInfo{
		Codec:           "h264",
		Width:           1920,
		Height:          1080,
		FPS:             24,
		DurationSeconds: 5400,
		VideoBitrate:    8_000_000,
		Confidence:      ffmpeg.ConfidenceHigh,
		BitDepth:        8,
		SizeBytes:       5_000_000_000,
	}
}

func TestDecide_AlreadyTarget(t *testing.T) {
	st := models.DefaultSettings()
	caps := fullCaps(hardware.VendorCPU, "libsvtav1", "libx265", "libx264")

	info := baseInfo()
	info.Codec = "av1"
	info.BitDepth = 10
	info.VideoBitrate = 4_000_000
	info.SizeBytes = 500_000_000

	v := New().Decide(info, &st, caps)
	assert.Equal(t, models.DecisionSkip, v.Action)
	assert.Equal(t, "Already av1 10-bit", v.Reason)
}

func TestDecide_AlreadyTargetEightBitNotSkipped(t *testing.T) {
	// 8-bit AV1 still gets re-encoded to 10-bit-capable AV1.
	st := models.DefaultSettings()
	caps := fullCaps(hardware.VendorCPU, "libsvtav1")

	info := baseInfo()
	info.Codec = "av1"
	info.BitDepth = 8

	v := New().Decide(info, &st, caps)
	assert.Equal(t, models.DecisionTranscode, v.Action)
}

func TestDecide_H264TargetAcceptsAnyH264(t *testing.T) {
	st := models.DefaultSettings()
	st.TargetCodec = models.CodecH264
	caps := fullCaps(hardware.VendorCPU, "libx264")

	info := baseInfo() // h264, 8-bit

	v := New().Decide(info, &st, caps)
	assert.Equal(t, models.DecisionSkip, v.Action)
	assert.Equal(t, "Already h264", v.Reason)
}

func TestDecide_NoCapableEncoder(t *testing.T) {
	st := models.DefaultSettings()
	// ffmpeg build with no video encoders at all.
	caps := fullCaps(hardware.VendorCPU)

	v := New().Decide(baseInfo(), &st, caps)
	assert.Equal(t, models.DecisionSkip, v.Action)
	assert.Equal(t, "No capable encoder", v.Reason)
}

func TestDecide_NoCapableEncoderWhenFallbackDisabled(t *testing.T) {
	st := models.DefaultSettings()
	st.AllowCPUFallback = false
	// Nvidia host, nvenc demoted, CPU encoders present but unreachable.
	caps := fullCaps(hardware.VendorNvidia, "libsvtav1", "libx265", "libx264")

	v := New().Decide(baseInfo(), &st, caps)
	assert.Equal(t, models.DecisionSkip, v.Action)
	assert.Equal(t, "No capable encoder", v.Reason)
}

func TestDecide_CPUEncodingDisabled(t *testing.T) {
	st := models.DefaultSettings()
	st.AllowCPUEncoding = false
	caps := fullCaps(hardware.VendorCPU, "libsvtav1", "libx265", "libx264")

	v := New().Decide(baseInfo(), &st, caps)
	assert.Equal(t, models.DecisionSkip, v.Action)
	assert.Equal(t, "CPU encoding disabled", v.Reason)
}

func TestDecide_HardwarePathIgnoresCPUGate(t *testing.T) {
	st := models.DefaultSettings()
	st.AllowCPUEncoding = false
	caps := fullCaps(hardware.VendorNvidia, "av1_nvenc")

	v := New().Decide(baseInfo(), &st, caps)
	assert.Equal(t, models.DecisionTranscode, v.Action)
}

func TestDecide_IncompleteMetadata(t *testing.T) {
	st := models.DefaultSettings()
	caps := fullCaps(hardware.VendorCPU, "libsvtav1")

	info := baseInfo()
	info.Width = 0

	v := New().Decide(info, &st, caps)
	assert.Equal(t, models.DecisionSkip, v.Action)
	assert.Equal(t, "Incomplete metadata", v.Reason)
}

func TestDecide_BPPGate(t *testing.T) {
	st := models.DefaultSettings() // av1 target, min_bpp 0.1
	caps := fullCaps(hardware.VendorCPU, "libsvtav1")

	// 4K h264: threshold = 0.1 x 0.6 (4K) x 0.7 (av1 target) x 0.6 (h264
	// source) = 0.0252. 2 Mbps at 4K24 is bpp 0.0100.
	info := baseInfo()
	info.Width, info.Height = 3840, 2160
	info.VideoBitrate = 2_000_000

	v := New().Decide(info, &st, caps)
	assert.Equal(t, models.DecisionSkip, v.Action)
	assert.Equal(t, "Bitrate too low (BPP 0.0100 < 0.0252)", v.Reason)
	assert.InDelta(t, 0.0100, v.BPP, 0.0001)
}

func TestDecide_BPPGateConfidenceRelaxation(t *testing.T) {
	st := models.DefaultSettings()
	caps := fullCaps(hardware.VendorCPU, "libsvtav1")

	// 1080p hevc source, av1 target: base threshold 0.1 x 0.8 x 0.7 =
	// 0.056. bpp of 3 Mbps at 1080p24 is 0.0603: passes at High, still
	// passes at Medium (0.0392).
	info := baseInfo()
	info.Codec = "hevc"
	info.VideoBitrate = 3_000_000

	info.Confidence = ffmpeg.ConfidenceHigh
	v := New().Decide(info, &st, caps)
	assert.Equal(t, models.DecisionTranscode, v.Action)

	// 2 Mbps is bpp 0.0402: fails at High (0.056) but passes at Medium.
	info.VideoBitrate = 2_000_000
	info.Confidence = ffmpeg.ConfidenceHigh
	v = New().Decide(info, &st, caps)
	assert.Equal(t, models.DecisionSkip, v.Action)

	info.Confidence = ffmpeg.ConfidenceMedium
	v = New().Decide(info, &st, caps)
	assert.Equal(t, models.DecisionTranscode, v.Action)
}

func TestDecide_UnknownBitrateBypassesGate(t *testing.T) {
	st := models.DefaultSettings()
	caps := fullCaps(hardware.VendorCPU, "libsvtav1")

	info := baseInfo()
	info.VideoBitrate = 0
	info.Confidence = ffmpeg.ConfidenceLow

	v := New().Decide(info, &st, caps)
	assert.Equal(t, models.DecisionTranscode, v.Action)
}

func TestDecide_FileTooSmall(t *testing.T) {
	st := models.DefaultSettings() // min 50 MB
	caps := fullCaps(hardware.VendorCPU, "libsvtav1")

	info := baseInfo()
	info.SizeBytes = 20_000_000

	v := New().Decide(info, &st, caps)
	assert.Equal(t, models.DecisionSkip, v.Action)
	assert.Equal(t, "File too small", v.Reason)
}

func TestDecide_H264SourcePrioritized(t *testing.T) {
	st := models.DefaultSettings()
	caps := fullCaps(hardware.VendorCPU, "libsvtav1")

	v := New().Decide(baseInfo(), &st, caps)
	assert.Equal(t, models.DecisionTranscode, v.Action)
	assert.Equal(t, "H.264 source prioritized", v.Reason)
}

func TestDecide_DefaultTranscode(t *testing.T) {
	st := models.DefaultSettings()
	caps := fullCaps(hardware.VendorCPU, "libsvtav1")

	info := baseInfo()
	info.Codec = "mpeg2video"

	v := New().Decide(info, &st, caps)
	assert.Equal(t, models.DecisionTranscode, v.Action)
	assert.Equal(t, "Transcode to av1", v.Reason)
	assert.Equal(t, models.CodecAV1, v.Target)
}
