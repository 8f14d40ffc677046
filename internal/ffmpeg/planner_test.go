package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alchemist-av/alchemist/internal/hardware"
	"github.com/alchemist-av/alchemist/internal/models"
)

func capsFor(vendor hardware.Vendor, encoders ...string) *Capabilities {
	return &Capabilities{
		VideoEncoders: encoders,
		Hardware:      hardware.Info{Vendor: vendor},
	}
}

func TestPlan_VendorSelection(t *testing.T) {
	tests := []struct {
		name    string
		caps    *Capabilities
		target  models.Codec
		goos    string
		encoder string
		codec   models.Codec
	}{
		{
			name:    "apple hevc",
			caps:    capsFor(hardware.VendorApple, "hevc_videotoolbox", "libx265"),
			target:  models.CodecHEVC,
			goos:    "darwin",
			encoder: "hevc_videotoolbox",
			codec:   models.CodecHEVC,
		},
		{
			name:    "nvidia av1",
			caps:    capsFor(hardware.VendorNvidia, "av1_nvenc", "hevc_nvenc"),
			target:  models.CodecAV1,
			goos:    "linux",
			encoder: "av1_nvenc",
			codec:   models.CodecAV1,
		},
		{
			name:    "intel prefers qsv",
			caps:    capsFor(hardware.VendorIntel, "hevc_qsv", "hevc_vaapi"),
			target:  models.CodecHEVC,
			goos:    "linux",
			encoder: "hevc_qsv",
			codec:   models.CodecHEVC,
		},
		{
			name:    "intel falls back to vaapi",
			caps:    capsFor(hardware.VendorIntel, "hevc_vaapi"),
			target:  models.CodecHEVC,
			goos:    "linux",
			encoder: "hevc_vaapi",
			codec:   models.CodecHEVC,
		},
		{
			name:    "amd uses amf on windows",
			caps:    capsFor(hardware.VendorAMD, "hevc_amf", "hevc_vaapi"),
			target:  models.CodecHEVC,
			goos:    "windows",
			encoder: "hevc_amf",
			codec:   models.CodecHEVC,
		},
		{
			name:    "amd uses vaapi on linux",
			caps:    capsFor(hardware.VendorAMD, "hevc_amf", "hevc_vaapi"),
			target:  models.CodecHEVC,
			goos:    "linux",
			encoder: "hevc_vaapi",
			codec:   models.CodecHEVC,
		},
		{
			name:    "cpu vendor goes software",
			caps:    capsFor(hardware.VendorCPU, "libsvtav1", "libx265", "libx264"),
			target:  models.CodecAV1,
			goos:    "linux",
			encoder: "libsvtav1",
			codec:   models.CodecAV1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := models.DefaultSettings()
			st.TargetCodec = tt.target

			p, err := plan(tt.caps, &st, tt.goos)
			require.NoError(t, err)
			assert.Equal(t, tt.encoder, p.Encoder)
			assert.Equal(t, tt.codec, p.Codec)
		})
	}
}

func TestPlan_CPUFallback(t *testing.T) {
	// Nvidia host whose nvenc did not survive the smoke test.
	caps := capsFor(hardware.VendorNvidia, "libsvtav1", "libx265")
	st := models.DefaultSettings()
	st.TargetCodec = models.CodecAV1
	st.AllowCPUFallback = true

	p, err := plan(caps, &st, "linux")
	require.NoError(t, err)
	assert.Equal(t, "libsvtav1", p.Encoder)
	assert.Equal(t, models.CodecAV1, p.Codec)
}

func TestPlan_CodecFallbackChain(t *testing.T) {
	// No AV1 encoder anywhere; CPU fallback disabled, but hevc_nvenc
	// exists, so the chain lands on HEVC.
	caps := capsFor(hardware.VendorNvidia, "hevc_nvenc", "h264_nvenc")
	st := models.DefaultSettings()
	st.TargetCodec = models.CodecAV1
	st.AllowCPUFallback = false

	p, err := plan(caps, &st, "linux")
	require.NoError(t, err)
	assert.Equal(t, "hevc_nvenc", p.Encoder)
	assert.Equal(t, models.CodecHEVC, p.Codec)
}

func TestPlan_Exhausted(t *testing.T) {
	caps := capsFor(hardware.VendorNvidia, "libx264")
	st := models.DefaultSettings()
	st.TargetCodec = models.CodecAV1
	st.AllowCPUFallback = false

	_, err := plan(caps, &st, "linux")
	assert.ErrorIs(t, err, models.ErrEncoderUnavailable)
}

func TestPlan_VAAPIDevice(t *testing.T) {
	caps := capsFor(hardware.VendorAMD, "hevc_vaapi")
	caps.Hardware.VAAPIDevice = "/dev/dri/renderD129"
	st := models.DefaultSettings()
	st.TargetCodec = models.CodecHEVC

	p, err := plan(caps, &st, "linux")
	require.NoError(t, err)
	assert.Equal(t, "/dev/dri/renderD129", p.Device)
	assert.True(t, p.HWUpload)
}

func TestPlan_VAAPIDeviceDefault(t *testing.T) {
	caps := capsFor(hardware.VendorIntel, "hevc_vaapi")
	st := models.DefaultSettings()
	st.TargetCodec = models.CodecHEVC

	p, err := plan(caps, &st, "linux")
	require.NoError(t, err)
	assert.Equal(t, defaultVAAPIDevice, p.Device)
}

func TestRateControlArgs(t *testing.T) {
	st := models.DefaultSettings()

	t.Run("qsv global quality by profile", func(t *testing.T) {
		st.QualityProfile = models.ProfileQuality
		assert.Equal(t, []string{"-global_quality", "20"},
			rateControlArgs("hevc_qsv", models.CodecHEVC, &st))

		st.QualityProfile = models.ProfileSpeed
		assert.Equal(t, []string{"-global_quality", "30"},
			rateControlArgs("hevc_qsv", models.CodecHEVC, &st))
	})

	t.Run("h264 qsv adds lookahead", func(t *testing.T) {
		st.QualityProfile = models.ProfileBalanced
		args := rateControlArgs("h264_qsv", models.CodecH264, &st)
		assert.Equal(t, []string{"-global_quality", "25", "-look_ahead", "1"}, args)
	})

	t.Run("nvenc preset and cq", func(t *testing.T) {
		st.QualityProfile = models.ProfileQuality
		args := rateControlArgs("av1_nvenc", models.CodecAV1, &st)
		assert.Equal(t, []string{"-preset", "p7", "-rc", "vbr", "-cq", "25", "-b:v", "0"}, args)
	})

	t.Run("videotoolbox hevc gets hvc1 tag", func(t *testing.T) {
		st.QualityProfile = models.ProfileBalanced
		args := rateControlArgs("hevc_videotoolbox", models.CodecHEVC, &st)
		assert.Equal(t, []string{"-q:v", "62", "-b:v", "0", "-tag:v", "hvc1"}, args)
	})

	t.Run("vaapi constant qp", func(t *testing.T) {
		st.QualityProfile = models.ProfileSpeed
		args := rateControlArgs("hevc_vaapi", models.CodecHEVC, &st)
		assert.Equal(t, []string{"-rc_mode", "CQP", "-qp", "28"}, args)
	})

	t.Run("svtav1 preset crf pairs", func(t *testing.T) {
		st.QualityProfile = models.ProfileBalanced
		args := rateControlArgs("libsvtav1", models.CodecAV1, &st)
		assert.Equal(t, []string{"-preset", "8", "-crf", "28"}, args)
	})

	t.Run("x265 crf from cpu preset", func(t *testing.T) {
		st.CPUPreset = models.PresetSlow
		args := rateControlArgs("libx265", models.CodecHEVC, &st)
		assert.Equal(t, []string{"-preset", "slow", "-crf", "20"}, args)
	})

	t.Run("x264 runs two crf lower", func(t *testing.T) {
		st.CPUPreset = models.PresetMedium
		args := rateControlArgs("libx264", models.CodecH264, &st)
		assert.Equal(t, []string{"-preset", "medium", "-crf", "22"}, args)
	})
}

func TestFallbackChain(t *testing.T) {
	assert.Equal(t,
		[]models.Codec{models.CodecAV1, models.CodecHEVC, models.CodecH264},
		FallbackChain(models.CodecAV1))
	assert.Equal(t,
		[]models.Codec{models.CodecHEVC, models.CodecH264},
		FallbackChain(models.CodecHEVC))
	assert.Equal(t,
		[]models.Codec{models.CodecH264},
		FallbackChain(models.CodecH264))
}
