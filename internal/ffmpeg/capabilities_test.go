package ffmpeg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alchemist-av/alchemist/internal/hardware"
)

const encodersOutput = `Encoders:
 V..... = Video
 A..... = Audio
 S..... = Subtitle
 .F.... = Frame-level multithreading
 ..S... = Slice-level multithreading
 ...X.. = Codec is experimental
 ....B. = Supports draw_horiz_band
 .....D = Supports direct rendering method 1
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC (codec h264)
 V....D libx265              libx265 H.265 / HEVC (codec hevc)
 V..... libsvtav1            SVT-AV1 encoder (codec av1)
 V....D h264_nvenc           NVIDIA NVENC H.264 encoder (codec h264)
 V..... hevc_vaapi           H.265/HEVC (VAAPI) (codec hevc)
 A....D aac                  AAC (Advanced Audio Coding)
 A....D flac                 FLAC (Free Lossless Audio Codec)
 S..... srt                  SubRip subtitle
`

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name   string
		output string
		full   string
		major  int
		minor  int
	}{
		{
			name:   "plain release",
			output: "ffmpeg version 6.0 Copyright (c) 2000-2023 the FFmpeg developers\nbuilt with gcc 12\n",
			full:   "6.0",
			major:  6,
			minor:  0,
		},
		{
			name:   "patch release",
			output: "ffmpeg version 6.0.1 Copyright (c) 2000-2023 the FFmpeg developers\n",
			full:   "6.0.1",
			major:  6,
			minor:  0,
		},
		{
			name:   "git build",
			output: "ffmpeg version n7.1-2-gdeadbeef Copyright (c) 2000-2024 the FFmpeg developers\n",
			full:   "n7.1-2-gdeadbeef",
			major:  7,
			minor:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			full, major, minor, err := parseVersion([]byte(tt.output))
			require.NoError(t, err)
			assert.Equal(t, tt.full, full)
			assert.Equal(t, tt.major, major)
			assert.Equal(t, tt.minor, minor)
		})
	}
}

func TestParseVersion_NoVersionLine(t *testing.T) {
	_, _, _, err := parseVersion([]byte("configuration: --enable-gpl\n"))
	assert.Error(t, err)
}

func TestParseEncoders(t *testing.T) {
	video, audio := parseEncoders([]byte(encodersOutput))

	assert.Equal(t, []string{"libx264", "libx265", "libsvtav1", "h264_nvenc", "hevc_vaapi"}, video)
	assert.Equal(t, []string{"aac", "flac"}, audio)
}

func TestParseEncoders_IgnoresLegend(t *testing.T) {
	// Legend rows above the separator must never be parsed as encoders.
	video, audio := parseEncoders([]byte(" V..... = Video\n A..... = Audio\n"))
	assert.Empty(t, video)
	assert.Empty(t, audio)
}

func TestParseHWAccels(t *testing.T) {
	output := "Hardware acceleration methods:\nvulkan\ncuda\nvaapi\n\n"
	assert.Equal(t, []string{"vulkan", "cuda", "vaapi"}, parseHWAccels([]byte(output)))
}

func TestSmokeArgs(t *testing.T) {
	t.Run("vaapi gets device and upload filter", func(t *testing.T) {
		hw := hardware.Info{Vendor: hardware.VendorIntel, VAAPIDevice: "/dev/dri/renderD129"}
		args := smokeArgs("hevc_vaapi", hw)

		assert.Contains(t, args, "-vaapi_device")
		assert.Contains(t, args, "/dev/dri/renderD129")
		assert.Contains(t, args, "format=nv12,hwupload")
		assert.Equal(t, "-", args[len(args)-1])
	})

	t.Run("qsv gets device init", func(t *testing.T) {
		args := smokeArgs("av1_qsv", hardware.Info{Vendor: hardware.VendorIntel})

		assert.Contains(t, args, "-init_hw_device")
		assert.Contains(t, args, "qsv=hw")
		assert.Contains(t, args, "format=nv12,hwupload=extra_hw_frames=64")
	})

	t.Run("nvenc encodes software frames directly", func(t *testing.T) {
		args := smokeArgs("h264_nvenc", hardware.Info{Vendor: hardware.VendorNvidia})

		assert.NotContains(t, args, "-vf")
		assert.Contains(t, args, "h264_nvenc")
		assert.Contains(t, args, "testsrc=duration=2:size=640x360:rate=30")
	})
}

func TestIsHardwareEncoder(t *testing.T) {
	assert.True(t, isHardwareEncoder("hevc_qsv"))
	assert.True(t, isHardwareEncoder("av1_nvenc"))
	assert.True(t, isHardwareEncoder("h264_videotoolbox"))
	assert.False(t, isHardwareEncoder("libx264"))
	assert.False(t, isHardwareEncoder("libsvtav1"))
}

func TestPlannerCandidate(t *testing.T) {
	assert.True(t, plannerCandidate("hevc_vaapi"))
	assert.True(t, plannerCandidate("av1_qsv"))
	assert.False(t, plannerCandidate("mjpeg_qsv"))
	assert.False(t, plannerCandidate("libx264"))
}

func TestCapabilities_HasVideoEncoder(t *testing.T) {
	caps := &Capabilities{VideoEncoders: []string{"libx264", "hevc_nvenc"}}

	assert.True(t, caps.HasVideoEncoder("hevc_nvenc"))
	assert.False(t, caps.HasVideoEncoder("hevc_qsv"))
}

func TestLocateBinary_ConfiguredPath(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755))

	path, err := locateBinary("ffmpeg", exe, "ALCHEMIST_FFMPEG")
	require.NoError(t, err)
	assert.Equal(t, exe, path)
}

func TestLocateBinary_ConfiguredPathNotExecutable(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(plain, []byte("data"), 0o644))

	_, err := locateBinary("ffmpeg", plain, "ALCHEMIST_FFMPEG")
	assert.Error(t, err)
}

func TestLocateBinary_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "custom-ffprobe")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755))
	t.Setenv("ALCHEMIST_FFPROBE", exe)

	path, err := locateBinary("ffprobe", "", "ALCHEMIST_FFPROBE")
	require.NoError(t, err)
	assert.Equal(t, exe, path)
}
