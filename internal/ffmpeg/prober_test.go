package ffmpeg

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alchemist-av/alchemist/internal/models"
)

func testProber() *Prober {
	return NewProber("ffprobe", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func videoStream() ProbeStream {
	return ProbeStream{
		Index:        0,
		CodecType:    "video",
		CodecName:    "h264",
		Width:        1920,
		Height:       1080,
		PixFmt:       "yuv420p",
		RFrameRate:   "25/1",
		AvgFrameRate: "25/1",
		BitRate:      "5000000",
	}
}

func TestNormalize_DirectBitrate(t *testing.T) {
	result := &ProbeResult{
		Format:  ProbeFormat{FormatName: "matroska,webm", Duration: "3600.5", Size: "2000000000"},
		Streams: []ProbeStream{videoStream()},
	}

	info, err := testProber().normalize(result, "/media/film.mkv")
	require.NoError(t, err)

	assert.Equal(t, "h264", info.Codec)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.InDelta(t, 25.0, info.FPS, 0.001)
	assert.InDelta(t, 3600.5, info.DurationSeconds, 0.001)
	assert.Equal(t, int64(5000000), info.VideoBitrate)
	assert.Equal(t, ConfidenceHigh, info.Confidence)
	assert.Equal(t, 8, info.BitDepth)
	assert.False(t, info.IsHDR)
	assert.Equal(t, int64(2000000000), info.SizeBytes)
	assert.Equal(t, "matroska,webm", info.Container)
}

func TestNormalize_DerivedBitrate(t *testing.T) {
	video := videoStream()
	video.BitRate = ""
	result := &ProbeResult{
		Format: ProbeFormat{FormatName: "matroska", Duration: "100", BitRate: "6000000"},
		Streams: []ProbeStream{
			video,
			{Index: 1, CodecType: "audio", CodecName: "aac", BitRate: "256000"},
			{Index: 2, CodecType: "audio", CodecName: "ac3", BitRate: "448000"},
		},
	}

	info, err := testProber().normalize(result, "/media/film.mkv")
	require.NoError(t, err)

	assert.Equal(t, int64(6000000-256000-448000), info.VideoBitrate)
	assert.Equal(t, ConfidenceMedium, info.Confidence)
	assert.Equal(t, 2, info.AudioStreams)
}

func TestNormalize_UnknownBitrate(t *testing.T) {
	video := videoStream()
	video.BitRate = ""
	result := &ProbeResult{
		Format:  ProbeFormat{FormatName: "matroska", Duration: "100"},
		Streams: []ProbeStream{video},
	}

	info, err := testProber().normalize(result, "/media/film.mkv")
	require.NoError(t, err)

	assert.Zero(t, info.VideoBitrate)
	assert.Equal(t, ConfidenceLow, info.Confidence)
	assert.Zero(t, info.BPP())
}

func TestNormalize_NoVideoStream(t *testing.T) {
	result := &ProbeResult{
		Format:  ProbeFormat{FormatName: "flac"},
		Streams: []ProbeStream{{Index: 0, CodecType: "audio", CodecName: "flac"}},
	}

	_, err := testProber().normalize(result, "/media/song.flac")
	assert.ErrorIs(t, err, models.ErrProbeFailed)
}

func TestNormalize_FramerateFallback(t *testing.T) {
	video := videoStream()
	video.RFrameRate = "0/0"
	video.AvgFrameRate = ""
	result := &ProbeResult{
		Format:  ProbeFormat{Duration: "100"},
		Streams: []ProbeStream{video},
	}

	info, err := testProber().normalize(result, "/media/odd.mkv")
	require.NoError(t, err)
	assert.InDelta(t, fallbackFPS, info.FPS, 0.001)
}

func TestNormalize_StreamDurationFallback(t *testing.T) {
	video := videoStream()
	video.Duration = "120.25"
	result := &ProbeResult{
		Format:  ProbeFormat{},
		Streams: []ProbeStream{video},
	}

	info, err := testProber().normalize(result, "/media/nodur.mkv")
	require.NoError(t, err)
	assert.InDelta(t, 120.25, info.DurationSeconds, 0.001)
}

func TestNormalize_SizeFromStat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mkv")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0o644))

	result := &ProbeResult{
		Format:  ProbeFormat{Duration: "10"},
		Streams: []ProbeStream{videoStream()},
	}

	info, err := testProber().normalize(result, path)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), info.SizeBytes)
}

func TestNormalize_HDRAndBitDepth(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*ProbeStream)
		bitDepth int
		hdr      bool
	}{
		{
			name: "pq transfer",
			mutate: func(s *ProbeStream) {
				s.ColorTransfer = "smpte2084"
				s.PixFmt = "yuv420p10le"
			},
			bitDepth: 10,
			hdr:      true,
		},
		{
			name: "hlg transfer",
			mutate: func(s *ProbeStream) {
				s.ColorTransfer = "arib-std-b67"
			},
			bitDepth: 8,
			hdr:      true,
		},
		{
			name: "bt2020 primaries only",
			mutate: func(s *ProbeStream) {
				s.ColorPrimaries = "bt2020"
			},
			bitDepth: 8,
			hdr:      true,
		},
		{
			name: "explicit raw sample bits",
			mutate: func(s *ProbeStream) {
				s.BitsPerRawSample = "12"
			},
			bitDepth: 12,
			hdr:      false,
		},
		{
			name: "twelve bit pix fmt",
			mutate: func(s *ProbeStream) {
				s.PixFmt = "yuv422p12le"
			},
			bitDepth: 12,
			hdr:      false,
		},
		{
			name:     "sdr eight bit",
			mutate:   func(s *ProbeStream) {},
			bitDepth: 8,
			hdr:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			video := videoStream()
			tt.mutate(&video)
			result := &ProbeResult{
				Format:  ProbeFormat{Duration: "10"},
				Streams: []ProbeStream{video},
			}

			info, err := testProber().normalize(result, "/media/x.mkv")
			require.NoError(t, err)
			assert.Equal(t, tt.bitDepth, info.BitDepth)
			assert.Equal(t, tt.hdr, info.IsHDR)
		})
	}
}

func TestPrimaryVideoStream(t *testing.T) {
	t.Run("default disposition wins", func(t *testing.T) {
		small := videoStream()
		small.Index = 0
		small.Width, small.Height = 640, 360
		small.Disposition.Default = 1
		big := videoStream()
		big.Index = 1
		big.Width, big.Height = 3840, 2160

		got := primaryVideoStream([]ProbeStream{big, small})
		require.NotNil(t, got)
		assert.Equal(t, 0, got.Index)
	})

	t.Run("most pixels without default", func(t *testing.T) {
		thumb := videoStream()
		thumb.Index = 0
		thumb.Width, thumb.Height = 320, 180
		main := videoStream()
		main.Index = 1
		main.Width, main.Height = 1920, 1080

		got := primaryVideoStream([]ProbeStream{thumb, main})
		require.NotNil(t, got)
		assert.Equal(t, 1, got.Index)
	})

	t.Run("first when dimensions missing", func(t *testing.T) {
		a := videoStream()
		a.Index = 3
		a.Width, a.Height = 0, 0
		b := videoStream()
		b.Index = 4
		b.Width, b.Height = 0, 0

		got := primaryVideoStream([]ProbeStream{a, b})
		require.NotNil(t, got)
		assert.Equal(t, 3, got.Index)
	})
}

func TestParseFramerate(t *testing.T) {
	assert.InDelta(t, 29.97, parseFramerate("30000/1001"), 0.001)
	assert.InDelta(t, 25.0, parseFramerate("25/1"), 0.001)
	assert.InDelta(t, 23.976, parseFramerate("23.976"), 0.001)
	assert.Zero(t, parseFramerate("0/0"))
	assert.Zero(t, parseFramerate(""))
	assert.Zero(t, parseFramerate("abc"))
}

func TestMediaInfo_BPP(t *testing.T) {
	info := &MediaInfo{VideoBitrate: 5000000, Width: 1920, Height: 1080, FPS: 25}
	assert.InDelta(t, 0.0965, info.BPP(), 0.0001)

	zero := &MediaInfo{VideoBitrate: 5000000, Width: 1920, Height: 1080}
	assert.Zero(t, zero.BPP())
}
