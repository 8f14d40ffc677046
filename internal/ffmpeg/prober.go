package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/alchemist-av/alchemist/internal/models"
)

// fallbackFPS is assumed when a video stream carries no parseable
// framerate. 24fps keeps BPP math conservative for film content.
const fallbackFPS = 24.0

// ProbeResult is the raw ffprobe JSON document.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container-level information.
type ProbeFormat struct {
	Filename   string            `json:"filename"`
	NumStreams int               `json:"nb_streams"`
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

// ProbeStream contains per-stream information. ffprobe emits numbers as
// strings for most rate fields.
type ProbeStream struct {
	Index            int               `json:"index"`
	CodecName        string            `json:"codec_name"`
	CodecType        string            `json:"codec_type"` // video, audio, subtitle, data
	Profile          string            `json:"profile,omitempty"`
	Width            int               `json:"width,omitempty"`
	Height           int               `json:"height,omitempty"`
	PixFmt           string            `json:"pix_fmt,omitempty"`
	BitsPerRawSample string            `json:"bits_per_raw_sample,omitempty"`
	ColorRange       string            `json:"color_range,omitempty"`
	ColorSpace       string            `json:"color_space,omitempty"`
	ColorTransfer    string            `json:"color_transfer,omitempty"`
	ColorPrimaries   string            `json:"color_primaries,omitempty"`
	RFrameRate       string            `json:"r_frame_rate,omitempty"`
	AvgFrameRate     string            `json:"avg_frame_rate,omitempty"`
	Duration         string            `json:"duration,omitempty"`
	BitRate          string            `json:"bit_rate,omitempty"`
	Channels         int               `json:"channels,omitempty"`
	Disposition      ProbeDisposition  `json:"disposition,omitempty"`
	Tags             map[string]string `json:"tags,omitempty"`
}

// ProbeDisposition carries the stream disposition flags we care about.
type ProbeDisposition struct {
	Default int `json:"default"`
	Forced  int `json:"forced"`
}

// Confidence grades how the video bitrate was obtained. The decision engine
// relaxes its bits-per-pixel gate for derived and missing bitrates.
type Confidence string

const (
	// ConfidenceHigh means the video stream declared its own bitrate.
	ConfidenceHigh Confidence = "high"
	// ConfidenceMedium means the bitrate was derived from the container
	// bitrate minus the audio streams.
	ConfidenceMedium Confidence = "medium"
	// ConfidenceLow means no bitrate could be determined.
	ConfidenceLow Confidence = "low"
)

// MediaInfo is the normalized view of a media file used by the decision
// engine and the command builder.
type MediaInfo struct {
	Path            string     `json:"path"`
	Container       string     `json:"container"`
	Codec           string     `json:"codec"`
	Width           int        `json:"width"`
	Height          int        `json:"height"`
	FPS             float64    `json:"fps"`
	DurationSeconds float64    `json:"duration_seconds"`
	VideoBitrate    int64      `json:"video_bitrate"` // bits/s, 0 = unknown
	Confidence      Confidence `json:"bitrate_confidence"`
	BitDepth        int        `json:"bit_depth"`
	PixFmt          string     `json:"pix_fmt,omitempty"`
	IsHDR           bool       `json:"is_hdr"`
	ColorPrimaries  string     `json:"color_primaries,omitempty"`
	ColorTransfer   string     `json:"color_transfer,omitempty"`
	ColorSpace      string     `json:"color_space,omitempty"`
	AudioStreams    int        `json:"audio_streams"`
	SizeBytes       int64      `json:"size_bytes"`
}

// BPP returns bits per pixel per frame, the core efficiency metric. Zero
// when any factor is unknown.
func (m *MediaInfo) BPP() float64 {
	if m.VideoBitrate <= 0 || m.Width <= 0 || m.Height <= 0 || m.FPS <= 0 {
		return 0
	}
	return float64(m.VideoBitrate) / (float64(m.Width) * float64(m.Height) * m.FPS)
}

// Prober runs ffprobe against local files.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
	log         *slog.Logger
}

// NewProber creates a prober with a 30 second default timeout.
func NewProber(ffprobePath string, log *slog.Logger) *Prober {
	if log == nil {
		log = slog.Default()
	}
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
		log:         log,
	}
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	p.timeout = timeout
	return p
}

// Probe runs ffprobe and normalizes the result. A missing video stream,
// non-zero exit or malformed JSON all surface as ErrProbeFailed.
func (p *Prober) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	result, err := p.ProbeRaw(ctx, path)
	if err != nil {
		return nil, err
	}
	return p.normalize(result, path)
}

// ProbeRaw returns the unprocessed ffprobe document.
func (p *Prober) ProbeRaw(ctx context.Context, path string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: probe timeout after %v", models.ErrProbeFailed, p.timeout)
		}
		return nil, fmt.Errorf("%w: ffprobe: %v", models.ErrProbeFailed, err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("%w: parsing ffprobe output: %v", models.ErrProbeFailed, err)
	}
	return &result, nil
}

// normalize reduces the raw probe document to a MediaInfo.
func (p *Prober) normalize(result *ProbeResult, path string) (*MediaInfo, error) {
	video := primaryVideoStream(result.Streams)
	if video == nil {
		return nil, fmt.Errorf("%w: no video stream in %s", models.ErrProbeFailed, path)
	}

	info := &MediaInfo{
		Path:           path,
		Container:      result.Format.FormatName,
		Codec:          video.CodecName,
		Width:          video.Width,
		Height:         video.Height,
		PixFmt:         video.PixFmt,
		ColorPrimaries: video.ColorPrimaries,
		ColorTransfer:  video.ColorTransfer,
		ColorSpace:     video.ColorSpace,
		BitDepth:       bitDepth(video),
		IsHDR:          isHDR(video),
	}

	info.FPS = streamFPS(video)
	if info.FPS == 0 {
		p.log.Warn("no parseable framerate, assuming fallback",
			slog.String("path", path), slog.Float64("fps", fallbackFPS))
		info.FPS = fallbackFPS
	}

	info.DurationSeconds = duration(result, video)
	if info.DurationSeconds == 0 {
		p.log.Warn("no duration in probe output", slog.String("path", path))
	}

	info.VideoBitrate, info.Confidence = videoBitrate(result, video)
	if info.VideoBitrate == 0 {
		p.log.Warn("video bitrate unknown", slog.String("path", path))
	}

	for _, s := range result.Streams {
		if s.CodecType == "audio" {
			info.AudioStreams++
		}
	}

	info.SizeBytes = parseInt64(result.Format.Size)
	if info.SizeBytes == 0 {
		if st, err := os.Stat(path); err == nil {
			info.SizeBytes = st.Size()
		}
	}

	return info, nil
}

// primaryVideoStream picks the stream the engine will judge: default
// disposition first, then the one with the most pixels, then the first
// video stream.
func primaryVideoStream(streams []ProbeStream) *ProbeStream {
	var first, biggest *ProbeStream
	for i := range streams {
		s := &streams[i]
		if s.CodecType != "video" {
			continue
		}
		if s.Disposition.Default == 1 {
			return s
		}
		if first == nil {
			first = s
		}
		if biggest == nil || s.Width*s.Height > biggest.Width*biggest.Height {
			biggest = s
		}
	}
	if biggest != nil && biggest.Width*biggest.Height > 0 {
		return biggest
	}
	return first
}

// streamFPS parses the stream framerate, r_frame_rate first since
// avg_frame_rate is 0/0 on some containers.
func streamFPS(s *ProbeStream) float64 {
	if fps := parseFramerate(s.RFrameRate); fps > 0 {
		return fps
	}
	return parseFramerate(s.AvgFrameRate)
}

// parseFramerate parses "30000/1001", "25/1" or a plain decimal.
func parseFramerate(fr string) float64 {
	if fr == "" {
		return 0
	}
	parts := strings.Split(fr, "/")
	if len(parts) != 2 {
		if f, err := strconv.ParseFloat(fr, 64); err == nil {
			return f
		}
		return 0
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

func duration(result *ProbeResult, video *ProbeStream) float64 {
	if d := parseFloat(result.Format.Duration); d > 0 {
		return d
	}
	return parseFloat(video.Duration)
}

// videoBitrate resolves the video bitrate in bits per second plus how
// trustworthy it is. Order: the stream's own bitrate, then the container
// bitrate minus all declared audio bitrates, then unknown.
func videoBitrate(result *ProbeResult, video *ProbeStream) (int64, Confidence) {
	if br := parseInt64(video.BitRate); br > 0 {
		return br, ConfidenceHigh
	}

	format := parseInt64(result.Format.BitRate)
	if format > 0 {
		derived := format
		for _, s := range result.Streams {
			if s.CodecType == "audio" {
				derived -= parseInt64(s.BitRate)
			}
		}
		if derived > 0 {
			return derived, ConfidenceMedium
		}
	}
	return 0, ConfidenceLow
}

// bitDepth reads bits_per_raw_sample, falling back to the pixel format
// suffix. Anything unrecognized is treated as 8-bit.
func bitDepth(s *ProbeStream) int {
	if d, err := strconv.Atoi(s.BitsPerRawSample); err == nil && d > 0 {
		return d
	}
	switch {
	case strings.HasSuffix(s.PixFmt, "p10le"), strings.HasSuffix(s.PixFmt, "p10be"):
		return 10
	case strings.HasSuffix(s.PixFmt, "p12le"), strings.HasSuffix(s.PixFmt, "p12be"):
		return 12
	default:
		return 8
	}
}

// isHDR detects HDR by transfer function (PQ or HLG) or BT.2020 primaries.
func isHDR(s *ProbeStream) bool {
	switch s.ColorTransfer {
	case "smpte2084", "arib-std-b67":
		return true
	}
	return strings.HasPrefix(s.ColorPrimaries, "bt2020")
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt64(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
