// Package ffmpeg wraps the ffmpeg and ffprobe binaries: capability
// discovery, media probing, encoder planning, command construction and
// supervised encode execution.
package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/alchemist-av/alchemist/internal/hardware"
)

// capabilityTimeout bounds every discovery command, including the smoke
// encodes. A binary that cannot answer -version in 10s is not usable.
const capabilityTimeout = 10 * time.Second

// Capabilities describes the ffmpeg installation and the host hardware.
// It is built once at startup and never mutated afterwards.
type Capabilities struct {
	FFmpegPath    string        `json:"ffmpeg_path"`
	FFprobePath   string        `json:"ffprobe_path"`
	Version       string        `json:"version"`
	MajorVersion  int           `json:"major_version"`
	MinorVersion  int           `json:"minor_version"`
	VideoEncoders []string      `json:"video_encoders"`
	AudioEncoders []string      `json:"audio_encoders"`
	HWAccels      []string      `json:"hw_accels,omitempty"`
	Hardware      hardware.Info `json:"hardware"`
}

// HasVideoEncoder returns true if the named encoder survived discovery.
func (c *Capabilities) HasVideoEncoder(name string) bool {
	return slices.Contains(c.VideoEncoders, name)
}

// HasHWAccel returns true if the hwaccel method is compiled in.
func (c *Capabilities) HasHWAccel(name string) bool {
	return slices.Contains(c.HWAccels, name)
}

// Detector locates the ffmpeg binaries and interrogates them.
type Detector struct {
	ffmpegPath  string // explicit override from config, may be empty
	ffprobePath string
	log         *slog.Logger
}

// NewDetector creates a detector. Non-empty paths take precedence over the
// ALCHEMIST_FFMPEG / ALCHEMIST_FFPROBE environment variables and PATH.
func NewDetector(ffmpegPath, ffprobePath string, log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		log:         log,
	}
}

// Detect locates ffmpeg and ffprobe, parses their version, encoder and
// hwaccel lists, and confirms every hardware encoder the planner could pick
// with a short null-sink smoke encode. Listed-but-broken hardware encoders
// are demoted so the planner never selects them.
func (d *Detector) Detect(ctx context.Context, hw hardware.Info) (*Capabilities, error) {
	ffmpegPath, err := locateBinary("ffmpeg", d.ffmpegPath, "ALCHEMIST_FFMPEG")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	ffprobePath, err := locateBinary("ffprobe", d.ffprobePath, "ALCHEMIST_FFPROBE")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}

	caps := &Capabilities{
		FFmpegPath:  ffmpegPath,
		FFprobePath: ffprobePath,
		Hardware:    hw,
	}

	version, major, minor, err := d.version(ctx, ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("getting ffmpeg version: %w", err)
	}
	caps.Version = version
	caps.MajorVersion = major
	caps.MinorVersion = minor

	video, audio, err := d.encoders(ctx, ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("listing ffmpeg encoders: %w", err)
	}
	caps.VideoEncoders = video
	caps.AudioEncoders = audio

	if accels, err := d.hwaccels(ctx, ffmpegPath); err == nil {
		caps.HWAccels = accels
	}

	d.confirmHardwareEncoders(ctx, caps)

	d.log.Info("ffmpeg capabilities detected",
		slog.String("ffmpeg", ffmpegPath),
		slog.String("version", version),
		slog.Int("video_encoders", len(caps.VideoEncoders)),
		slog.String("vendor", string(hw.Vendor)),
	)
	return caps, nil
}

// locateBinary resolves a binary path. An explicit configured path wins but
// must exist and be executable; otherwise fall through env var, working
// directory and PATH.
func locateBinary(name, configured, envVar string) (string, error) {
	if configured != "" {
		if !isExecutable(configured) {
			return "", fmt.Errorf("configured %s path %q is not an executable", name, configured)
		}
		return configured, nil
	}
	if envPath := os.Getenv(envVar); envPath != "" && isExecutable(envPath) {
		return envPath, nil
	}
	if local := "./" + name; isExecutable(local) {
		return local, nil
	}
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("%s not found in %s, working directory or PATH", name, envVar)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Mode()&0111 != 0
}

func (d *Detector) version(ctx context.Context, ffmpegPath string) (string, int, int, error) {
	ctx, cancel := context.WithTimeout(ctx, capabilityTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, ffmpegPath, "-version").Output()
	if err != nil {
		return "", 0, 0, err
	}
	return parseVersion(output)
}

// parseVersion extracts the version triple from `ffmpeg -version` output.
// Handles "6.0", "6.0.1" and git builds like "n6.0-2-g...".
func parseVersion(output []byte) (string, int, int, error) {
	versionRe := regexp.MustCompile(`^n?(\d+)\.(\d+)`)
	for _, line := range strings.Split(string(output), "\n") {
		if !strings.HasPrefix(line, "ffmpeg version") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 3 {
			continue
		}
		full := parts[2]
		matches := versionRe.FindStringSubmatch(full)
		if len(matches) < 3 {
			return full, 0, 0, nil
		}
		major, _ := strconv.Atoi(matches[1])
		minor, _ := strconv.Atoi(matches[2])
		return full, major, minor, nil
	}
	return "", 0, 0, fmt.Errorf("failed to parse ffmpeg version")
}

func (d *Detector) encoders(ctx context.Context, ffmpegPath string) ([]string, []string, error) {
	ctx, cancel := context.WithTimeout(ctx, capabilityTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, ffmpegPath, "-encoders", "-hide_banner").Output()
	if err != nil {
		return nil, nil, err
	}
	video, audio := parseEncoders(output)
	return video, audio, nil
}

// parseEncoders splits `ffmpeg -encoders` output into video and audio
// encoder names. Rows look like " V....D libx264  H.264 ..." and start
// after the "------" separator; the first flag character carries the type.
func parseEncoders(output []byte) (video, audio []string) {
	inList := false
	for _, line := range strings.Split(string(output), "\n") {
		if strings.Contains(line, "------") {
			inList = true
			continue
		}
		if !inList {
			continue
		}
		line = strings.TrimLeft(line, " ")
		if len(line) < 8 {
			continue
		}
		if line[0] != 'V' && line[0] != 'A' && line[0] != 'S' {
			continue
		}
		rest := strings.TrimSpace(line[6:])
		parts := strings.Fields(rest)
		if len(parts) == 0 || parts[0] == "" {
			continue
		}
		switch line[0] {
		case 'V':
			video = append(video, parts[0])
		case 'A':
			audio = append(audio, parts[0])
		}
	}
	return video, audio
}

func (d *Detector) hwaccels(ctx context.Context, ffmpegPath string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, capabilityTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, ffmpegPath, "-hwaccels", "-hide_banner").Output()
	if err != nil {
		return nil, err
	}
	return parseHWAccels(output), nil
}

// parseHWAccels parses `ffmpeg -hwaccels` output, skipping the header line.
func parseHWAccels(output []byte) []string {
	var accels []string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		accels = append(accels, line)
	}
	return accels
}

// confirmHardwareEncoders smoke-tests every hardware encoder the planner
// could select. An encoder that is listed but cannot actually encode (no
// device, missing driver, broken firmware) is removed from the capability
// set. CPU encoders are trusted as listed.
func (d *Detector) confirmHardwareEncoders(ctx context.Context, caps *Capabilities) {
	confirmed := make([]string, 0, len(caps.VideoEncoders))
	for _, enc := range caps.VideoEncoders {
		if !isHardwareEncoder(enc) || !plannerCandidate(enc) {
			confirmed = append(confirmed, enc)
			continue
		}
		if d.confirmEncoder(ctx, caps.FFmpegPath, enc, caps.Hardware) {
			confirmed = append(confirmed, enc)
			continue
		}
		d.log.Warn("hardware encoder failed smoke test, demoting",
			slog.String("encoder", enc))
	}
	caps.VideoEncoders = confirmed
}

// confirmEncoder runs a two second test-pattern encode into the null muxer.
func (d *Detector) confirmEncoder(ctx context.Context, ffmpegPath, encoder string, hw hardware.Info) bool {
	ctx, cancel := context.WithTimeout(ctx, capabilityTimeout)
	defer cancel()

	args := smokeArgs(encoder, hw)
	err := exec.CommandContext(ctx, ffmpegPath, args...).Run()
	return err == nil
}

// smokeArgs builds the null-sink test encode for one encoder. VAAPI and QSV
// encoders only accept hardware frames, so those get a device init and an
// upload filter; the rest consume software frames directly.
func smokeArgs(encoder string, hw hardware.Info) []string {
	args := []string{"-hide_banner", "-v", "error", "-nostdin"}
	switch {
	case strings.HasSuffix(encoder, "_vaapi"):
		args = append(args, "-vaapi_device", vaapiDevice(hw))
	case strings.HasSuffix(encoder, "_qsv"):
		args = append(args, "-init_hw_device", "qsv=hw", "-filter_hw_device", "hw")
	}
	args = append(args, "-f", "lavfi", "-i", "testsrc=duration=2:size=640x360:rate=30")
	switch {
	case strings.HasSuffix(encoder, "_vaapi"):
		args = append(args, "-vf", "format=nv12,hwupload")
	case strings.HasSuffix(encoder, "_qsv"):
		args = append(args, "-vf", "format=nv12,hwupload=extra_hw_frames=64")
	}
	return append(args, "-c:v", encoder, "-f", "null", "-")
}

// isHardwareEncoder reports whether the encoder name carries a hardware
// suffix.
func isHardwareEncoder(name string) bool {
	for _, suffix := range []string{"_qsv", "_nvenc", "_videotoolbox", "_vaapi", "_amf"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
