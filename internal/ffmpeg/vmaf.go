package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"time"
)

// vmafScoreRe matches the human-readable score line libvmaf prints on
// stderr, the fallback when the JSON log cannot be parsed.
var vmafScoreRe = regexp.MustCompile(`VMAF score: (\d+\.?\d*)`)

// Scorer computes VMAF quality scores by running both files through
// libvmaf. Scoring decodes the full media twice, so the default timeout is
// generous.
type Scorer struct {
	ffmpegPath string
	timeout    time.Duration

	availOnce sync.Once
	available bool
}

// NewScorer creates a scorer with a 30 minute default timeout.
func NewScorer(ffmpegPath string) *Scorer {
	return &Scorer{
		ffmpegPath: ffmpegPath,
		timeout:    30 * time.Minute,
	}
}

// WithTimeout sets the scoring timeout.
func (s *Scorer) WithTimeout(timeout time.Duration) *Scorer {
	s.timeout = timeout
	return s
}

// Available reports whether this ffmpeg build carries the libvmaf filter.
// The check runs once and is cached.
func (s *Scorer) Available(ctx context.Context) bool {
	s.availOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, capabilityTimeout)
		defer cancel()
		output, err := exec.CommandContext(ctx, s.ffmpegPath, "-filters", "-hide_banner").Output()
		s.available = err == nil && bytes.Contains(output, []byte("libvmaf"))
	})
	return s.available
}

// Score compares the encoded file against its reference and returns the
// pooled VMAF mean (0-100, higher is better).
func (s *Scorer) Score(ctx context.Context, encoded, reference string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-hide_banner", "-nostdin", "-nostats",
		"-i", encoded,
		"-i", reference,
		"-lavfi", "libvmaf=log_fmt=json:log_path=-",
		"-f", "null", "-",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	score, parseErr := parseVMAFScore(stdout.Bytes(), stderr.Bytes())
	if parseErr == nil {
		return score, nil
	}
	if runErr != nil {
		return 0, fmt.Errorf("running libvmaf: %w", runErr)
	}
	return 0, parseErr
}

// parseVMAFScore extracts the score from libvmaf output: the JSON log on
// stdout first (pooled mean, then harmonic mean), then the plain-text score
// line as a last resort.
func parseVMAFScore(stdout, stderr []byte) (float64, error) {
	var doc struct {
		PooledMetrics struct {
			VMAF struct {
				Mean         *float64 `json:"mean"`
				HarmonicMean *float64 `json:"harmonic_mean"`
			} `json:"vmaf"`
		} `json:"pooled_metrics"`
	}

	if start := bytes.IndexByte(stdout, '{'); start >= 0 {
		if err := json.Unmarshal(stdout[start:], &doc); err == nil {
			if doc.PooledMetrics.VMAF.Mean != nil {
				return *doc.PooledMetrics.VMAF.Mean, nil
			}
			if doc.PooledMetrics.VMAF.HarmonicMean != nil {
				return *doc.PooledMetrics.VMAF.HarmonicMean, nil
			}
		}
	}

	for _, out := range [][]byte{stderr, stdout} {
		if m := vmafScoreRe.FindSubmatch(out); m != nil {
			if score, err := strconv.ParseFloat(string(m[1]), 64); err == nil {
				return score, nil
			}
		}
	}

	return 0, errors.New("no VMAF score in ffmpeg output")
}
