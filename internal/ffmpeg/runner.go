package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alchemist-av/alchemist/internal/models"
)

const (
	// termGrace is how long ffmpeg gets to finalize the container after
	// SIGTERM before it is killed.
	termGrace = 5 * time.Second

	// stderrTailLines is how many trailing stderr lines are kept for
	// error detail.
	stderrTailLines = 10
)

// ProgressFn receives encode progress. pct is 0..99.9 (100 is only set by
// finalization), speed is the realtime multiplier, outTime the media
// position already encoded.
type ProgressFn func(pct, speed float64, outTime time.Duration)

// Runner executes transcodes as supervised ffmpeg child processes.
type Runner struct {
	ffmpegPath string
	log        *slog.Logger
}

// NewRunner creates a runner.
func NewRunner(ffmpegPath string, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{ffmpegPath: ffmpegPath, log: log}
}

// Encode transcodes one job according to the plan. Progress is parsed from
// the -progress pipe on stdout; the stderr tail is folded into the error on
// failure. Context cancellation sends SIGTERM, escalating to SIGKILL after
// a grace period, and is reported as the context's error so callers can
// tell a cancel from an encoder failure.
func (r *Runner) Encode(ctx context.Context, job *models.Job, plan *EncodePlan, info *MediaInfo, st *models.Settings, onProgress ProgressFn) error {
	if err := os.MkdirAll(filepath.Dir(job.OutputPath), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	args := EncodeArgs(plan, info, job.InputPath, job.OutputPath, st)
	cmd := exec.CommandContext(ctx, r.ffmpegPath, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = termGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("getting stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("getting stderr pipe: %w", err)
	}

	r.log.Debug("starting ffmpeg",
		slog.Int64("job_id", job.ID),
		slog.String("encoder", plan.Encoder),
		slog.String("args", strings.Join(args, " ")),
	)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	tail := newTailBuffer(stderrTailLines)
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			tail.Add(scanner.Text())
		}
	}()

	r.consumeProgress(stdout, info.DurationSeconds, onProgress)

	waitErr := cmd.Wait()
	<-stderrDone

	if waitErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: ffmpeg exited (%v). Last output:\n%s",
			models.ErrEncoderFailed, waitErr, tail.String())
	}
	return nil
}

// consumeProgress reads -progress key=value records until the pipe closes.
// One callback fires per complete record.
func (r *Runner) consumeProgress(stdout io.Reader, durationSeconds float64, onProgress ProgressFn) {
	scanner := bufio.NewScanner(stdout)
	var p encodeProgress
	for scanner.Scan() {
		if !parseProgressLine(scanner.Text(), &p) {
			continue
		}
		if onProgress != nil {
			onProgress(progressPct(p.outTime, durationSeconds), p.speed, p.outTime)
		}
	}
}

// encodeProgress accumulates one record of the -progress stream.
type encodeProgress struct {
	outTime time.Duration
	speed   float64
	done    bool
}

// parseProgressLine consumes one key=value line. Returns true on the
// "progress=" key, which terminates a record.
func parseProgressLine(line string, p *encodeProgress) bool {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return false
	}
	value = strings.TrimSpace(value)

	switch key {
	case "out_time_us", "out_time_ms":
		// out_time_ms is historically microsecond-valued, same as
		// out_time_us.
		if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
			p.outTime = time.Duration(us) * time.Microsecond
		}
	case "out_time":
		if d, ok := parseClockDuration(value); ok {
			p.outTime = d
		}
	case "speed":
		if s, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64); err == nil {
			p.speed = s
		}
	case "progress":
		p.done = value == "end"
		return true
	}
	return false
}

// parseClockDuration parses ffmpeg's "HH:MM:SS.micro" clock format.
func parseClockDuration(s string) (time.Duration, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	hours, err1 := strconv.Atoi(parts[0])
	mins, err2 := strconv.Atoi(parts[1])
	secs, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil || hours < 0 {
		return 0, false
	}
	return time.Duration(hours)*time.Hour +
		time.Duration(mins)*time.Minute +
		time.Duration(secs*float64(time.Second)), true
}

// progressPct converts an encode position to a percentage, capped at 99.9
// until the process actually exits.
func progressPct(outTime time.Duration, durationSeconds float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	pct := outTime.Seconds() / durationSeconds * 100
	if pct < 0 {
		return 0
	}
	if pct > 99.9 {
		return 99.9
	}
	return pct
}

// tailBuffer keeps the last N lines written to it.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{lines: make([]string, 0, max), max: max}
}

func (t *tailBuffer) Add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.lines) >= t.max {
		t.lines = t.lines[1:]
	}
	t.lines = append(t.lines, line)
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
