package engine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/alchemist-av/alchemist/internal/events"
	"github.com/alchemist-av/alchemist/internal/ffmpeg"
	"github.com/alchemist-av/alchemist/internal/hardware"
	"github.com/alchemist-av/alchemist/internal/models"
	"github.com/alchemist-av/alchemist/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testSettings is the seed row every test environment starts from: one
// worker, no file size floor, quality gate off.
func testSettings() models.Settings {
	st := models.DefaultSettings()
	st.ConcurrentJobs = 1
	st.MinFileSizeMB = 0
	st.EnableVMAF = false
	return st
}

// testMediaInfo probes as a fat 1080p h264 file that every rule lets
// through to a transcode verdict.
func testMediaInfo() *ffmpeg.MediaInfo {
	return &ffmpeg.MediaInfo{
		Container:       "mov,mp4,m4a,3gp,3g2,mj2",
		Codec:           "h264",
		Width:           1920,
		Height:          1080,
		FPS:             24,
		DurationSeconds: 120,
		VideoBitrate:    8_000_000,
		Confidence:      ffmpeg.ConfidenceHigh,
		BitDepth:        8,
		SizeBytes:       2000,
	}
}

func testCaps() *ffmpeg.Capabilities {
	return &ffmpeg.Capabilities{
		FFmpegPath:    "/usr/bin/ffmpeg",
		FFprobePath:   "/usr/bin/ffprobe",
		VideoEncoders: []string{"av1_nvenc", "hevc_nvenc", "h264_nvenc", "libsvtav1", "libx265", "libx264"},
		Hardware:      hardware.Info{Vendor: hardware.VendorNvidia},
	}
}

type fakeProber struct {
	mu    sync.Mutex
	info  *ffmpeg.MediaInfo
	err   error
	calls int
}

func (p *fakeProber) Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	info := *p.info
	info.Path = path
	return &info, nil
}

// fakeRunner writes output bytes to the job's output path, then optionally
// blocks until released or cancelled, then returns err.
type fakeRunner struct {
	mu       sync.Mutex
	output   []byte
	err      error
	panicMsg string
	block    chan struct{}
	started  chan struct{}
	once     sync.Once
	calls    int
}

func (r *fakeRunner) Encode(ctx context.Context, job *models.Job, plan *ffmpeg.EncodePlan, info *ffmpeg.MediaInfo, st *models.Settings, onProgress ffmpeg.ProgressFn) error {
	r.mu.Lock()
	r.calls++
	output := r.output
	errOut := r.err
	block := r.block
	started := r.started
	panicMsg := r.panicMsg
	r.mu.Unlock()

	if started != nil {
		r.once.Do(func() { close(started) })
	}
	if panicMsg != "" {
		panic(panicMsg)
	}

	if output == nil {
		output = []byte("encoded")
	}
	if err := os.WriteFile(job.OutputPath, output, 0o644); err != nil {
		return err
	}

	if block != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-block:
		}
	}

	if onProgress != nil {
		onProgress(42.0, 2.0, 30*time.Second)
	}
	return errOut
}

type fakeScorer struct {
	mu        sync.Mutex
	available bool
	score     float64
	err       error
}

func (s *fakeScorer) Available(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

func (s *fakeScorer) Score(ctx context.Context, encoded, reference string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score, s.err
}

type testEnv struct {
	engine *Engine
	repos  Repos
	bus    *events.Bus
	prober *fakeProber
	runner *fakeRunner
	scorer *fakeScorer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.Job{}, &models.EncodeStat{}, &models.Decision{},
		&models.Settings{}, &models.ScheduleWindow{}, &models.WatchDir{},
	))

	repos := Repos{
		Jobs:      repository.NewJobRepository(db),
		Stats:     repository.NewStatsRepository(db),
		Decisions: repository.NewDecisionRepository(db),
		Settings:  repository.NewSettingsRepository(db),
		Schedules: repository.NewScheduleRepository(db),
		WatchDirs: repository.NewWatchDirRepository(db),
	}
	_, err = repos.Settings.EnsureSeed(context.Background(), testSettings())
	require.NoError(t, err)

	bus := events.NewBus(testLogger())
	t.Cleanup(bus.Close)

	env := &testEnv{
		repos:  repos,
		bus:    bus,
		prober: &fakeProber{info: testMediaInfo()},
		runner: &fakeRunner{},
		scorer: &fakeScorer{available: true, score: 95},
	}
	env.engine = New(repos, testCaps(), bus, env.prober, env.runner, env.scorer).
		WithLogger(testLogger()).
		WithConfig(Config{ShutdownGrace: 2 * time.Second})
	return env
}

// enqueue registers a media file in the queue, creating the source file on
// disk so delete and stat paths work.
func (env *testEnv) enqueue(t *testing.T, dir, name string) *models.Job {
	t.Helper()
	input := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(input, make([]byte, 2000), 0o644))

	output := filepath.Join(dir, name[:len(name)-len(filepath.Ext(name))]+"-alchemist.mkv")
	job, added, err := env.repos.Jobs.Upsert(context.Background(), input, output, "1000-2000", 0)
	require.NoError(t, err)
	require.True(t, added)
	return job
}

func waitForState(t *testing.T, repos Repos, id int64, want models.JobState, timeout time.Duration) *models.Job {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		job, err := repos.Jobs.Get(context.Background(), id)
		require.NoError(t, err)
		if job != nil && job.State == want {
			return job
		}
		if time.Now().After(deadline) {
			got := "<missing>"
			if job != nil {
				got = string(job.State)
			}
			t.Fatalf("job %d never reached %s, last state %s", id, want, got)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEngine_ProcessesQueueEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	job := env.enqueue(t, dir, "movie.mp4")

	require.NoError(t, env.engine.Start(context.Background()))
	defer env.engine.Stop()

	done := waitForState(t, env.repos, job.ID, models.JobStateCompleted, 5*time.Second)
	assert.Equal(t, float64(100), done.ProgressPct)
	assert.FileExists(t, job.OutputPath)

	stat, err := env.repos.Stats.ForJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, stat)
	assert.Equal(t, int64(2000), stat.InputSizeBytes)
	assert.Equal(t, int64(len("encoded")), stat.OutputSizeBytes)
	assert.Equal(t, "av1_nvenc", stat.Encoder)

	dec, err := env.repos.Decisions.LatestForJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, dec)
	assert.Equal(t, models.DecisionTranscode, dec.Action)
	assert.Equal(t, "av1_nvenc", dec.Encoder)
}

func TestEngine_StartIsExclusive(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.engine.Start(context.Background()))
	defer env.engine.Stop()

	err := env.engine.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestEngine_StartRequeuesInterrupted(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	job := env.enqueue(t, dir, "movie.mp4")

	// Simulate a dead process that left the job mid-encode.
	require.NoError(t, env.repos.Jobs.UpdateState(context.Background(), job.ID, models.JobStateEncoding))

	require.NoError(t, env.engine.Start(context.Background()))
	defer env.engine.Stop()

	waitForState(t, env.repos, job.ID, models.JobStateCompleted, 5*time.Second)
}

func TestEngine_InvalidRescanCron(t *testing.T) {
	env := newTestEnv(t)
	env.engine.WithConfig(Config{RescanCron: "not a cron"})

	err := env.engine.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid rescan cron")
}

func TestEngine_PauseHoldsQueue(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	job := env.enqueue(t, dir, "movie.mp4")

	env.engine.Pause()
	require.NoError(t, env.engine.Start(context.Background()))
	defer env.engine.Stop()

	time.Sleep(150 * time.Millisecond)
	cur, err := env.repos.Jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateQueued, cur.State)

	env.engine.Resume()
	waitForState(t, env.repos, job.ID, models.JobStateCompleted, 10*time.Second)
}

func TestEngine_ScheduleWindowClosesGate(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	job := env.enqueue(t, dir, "movie.mp4")

	// A window that can never match: start equals end.
	require.NoError(t, env.repos.Schedules.Create(context.Background(), &models.ScheduleWindow{
		Enabled:   true,
		StartTime: "00:00",
		EndTime:   "00:00",
	}))

	require.NoError(t, env.engine.Start(context.Background()))
	defer env.engine.Stop()

	time.Sleep(150 * time.Millisecond)
	cur, err := env.repos.Jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateQueued, cur.State)

	status, err := env.engine.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.ScheduleOpen)
}

func TestEngine_StopCancelsInFlightAfterGrace(t *testing.T) {
	env := newTestEnv(t)
	env.engine.WithConfig(Config{ShutdownGrace: 100 * time.Millisecond})
	env.runner.block = make(chan struct{})
	env.runner.started = make(chan struct{})

	dir := t.TempDir()
	job := env.enqueue(t, dir, "movie.mp4")

	require.NoError(t, env.engine.Start(context.Background()))

	select {
	case <-env.runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("encode never started")
	}

	env.engine.Stop()

	cur, err := env.repos.Jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateCancelled, cur.State)
	assert.NoFileExists(t, job.OutputPath)
}

func TestEngine_CancelRunningJob(t *testing.T) {
	env := newTestEnv(t)
	env.runner.block = make(chan struct{})
	env.runner.started = make(chan struct{})

	dir := t.TempDir()
	job := env.enqueue(t, dir, "movie.mp4")

	require.NoError(t, env.engine.Start(context.Background()))
	defer env.engine.Stop()

	select {
	case <-env.runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("encode never started")
	}

	require.NoError(t, env.engine.Cancel(context.Background(), job.ID))
	waitForState(t, env.repos, job.ID, models.JobStateCancelled, 5*time.Second)
	assert.NoFileExists(t, job.OutputPath)
}

func TestEngine_CancelQueuedJob(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	job := env.enqueue(t, dir, "movie.mp4")

	require.NoError(t, env.engine.Cancel(context.Background(), job.ID))

	cur, err := env.repos.Jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateCancelled, cur.State)
}

func TestEngine_CancelRejectsTerminalAndUnknown(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	job := env.enqueue(t, dir, "movie.mp4")
	require.NoError(t, env.repos.Jobs.MarkCompleted(context.Background(), job.ID))

	assert.ErrorIs(t, env.engine.Cancel(context.Background(), job.ID), models.ErrInvalidState)
	assert.ErrorIs(t, env.engine.Cancel(context.Background(), 99999), models.ErrJobNotFound)
}

func TestEngine_SetConcurrency(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.engine.SetConcurrency(4))
	assert.Equal(t, 4, env.engine.slots.Size())

	var verr models.ErrValidation
	err := env.engine.SetConcurrency(0)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "concurrent_jobs", verr.Field)
}

func TestEngine_ScanAndEnqueue(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.mkv"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.mp4"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b-alchemist.mkv"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	n, err := env.engine.ScanAndEnqueue(context.Background(), []string{dir}, "api")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Unchanged files are not re-enqueued.
	n, err = env.engine.ScanAndEnqueue(context.Background(), []string{dir}, "api")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	job, err := env.repos.Jobs.GetByInputPath(context.Background(), filepath.Join(dir, "b.mp4"))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, filepath.Join(dir, "b-alchemist.mkv"), job.OutputPath)
}

func TestEngine_ScanUsesWatchDirs(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.mkv"), []byte("x"), 0o644))

	require.NoError(t, env.repos.WatchDirs.Create(context.Background(), &models.WatchDir{
		Path:    dir,
		Enabled: true,
	}))

	// nil roots means configured roots plus enabled watch dirs.
	n, err := env.engine.ScanAndEnqueue(context.Background(), nil, "api")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEngine_ScanWithoutRootsFails(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.ScanAndEnqueue(context.Background(), nil, "api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scan roots")
}

func TestEngine_EnqueueFiles(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	media := filepath.Join(dir, "new.mkv")
	require.NoError(t, os.WriteFile(media, []byte("x"), 0o644))
	ownOutput := filepath.Join(dir, "old-alchemist.mkv")
	require.NoError(t, os.WriteFile(ownOutput, []byte("x"), 0o644))

	n := env.engine.EnqueueFiles(context.Background(), []string{
		media,
		ownOutput,
		filepath.Join(dir, "missing.mkv"),
		filepath.Join(dir, "notes.txt"),
	})
	assert.Equal(t, 1, n)

	job, err := env.repos.Jobs.GetByInputPath(context.Background(), media)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, models.JobStateQueued, job.State)
}

func TestEngine_Status(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	env.enqueue(t, dir, "movie.mp4")

	status, err := env.engine.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Equal(t, int64(1), status.Queue[models.JobStateQueued])

	require.NoError(t, env.engine.Start(context.Background()))
	defer env.engine.Stop()

	status, err = env.engine.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.True(t, status.ScheduleOpen)
	assert.Equal(t, 1, status.Slots)
}
