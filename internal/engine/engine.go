// Package engine owns the transcode lifecycle: it claims queued jobs under
// the concurrency and schedule gates, runs workers through probe, decision,
// encode and verification, and triggers library scans.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alchemist-av/alchemist/internal/decision"
	"github.com/alchemist-av/alchemist/internal/events"
	"github.com/alchemist-av/alchemist/internal/ffmpeg"
	"github.com/alchemist-av/alchemist/internal/metrics"
	"github.com/alchemist-av/alchemist/internal/models"
	"github.com/alchemist-av/alchemist/internal/repository"
	"github.com/alchemist-av/alchemist/internal/scanner"
	"github.com/alchemist-av/alchemist/internal/watcher"
)

const (
	// gateRetryInterval is how long the claim loop waits while paused or
	// outside every schedule window.
	gateRetryInterval = 2 * time.Second

	// queuePollInterval is how long the claim loop waits after finding
	// the queue empty.
	queuePollInterval = 5 * time.Second

	// syncInterval is the cadence of the schedule gate, rescan cron and
	// queue gauge refreshes.
	syncInterval = time.Minute
)

// cronParser accepts standard five-field cron expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Prober analyzes media files.
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
}

// Runner supervises one ffmpeg encode.
type Runner interface {
	Encode(ctx context.Context, job *models.Job, plan *ffmpeg.EncodePlan, info *ffmpeg.MediaInfo, st *models.Settings, onProgress ffmpeg.ProgressFn) error
}

// Scorer measures encode quality against the source file.
type Scorer interface {
	Available(ctx context.Context) bool
	Score(ctx context.Context, encoded, reference string) (float64, error)
}

// Repos bundles the repositories the engine reads and writes.
type Repos struct {
	Jobs      repository.JobRepository
	Stats     repository.StatsRepository
	Decisions repository.DecisionRepository
	Settings  repository.SettingsRepository
	Schedules repository.ScheduleRepository
	WatchDirs repository.WatchDirRepository
}

// Config holds the static engine configuration. The runtime-tunable knobs
// live in the settings row and are snapshotted per job.
type Config struct {
	// ScanRoots are the library roots from static config, merged with the
	// enabled watch dirs at scan time.
	ScanRoots []string

	// ShutdownGrace bounds how long Stop waits for in-flight encodes
	// before cancelling them.
	ShutdownGrace time.Duration

	// RescanCron is a five-field cron expression for periodic library
	// rescans. Empty disables them.
	RescanCron string

	// Watch enables filesystem watching of the scan roots.
	Watch bool

	// WatchDebounce batches filesystem events before enqueueing.
	WatchDebounce time.Duration

	// IgnoreSchedule keeps the gate open regardless of schedule windows,
	// used by one-shot CLI scans.
	IgnoreSchedule bool
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		ShutdownGrace: 15 * time.Second,
		WatchDebounce: time.Second,
	}
}

// Engine runs the claim loop and the worker pool. One Engine runs per
// process; job ownership across restarts is handled by ResetInterrupted at
// startup.
type Engine struct {
	mu sync.RWMutex

	jobs      repository.JobRepository
	stats     repository.StatsRepository
	decisions repository.DecisionRepository
	settings  repository.SettingsRepository
	schedules repository.ScheduleRepository
	watchDirs repository.WatchDirRepository

	bus     *events.Bus
	caps    *ffmpeg.Capabilities
	prober  Prober
	runner  Runner
	scorer  Scorer
	decider *decision.Engine
	scan    *scanner.Scanner
	planFn  func(*ffmpeg.Capabilities, *models.Settings) (*ffmpeg.EncodePlan, error)

	logger *slog.Logger

	slots    *slots
	registry *registry
	rescan   cron.Schedule

	// Running state
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	watch  *watcher.Watcher

	paused    bool
	schedOpen bool

	cfg Config
}

// New creates an engine. Configure it with WithLogger and WithConfig before
// Start.
func New(repos Repos, caps *ffmpeg.Capabilities, bus *events.Bus, prober Prober, runner Runner, scorer Scorer) *Engine {
	return &Engine{
		jobs:      repos.Jobs,
		stats:     repos.Stats,
		decisions: repos.Decisions,
		settings:  repos.Settings,
		schedules: repos.Schedules,
		watchDirs: repos.WatchDirs,
		bus:       bus,
		caps:      caps,
		prober:    prober,
		runner:    runner,
		scorer:    scorer,
		decider:   decision.New(),
		scan:      scanner.New(slog.Default()),
		planFn:    ffmpeg.Plan,
		logger:    slog.Default(),
		slots:     newSlots(1),
		registry:  newRegistry(),
		cfg:       DefaultConfig(),
	}
}

// WithLogger sets a custom logger.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	e.logger = logger.With("component", "engine")
	e.scan = scanner.New(logger)
	return e
}

// WithConfig applies static configuration.
func (e *Engine) WithConfig(cfg Config) *Engine {
	e.cfg.ScanRoots = cfg.ScanRoots
	e.cfg.RescanCron = cfg.RescanCron
	e.cfg.Watch = cfg.Watch
	e.cfg.IgnoreSchedule = cfg.IgnoreSchedule
	if cfg.ShutdownGrace > 0 {
		e.cfg.ShutdownGrace = cfg.ShutdownGrace
	}
	if cfg.WatchDebounce > 0 {
		e.cfg.WatchDebounce = cfg.WatchDebounce
	}
	return e
}

// Start requeues jobs interrupted by the previous shutdown, then launches
// the claim loop, the sync loop and, when configured, the filesystem
// watcher.
func (e *Engine) Start(ctx context.Context) error {
	if e.cfg.RescanCron != "" {
		sched, err := cronParser.Parse(e.cfg.RescanCron)
		if err != nil {
			return fmt.Errorf("invalid rescan cron %q: %w", e.cfg.RescanCron, err)
		}
		e.rescan = sched
	}

	reset, err := e.jobs.ResetInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("resetting interrupted jobs: %w", err)
	}
	if reset > 0 {
		e.logger.Info("requeued jobs interrupted by previous shutdown", "count", reset)
	}

	st, err := e.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	e.mu.Lock()
	if e.ctx != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine already started")
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	runCtx := e.ctx
	e.mu.Unlock()

	e.slots.SetSize(st.ConcurrentJobs)
	e.refreshGate(runCtx)
	e.refreshQueueDepths(runCtx)

	e.wg.Add(2)
	go e.claimLoop(runCtx)
	go e.syncLoop(runCtx)

	if e.cfg.Watch {
		if err := e.startWatcher(runCtx); err != nil {
			e.logger.Warn("filesystem watcher unavailable", "error", err)
		}
	}

	e.logger.Info("engine started",
		"slots", st.ConcurrentJobs,
		"scan_roots", len(e.cfg.ScanRoots),
		"watch", e.cfg.Watch,
		"rescan_cron", e.cfg.RescanCron)
	return nil
}

// Stop closes the claim loop and waits up to ShutdownGrace for in-flight
// workers, then cancels whatever is still encoding. Jobs interrupted that
// way are requeued by the next Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.cancel == nil {
		e.mu.Unlock()
		return
	}
	e.cancel()
	watch := e.watch
	e.watch = nil
	e.mu.Unlock()

	if watch != nil {
		watch.Stop()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(e.cfg.ShutdownGrace):
		n := e.registry.cancelAll()
		e.logger.Warn("shutdown grace expired, cancelling in-flight jobs", "count", n)
		<-done
	}

	e.mu.Lock()
	e.ctx = nil
	e.cancel = nil
	e.mu.Unlock()

	e.logger.Info("engine stopped")
}

// Pause stops claiming new jobs. Running jobs continue to completion.
func (e *Engine) Pause() {
	e.mu.Lock()
	changed := !e.paused
	e.paused = true
	e.mu.Unlock()

	if changed {
		metrics.EnginePaused.Set(1)
		e.logger.Info("engine paused")
	}
}

// Resume reopens the claim loop after Pause.
func (e *Engine) Resume() {
	e.mu.Lock()
	changed := e.paused
	e.paused = false
	e.mu.Unlock()

	if changed {
		metrics.EnginePaused.Set(0)
		e.logger.Info("engine resumed")
	}
}

// SetConcurrency resizes the worker pool. Growing takes effect immediately;
// shrinking applies as running jobs finish.
func (e *Engine) SetConcurrency(n int) error {
	if n < 1 {
		return models.ErrValidation{Field: "concurrent_jobs", Message: "must be at least 1"}
	}
	e.slots.SetSize(n)
	e.logger.Info("worker pool resized", "slots", n)
	return nil
}

// Status is a point-in-time snapshot of the engine.
type Status struct {
	Running      bool                      `json:"running"`
	Paused       bool                      `json:"paused"`
	ScheduleOpen bool                      `json:"schedule_open"`
	ActiveJobs   int                       `json:"active_jobs"`
	Slots        int                       `json:"slots"`
	Queue        map[models.JobState]int64 `json:"queue"`
}

// Status reports engine state plus per-state job counts.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	counts, err := e.jobs.CountByState(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}

	e.mu.RLock()
	s := &Status{
		Running:      e.ctx != nil,
		Paused:       e.paused,
		ScheduleOpen: e.schedOpen,
		Queue:        counts,
	}
	e.mu.RUnlock()

	s.ActiveJobs = e.registry.active()
	s.Slots = e.slots.Size()
	return s, nil
}

// Cancel stops a job. Running jobs get their context cancelled and land in
// cancelled once the worker unwinds; queued jobs flip directly. Terminal
// jobs return ErrInvalidState, unknown ids ErrJobNotFound.
func (e *Engine) Cancel(ctx context.Context, id int64) error {
	if e.registry.cancel(id) {
		e.logger.Info("cancel requested for running job", "job_id", id)
		return nil
	}

	job, err := e.jobs.Get(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return models.ErrJobNotFound
	}

	switch {
	case job.State == models.JobStateQueued:
		cancelled, err := e.jobs.CancelQueued(ctx, id)
		if err != nil {
			return err
		}
		if !cancelled {
			// Claimed between the lookup and the update.
			if e.registry.cancel(id) {
				return nil
			}
			return models.ErrInvalidState
		}
		e.bus.Publish(events.NewState(id, models.JobStateCancelled))
		metrics.JobFinished(string(models.JobStateCancelled))
		e.logger.Info("queued job cancelled", "job_id", id)
		return nil
	case job.State.IsActive():
		// Active in the store but not registered here: the worker is
		// between claim and registration, or a previous run died.
		if e.registry.cancel(id) {
			return nil
		}
		return models.ErrInvalidState
	default:
		return models.ErrInvalidState
	}
}

// ScanAndEnqueue walks the given roots (nil means the configured roots plus
// the enabled watch dirs) and upserts every candidate file into the queue.
// It returns the number of jobs (re)enqueued.
func (e *Engine) ScanAndEnqueue(ctx context.Context, roots []string, trigger string) (int, error) {
	st, err := e.settings.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading settings: %w", err)
	}

	if len(roots) == 0 {
		roots = append(roots, e.cfg.ScanRoots...)
		dirs, err := e.watchDirs.ListEnabled(ctx)
		if err != nil {
			return 0, fmt.Errorf("loading watch dirs: %w", err)
		}
		for _, d := range dirs {
			roots = append(roots, d.Path)
		}
	}
	if len(roots) == 0 {
		return 0, fmt.Errorf("no scan roots configured")
	}

	files, err := e.scan.Scan(ctx, roots, st.OutputSuffix)
	if err != nil {
		return 0, err
	}
	metrics.ScansTotal.WithLabelValues(trigger).Inc()

	enqueued := 0
	for _, f := range files {
		outputPath := scanner.OutputPath(f.Path, st.OutputSuffix, st.OutputExtension)
		_, added, err := e.jobs.Upsert(ctx, f.Path, outputPath, f.MtimeHash, 0)
		if err != nil {
			e.logger.Error("enqueuing scanned file", "path", f.Path, "error", err)
			continue
		}
		if added {
			enqueued++
		}
	}
	if enqueued > 0 {
		metrics.FilesEnqueuedTotal.Add(float64(enqueued))
	}
	e.refreshQueueDepths(ctx)

	e.logger.Info("scan finished", "trigger", trigger, "files", len(files), "enqueued", enqueued)
	return enqueued, nil
}

// EnqueueFiles registers individual files, used by the filesystem watcher.
// Paths that are not media files, are engine outputs, or cannot be statted
// are ignored. It returns the number of jobs (re)enqueued.
func (e *Engine) EnqueueFiles(ctx context.Context, paths []string) int {
	st, err := e.settings.Get(ctx)
	if err != nil {
		e.logger.Error("loading settings", "error", err)
		return 0
	}

	enqueued := 0
	for _, path := range paths {
		if !scanner.IsMediaFile(path) || scanner.IsOwnOutput(path, st.OutputSuffix) {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		outputPath := scanner.OutputPath(path, st.OutputSuffix, st.OutputExtension)
		_, added, err := e.jobs.Upsert(ctx, path, outputPath, scanner.MtimeHash(info.ModTime(), info.Size()), 0)
		if err != nil {
			e.logger.Error("enqueuing watched file", "path", path, "error", err)
			continue
		}
		if added {
			enqueued++
		}
	}
	if enqueued > 0 {
		metrics.FilesEnqueuedTotal.Add(float64(enqueued))
		metrics.ScansTotal.WithLabelValues("watcher").Inc()
		e.logger.Info("watcher enqueued files", "count", enqueued)
	}
	return enqueued
}

// WatchPath adds a directory tree to the running filesystem watcher. It is
// a no-op when watching is disabled.
func (e *Engine) WatchPath(root string) error {
	e.mu.RLock()
	watch := e.watch
	e.mu.RUnlock()
	if watch == nil {
		return nil
	}
	return watch.Add(root)
}

// startWatcher wires the filesystem watcher over the configured roots and
// the enabled watch dirs.
func (e *Engine) startWatcher(ctx context.Context) error {
	roots := append([]string(nil), e.cfg.ScanRoots...)
	dirs, err := e.watchDirs.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("loading watch dirs: %w", err)
	}
	for _, d := range dirs {
		roots = append(roots, d.Path)
	}
	if len(roots) == 0 {
		return fmt.Errorf("no directories to watch")
	}

	w := watcher.New(func(paths []string) {
		e.EnqueueFiles(context.Background(), paths)
	}).WithLogger(e.logger).WithDebounce(e.cfg.WatchDebounce)

	if err := w.Start(ctx, roots); err != nil {
		return err
	}

	e.mu.Lock()
	e.watch = w
	e.mu.Unlock()
	return nil
}

// claimLoop pulls queued jobs while the gate is open and a slot is free.
func (e *Engine) claimLoop(ctx context.Context) {
	defer e.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		if !e.gateOpen() {
			if !idle(ctx, gateRetryInterval) {
				return
			}
			continue
		}

		if err := e.slots.Acquire(ctx); err != nil {
			return
		}

		job, st, err := e.claimNext(ctx)
		if err != nil {
			e.slots.Release()
			if ctx.Err() != nil {
				return
			}
			e.logger.Error("claiming next job", "error", err)
			if !idle(ctx, queuePollInterval) {
				return
			}
			continue
		}
		if job == nil {
			e.slots.Release()
			if !idle(ctx, queuePollInterval) {
				return
			}
			continue
		}

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer e.slots.Release()
			e.runJob(job, st)
		}()
	}
}

// claimNext claims the next queued job together with the settings snapshot
// its worker will run under. A claim that cannot get its snapshot is
// requeued.
func (e *Engine) claimNext(ctx context.Context) (*models.Job, *models.Settings, error) {
	job, err := e.jobs.ClaimNext(ctx)
	if err != nil || job == nil {
		return nil, nil, err
	}

	st, err := e.settings.Get(ctx)
	if err != nil {
		if uerr := e.jobs.UpdateState(context.Background(), job.ID, models.JobStateQueued); uerr != nil {
			e.logger.Error("requeueing job after settings error", "job_id", job.ID, "error", uerr)
		}
		return nil, nil, fmt.Errorf("loading settings snapshot: %w", err)
	}
	return job, st, nil
}

// syncLoop drives the minute-granularity housekeeping: the schedule gate,
// the rescan cron and the queue depth gauges.
func (e *Engine) syncLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.refreshGate(ctx)
			e.refreshQueueDepths(ctx)
			if e.rescanDue(time.Now()) {
				if _, err := e.ScanAndEnqueue(ctx, nil, "cron"); err != nil {
					e.logger.Error("scheduled rescan failed", "error", err)
				}
			}
		}
	}
}

// rescanDue reports whether the rescan cron fires inside the sync window
// ending at now.
func (e *Engine) rescanDue(now time.Time) bool {
	if e.rescan == nil {
		return false
	}
	next := e.rescan.Next(now.Add(-syncInterval))
	return !next.After(now)
}

// refreshGate re-evaluates the schedule windows against the local time.
func (e *Engine) refreshGate(ctx context.Context) {
	open := true
	if !e.cfg.IgnoreSchedule {
		windows, err := e.schedules.ListEnabled(ctx)
		if err != nil {
			e.logger.Error("loading schedule windows", "error", err)
			return
		}
		open = windowsOpen(windows, time.Now())
	}

	e.mu.Lock()
	changed := e.schedOpen != open
	e.schedOpen = open
	e.mu.Unlock()

	if open {
		metrics.ScheduleGateOpen.Set(1)
	} else {
		metrics.ScheduleGateOpen.Set(0)
	}
	if changed {
		e.logger.Info("schedule gate changed", "open", open)
	}
}

func (e *Engine) refreshQueueDepths(ctx context.Context) {
	counts, err := e.jobs.CountByState(ctx)
	if err != nil {
		return
	}
	byState := make(map[string]int64, len(counts))
	for state, n := range counts {
		byState[string(state)] = n
	}
	metrics.SetQueueDepths(byState)
}

func (e *Engine) gateOpen() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.paused && e.schedOpen
}

// idle sleeps for d unless ctx ends first, reporting whether to continue.
func idle(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
