package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alchemist-av/alchemist/internal/backup"
	"github.com/alchemist-av/alchemist/internal/config"
	"github.com/alchemist-av/alchemist/internal/database"
	"github.com/alchemist-av/alchemist/internal/database/migrations"
	"github.com/alchemist-av/alchemist/internal/engine"
	"github.com/alchemist-av/alchemist/internal/events"
	"github.com/alchemist-av/alchemist/internal/ffmpeg"
	"github.com/alchemist-av/alchemist/internal/hardware"
	internalhttp "github.com/alchemist-av/alchemist/internal/http"
	"github.com/alchemist-av/alchemist/internal/http/handlers"
	"github.com/alchemist-av/alchemist/internal/models"
	"github.com/alchemist-av/alchemist/internal/notify"
	"github.com/alchemist-av/alchemist/internal/observability"
	"github.com/alchemist-av/alchemist/internal/repository"
	"github.com/alchemist-av/alchemist/internal/startup"
	"github.com/alchemist-av/alchemist/internal/system"
	"github.com/alchemist-av/alchemist/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the alchemist server",
	Long: `Start the alchemist daemon: the transcode engine and its HTTP API.

The server provides:
- REST API for jobs, settings, schedule windows, watch dirs and notifications
- Server-sent events at /api/v1/events for progress and state changes
- Prometheus metrics at /metrics and deep health at /healthz
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "listen address host:port (overrides server.host/server.port)")
	serveCmd.Flags().String("db", "", "database DSN (overrides database.dsn)")
	serveCmd.Flags().String("data-dir", "", "base directory for the sqlite file and backup snapshots")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}

	logger := observability.NewLoggerWithWriter(cfg.Logging, os.Stderr)
	observability.SetDefault(logger)

	// The signal context stops the HTTP listener; the engine and notifier
	// run on their own lifecycle so the deferred Stops can drain in-flight
	// encodes after the listener closes.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	migrator := migrations.NewMigrator(db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	if err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	jobsRepo := repository.NewJobRepository(db.DB)
	statsRepo := repository.NewStatsRepository(db.DB)
	decisionsRepo := repository.NewDecisionRepository(db.DB)
	settingsRepo := repository.NewSettingsRepository(db.DB)
	schedulesRepo := repository.NewScheduleRepository(db.DB)
	watchDirsRepo := repository.NewWatchDirRepository(db.DB)
	notificationsRepo := repository.NewNotificationRepository(db.DB)

	// The transcode section of the config only seeds the settings row;
	// after first boot the API owns it.
	if _, err := settingsRepo.EnsureSeed(ctx, seedSettings(cfg.Transcode)); err != nil {
		return fmt.Errorf("seeding settings: %w", err)
	}

	// ffmpeg is the whole point; refuse to start without it.
	hw := hardware.Detect(ctx, logger)
	caps, err := ffmpeg.NewDetector(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath, logger).Detect(ctx, hw)
	if err != nil {
		return fmt.Errorf("detecting ffmpeg capabilities: %w", err)
	}

	// Encodes interrupted by a crash leave truncated files at their output
	// paths; sweep them before the engine requeues those jobs.
	if swept, err := startup.SweepPartialOutputs(ctx, logger, jobsRepo); err != nil {
		logger.Warn("sweeping partial outputs", slog.String("error", err.Error()))
	} else if swept > 0 {
		logger.Info("swept partial outputs on startup", slog.Int("removed", swept))
	}

	bus := events.NewBus(logger)
	defer bus.Close()

	notifier := notify.New(notificationsRepo, settingsRepo, jobsRepo, statsRepo, bus).
		WithLogger(logger)
	if err := notifier.Start(context.Background()); err != nil {
		return fmt.Errorf("starting notifier: %w", err)
	}
	defer notifier.Stop()

	eng := engine.New(engine.Repos{
		Jobs:      jobsRepo,
		Stats:     statsRepo,
		Decisions: decisionsRepo,
		Settings:  settingsRepo,
		Schedules: schedulesRepo,
		WatchDirs: watchDirsRepo,
	}, caps, bus,
		ffmpeg.NewProber(caps.FFprobePath, logger),
		ffmpeg.NewRunner(caps.FFmpegPath, logger),
		ffmpeg.NewScorer(caps.FFmpegPath),
	).WithLogger(logger).WithConfig(engine.Config{
		ScanRoots:     cfg.Scanner.Roots,
		ShutdownGrace: cfg.Engine.ShutdownGrace,
		RescanCron:    cfg.Scanner.Cron,
		Watch:         cfg.Scanner.Watch,
		WatchDebounce: cfg.Scanner.WatchDebounce,
	})
	if err := eng.Start(context.Background()); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer eng.Stop()

	backups := backup.New(db.DB, cfg.Backup).WithLogger(logger)

	server := internalhttp.NewServer(cfg.Server, logger, version.Version)

	handlers.NewHealthHandler(db.DB, version.Version).Register(server.API())
	handlers.NewJobsHandler(jobsRepo, decisionsRepo, statsRepo, eng).Register(server.API())
	handlers.NewStatsHandler(jobsRepo, statsRepo).Register(server.API())
	handlers.NewScanHandler(eng).Register(server.API())
	handlers.NewSettingsHandler(settingsRepo, eng).Register(server.API())
	handlers.NewCapabilitiesHandler(caps).Register(server.API())
	handlers.NewSystemHandler(system.NewCollector(), cfg.Scanner.Roots, watchDirsRepo).Register(server.API())
	handlers.NewSchedulesHandler(schedulesRepo).Register(server.API())
	handlers.NewWatchDirsHandler(watchDirsRepo, eng).Register(server.API())
	handlers.NewNotificationsHandler(notificationsRepo, notifier).Register(server.API())
	handlers.NewBackupsHandler(backups).Register(server.API())
	handlers.NewEngineHandler(eng).Register(server.API())
	handlers.NewEventsHandler(bus).Register(server.Router())

	logger.Info("starting alchemist server",
		slog.String("address", cfg.Server.Address()),
		slog.String("version", version.Version),
		slog.String("ffmpeg", caps.FFmpegPath),
		slog.String("vendor", string(caps.Hardware.Vendor)),
	)

	return server.ListenAndServe(ctx)
}

// applyServeFlags overrides config values with explicitly-set serve flags.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("listen") {
		listen, _ := cmd.Flags().GetString("listen")
		host, portStr, err := net.SplitHostPort(listen)
		if err != nil {
			return fmt.Errorf("invalid --listen %q: %w", listen, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid --listen port %q: %w", portStr, err)
		}
		cfg.Server.Host = host
		cfg.Server.Port = port
	}

	if cmd.Flags().Changed("db") {
		cfg.Database.DSN, _ = cmd.Flags().GetString("db")
	}

	if cmd.Flags().Changed("data-dir") {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("creating data dir: %w", err)
		}
		// Relative sqlite files and backup dirs move under the data dir;
		// absolute paths and URI-style DSNs are left alone.
		if cfg.Database.Driver == "sqlite" && rebasable(cfg.Database.DSN) {
			cfg.Database.DSN = filepath.Join(dataDir, cfg.Database.DSN)
		}
		if !filepath.IsAbs(cfg.Backup.Directory) {
			cfg.Backup.Directory = filepath.Join(dataDir, filepath.Base(cfg.Backup.Directory))
		}
	}

	return cfg.Validate()
}

// rebasable reports whether a sqlite DSN is a plain relative file path.
func rebasable(dsn string) bool {
	return !filepath.IsAbs(dsn) &&
		!strings.HasPrefix(dsn, "file:") &&
		!strings.Contains(dsn, ":memory:")
}

// seedSettings maps the transcode config section onto the settings row
// written on first boot.
func seedSettings(tc config.TranscodeConfig) models.Settings {
	return models.Settings{
		ID:                     1,
		TargetCodec:            models.Codec(tc.TargetCodec),
		QualityProfile:         models.QualityProfile(tc.QualityProfile),
		CPUPreset:              models.CPUPreset(tc.CPUPreset),
		AllowCPUFallback:       tc.AllowCPUFallback,
		AllowCPUEncoding:       tc.AllowCPUEncoding,
		SizeReductionThreshold: tc.SizeReductionThreshold,
		MinBPPThreshold:        tc.MinBppThreshold,
		MinFileSizeMB:          tc.MinFileSizeMB,
		ConcurrentJobs:         tc.ConcurrentJobs,
		Threads:                tc.Threads,
		EnableVMAF:             tc.EnableVMAF,
		MinVMAFScore:           tc.MinVMAFScore,
		RevertOnLowQuality:     tc.RevertOnLowQuality,
		DeleteSource:           tc.DeleteSource,
		OutputExtension:        tc.OutputExtension,
		OutputSuffix:           tc.OutputSuffix,
		ReplaceStrategy:        models.ReplaceStrategy(tc.ReplaceStrategy),
		MonitoringPollInterval: tc.MonitoringPollInterval,
		NotifyOnComplete:       tc.NotifyOnComplete,
		NotifyOnFailure:        tc.NotifyOnFailure,
	}
}
