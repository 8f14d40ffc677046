package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alchemist-av/alchemist/internal/database"
	"github.com/alchemist-av/alchemist/internal/database/migrations"
	"github.com/alchemist-av/alchemist/internal/engine"
	"github.com/alchemist-av/alchemist/internal/events"
	"github.com/alchemist-av/alchemist/internal/ffmpeg"
	"github.com/alchemist-av/alchemist/internal/hardware"
	"github.com/alchemist-av/alchemist/internal/models"
	"github.com/alchemist-av/alchemist/internal/observability"
	"github.com/alchemist-av/alchemist/internal/repository"
	"github.com/alchemist-av/alchemist/internal/startup"
	"github.com/alchemist-av/alchemist/pkg/format"
)

// scanPollInterval is how often the drain loop samples the queue.
const scanPollInterval = 2 * time.Second

var scanCmd = &cobra.Command{
	Use:   "scan [paths...]",
	Short: "Scan libraries and transcode until the queue drains",
	Long: `Run a one-shot scan-and-transcode pass and exit.

Positional paths override the configured scanner roots. Every candidate
file is enqueued, the engine processes the queue (previously queued jobs
included), and a summary is printed once nothing is left to do.

Schedule windows are ignored by default so the pass runs to completion;
pass --ignore-schedule=false to honor them. The filesystem watcher and
cron rescans never run in scan mode.

The exit status is non-zero when any job failed during the pass.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Bool("ignore-schedule", true, "process jobs regardless of schedule windows")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The summary goes to stdout; logs stay on stderr.
	logger := observability.NewLoggerWithWriter(cfg.Logging, os.Stderr)
	observability.SetDefault(logger)

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

	if _, err := settingsRepo.EnsureSeed(ctx, seedSettings(cfg.Transcode)); err != nil {
		return fmt.Errorf("seeding settings: %w", err)
	}

	hw := hardware.Detect(ctx, logger)
	caps, err := ffmpeg.NewDetector(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath, logger).Detect(ctx, hw)
	if err != nil {
		return fmt.Errorf("detecting ffmpeg capabilities: %w", err)
	}

	if swept, err := startup.SweepPartialOutputs(ctx, logger, jobsRepo); err != nil {
		logger.Warn("sweeping partial outputs", slog.String("error", err.Error()))
	} else if swept > 0 {
		logger.Info("swept partial outputs on startup", slog.Int("removed", swept))
	}

	bus := events.NewBus(logger)
	defer bus.Close()

	ignoreSchedule, _ := cmd.Flags().GetBool("ignore-schedule")

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
		ScanRoots:      cfg.Scanner.Roots,
		ShutdownGrace:  cfg.Engine.ShutdownGrace,
		IgnoreSchedule: ignoreSchedule,
	})

	countsBefore, err := jobsRepo.CountByState(ctx)
	if err != nil {
		return fmt.Errorf("counting jobs: %w", err)
	}
	totalsBefore, err := statsRepo.Totals(ctx)
	if err != nil {
		return fmt.Errorf("loading totals: %w", err)
	}

	// Ctrl-C cancels in-flight encodes directly; interrupted jobs requeue
	// on the next run.
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer eng.Stop()

	enqueued, err := eng.ScanAndEnqueue(ctx, args, "cli")
	if err != nil {
		return fmt.Errorf("scanning: %w", err)
	}

	if err := waitForDrain(ctx, jobsRepo); err != nil {
		return err
	}

	countsAfter, err := jobsRepo.CountByState(ctx)
	if err != nil {
		return fmt.Errorf("counting jobs: %w", err)
	}
	totalsAfter, err := statsRepo.Totals(ctx)
	if err != nil {
		return fmt.Errorf("loading totals: %w", err)
	}

	printScanSummary(enqueued, countsBefore, countsAfter, totalsBefore, totalsAfter)

	if failed := countsAfter[models.JobStateFailed] - countsBefore[models.JobStateFailed]; failed > 0 {
		return fmt.Errorf("%d jobs failed", failed)
	}
	return nil
}

// waitForDrain polls the queue until no job is queued, analyzing or encoding.
func waitForDrain(ctx context.Context, jobs repository.JobRepository) error {
	ticker := time.NewTicker(scanPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			counts, err := jobs.CountByState(ctx)
			if err != nil {
				return fmt.Errorf("polling queue: %w", err)
			}
			pending := counts[models.JobStateQueued] +
				counts[models.JobStateAnalyzing] +
				counts[models.JobStateEncoding]
			if pending == 0 {
				return nil
			}
		}
	}
}

func printScanSummary(enqueued int, before, after map[models.JobState]int64, totalsBefore, totalsAfter *repository.StatsTotals) {
	completed := after[models.JobStateCompleted] - before[models.JobStateCompleted]
	skipped := after[models.JobStateSkipped] - before[models.JobStateSkipped]
	failed := after[models.JobStateFailed] - before[models.JobStateFailed]
	saved := totalsAfter.BytesSaved - totalsBefore.BytesSaved
	encodeSecs := totalsAfter.EncodeSeconds - totalsBefore.EncodeSeconds

	fmt.Println()
	fmt.Println("Scan summary")
	fmt.Println("------------")
	fmt.Printf("Enqueued:      %d\n", enqueued)
	fmt.Printf("Completed:     %d\n", completed)
	fmt.Printf("Skipped:       %d\n", skipped)
	fmt.Printf("Failed:        %d\n", failed)
	if saved > 0 {
		inputDelta := totalsAfter.InputBytes - totalsBefore.InputBytes
		line := format.Bytes(saved)
		if inputDelta > 0 {
			pct := float64(saved) / float64(inputDelta) * 100
			line += fmt.Sprintf(" (%s reduction)", format.Percentage(pct, 1))
		}
		fmt.Printf("Space saved:   %s\n", line)
	}
	if encodeSecs > 0 {
		fmt.Printf("Encode time:   %s\n", format.Seconds(encodeSecs))
	}
}
