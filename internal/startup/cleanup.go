// Package startup provides boot-time recovery tasks that run before the
// engine begins claiming jobs.
package startup

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alchemist-av/alchemist/internal/models"
	"github.com/alchemist-av/alchemist/internal/repository"
)

// Interrupted jobs are bounded by the worker pool size, so a single page
// covers them with plenty of headroom.
const sweepPageLimit = 500

// SweepPartialOutputs removes output files abandoned by encodes the previous
// process never finished. Workers write straight to the output path, so a
// job still marked analyzing or encoding at boot may have a truncated file
// there; under the keep replace strategy that leftover would make the
// requeued job skip itself as already converted.
//
// Run this before the engine starts, which is when interrupted jobs are
// requeued. Returns the number of files removed.
func SweepPartialOutputs(ctx context.Context, logger *slog.Logger, jobs repository.JobRepository) (int, error) {
	interrupted, _, err := jobs.List(ctx, repository.JobFilter{
		States: []models.JobState{models.JobStateAnalyzing, models.JobStateEncoding},
		Limit:  sweepPageLimit,
	})
	if err != nil {
		return 0, fmt.Errorf("listing interrupted jobs: %w", err)
	}

	var removed int
	for _, job := range interrupted {
		// Jobs interrupted before the analyze step finished have no
		// output path yet.
		if job.OutputPath == "" || job.OutputPath == job.InputPath {
			continue
		}

		info, err := os.Stat(job.OutputPath)
		if err != nil {
			if !os.IsNotExist(err) {
				logger.Warn("checking partial output",
					"job_id", job.ID,
					"path", job.OutputPath,
					"error", err,
				)
			}
			continue
		}
		if info.IsDir() {
			continue
		}

		if err := os.Remove(job.OutputPath); err != nil {
			logger.Warn("removing partial output",
				"job_id", job.ID,
				"path", job.OutputPath,
				"error", err,
			)
			continue
		}

		logger.Info("removed partial output from interrupted encode",
			"job_id", job.ID,
			"path", job.OutputPath,
			"size_bytes", info.Size(),
		)
		removed++
	}

	return removed, nil
}
