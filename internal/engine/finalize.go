package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alchemist-av/alchemist/internal/events"
	"github.com/alchemist-av/alchemist/internal/ffmpeg"
	"github.com/alchemist-av/alchemist/internal/metrics"
	"github.com/alchemist-av/alchemist/internal/models"
)

// finalize verifies a finished output, persists the encode stats and flips
// the job to completed. A verification failure removes the output and fails
// the job, leaving the source untouched.
func (e *Engine) finalize(ctx context.Context, job *models.Job, info *ffmpeg.MediaInfo, st *models.Settings, plan *ffmpeg.EncodePlan, encodeSeconds float64, log *slog.Logger) {
	out, err := os.Stat(job.OutputPath)
	if err != nil || out.Size() == 0 {
		_ = os.Remove(job.OutputPath)
		e.failJob(job, "Empty output")
		return
	}

	inBytes, outBytes := info.SizeBytes, out.Size()
	var reduction float64
	if inBytes > 0 {
		reduction = 1 - float64(outBytes)/float64(inBytes)
	}
	if reduction < st.SizeReductionThreshold {
		_ = os.Remove(job.OutputPath)
		e.failJob(job, fmt.Sprintf("Inefficient reduction (%.1f%% < %.0f%%)",
			reduction*100, st.SizeReductionThreshold*100))
		return
	}

	vmafScore, ok := e.qualityGate(ctx, job, st, log)
	if !ok {
		return
	}

	duration := info.DurationSeconds
	if duration <= 0 {
		// Source duration unknown; the finished output usually knows.
		if probed, err := e.prober.Probe(ctx, job.OutputPath); err == nil {
			duration = probed.DurationSeconds
		}
	}
	var speed float64
	if duration > 0 && encodeSeconds > 0 {
		speed = duration / encodeSeconds
	}
	var avgKbps float64
	if duration > 0 {
		avgKbps = float64(outBytes) * 8 / duration / 1000
	}

	stat := &models.EncodeStat{
		JobID:           job.ID,
		InputSizeBytes:  inBytes,
		OutputSizeBytes: outBytes,
		ReductionPct:    reduction * 100,
		EncodeSeconds:   encodeSeconds,
		EncodeSpeed:     speed,
		AvgBitrateKbps:  avgKbps,
		VMAFScore:       vmafScore,
		Encoder:         plan.Encoder,
	}
	if err := e.stats.UpsertForJob(context.Background(), stat); err != nil {
		log.Error("persisting encode stats", "error", err)
	}

	if st.DeleteSource {
		if err := os.Remove(job.InputPath); err != nil {
			log.Warn("deleting source file failed", "error", err)
		}
	}

	if err := e.jobs.MarkCompleted(context.Background(), job.ID); err != nil {
		log.Error("marking job completed", "error", err)
	}
	e.bus.Publish(events.NewProgress(job.ID, 100, time.Duration(duration*float64(time.Second))))
	e.bus.Publish(events.NewState(job.ID, models.JobStateCompleted))
	metrics.JobFinished(string(models.JobStateCompleted))
	metrics.EncodeCompleted(inBytes, outBytes, encodeSeconds)

	log.Info("job completed",
		"reduction_pct", stat.ReductionPct,
		"encode_speed", speed,
		"output_bytes", outBytes)
}

// qualityGate runs the optional VMAF comparison. It returns the measured
// score (nil when none was taken) and whether finalization may proceed. An
// unavailable or failing scorer skips the gate rather than failing the job.
func (e *Engine) qualityGate(ctx context.Context, job *models.Job, st *models.Settings, log *slog.Logger) (*float64, bool) {
	if !st.EnableVMAF {
		return nil, true
	}
	if e.scorer == nil || !e.scorer.Available(ctx) {
		log.Warn("vmaf unavailable, skipping quality gate")
		return nil, true
	}

	score, err := e.scorer.Score(ctx, job.OutputPath, job.InputPath)
	if err != nil {
		log.Warn("vmaf scoring failed, skipping quality gate", "error", err)
		return nil, true
	}

	if score < st.MinVMAFScore {
		if st.RevertOnLowQuality {
			_ = os.Remove(job.OutputPath)
			e.failJob(job, fmt.Sprintf("Low quality (VMAF %.1f < %.1f)", score, st.MinVMAFScore))
			return &score, false
		}
		log.Warn("vmaf below threshold, keeping output", "score", score, "min", st.MinVMAFScore)
	}
	return &score, true
}
