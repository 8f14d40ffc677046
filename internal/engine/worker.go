package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/alchemist-av/alchemist/internal/decision"
	"github.com/alchemist-av/alchemist/internal/events"
	"github.com/alchemist-av/alchemist/internal/ffmpeg"
	"github.com/alchemist-av/alchemist/internal/metrics"
	"github.com/alchemist-av/alchemist/internal/models"
)

// runJob owns one claimed job until it reaches a terminal state. It never
// returns an error; every failure path lands the job in skipped, failed or
// cancelled with events published.
//
// The job context derives from Background, not from the engine context:
// Stop drains workers gracefully and only cancels them through the registry
// once the grace period expires.
func (e *Engine) runJob(job *models.Job, st *models.Settings) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.registry.add(job.ID, cancel)
	defer e.registry.remove(job.ID)

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	log := e.logger.With("job_id", job.ID, "input", job.InputPath)

	defer func() {
		if r := recover(); r != nil {
			log.Error("worker panicked", "panic", r, "stack", string(debug.Stack()))
			e.failJob(job, "internal error")
		}
	}()

	e.bus.Publish(events.NewState(job.ID, models.JobStateAnalyzing))
	log.Info("job claimed", "attempt", job.AttemptCount)

	e.process(ctx, job, st, log)
}

func (e *Engine) process(ctx context.Context, job *models.Job, st *models.Settings, log *slog.Logger) {
	if job.InputPath == job.OutputPath {
		e.failJob(job, "Output path matches input path")
		return
	}
	if st.ReplaceStrategy == models.ReplaceKeep {
		if _, err := os.Stat(job.OutputPath); err == nil {
			e.skipJob(job, "Output already exists")
			return
		}
	}

	info, err := e.prober.Probe(ctx, job.InputPath)
	if err != nil {
		if ctx.Err() != nil {
			e.cancelJob(job, log)
			return
		}
		log.Warn("probe failed", "error", err)
		e.failJob(job, err.Error())
		return
	}

	verdict := e.decider.Decide(info, st, e.caps)
	if verdict.Action == models.DecisionSkip {
		e.recordDecision(job, verdict, "")
		e.skipJob(job, verdict.Reason)
		return
	}

	plan, err := e.planFn(e.caps, st)
	if err != nil {
		if errors.Is(err, models.ErrEncoderUnavailable) {
			verdict.Action = models.DecisionSkip
			verdict.Reason = "No capable encoder"
			e.recordDecision(job, verdict, "")
			e.skipJob(job, verdict.Reason)
			return
		}
		e.failJob(job, err.Error())
		return
	}
	e.recordDecision(job, verdict, plan.Encoder)

	if err := e.jobs.UpdateState(context.Background(), job.ID, models.JobStateEncoding); err != nil {
		log.Error("marking job encoding", "error", err)
		e.failJob(job, "internal error")
		return
	}
	e.bus.Publish(events.NewState(job.ID, models.JobStateEncoding))
	log.Info("encode starting", "encoder", plan.Encoder, "output", job.OutputPath)

	started := time.Now()
	err = e.runner.Encode(ctx, job, plan, info, st, e.progressSink(job.ID, st))
	encodeSeconds := time.Since(started).Seconds()

	if err != nil {
		_ = os.Remove(job.OutputPath)
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			e.cancelJob(job, log)
			return
		}
		log.Warn("encode failed", "error", err, "encode_seconds", encodeSeconds)
		e.failJob(job, err.Error())
		return
	}

	e.finalize(ctx, job, info, st, plan, encodeSeconds, log)
}

// progressSink persists and publishes runner progress, throttled to the
// configured poll interval and at least a one-point delta.
func (e *Engine) progressSink(jobID int64, st *models.Settings) ffmpeg.ProgressFn {
	interval := time.Duration(st.MonitoringPollInterval * float64(time.Second))
	if interval <= 0 {
		interval = 2 * time.Second
	}

	var lastAt time.Time
	lastPct := -1.0
	return func(pct, speed float64, outTime time.Duration) {
		if time.Since(lastAt) < interval || pct-lastPct < 1 {
			return
		}
		lastAt = time.Now()
		lastPct = pct

		if err := e.jobs.SetProgress(context.Background(), jobID, pct); err != nil {
			e.logger.Warn("persisting progress", "job_id", jobID, "error", err)
		}
		e.bus.Publish(events.NewProgress(jobID, pct, outTime))
		e.bus.Publish(events.NewLog(jobID, "info",
			fmt.Sprintf("encoding %.1f%% at %.2fx", pct, speed)))
	}
}

// recordDecision appends a decision row, stores the reason on the job and
// publishes the decision event. Persistence failures are logged, not fatal:
// the job outcome matters more than its paper trail.
func (e *Engine) recordDecision(job *models.Job, v decision.Verdict, encoder string) {
	row := &models.Decision{
		JobID:   job.ID,
		Action:  v.Action,
		Reason:  v.Reason,
		Encoder: encoder,
		BPP:     v.BPP,
	}
	if err := e.decisions.Record(context.Background(), row); err != nil {
		e.logger.Error("recording decision", "job_id", job.ID, "error", err)
	}
	if err := e.jobs.SetDecisionReason(context.Background(), job.ID, v.Reason); err != nil {
		e.logger.Error("saving decision reason", "job_id", job.ID, "error", err)
	}
	e.bus.Publish(events.NewDecision(job.ID, v.Action, v.Reason))
}

// Terminal transitions write with a fresh context: they must land even when
// the job context was cancelled.

func (e *Engine) skipJob(job *models.Job, reason string) {
	if err := e.jobs.MarkSkipped(context.Background(), job.ID, reason); err != nil {
		e.logger.Error("marking job skipped", "job_id", job.ID, "error", err)
	}
	e.bus.Publish(events.NewState(job.ID, models.JobStateSkipped))
	metrics.JobFinished(string(models.JobStateSkipped))
	e.logger.Info("job skipped", "job_id", job.ID, "reason", reason)
}

func (e *Engine) failJob(job *models.Job, detail string) {
	if err := e.jobs.MarkFailed(context.Background(), job.ID, detail); err != nil {
		e.logger.Error("marking job failed", "job_id", job.ID, "error", err)
	}
	e.bus.Publish(events.NewState(job.ID, models.JobStateFailed))
	metrics.JobFinished(string(models.JobStateFailed))
	e.logger.Warn("job failed", "job_id", job.ID, "detail", detail)
}

func (e *Engine) cancelJob(job *models.Job, log *slog.Logger) {
	if err := e.jobs.UpdateState(context.Background(), job.ID, models.JobStateCancelled); err != nil {
		log.Error("marking job cancelled", "error", err)
	}
	e.bus.Publish(events.NewState(job.ID, models.JobStateCancelled))
	metrics.JobFinished(string(models.JobStateCancelled))
	log.Info("job cancelled")
}
