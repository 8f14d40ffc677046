// Package metrics exposes Prometheus metrics for the transcoding engine.
// Label cardinality is bounded: job states and event types only, never ids.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts jobs reaching a terminal state.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alchemist_jobs_total",
		Help: "Total number of jobs finished, by terminal state.",
	}, []string{"state"})

	// BytesSavedTotal accumulates input minus output bytes for completed jobs.
	BytesSavedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alchemist_bytes_saved_total",
		Help: "Total bytes saved by completed transcodes.",
	})

	// EncodeSecondsTotal accumulates wall-clock encode time.
	EncodeSecondsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alchemist_encode_seconds_total",
		Help: "Total wall-clock seconds spent encoding.",
	})

	// QueueDepth tracks the number of jobs per state.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "alchemist_queue_depth",
		Help: "Current number of jobs, by state.",
	}, []string{"state"})

	// ActiveWorkers tracks jobs currently being processed.
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alchemist_active_workers",
		Help: "Number of in-flight transcode workers.",
	})

	// EnginePaused is 1 while the engine is manually paused.
	EnginePaused = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alchemist_engine_paused",
		Help: "Whether the engine is manually paused (1) or running (0).",
	})

	// ScheduleGateOpen is 1 while the schedule window permits encoding.
	ScheduleGateOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alchemist_schedule_gate_open",
		Help: "Whether the schedule window currently permits encoding (1) or not (0).",
	})

	// EventsDroppedTotal counts events dropped by slow SSE subscribers.
	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alchemist_events_dropped_total",
		Help: "Total events dropped due to subscriber backpressure, by type.",
	}, []string{"type"})

	// ScansTotal counts library scans by trigger source.
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alchemist_scans_total",
		Help: "Total library scans, by trigger (api, cron, watcher, cli).",
	}, []string{"trigger"})

	// FilesEnqueuedTotal counts files enqueued by scans.
	FilesEnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alchemist_files_enqueued_total",
		Help: "Total files enqueued by library scans.",
	})

	// NotificationsTotal counts outbound notification deliveries.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alchemist_notifications_total",
		Help: "Total notification deliveries, by target kind and outcome.",
	}, []string{"kind", "outcome"})
)

// JobFinished records a terminal transition.
func JobFinished(state string) {
	JobsTotal.WithLabelValues(state).Inc()
}

// EncodeCompleted records savings for a completed transcode.
func EncodeCompleted(inputBytes, outputBytes int64, encodeSeconds float64) {
	if saved := inputBytes - outputBytes; saved > 0 {
		BytesSavedTotal.Add(float64(saved))
	}
	if encodeSeconds > 0 {
		EncodeSecondsTotal.Add(encodeSeconds)
	}
}

// EventDropped records a dropped bus event.
func EventDropped(eventType string) {
	if eventType == "" {
		eventType = "unknown"
	}
	EventsDroppedTotal.WithLabelValues(eventType).Inc()
}

// SetQueueDepths replaces the queue depth gauges with the given counts.
func SetQueueDepths(counts map[string]int64) {
	for state, n := range counts {
		QueueDepth.WithLabelValues(state).Set(float64(n))
	}
}

// NotificationSent records one delivery attempt outcome.
func NotificationSent(kind string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	NotificationsTotal.WithLabelValues(kind, outcome).Inc()
}
