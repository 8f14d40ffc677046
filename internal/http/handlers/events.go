package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alchemist-av/alchemist/internal/events"
)

// EventsHandler streams bus events over SSE.
//
// It registers on the raw chi router instead of huma: huma serializes whole
// response bodies, which cannot express an endless stream.
type EventsHandler struct {
	bus               *events.Bus
	heartbeatInterval time.Duration
}

// NewEventsHandler creates an SSE handler.
func NewEventsHandler(bus *events.Bus) *EventsHandler {
	return &EventsHandler{bus: bus, heartbeatInterval: 30 * time.Second}
}

// SetHeartbeatInterval overrides the keepalive cadence. Tests use this to
// avoid waiting out the default.
func (h *EventsHandler) SetHeartbeatInterval(d time.Duration) {
	h.heartbeatInterval = d
}

// Register mounts the event stream on the router.
func (h *EventsHandler) Register(router chi.Router) {
	router.Get("/api/v1/events", h.Stream)
}

// Stream subscribes the client to the event bus and relays events as SSE
// until the client disconnects. An optional job_id query narrows the stream
// to one job.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	var jobFilter int64
	if raw := r.URL.Query().Get("job_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "job_id must be an integer", http.StatusBadRequest)
			return
		}
		jobFilter = id
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	// The server WriteTimeout would sever the stream mid-encode.
	_ = rc.SetWriteDeadline(time.Time{})

	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub.ID)

	fmt.Fprint(w, ":connected\n\n")
	if err := rc.Flush(); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintf(w, ":heartbeat %d\n\n", time.Now().Unix())
			if err := rc.Flush(); err != nil {
				return
			}
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if jobFilter != 0 && ev.JobID != jobFilter {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
