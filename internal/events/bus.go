// Package events implements the in-process broadcast bus for job lifecycle
// events. Fan-out is lossy for high-rate progress and log traffic, but a
// job's terminal state transition is guaranteed to reach every subscriber
// that keeps draining its channel.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/alchemist-av/alchemist/internal/metrics"
	"github.com/alchemist-av/alchemist/internal/models"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber lagging
// beyond it loses intermediate events.
const subscriberBuffer = 100

// Type tags the event variant.
type Type string

const (
	// TypeState announces a job state transition.
	TypeState Type = "state"
	// TypeProgress carries encode progress for a running job.
	TypeProgress Type = "progress"
	// TypeLog relays a log line scoped to a job.
	TypeLog Type = "log"
	// TypeDecision announces the verdict recorded for a job.
	TypeDecision Type = "decision"
)

// Event is one bus message. Only the fields belonging to the tagged variant
// are populated.
type Event struct {
	ID      string                `json:"id"`
	Type    Type                  `json:"event"`
	JobID   int64                 `json:"job_id"`
	State   models.JobState       `json:"state,omitempty"`
	Pct     float64               `json:"pct,omitempty"`
	OutTime float64               `json:"out_time,omitempty"`
	Level   string                `json:"level,omitempty"`
	Message string                `json:"message,omitempty"`
	Action  models.DecisionAction `json:"action,omitempty"`
	Reason  string                `json:"reason,omitempty"`
	At      time.Time             `json:"at"`
}

// NewState builds a state-change event.
func NewState(jobID int64, state models.JobState) Event {
	ev := newEvent(TypeState, jobID)
	ev.State = state
	return ev
}

// NewProgress builds a progress event. OutTime is the encoded media position
// in seconds.
func NewProgress(jobID int64, pct float64, outTime time.Duration) Event {
	ev := newEvent(TypeProgress, jobID)
	ev.Pct = pct
	ev.OutTime = outTime.Seconds()
	return ev
}

// NewLog builds a job-scoped log event.
func NewLog(jobID int64, level, message string) Event {
	ev := newEvent(TypeLog, jobID)
	ev.Level = level
	ev.Message = message
	return ev
}

// NewDecision builds a decision event.
func NewDecision(jobID int64, action models.DecisionAction, reason string) Event {
	ev := newEvent(TypeDecision, jobID)
	ev.Action = action
	ev.Reason = reason
	return ev
}

func newEvent(t Type, jobID int64) Event {
	return Event{ID: ulid.Make().String(), Type: t, JobID: jobID, At: time.Now()}
}

// terminal reports whether losing this event would break the final-state
// guarantee.
func (e Event) terminal() bool {
	return e.Type == TypeState && e.State.IsTerminal()
}

// Subscriber receives bus events on C until unsubscribed or the bus closes.
type Subscriber struct {
	ID string
	C  <-chan Event

	ch chan Event
	// pending holds terminal state events that did not fit the buffer,
	// keyed by job id with the latest transition winning. Guarded by the
	// bus mutex.
	pending map[int64]Event
}

// Bus broadcasts events to all current subscribers.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string]*Subscriber
	closed      bool
	dropped     uint64
	log         *slog.Logger
}

// NewBus creates an event bus.
func NewBus(log *slog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string]*Subscriber),
		log:         log.With("component", "eventbus"),
	}
}

// Subscribe registers a new subscriber. Subscribing to a closed bus returns
// a subscriber whose channel is already closed.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscriber{
		ID:      ulid.Make().String(),
		ch:      make(chan Event, subscriberBuffer),
		pending: make(map[int64]Event),
	}
	sub.C = sub.ch

	if b.closed {
		close(sub.ch)
		return sub
	}

	b.subscribers[sub.ID] = sub
	b.log.Debug("subscriber added", "subscriber_id", sub.ID)
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.ch)
		delete(b.subscribers, id)
		b.log.Debug("subscriber removed", "subscriber_id", id)
	}
}

// Close shuts down the bus and closes every subscriber channel. Publishing
// after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}

// Dropped reports how many events were discarded on full subscriber buffers.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Publish broadcasts ev to all subscribers without blocking. When a
// subscriber's buffer is full, progress, log and decision events are
// dropped; terminal state events are parked and resent ahead of the next
// event that finds room.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, sub := range b.subscribers {
		b.send(sub, ev)
	}
}

// send delivers ev to one subscriber. Parked terminal states flush first so
// a drained subscriber observes every job's final state.
func (b *Bus) send(sub *Subscriber, ev Event) {
	for jobID, held := range sub.pending {
		select {
		case sub.ch <- held:
			delete(sub.pending, jobID)
		default:
			// Buffer still full, so ev cannot be sent either.
			b.park(sub, ev)
			return
		}
	}

	select {
	case sub.ch <- ev:
	default:
		b.park(sub, ev)
	}
}

// park keeps a terminal state event for resend and drops anything else.
func (b *Bus) park(sub *Subscriber, ev Event) {
	if ev.terminal() {
		sub.pending[ev.JobID] = ev
		return
	}
	b.dropped++
	metrics.EventDropped(string(ev.Type))
	b.log.Debug("subscriber buffer full, dropping event",
		"subscriber_id", sub.ID,
		"event", ev.Type,
		"job_id", ev.JobID,
	)
}
