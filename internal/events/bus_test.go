package events

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/alchemist-av/alchemist/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestBus() *Bus {
	return NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func recv(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		require.True(t, ok, "channel closed while waiting for event")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBus_PublishFanout(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	a := bus.Subscribe()
	b := bus.Subscribe()

	bus.Publish(NewState(7, models.JobStateEncoding))

	for _, sub := range []*Subscriber{a, b} {
		ev := recv(t, sub)
		assert.Equal(t, TypeState, ev.Type)
		assert.Equal(t, int64(7), ev.JobID)
		assert.Equal(t, models.JobStateEncoding, ev.State)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.At.IsZero())
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	sub := bus.Subscribe()
	bus.Unsubscribe(sub.ID)

	_, ok := <-sub.C
	assert.False(t, ok)

	// Publishing after unsubscribe must not panic or block.
	bus.Publish(NewLog(1, "info", "after unsubscribe"))
}

func TestBus_Close(t *testing.T) {
	bus := newTestBus()

	a := bus.Subscribe()
	b := bus.Subscribe()
	bus.Close()

	_, okA := <-a.C
	_, okB := <-b.C
	assert.False(t, okA)
	assert.False(t, okB)

	bus.Publish(NewState(1, models.JobStateCompleted))
	assert.Zero(t, bus.Dropped())

	// Idempotent.
	bus.Close()
}

func TestBus_SubscribeAfterClose(t *testing.T) {
	bus := newTestBus()
	bus.Close()

	sub := bus.Subscribe()
	_, ok := <-sub.C
	assert.False(t, ok)
}

func TestBus_DropsHighRateEventsWhenFull(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	sub := bus.Subscribe()

	for i := 0; i < subscriberBuffer; i++ {
		bus.Publish(NewProgress(1, float64(i), time.Second))
	}
	assert.Zero(t, bus.Dropped())

	bus.Publish(NewProgress(1, 99, time.Second))
	bus.Publish(NewLog(1, "info", "line"))
	bus.Publish(NewDecision(2, models.DecisionSkip, "File too small"))
	assert.Equal(t, uint64(3), bus.Dropped())

	// Non-terminal state transitions are droppable too.
	bus.Publish(NewState(1, models.JobStateEncoding))
	assert.Equal(t, uint64(4), bus.Dropped())

	_ = sub
}

func TestBus_TerminalStateSurvivesFullBuffer(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	sub := bus.Subscribe()

	for i := 0; i < subscriberBuffer; i++ {
		bus.Publish(NewProgress(1, float64(i), time.Second))
	}

	// No room: the terminal transition is parked, not dropped.
	bus.Publish(NewState(1, models.JobStateCompleted))
	assert.Zero(t, bus.Dropped())

	// Drain the backlog. The parked event is not delivered yet.
	for i := 0; i < subscriberBuffer; i++ {
		ev := recv(t, sub)
		assert.Equal(t, TypeProgress, ev.Type)
	}

	// The next publish flushes the parked terminal state first.
	bus.Publish(NewLog(1, "info", "done"))

	ev := recv(t, sub)
	assert.Equal(t, TypeState, ev.Type)
	assert.Equal(t, models.JobStateCompleted, ev.State)

	ev = recv(t, sub)
	assert.Equal(t, TypeLog, ev.Type)
}

func TestBus_ParkedTerminalStateLatestWins(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	sub := bus.Subscribe()

	for i := 0; i < subscriberBuffer; i++ {
		bus.Publish(NewProgress(1, float64(i), time.Second))
	}

	bus.Publish(NewState(1, models.JobStateFailed))
	bus.Publish(NewState(1, models.JobStateCancelled))
	bus.Publish(NewState(2, models.JobStateCompleted))

	for i := 0; i < subscriberBuffer; i++ {
		recv(t, sub)
	}
	bus.Publish(NewLog(3, "info", "flush"))

	// Three events follow: the latest parked state per job, then the log.
	states := map[int64]models.JobState{}
	var sawLog bool
	for i := 0; i < 3; i++ {
		ev := recv(t, sub)
		switch ev.Type {
		case TypeState:
			states[ev.JobID] = ev.State
		case TypeLog:
			sawLog = true
		}
	}

	assert.Equal(t, models.JobStateCancelled, states[1])
	assert.Equal(t, models.JobStateCompleted, states[2])
	assert.True(t, sawLog)
	assert.Zero(t, bus.Dropped())
}

func TestBus_SlowSubscriberDoesNotAffectOthers(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	slow := bus.Subscribe()
	fast := bus.Subscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		bus.Publish(NewProgress(1, float64(i), time.Second))
		recv(t, fast)
	}

	// Only the slow subscriber dropped events.
	assert.Equal(t, uint64(10), bus.Dropped())
	_ = slow
}

func TestNewProgress_OutTimeSeconds(t *testing.T) {
	ev := NewProgress(4, 52.5, 90*time.Second)
	assert.Equal(t, TypeProgress, ev.Type)
	assert.InDelta(t, 52.5, ev.Pct, 0.001)
	assert.InDelta(t, 90.0, ev.OutTime, 0.001)
}
