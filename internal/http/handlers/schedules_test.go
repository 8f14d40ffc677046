package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alchemist-av/alchemist/internal/models"
	"github.com/alchemist-av/alchemist/internal/repository"
)

func newSchedulesFixture(t *testing.T) (*SchedulesHandler, repository.ScheduleRepository) {
	t.Helper()
	repo := repository.NewScheduleRepository(setupDB(t))
	return NewSchedulesHandler(repo), repo
}

func createWindow(t *testing.T, h *SchedulesHandler, start, end string) *models.ScheduleWindow {
	t.Helper()
	resp, err := h.Create(context.Background(), &CreateScheduleInput{Body: ScheduleBody{
		Enabled:   true,
		StartTime: start,
		EndTime:   end,
	}})
	require.NoError(t, err)
	require.NotZero(t, resp.Body.ID)
	return resp.Body
}

func TestSchedulesHandler_CreateAndList(t *testing.T) {
	h, _ := newSchedulesFixture(t)
	ctx := context.Background()

	createWindow(t, h, "22:00", "06:00")
	createWindow(t, h, "12:00", "14:00")

	resp, err := h.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, resp.Body.Schedules, 2)
}

func TestSchedulesHandler_Create_BadClock(t *testing.T) {
	h, _ := newSchedulesFixture(t)

	_, err := h.Create(context.Background(), &CreateScheduleInput{Body: ScheduleBody{
		StartTime: "25:99",
		EndTime:   "06:00",
	}})
	assertStatus(t, err, http.StatusBadRequest)
}

func TestSchedulesHandler_Get(t *testing.T) {
	h, _ := newSchedulesFixture(t)
	window := createWindow(t, h, "22:00", "06:00")

	resp, err := h.Get(context.Background(), &ScheduleIDInput{ID: window.ID})
	require.NoError(t, err)
	assert.Equal(t, "22:00", resp.Body.StartTime)

	_, err = h.Get(context.Background(), &ScheduleIDInput{ID: 999})
	assertStatus(t, err, http.StatusNotFound)
}

func TestSchedulesHandler_Update(t *testing.T) {
	h, repo := newSchedulesFixture(t)
	ctx := context.Background()
	window := createWindow(t, h, "22:00", "06:00")

	resp, err := h.Update(ctx, &UpdateScheduleInput{ID: window.ID, Body: ScheduleBody{
		Enabled:    false,
		StartTime:  "23:30",
		EndTime:    "05:00",
		DaysOfWeek: "5,6",
	}})
	require.NoError(t, err)
	assert.False(t, resp.Body.Enabled)
	assert.Equal(t, "23:30", resp.Body.StartTime)

	stored, err := repo.Get(ctx, window.ID)
	require.NoError(t, err)
	assert.Equal(t, "5,6", stored.DaysOfWeek)
	assert.False(t, stored.CreatedAt.IsZero(), "update keeps the original creation time")
}

func TestSchedulesHandler_Update_NotFoundAndInvalid(t *testing.T) {
	h, _ := newSchedulesFixture(t)
	window := createWindow(t, h, "22:00", "06:00")

	_, err := h.Update(context.Background(), &UpdateScheduleInput{ID: 999, Body: ScheduleBody{
		StartTime: "22:00", EndTime: "06:00",
	}})
	assertStatus(t, err, http.StatusNotFound)

	_, err = h.Update(context.Background(), &UpdateScheduleInput{ID: window.ID, Body: ScheduleBody{
		StartTime: "22:00", EndTime: "06:00", DaysOfWeek: "7,8",
	}})
	assertStatus(t, err, http.StatusBadRequest)
}

func TestSchedulesHandler_Delete(t *testing.T) {
	h, repo := newSchedulesFixture(t)
	ctx := context.Background()
	window := createWindow(t, h, "22:00", "06:00")

	_, err := h.Delete(ctx, &ScheduleIDInput{ID: window.ID})
	require.NoError(t, err)

	gone, err := repo.Get(ctx, window.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	_, err = h.Delete(ctx, &ScheduleIDInput{ID: window.ID})
	assertStatus(t, err, http.StatusNotFound)
}
