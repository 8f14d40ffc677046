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

func newSettingsFixture(t *testing.T) (*SettingsHandler, repository.SettingsRepository, *fakeEngine) {
	t.Helper()
	repo := repository.NewSettingsRepository(setupDB(t))
	_, err := repo.EnsureSeed(context.Background(), models.DefaultSettings())
	require.NoError(t, err)
	eng := &fakeEngine{}
	return NewSettingsHandler(repo, eng), repo, eng
}

func TestSettingsHandler_Get(t *testing.T) {
	h, _, _ := newSettingsFixture(t)

	resp, err := h.Get(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.CodecAV1, resp.Body.TargetCodec)
	assert.Equal(t, 1, resp.Body.ConcurrentJobs)
}

func TestSettingsHandler_Update(t *testing.T) {
	h, repo, eng := newSettingsFixture(t)
	ctx := context.Background()

	next := models.DefaultSettings()
	next.TargetCodec = models.CodecHEVC
	next.ConcurrentJobs = 4

	resp, err := h.Update(ctx, &UpdateSettingsInput{Body: next})
	require.NoError(t, err)
	assert.Equal(t, models.CodecHEVC, resp.Body.TargetCodec)
	assert.Equal(t, 4, eng.concurrency, "pool resized to the new setting")

	stored, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.CodecHEVC, stored.TargetCodec)
	assert.Equal(t, 4, stored.ConcurrentJobs)
}

func TestSettingsHandler_Update_Invalid(t *testing.T) {
	h, repo, eng := newSettingsFixture(t)
	ctx := context.Background()

	next := models.DefaultSettings()
	next.TargetCodec = "vp8"

	_, err := h.Update(ctx, &UpdateSettingsInput{Body: next})
	assertStatus(t, err, http.StatusBadRequest)
	assert.Zero(t, eng.concurrency, "pool untouched on rejected update")

	stored, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.CodecAV1, stored.TargetCodec, "stored row unchanged")
}
