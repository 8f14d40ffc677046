package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alchemist-av/alchemist/internal/models"
	"github.com/alchemist-av/alchemist/internal/repository"
)

func TestStatsHandler_Get_Empty(t *testing.T) {
	db := setupDB(t)
	h := NewStatsHandler(repository.NewJobRepository(db), repository.NewStatsRepository(db))

	resp, err := h.Get(context.Background(), nil)
	require.NoError(t, err)

	assert.Len(t, resp.Body.Queue, len(models.AllJobStates), "every state present even at zero")
	for _, state := range models.AllJobStates {
		assert.Zero(t, resp.Body.Queue[state])
	}
	assert.Zero(t, resp.Body.Totals.FilesProcessed)
}

func TestStatsHandler_Get(t *testing.T) {
	db := setupDB(t)
	jobs := repository.NewJobRepository(db)
	stats := repository.NewStatsRepository(db)
	h := NewStatsHandler(jobs, stats)
	ctx := context.Background()

	job := seedJob(t, jobs, "/media/a.mkv")
	seedJob(t, jobs, "/media/b.mkv")
	require.NoError(t, jobs.MarkCompleted(ctx, job.ID))
	require.NoError(t, stats.UpsertForJob(ctx, &models.EncodeStat{
		JobID:           job.ID,
		InputSizeBytes:  1000,
		OutputSizeBytes: 400,
		ReductionPct:    60,
		EncodeSeconds:   12,
	}))

	resp, err := h.Get(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Body.Queue[models.JobStateQueued])
	assert.Equal(t, int64(1), resp.Body.Queue[models.JobStateCompleted])
	assert.Equal(t, int64(1), resp.Body.Totals.FilesProcessed)
	assert.Equal(t, int64(600), resp.Body.Totals.BytesSaved)
	assert.InDelta(t, 60.0, resp.Body.Totals.AvgReductionPct, 0.001)
}
