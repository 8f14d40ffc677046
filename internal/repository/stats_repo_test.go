package repository

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/alchemist-av/alchemist/internal/models"
)

func setupStatsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.EncodeStat{}, &models.Decision{}))
	return db
}

func TestStatsRepo_UpsertForJob(t *testing.T) {
	repo := NewStatsRepository(setupStatsTestDB(t))
	ctx := context.Background()

	stat := &models.EncodeStat{
		JobID:           7,
		InputSizeBytes:  1_000_000_000,
		OutputSizeBytes: 600_000_000,
		ReductionPct:    40,
		EncodeSeconds:   120,
		EncodeSpeed:     3.2,
		Encoder:         "av1_qsv",
	}
	require.NoError(t, repo.UpsertForJob(ctx, stat))

	// Re-encode after restart replaces the row.
	replacement := &models.EncodeStat{
		JobID:           7,
		InputSizeBytes:  1_000_000_000,
		OutputSizeBytes: 500_000_000,
		ReductionPct:    50,
		EncodeSeconds:   100,
		EncodeSpeed:     3.8,
		Encoder:         "libsvtav1",
	}
	require.NoError(t, repo.UpsertForJob(ctx, replacement))

	got, err := repo.ForJob(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(500_000_000), got.OutputSizeBytes)
	assert.Equal(t, "libsvtav1", got.Encoder)

	var count int64
	require.NoError(t, repo.db.Model(&models.EncodeStat{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestStatsRepo_ForJob_Missing(t *testing.T) {
	repo := NewStatsRepository(setupStatsTestDB(t))

	got, err := repo.ForJob(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStatsRepo_Totals(t *testing.T) {
	repo := NewStatsRepository(setupStatsTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.UpsertForJob(ctx, &models.EncodeStat{
		JobID: 1, InputSizeBytes: 1000, OutputSizeBytes: 600, ReductionPct: 40, EncodeSeconds: 10,
	}))
	require.NoError(t, repo.UpsertForJob(ctx, &models.EncodeStat{
		JobID: 2, InputSizeBytes: 2000, OutputSizeBytes: 1000, ReductionPct: 50, EncodeSeconds: 30,
	}))

	totals, err := repo.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.FilesProcessed)
	assert.Equal(t, int64(3000), totals.InputBytes)
	assert.Equal(t, int64(1600), totals.OutputBytes)
	assert.Equal(t, int64(1400), totals.BytesSaved)
	assert.InDelta(t, 45.0, totals.AvgReductionPct, 1e-9)
	assert.InDelta(t, 40.0, totals.EncodeSeconds, 1e-9)
}

func TestStatsRepo_Totals_Empty(t *testing.T) {
	repo := NewStatsRepository(setupStatsTestDB(t))

	totals, err := repo.Totals(context.Background())
	require.NoError(t, err)
	assert.Zero(t, totals.FilesProcessed)
	assert.Zero(t, totals.BytesSaved)
}

func TestDecisionRepo_RecordAndList(t *testing.T) {
	db := setupStatsTestDB(t)
	repo := NewDecisionRepository(db)
	ctx := context.Background()

	first := &models.Decision{JobID: 3, Action: models.DecisionSkip, Reason: "File too small", BPP: 0.02}
	require.NoError(t, repo.Record(ctx, first))

	second := &models.Decision{JobID: 3, Action: models.DecisionTranscode, Reason: "Transcode to av1", Encoder: "libsvtav1", BPP: 0.2}
	require.NoError(t, repo.Record(ctx, second))

	list, err := repo.ListForJob(ctx, 3)
	require.NoError(t, err)
	require.Len(t, list, 2)

	latest, err := repo.LatestForJob(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.DecisionTranscode, latest.Action)
	assert.Equal(t, "libsvtav1", latest.Encoder)

	missing, err := repo.LatestForJob(ctx, 404)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
