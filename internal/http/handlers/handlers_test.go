package handlers

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/alchemist-av/alchemist/internal/engine"
	"github.com/alchemist-av/alchemist/internal/models"
	"github.com/alchemist-av/alchemist/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupDB opens an in-memory database with the full schema.
func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Job{},
		&models.Decision{},
		&models.EncodeStat{},
		&models.Settings{},
		&models.ScheduleWindow{},
		&models.WatchDir{},
		&models.NotificationTarget{},
	))
	return db
}

// fakeEngine records control calls so handler tests can assert wiring
// without a real worker pool.
type fakeEngine struct {
	status      engine.Status
	statusErr   error
	paused      bool
	resumed     bool
	concurrency int
	cancelErr   error
	cancelled   []int64
	enqueued    int
	scanErr     error
	scanPaths   []string
	watched     []string
	watchErr    error
}

func (f *fakeEngine) Status(ctx context.Context) (*engine.Status, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	status := f.status
	return &status, nil
}

func (f *fakeEngine) Pause()  { f.paused = true }
func (f *fakeEngine) Resume() { f.resumed = true }

func (f *fakeEngine) SetConcurrency(n int) error {
	f.concurrency = n
	return nil
}

func (f *fakeEngine) Cancel(ctx context.Context, id int64) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeEngine) ScanAndEnqueue(ctx context.Context, roots []string, trigger string) (int, error) {
	f.scanPaths = roots
	if f.scanErr != nil {
		return 0, f.scanErr
	}
	return f.enqueued, nil
}

func (f *fakeEngine) WatchPath(root string) error {
	if f.watchErr != nil {
		return f.watchErr
	}
	f.watched = append(f.watched, root)
	return nil
}

// assertStatus requires err to be an HTTP problem with the given status.
func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, status, se.GetStatus(), "unexpected problem status: %v", err)
}

// seedJob enqueues a queued job through the repository.
func seedJob(t *testing.T, jobs repository.JobRepository, path string) *models.Job {
	t.Helper()
	job, enqueued, err := jobs.Upsert(context.Background(), path, path+".out.mkv", "1000-1", 0)
	require.NoError(t, err)
	require.True(t, enqueued)
	return job
}
