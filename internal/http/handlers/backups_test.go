package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/alchemist-av/alchemist/internal/backup"
	"github.com/alchemist-av/alchemist/internal/config"
)

func TestBackupsHandler_CreateAndList(t *testing.T) {
	manager := backup.New(setupDB(t), config.BackupConfig{
		Directory:   t.TempDir(),
		Compression: "xz",
	}).WithLogger(testLogger())
	h := NewBackupsHandler(manager)
	ctx := context.Background()

	created, err := h.Create(ctx, nil)
	require.NoError(t, err)
	assert.Regexp(t, `^alchemist-\d{8}T\d{6}\.db\.xz$`, created.Body.Filename)
	assert.Positive(t, created.Body.SizeBytes)

	list, err := h.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, list.Body.Backups, 1)
	assert.Equal(t, created.Body.Filename, list.Body.Backups[0].Filename)
}

func TestBackupsHandler_Create_NonSQLite(t *testing.T) {
	// Dial-less open: the driver is what matters, not a live server.
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=127.0.0.1 port=1 dbname=none",
	}), &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	manager := backup.New(db, config.BackupConfig{
		Directory:   t.TempDir(),
		Compression: "xz",
	}).WithLogger(testLogger())
	h := NewBackupsHandler(manager)

	_, err = h.Create(context.Background(), nil)
	assertStatus(t, err, http.StatusBadRequest)
}
