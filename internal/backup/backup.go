// Package backup creates online snapshots of the SQLite database and manages
// their retention. Snapshots are taken with VACUUM INTO so writers are never
// blocked, compressed, and published atomically.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/google/renameio/v2"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/ulikunitz/xz"
	"gorm.io/gorm"

	"github.com/alchemist-av/alchemist/internal/config"
	"github.com/alchemist-av/alchemist/pkg/format"
)

// ErrNotSQLite is returned when a snapshot is requested while running on a
// different database driver.
var ErrNotSQLite = errors.New("backups require the sqlite driver")

// snapshotRe matches published snapshot filenames.
var snapshotRe = regexp.MustCompile(`^alchemist-(\d{8}T\d{6})\.db\.(xz|bz2)$`)

const timestampLayout = "20060102T150405"

// Snapshot describes one published backup file.
type Snapshot struct {
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager creates, lists and prunes database snapshots.
type Manager struct {
	db     *gorm.DB
	cfg    config.BackupConfig
	logger *slog.Logger
}

// New creates a backup manager.
func New(db *gorm.DB, cfg config.BackupConfig) *Manager {
	return &Manager{
		db:     db,
		cfg:    cfg,
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (m *Manager) WithLogger(logger *slog.Logger) *Manager {
	m.logger = logger.With("component", "backup")
	return m
}

// Dir returns the snapshot directory.
func (m *Manager) Dir() string {
	return m.cfg.Directory
}

// Create takes a consistent snapshot of the live database and publishes it
// as alchemist-<timestamp>.db.xz (or .bz2) in the backup directory.
func (m *Manager) Create(ctx context.Context) (*Snapshot, error) {
	if m.db.Dialector.Name() != "sqlite" {
		return nil, ErrNotSQLite
	}

	if err := os.MkdirAll(m.cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}
	if err := m.checkFreeSpace(ctx); err != nil {
		return nil, err
	}

	ext := "xz"
	if m.cfg.Compression == "bzip2" {
		ext = "bz2"
	}

	now := time.Now().UTC()
	base := "alchemist-" + now.Format(timestampLayout)
	rawPath := filepath.Join(m.cfg.Directory, base+".db")
	outPath := filepath.Join(m.cfg.Directory, base+".db."+ext)

	if _, err := os.Stat(outPath); err == nil {
		return nil, fmt.Errorf("snapshot already exists: %s", filepath.Base(outPath))
	}

	// VACUUM INTO writes a defragmented, transactionally consistent copy
	// without blocking concurrent writers.
	if err := m.db.WithContext(ctx).Exec("VACUUM INTO ?", rawPath).Error; err != nil {
		return nil, fmt.Errorf("vacuum into snapshot: %w", err)
	}
	defer os.Remove(rawPath)

	if err := m.compress(rawPath, outPath); err != nil {
		return nil, fmt.Errorf("compressing snapshot: %w", err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}

	snap := &Snapshot{
		Filename:  info.Name(),
		SizeBytes: info.Size(),
		CreatedAt: now.Truncate(time.Second),
	}
	m.logger.Info("snapshot created",
		"filename", snap.Filename,
		"size_bytes", snap.SizeBytes,
	)

	if m.cfg.Retention > 0 {
		if _, err := m.Prune(ctx, m.cfg.Retention); err != nil {
			m.logger.Warn("pruning old snapshots", "error", err)
		}
	}
	return snap, nil
}

// List returns the published snapshots, newest first. Files that do not look
// like snapshots are ignored.
func (m *Manager) List(ctx context.Context) ([]*Snapshot, error) {
	entries, err := os.ReadDir(m.cfg.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Snapshot{}, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	snaps := make([]*Snapshot, 0, len(entries))
	for _, entry := range entries {
		match := snapshotRe.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		created, err := time.Parse(timestampLayout, match[1])
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			m.logger.Warn("stat snapshot", "filename", entry.Name(), "error", err)
			continue
		}
		snaps = append(snaps, &Snapshot{
			Filename:  entry.Name(),
			SizeBytes: info.Size(),
			CreatedAt: created,
		})
	}

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})
	return snaps, nil
}

// Prune deletes snapshots beyond the newest keep. It returns the number
// removed; individual delete failures are logged and skipped.
func (m *Manager) Prune(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	snaps, err := m.List(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for i := keep; i < len(snaps); i++ {
		path := filepath.Join(m.cfg.Directory, snaps[i].Filename)
		if err := os.Remove(path); err != nil {
			m.logger.Warn("removing old snapshot", "filename", snaps[i].Filename, "error", err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		m.logger.Info("pruned old snapshots", "deleted", deleted, "kept", keep)
	}
	return deleted, nil
}

// checkFreeSpace refuses snapshot creation when the backup volume is below
// the configured floor. An unreadable volume only logs; the floor check is
// best effort.
func (m *Manager) checkFreeSpace(ctx context.Context) error {
	floor := m.cfg.MinFreeSpace.Bytes()
	if floor <= 0 {
		return nil
	}

	usage, err := disk.UsageWithContext(ctx, m.cfg.Directory)
	if err != nil {
		m.logger.Warn("unable to check free space", "dir", m.cfg.Directory, "error", err)
		return nil
	}
	if usage.Free < uint64(floor) {
		return fmt.Errorf("insufficient free space for snapshot: %s available, %s required",
			format.Bytes(int64(usage.Free)), format.Bytes(floor))
	}
	return nil
}

// compress writes src through the configured codec into dst. The pending
// file machinery guarantees dst appears fully written or not at all.
func (m *Manager) compress(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	pending, err := renameio.NewPendingFile(dst)
	if err != nil {
		return err
	}
	defer pending.Cleanup()

	var w io.WriteCloser
	if strings.HasSuffix(dst, ".bz2") {
		w, err = bzip2.NewWriter(pending, nil)
	} else {
		w, err = xz.NewWriter(pending)
	}
	if err != nil {
		return err
	}

	if _, err := io.Copy(w, srcFile); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return pending.CloseAtomicallyReplace()
}
