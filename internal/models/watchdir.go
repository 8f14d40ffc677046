package models

import "time"

// WatchDir is a library root registered at runtime, scanned alongside the
// roots from static config and (when watching is enabled) monitored for new
// files.
type WatchDir struct {
	ID        int64     `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Path    string `gorm:"uniqueIndex;not null;size:4096" json:"path"`
	Enabled bool   `json:"enabled"`
}

// TableName overrides the GORM table name.
func (WatchDir) TableName() string {
	return "watch_dirs"
}

// Validate checks the path is present and absolute-ish.
func (w *WatchDir) Validate() error {
	if w.Path == "" {
		return ErrValidation{Field: "path", Message: "is required"}
	}
	return nil
}
