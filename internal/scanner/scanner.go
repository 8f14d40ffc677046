// Package scanner discovers candidate media files under the library roots.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// mediaExtensions are the container types eligible for transcoding, keyed
// without the leading dot.
var mediaExtensions = map[string]struct{}{
	"mp4": {},
	"mkv": {},
	"mov": {},
	"avi": {},
	"m4v": {},
}

// ScannedFile is one discovered candidate.
type ScannedFile struct {
	Path      string
	Size      int64
	MtimeHash string
}

// Scanner walks library directories for media files.
type Scanner struct {
	log *slog.Logger
}

// New creates a scanner.
func New(log *slog.Logger) *Scanner {
	return &Scanner{log: log.With("component", "scanner")}
}

// Scan walks roots recursively and returns the candidates sorted by path.
// Hidden directories are skipped, as are files whose stem already carries
// outputSuffix: those are this engine's own outputs and must never be
// re-encoded. Overlapping roots dedupe by path. Missing or unreadable roots
// log a warning instead of failing the scan.
func (s *Scanner) Scan(ctx context.Context, roots []string, outputSuffix string) ([]ScannedFile, error) {
	seen := make(map[string]ScannedFile)

	for _, root := range roots {
		s.log.Info("scanning directory", "path", root)
		if err := s.walkRoot(ctx, root, outputSuffix, seen); err != nil {
			return nil, err
		}
	}

	files := make([]ScannedFile, 0, len(seen))
	for _, f := range seen {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	s.log.Info("scan complete", "roots", len(roots), "candidates", len(files))
	return files, nil
}

func (s *Scanner) walkRoot(ctx context.Context, root, outputSuffix string, seen map[string]ScannedFile) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.log.Warn("scan skipping entry", "path", path, "error", err)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if !IsMediaFile(path) || IsOwnOutput(path, outputSuffix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			s.log.Warn("scan skipping file", "path", path, "error", err)
			return nil
		}

		s.log.Debug("found media file", "path", path)
		seen[path] = ScannedFile{
			Path:      path,
			Size:      info.Size(),
			MtimeHash: MtimeHash(info.ModTime(), info.Size()),
		}
		return nil
	})
}

// IsMediaFile reports whether path has a recognized media extension.
func IsMediaFile(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	_, ok := mediaExtensions[ext]
	return ok
}

// IsOwnOutput reports whether path was produced by this engine, detected by
// the output suffix at the end of the file stem.
func IsOwnOutput(path, outputSuffix string) bool {
	if outputSuffix == "" {
		return false
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.HasSuffix(stem, outputSuffix)
}

// OutputPath derives the encode destination for input: same directory, stem
// plus suffix, configured container extension.
func OutputPath(input, suffix, extension string) string {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(filepath.Dir(input), stem+suffix+"."+extension)
}

// MtimeHash fingerprints one version of a file. A rescan that sees a
// different hash requeues the job.
func MtimeHash(mtime time.Time, size int64) string {
	return fmt.Sprintf("%d-%d", mtime.UnixNano(), size)
}
