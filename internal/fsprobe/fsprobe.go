// Package fsprobe provides the primitive filesystem queries the scanners use.
// Every query degrades to an empty or absent result instead of an error so a
// single unreadable path never stops a walk.
package fsprobe

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"
)

// TextFile is the content and modification time of a small file.
type TextFile struct {
	Path      string
	Content   string
	LastWrite time.Time
}

// Provider lists directories, reads small text files and stats paths.
type Provider interface {
	// SubDirectories returns child directory names, sorted.
	SubDirectories(path string) []string
	// Files returns child regular-file names, sorted.
	Files(path string) []string
	// ReadText reads path if it is no larger than limit bytes.
	ReadText(path string, limit int64) (TextFile, bool)
	// FileModTime returns the modification time of a file.
	FileModTime(path string) (time.Time, bool)
	// DirModTime returns the modification time of a directory.
	DirModTime(path string) (time.Time, bool)
	// DirExists reports whether path is an existing directory.
	DirExists(path string) bool
}

// OS is a Provider backed by the local filesystem.
type OS struct {
	logger *slog.Logger
}

// NewOS creates an OS provider.
func NewOS(logger *slog.Logger) *OS {
	return &OS{logger: logger.With(slog.String("component", "fsprobe"))}
}

func (o *OS) readDir(path string) []fs.DirEntry {
	entries, err := os.ReadDir(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			o.logger.Debug("path does not exist", "path", path)
		} else {
			o.logger.Warn("listing directory failed", "path", path, "error", err)
		}
		// ReadDir returns the entries read before the error.
		return entries
	}
	return entries
}

// SubDirectories implements Provider.
func (o *OS) SubDirectories(path string) []string {
	var out []string
	for _, e := range o.readDir(path) {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out
}

// Files implements Provider.
func (o *OS) Files(path string) []string {
	var out []string
	for _, e := range o.readDir(path) {
		if e.Type().IsRegular() {
			out = append(out, e.Name())
		}
	}
	return out
}

// ReadText implements Provider.
func (o *OS) ReadText(path string, limit int64) (TextFile, bool) {
	f, err := os.Open(path) //nolint:gosec // G304: paths come from a directory walk of the landing root
	if err != nil {
		o.logger.Warn("opening file failed", "path", path, "error", err)
		return TextFile{}, false
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		o.logger.Warn("stat file failed", "path", path, "error", err)
		return TextFile{}, false
	}
	if info.Size() > limit {
		o.logger.Warn("file too large, skipping", "path", path, "size", info.Size(), "limit", limit)
		return TextFile{}, false
	}

	// The file may grow between Stat and Read.
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		o.logger.Warn("reading file failed", "path", path, "error", err)
		return TextFile{}, false
	}
	if int64(len(data)) > limit {
		o.logger.Warn("file grew past limit while reading, skipping", "path", path, "limit", limit)
		return TextFile{}, false
	}
	return TextFile{Path: path, Content: string(data), LastWrite: info.ModTime()}, true
}

// FileModTime implements Provider.
func (o *OS) FileModTime(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			o.logger.Warn("stat file failed", "path", path, "error", err)
		}
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// DirModTime implements Provider.
func (o *OS) DirModTime(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			o.logger.Warn("stat directory failed", "path", path, "error", err)
		}
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// DirExists implements Provider.
func (o *OS) DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
