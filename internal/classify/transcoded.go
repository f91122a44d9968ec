package classify

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/michaelswisa/FileExporter/internal/fsprobe"
	"github.com/michaelswisa/FileExporter/internal/traversal"
)

// Transcoded counts the immediate children of a transcoded root that hold
// at least one file. It does not walk deeper and does not group.
type Transcoded struct {
	base
}

// NewTranscoded creates a transcoded counter for one tenant.
func NewTranscoded(fs fsprobe.Provider, settings Settings, now Clock, tenant string, logger *slog.Logger) *Transcoded {
	return &Transcoded{base: newBase(fs, settings, now, tenant, logger, "transcoded")}
}

// Evaluate reports whether the folder at path holds a file, using the first
// file's modification time.
func (t *Transcoded) Evaluate(path string) (TranscodedMatch, bool) {
	files := t.fs.Files(path)
	if len(files) == 0 {
		return TranscodedMatch{}, false
	}
	lastWrite, ok := t.fs.FileModTime(filepath.Join(path, files[0]))
	if !ok {
		return TranscodedMatch{}, false
	}
	return TranscodedMatch{Path: path, LastWrite: lastWrite}, true
}

// Count evaluates every child of root. A missing root yields an empty report.
func (t *Transcoded) Count(_ context.Context, root string) *traversal.Report {
	report := traversal.NewReport()
	if !t.fs.DirExists(root) {
		t.logger.Warn("transcoded root does not exist, skipping", "path", root)
		return report
	}
	for _, name := range t.fs.SubDirectories(root) {
		m, ok := t.Evaluate(filepath.Join(root, name))
		if !ok {
			continue
		}
		t.progress(report.AddMatch(m.Path, nil, t.isRecent(m.LastWrite)))
	}
	return report
}
