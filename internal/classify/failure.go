package classify

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/michaelswisa/FileExporter/internal/fsprobe"
	"github.com/michaelswisa/FileExporter/internal/traversal"
)

// Failure classifies directories holding a "fail" marker file and streams
// every match into a reasons Snapshot.
type Failure struct {
	base
	snapshot *Snapshot
}

// NewFailure creates a failure classifier for one tenant scan. snapshot may
// be nil when no reasons files are wanted.
func NewFailure(fs fsprobe.Provider, settings Settings, now Clock, tenant string, snapshot *Snapshot, logger *slog.Logger) *Failure {
	return &Failure{
		base:     newBase(fs, settings, now, tenant, logger, "failures"),
		snapshot: snapshot,
	}
}

// Evaluate reports whether path is a failure. The first file whose name
// contains "fail" is read as the reason; an unreadable or oversized file is
// not a match.
func (f *Failure) Evaluate(path string) (FailureMatch, bool) {
	files := f.fs.Files(path)

	var marker string
	for _, name := range files {
		if containsFold(name, failMarker) {
			marker = name
			break
		}
	}
	if marker == "" {
		return FailureMatch{}, false
	}

	text, ok := f.fs.ReadText(filepath.Join(path, marker), f.settings.MaxReasonBytes)
	if !ok {
		return FailureMatch{}, false
	}

	m := FailureMatch{
		Path:      path,
		Reason:    text.Content,
		LastWrite: text.LastWrite,
	}
	for _, name := range files {
		if f.settings.isImage(name) {
			m.Image = filepath.Join(path, name)
			break
		}
	}
	return m, true
}

// Classify implements traversal.ClassifyFunc.
func (f *Failure) Classify(_ context.Context, path string, groups []string, report *traversal.Report) error {
	m, ok := f.Evaluate(path)
	if !ok {
		return nil
	}
	recent := f.isRecent(m.LastWrite)
	f.logger.Debug("failure found", "path", m.Path, "last_write", m.LastWrite, "recent", recent)

	f.progress(report.AddMatch(path, groups, recent))

	if f.snapshot != nil {
		if err := f.snapshot.Add(m, recent); err != nil {
			return fmt.Errorf("recording reason for %s: %w", path, err)
		}
	}
	return nil
}
