package classify

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/michaelswisa/FileExporter/internal/fsprobe"
	"github.com/michaelswisa/FileExporter/internal/traversal"
)

// Zombie classifies directories stuck longer than the tenant's threshold.
// The Observed rule ages the single "observed" marker file; the
// NonObserved rule ages a marker-free leaf directory itself.
type Zombie struct {
	base
	kind ZombieType
}

// NewZombie creates a zombie classifier of the given kind for one tenant.
func NewZombie(kind ZombieType, fs fsprobe.Provider, settings Settings, now Clock, tenant string, logger *slog.Logger) *Zombie {
	return &Zombie{
		base: newBase(fs, settings, now, tenant, logger, "zombies_"+string(kind)),
		kind: kind,
	}
}

// Evaluate reports whether path is a zombie of this classifier's kind.
func (z *Zombie) Evaluate(path string) (ZombieMatch, bool) {
	var (
		lastWrite time.Time
		ok        bool
	)
	switch z.kind {
	case Observed:
		lastWrite, ok = z.observedAge(path)
	case NonObserved:
		lastWrite, ok = z.nonObservedAge(path)
	}
	if !ok {
		return ZombieMatch{}, false
	}

	age := z.now().Sub(lastWrite)
	threshold := z.settings.ZombieThreshold(z.tenant)
	if age <= threshold {
		z.logger.Debug("potential zombie too recent",
			"path", path, "age_minutes", age.Minutes(), "threshold_minutes", threshold.Minutes())
		return ZombieMatch{}, false
	}
	return ZombieMatch{Path: path, Type: z.kind, LastWrite: lastWrite, AgeMinutes: age.Minutes()}, true
}

// observedAge applies the Observed rule: no "fail" file and exactly one
// "observed" file, aged by that file's modification time.
func (z *Zombie) observedAge(path string) (time.Time, bool) {
	var observed []string
	for _, name := range z.fs.Files(path) {
		if containsFold(name, failMarker) {
			return time.Time{}, false
		}
		if containsFold(name, observedMarker) {
			observed = append(observed, name)
		}
	}
	if len(observed) != 1 {
		return time.Time{}, false
	}
	return z.fs.FileModTime(filepath.Join(path, observed[0]))
}

// nonObservedAge applies the NonObserved rule: a leaf directory with at
// least one file and no "fail" or "observed" file, aged by the directory's
// own modification time.
func (z *Zombie) nonObservedAge(path string) (time.Time, bool) {
	if len(z.fs.SubDirectories(path)) > 0 {
		return time.Time{}, false
	}
	files := z.fs.Files(path)
	if len(files) == 0 {
		return time.Time{}, false
	}
	for _, name := range files {
		if containsFold(name, failMarker) || containsFold(name, observedMarker) {
			return time.Time{}, false
		}
	}
	return z.fs.DirModTime(path)
}

// Classify implements traversal.ClassifyFunc.
func (z *Zombie) Classify(_ context.Context, path string, groups []string, report *traversal.Report) error {
	m, ok := z.Evaluate(path)
	if !ok {
		return nil
	}
	recent := z.isRecent(m.LastWrite)
	z.logger.Debug("zombie found", "path", m.Path, "age_minutes", m.AgeMinutes, "recent", recent)
	z.progress(report.AddMatch(path, groups, recent))
	return nil
}
