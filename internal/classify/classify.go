// Package classify decides whether a landing directory is a failure, a
// zombie, or a populated transcoded folder, and records matches into a
// traversal.Report.
package classify

import (
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/michaelswisa/FileExporter/internal/fsprobe"
)

const (
	failMarker     = "fail"
	observedMarker = "observed"
)

// Clock returns the current time.
type Clock func() time.Time

// Settings are the classification knobs shared by every category.
type Settings struct {
	// RecentWindow is how far back a match still counts as recent.
	RecentWindow time.Duration
	// ZombieDefault is the zombie age threshold for tenants without an override.
	ZombieDefault time.Duration
	// ZombieByTenant overrides ZombieDefault, keyed case-insensitively.
	ZombieByTenant map[string]time.Duration
	// ImageExtensions are the extensions, with or without a leading dot,
	// recognized as a failure's representative image.
	ImageExtensions []string
	// MaxReasonBytes is the largest failure file that is read.
	MaxReasonBytes int64
	// ProgressEvery logs progress after this many matches. Zero disables.
	ProgressEvery int64
}

// ZombieThreshold returns the zombie age threshold for tenant.
func (s Settings) ZombieThreshold(tenant string) time.Duration {
	for name, d := range s.ZombieByTenant {
		if strings.EqualFold(name, tenant) {
			return d
		}
	}
	return s.ZombieDefault
}

func (s Settings) isImage(name string) bool {
	ext := filepath.Ext(name)
	if ext == "" {
		return false
	}
	for _, want := range s.ImageExtensions {
		if !strings.HasPrefix(want, ".") {
			want = "." + want
		}
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

// FailureMatch is a directory holding a failure marker file.
type FailureMatch struct {
	Path      string
	Reason    string
	Image     string
	LastWrite time.Time
}

// ZombieType distinguishes the two zombie rules.
type ZombieType string

// Zombie types, also used as the zombie_type metric label.
const (
	Observed    ZombieType = "Observed"
	NonObserved ZombieType = "Non_Observed"
)

// ZombieMatch is a directory stuck longer than its tenant's threshold.
type ZombieMatch struct {
	Path       string
	Type       ZombieType
	LastWrite  time.Time
	AgeMinutes float64
}

// TranscodedMatch is a transcoded output folder holding at least one file.
type TranscodedMatch struct {
	Path      string
	LastWrite time.Time
}

// base carries what every classifier needs.
type base struct {
	fs       fsprobe.Provider
	settings Settings
	now      Clock
	tenant   string
	logger   *slog.Logger
}

func newBase(fs fsprobe.Provider, settings Settings, now Clock, tenant string, logger *slog.Logger, category string) base {
	if now == nil {
		now = time.Now
	}
	return base{
		fs:       fs,
		settings: settings,
		now:      now,
		tenant:   tenant,
		logger:   logger.With(slog.String("component", "classify"), slog.String("category", category), slog.String("tenant", tenant)),
	}
}

func (b base) isRecent(t time.Time) bool {
	return !t.Before(b.now().Add(-b.settings.RecentWindow))
}

func (b base) progress(total int64) {
	if b.settings.ProgressEvery > 0 && total%b.settings.ProgressEvery == 0 {
		b.logger.Info("scan in progress", "matches", total)
	}
}

func containsFold(name, marker string) bool {
	return strings.Contains(strings.ToLower(name), marker)
}
