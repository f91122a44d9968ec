package metrics

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/michaelswisa/FileExporter/internal/traversal"
)

// Category names a scan category as it appears in metric family names.
type Category string

// Scan categories.
const (
	Failures   Category = "failures"
	Zombies    Category = "zombies"
	Transcoded Category = "transcoded_folders"
)

// TotalFamily returns the total_<category> family name.
func (c Category) TotalFamily() string { return "total_" + string(c) }

// GroupFamily returns the n_<category>_in_group_folder family name, or ""
// for categories that are never grouped.
func (c Category) GroupFamily() string {
	if c == Transcoded {
		return ""
	}
	return "n_" + string(c) + "_in_group_folder"
}

// LabelContext carries everything Publish needs besides the counts.
type LabelContext struct {
	Category Category
	// RootDir is the root_dir label; group folders are reported relative to it.
	RootDir string
	// ScanPath is the directory the traversal started from.
	ScanPath string
	Tenant   string
	Env      string
	Grouped  bool
	// ZombieType is set only for the zombies category.
	ZombieType string
}

// scanKind distinguishes the two zombie rules, which share families but
// must not sweep each other's series.
func (lc LabelContext) scanKind() string {
	if lc.ZombieType != "" {
		return lc.ZombieType
	}
	return string(lc.Category)
}

// ScanKey returns the stale-series key for one recency flavour of a scan.
func (lc LabelContext) ScanKey(recent bool) string {
	return lc.Tenant + "_" + lc.scanKind() + "_" + strconv.FormatBool(recent)
}

// Publisher turns traversal counts into gauge series and retracts the
// series the previous cycle published that this one did not.
type Publisher struct {
	sink   Sink
	store  *SeriesStore
	logger *slog.Logger
}

// NewPublisher creates a publisher writing to sink and tracking series in store.
func NewPublisher(sink Sink, store *SeriesStore, logger *slog.Logger) *Publisher {
	return &Publisher{
		sink:   sink,
		store:  store,
		logger: logger.With(slog.String("component", "metrics")),
	}
}

// Publish emits the total and, for grouped tenants, per-group gauges for
// both recency flavours of counts. Sink errors are logged and joined into
// the returned error; the remaining series are still published.
func (p *Publisher) Publish(counts traversal.Counts, lc LabelContext) error {
	var errs []error
	for _, recent := range []bool{false, true} {
		errs = append(errs, p.publishFlavour(counts, lc, recent)...)
	}
	return errors.Join(errs...)
}

func (p *Publisher) publishFlavour(counts traversal.Counts, lc LabelContext, recent bool) []error {
	var (
		errs    []error
		current []Series
	)
	isRecent := strconv.FormatBool(recent)

	total, groups := counts.Total, counts.GroupsAll
	if recent {
		total, groups = counts.Recent, counts.GroupsRecent
	}

	names, values := lc.labels(nil, isRecent)
	totalFamily := lc.Category.TotalFamily()
	if err := p.sink.SetGauge(totalFamily, totalHelp(lc.Category), names, values, float64(total)); err != nil {
		errs = append(errs, err)
	} else {
		current = append(current, Series{Family: totalFamily, Values: values})
	}

	if groupFamily := lc.Category.GroupFamily(); lc.Grouped && groupFamily != "" {
		for group, n := range groups {
			if n <= 0 || strings.EqualFold(filepath.Clean(group), filepath.Clean(lc.ScanPath)) {
				continue
			}
			folder := groupFolder(lc.RootDir, group)
			gNames, gValues := lc.labels(&folder, isRecent)
			if err := p.sink.SetGauge(groupFamily, groupHelp(lc.Category), gNames, gValues, float64(n)); err != nil {
				errs = append(errs, err)
				continue
			}
			current = append(current, Series{Family: groupFamily, Values: gValues})
		}
	}

	key := lc.ScanKey(recent)
	for _, s := range p.store.Replace(key, current) {
		if err := p.sink.RemoveSeries(s.Family, s.Values); err != nil {
			errs = append(errs, err)
			continue
		}
		p.logger.Debug("removed stale series", "family", s.Family, "labels", s.Values, "scan_key", key)
	}

	for _, err := range errs {
		p.logger.Error("publishing metric", "scan_key", key, "error", err)
	}
	return errs
}

// labels builds the label names and values in family order. group is nil
// for total families.
func (lc LabelContext) labels(group *string, isRecent string) ([]string, []string) {
	names := []string{"root_dir", "tenant", "env"}
	values := []string{lc.RootDir, lc.Tenant, lc.Env}
	if group != nil {
		names = append(names, "group_folder")
		values = append(values, *group)
	}
	names = append(names, "is_recent")
	values = append(values, isRecent)
	if lc.ZombieType != "" {
		names = append(names, "zombie_type")
		values = append(values, lc.ZombieType)
	}
	return names, values
}

func groupFolder(rootDir, group string) string {
	rel, err := filepath.Rel(rootDir, group)
	if err != nil {
		rel = group
	}
	return filepath.ToSlash(rel)
}

func totalHelp(c Category) string {
	switch c {
	case Failures:
		return "Number of failed items under the tenant failure directory."
	case Zombies:
		return "Number of items stuck in the tenant landing directory."
	default:
		return "Number of transcoded output folders holding at least one file."
	}
}

func groupHelp(c Category) string {
	if c == Failures {
		return "Number of failed items per group folder."
	}
	return "Number of stuck items per group folder."
}
