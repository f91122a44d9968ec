// Package scanner discovers tenant landing directories under the root path
// and runs the failure, zombie and transcoded scans against them, either
// synchronously for the periodic cycle or queued in the background for
// on-demand triggers.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/michaelswisa/FileExporter/internal/classify"
	"github.com/michaelswisa/FileExporter/internal/config"
	"github.com/michaelswisa/FileExporter/internal/event"
	"github.com/michaelswisa/FileExporter/internal/fsprobe"
	"github.com/michaelswisa/FileExporter/internal/metrics"
	"github.com/michaelswisa/FileExporter/internal/traversal"
)

// snapshotLockTimeout bounds how long a failure scan waits for another
// writer of the same reasons files.
const snapshotLockTimeout = 2 * time.Minute

// Deps are the collaborators of a Manager.
type Deps struct {
	Config      config.ScanConfig
	FS          fsprobe.Provider
	Publisher   *metrics.Publisher
	Instruments *metrics.Instruments
	Bus         *event.Bus
	Clock       classify.Clock
	Logger      *slog.Logger
}

// Manager orchestrates tenant scans.
type Manager struct {
	cfg         config.ScanConfig
	fs          fsprobe.Provider
	engine      *traversal.Engine
	settings    classify.Settings
	publisher   *metrics.Publisher
	instruments *metrics.Instruments
	bus         *event.Bus
	now         classify.Clock
	logger      *slog.Logger

	history *history
	wg      sync.WaitGroup
}

// New creates a scan manager.
func New(d Deps) *Manager {
	now := d.Clock
	if now == nil {
		now = time.Now
	}
	return &Manager{
		cfg: d.Config,
		fs:  d.FS,
		engine: traversal.NewEngine(d.FS, traversal.Options{
			MaxDepth:       d.Config.MaxDepth,
			MaxConcurrent:  d.Config.MaxConcurrentDirectoryScans,
			MaxMatches:     int64(d.Config.MaxFailures),
			GroupedTenants: d.Config.DepthGroupTenants,
		}, d.Logger),
		settings:    SettingsFromConfig(d.Config),
		publisher:   d.Publisher,
		instruments: d.Instruments,
		bus:         d.Bus,
		now:         now,
		logger:      d.Logger.With(slog.String("component", "scanner")),
		history:     newHistory(d.Config.RunHistorySize),
	}
}

// SettingsFromConfig derives the classification settings from scan config.
func SettingsFromConfig(c config.ScanConfig) classify.Settings {
	byTenant := make(map[string]time.Duration, len(c.ZombieThresholdsByTenant))
	for tenant, minutes := range c.ZombieThresholdsByTenant {
		byTenant[tenant] = time.Duration(minutes) * time.Minute
	}
	return classify.Settings{
		RecentWindow:    time.Duration(c.RecentTimeWindowHours) * time.Hour,
		ZombieDefault:   time.Duration(c.ZombieTimeThresholdMinutes) * time.Minute,
		ZombieByTenant:  byTenant,
		ImageExtensions: c.SupportedImageExtensions,
		MaxReasonBytes:  c.MaxReasonFileBytes,
		ProgressEvery:   int64(c.ProgressLogThreshold),
	}
}

// Env returns the environment this manager scans.
func (m *Manager) Env() string { return m.cfg.Env }

// Status returns the retained runs, newest first.
func (m *Manager) Status() []Run { return m.history.snapshot() }

// RunByID returns one retained run.
func (m *Manager) RunByID(id string) (Run, bool) { return m.history.find(id) }

// DiscoverAndScanAll scans every landing directory of the configured env,
// at most MaxParallelTenantScans tenants at a time, and waits for all of
// them. It returns the number of tenants scanned.
func (m *Manager) DiscoverAndScanAll(ctx context.Context) int {
	ctx = context.WithoutCancel(ctx)
	gate := semaphore.NewWeighted(int64(max(1, m.cfg.MaxParallelTenantScans)))
	start := time.Now()

	var (
		wg      sync.WaitGroup
		scanned int
	)
	for _, name := range m.fs.SubDirectories(m.cfg.RootPath) {
		td, ok := ParseDirName(name)
		if !ok {
			m.logger.Debug("skipping directory with unrecognized name", "dir", name)
			continue
		}
		if !strings.EqualFold(td.Env, m.cfg.Env) {
			continue
		}
		if err := gate.Acquire(ctx, 1); err != nil {
			m.logger.Error("acquiring tenant scan slot", "tenant", td.Tenant, "error", err)
			break
		}
		scanned++
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer gate.Release(1)
			res := m.ScanAll(ctx, td.Tenant)
			m.logger.Info("tenant scans finished", "tenant", td.Tenant, "results", res.Messages)
		}()
	}
	wg.Wait()

	if scanned == 0 {
		m.logger.Info("no landing directories found for env", "env", m.cfg.Env, "root", m.cfg.RootPath)
	} else {
		m.logger.Info("discovery scan complete", "tenants", scanned, "duration", time.Since(start).String())
	}
	return scanned
}

// ScanAll runs the four scans of tenant concurrently and waits for them.
func (m *Manager) ScanAll(ctx context.Context, tenant string) ScanAllResult {
	var (
		g   errgroup.Group
		mu  sync.Mutex
		res ScanAllResult
	)
	for _, k := range Kinds {
		g.Go(func() error {
			ok, err := m.scan(ctx, k, tenant)
			mu.Lock()
			res.set(k, ok)
			mu.Unlock()
			if err != nil && !errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%s scan: %w", k, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.logger.Error("tenant scan failed", "tenant", tenant, "error", err)
	}
	res.describe("Completed", "Skipped")
	return res
}

// ScanFailures runs the failure scan of tenant and waits for it.
func (m *Manager) ScanFailures(ctx context.Context, tenant string) (bool, error) {
	return m.scan(ctx, KindFailures, tenant)
}

// ScanZombies runs one zombie scan of tenant and waits for it.
func (m *Manager) ScanZombies(ctx context.Context, tenant string, t classify.ZombieType) (bool, error) {
	return m.scan(ctx, ZombieKind(t), tenant)
}

// ScanTranscoded runs the transcoded scan of tenant and waits for it.
func (m *Manager) ScanTranscoded(ctx context.Context, tenant string) (bool, error) {
	return m.scan(ctx, KindTranscoded, tenant)
}

// QueueFailures validates tenant and starts its failure scan in the background.
func (m *Manager) QueueFailures(ctx context.Context, tenant string) (Run, error) {
	return m.queue(ctx, KindFailures, tenant)
}

// QueueZombies validates tenant and starts one zombie scan in the background.
func (m *Manager) QueueZombies(ctx context.Context, tenant string, t classify.ZombieType) (Run, error) {
	return m.queue(ctx, ZombieKind(t), tenant)
}

// QueueTranscoded validates tenant and starts its transcoded scan in the background.
func (m *Manager) QueueTranscoded(ctx context.Context, tenant string) (Run, error) {
	return m.queue(ctx, KindTranscoded, tenant)
}

// QueueAll queues every scan whose directory exists. It returns
// ErrNotFound when none could be queued.
func (m *Manager) QueueAll(ctx context.Context, tenant string) (ScanAllResult, error) {
	var res ScanAllResult
	for _, k := range Kinds {
		run, err := m.queue(ctx, k, tenant)
		if err != nil {
			continue
		}
		res.set(k, true)
		res.Runs = append(res.Runs, run)
	}
	res.describe("Queued", "Skipped (directory not found)")
	if !res.Any() {
		return res, fmt.Errorf("no scannable directories for %q: %w", tenant, ErrNotFound)
	}
	return res, nil
}

// Wait blocks until every background scan has finished or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe queues a full scan whenever the watcher reports a new landing
// directory for this manager's env.
func (m *Manager) Subscribe(bus *event.Bus) {
	bus.Subscribe(event.TenantDirCreated, func(e event.Event) {
		if !strings.EqualFold(e.Env, m.cfg.Env) {
			return
		}
		res, err := m.QueueAll(context.Background(), e.Tenant)
		if err != nil {
			m.logger.Warn("new landing directory not scannable", "dir", e.DirName, "error", err)
			return
		}
		m.logger.Info("queued scans for new landing directory", "dir", e.DirName, "results", res.Messages)
	})
}

func (m *Manager) scan(ctx context.Context, kind Kind, tenant string) (bool, error) {
	t, err := m.resolve(kind, tenant)
	if err != nil {
		m.instruments.Observe(string(kind), metrics.StatusSkipped, 0)
		return false, err
	}
	run := m.history.start(kind, t, TriggerScheduled, StatusRunning, m.now())
	if err := m.execute(ctx, kind, t, run); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) queue(ctx context.Context, kind Kind, tenant string) (Run, error) {
	t, err := m.resolve(kind, tenant)
	if err != nil {
		return Run{}, err
	}
	run := m.history.start(kind, t, TriggerOnDemand, StatusQueued, m.now())
	queued := m.history.update(run, func(*Run) {})

	bg := context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("background scan panicked", "kind", kind, "tenant", t.dir.Tenant, "panic", r)
			}
		}()
		if err := m.execute(bg, kind, t, run); err != nil {
			m.logger.Error("background scan failed", "kind", kind, "tenant", t.dir.Tenant, "error", err)
		}
	}()
	return queued, nil
}

// execute runs one resolved scan, publishes its metrics and finalizes run.
// A scan that fails as a whole publishes nothing.
func (m *Manager) execute(ctx context.Context, kind Kind, t target, run *Run) error {
	started := time.Now()
	m.history.update(run, func(r *Run) { r.Status = StatusRunning })
	logger := m.logger.With(slog.String("kind", string(kind)), slog.String("tenant", t.dir.Tenant), slog.String("run_id", run.ID))
	logger.Info("scan started", "path", t.scanPath)

	counts, err := m.collect(ctx, kind, t)
	if err == nil && m.publisher != nil {
		lc := metrics.LabelContext{
			Category:   kind.category(),
			RootDir:    t.rootDir,
			ScanPath:   t.scanPath,
			Tenant:     DisplayName(t.dir.Tenant),
			Env:        t.dir.Env,
			Grouped:    m.engine.Grouped(t.dir.Tenant),
			ZombieType: string(kind.zombieType()),
		}
		if perr := m.publisher.Publish(counts, lc); perr != nil {
			logger.Warn("some metrics were not published", "error", perr)
		}
	}

	elapsed := time.Since(started)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
	}
	final := m.history.update(run, func(r *Run) {
		done := m.now().UTC()
		r.CompletedAt = &done
		r.Status = status
		r.Total = counts.Total
		r.Recent = counts.Recent
		if err != nil {
			r.Error = err.Error()
		}
	})
	m.instruments.Observe(string(kind), status, elapsed)

	if err != nil {
		logger.Error("scan abandoned", "error", err, "duration", elapsed.String())
	} else {
		logger.Info("scan completed", "total", counts.Total, "recent", counts.Recent, "duration", elapsed.String())
	}

	if m.bus != nil {
		m.bus.Publish(event.Event{
			Type:    event.ScanCompleted,
			DirName: t.dir.DirName,
			Tenant:  t.dir.Tenant,
			Env:     t.dir.Env,
			Data: map[string]any{
				"run_id": final.ID,
				"kind":   string(kind),
				"status": final.Status,
				"total":  final.Total,
				"recent": final.Recent,
			},
		})
	}
	return err
}

// collect runs the classifier for kind over the target and returns its counts.
func (m *Manager) collect(ctx context.Context, kind Kind, t target) (traversal.Counts, error) {
	tenant := DisplayName(t.dir.Tenant)

	switch kind {
	case KindFailures:
		lockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotLockTimeout)
		snap, err := classify.OpenSnapshot(lockCtx, t.scanPath)
		cancel()
		if err != nil {
			return traversal.Counts{}, fmt.Errorf("opening reasons snapshot: %w", err)
		}
		f := classify.NewFailure(m.fs, m.settings, m.now, tenant, snap, m.logger)
		report := m.engine.Traverse(ctx, t.scanPath, tenant, f.Classify)
		if err := snap.Commit(); err != nil {
			return traversal.Counts{}, fmt.Errorf("writing reasons snapshot: %w", err)
		}
		return report.Snapshot(), nil

	case KindTranscoded:
		tc := classify.NewTranscoded(m.fs, m.settings, m.now, tenant, m.logger)
		return tc.Count(ctx, t.scanPath).Snapshot(), nil

	default:
		z := classify.NewZombie(kind.zombieType(), m.fs, m.settings, m.now, tenant, m.logger)
		return m.engine.Traverse(ctx, t.scanPath, tenant, z.Classify).Snapshot(), nil
	}
}
