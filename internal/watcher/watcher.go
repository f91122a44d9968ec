// Package watcher watches the landing root for tenant directories being
// created or removed and publishes them on the event bus.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/michaelswisa/FileExporter/internal/event"
	"github.com/michaelswisa/FileExporter/internal/scanner"
)

// Options configure a watcher Service.
type Options struct {
	// Root is the landing root path whose direct children are watched.
	Root string
	// Env restricts events to landing directories of this environment.
	Env string
	// Debounce delays TenantDirCreated until a new directory has settled.
	Debounce time.Duration
	// PollInterval is used when fsnotify does not deliver events for Root.
	PollInterval time.Duration
	// ProbeTimeout bounds the startup fsnotify probe.
	ProbeTimeout time.Duration
	// ForcePoll skips fsnotify entirely.
	ForcePoll bool
}

// Service watches Root and publishes tenant directory events.
type Service struct {
	opts   Options
	bus    *event.Bus
	logger *slog.Logger

	mu      sync.Mutex
	known   map[string]scanner.TenantDir // current landing dirs by name
	pending map[string]scanner.TenantDir // created, waiting for debounce
	polling bool

	ready     chan struct{}
	readyOnce sync.Once
}

// NewService creates a watcher service.
func NewService(opts Options, bus *event.Bus, logger *slog.Logger) *Service {
	if opts.Debounce <= 0 {
		opts.Debounce = time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Minute
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 2 * time.Second
	}
	opts.Root = filepath.Clean(opts.Root)
	return &Service{
		opts:    opts,
		bus:     bus,
		logger:  logger.With("component", "fs-watcher"),
		known:   make(map[string]scanner.TenantDir),
		pending: make(map[string]scanner.TenantDir),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the service has taken its initial snapshot and is
// receiving changes.
func (s *Service) Ready() <-chan struct{} { return s.ready }

// Polling reports whether the service fell back to polling.
func (s *Service) Polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polling
}

// Start blocks until ctx is canceled. fsnotify is used when a startup probe
// shows it delivers events for Root; otherwise Root is polled.
func (s *Service) Start(ctx context.Context) {
	defer s.readyOnce.Do(func() { close(s.ready) })

	info, err := os.Stat(s.opts.Root)
	if err != nil || !info.IsDir() {
		s.logger.Error("landing root not watchable", "path", s.opts.Root, "error", err)
		return
	}

	var w *fsnotify.Watcher
	usable := false
	if !s.opts.ForcePoll {
		latency, perr := ProbeFSNotify(ctx, s.opts.Root, s.opts.ProbeTimeout)
		if perr != nil {
			s.logger.Warn("fsnotify probe failed, polling instead", "path", s.opts.Root, "error", perr)
		} else {
			s.logger.Debug("fsnotify probe succeeded", "path", s.opts.Root, "latency", latency)
			usable = true
		}
	}
	if usable {
		w, err = fsnotify.NewWatcher()
		if err == nil {
			if err = w.Add(s.opts.Root); err != nil {
				_ = w.Close()
				w = nil
			}
		}
		if err != nil {
			s.logger.Warn("fsnotify unavailable, polling instead", "error", err)
		}
	}
	if w != nil {
		defer w.Close() //nolint:errcheck
	}

	known := s.snapshot()
	if known == nil {
		known = make(map[string]scanner.TenantDir)
	}
	s.mu.Lock()
	s.known = known
	s.polling = w == nil
	s.mu.Unlock()

	// nil channels never receive.
	var (
		eventCh <-chan fsnotify.Event
		errCh   <-chan error
		pollCh  <-chan time.Time
	)
	if w != nil {
		eventCh = w.Events
		errCh = w.Errors
	} else {
		pollTicker := time.NewTicker(s.opts.PollInterval)
		defer pollTicker.Stop()
		pollCh = pollTicker.C
	}

	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	resetDebounce := func() {
		if !debounceTimer.Stop() {
			select {
			case <-debounceTimer.C:
			default:
			}
		}
		debounceTimer.Reset(s.opts.Debounce)
	}

	s.logger.Info("filesystem watcher started",
		"path", s.opts.Root, "env", s.opts.Env, "polling", w == nil, "known_dirs", len(known))
	s.readyOnce.Do(func() { close(s.ready) })

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("filesystem watcher stopping")
			return

		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			if s.handleFSEvent(ev) {
				resetDebounce()
			}

		case err, ok := <-errCh:
			if !ok {
				return
			}
			s.logger.Error("fsnotify error", "error", err)

		case <-pollCh:
			if s.poll() {
				resetDebounce()
			}

		case <-debounceTimer.C:
			s.flush()
		}
	}
}

// handleFSEvent reacts to a direct child of Root. It returns true when a
// creation is pending debounce.
func (s *Service) handleFSEvent(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if filepath.Dir(ev.Name) != s.opts.Root {
		return false
	}
	name := filepath.Base(ev.Name)

	if ev.Has(fsnotify.Create) {
		info, err := os.Stat(ev.Name)
		if err != nil || !info.IsDir() {
			return false
		}
		td, ok := s.landingDir(name)
		if !ok {
			return false
		}
		s.mu.Lock()
		s.pending[name] = td
		s.mu.Unlock()
		s.logger.Debug("landing directory created, waiting for it to settle", "name", name)
		return true
	}

	s.removed(name)
	return false
}

// poll diffs Root against the known set. New directories go to pending;
// vanished ones are published immediately.
func (s *Service) poll() bool {
	current := s.snapshot()
	if current == nil {
		return false
	}

	s.mu.Lock()
	var gone []string
	for name := range s.known {
		if _, ok := current[name]; !ok {
			gone = append(gone, name)
		}
	}
	created := false
	for name, td := range current {
		if _, ok := s.known[name]; ok {
			continue
		}
		if _, ok := s.pending[name]; !ok {
			s.pending[name] = td
			created = true
		}
	}
	s.mu.Unlock()

	for _, name := range gone {
		s.removed(name)
	}
	return created
}

// flush publishes every pending directory that still exists.
func (s *Service) flush() {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]scanner.TenantDir)
	s.mu.Unlock()

	for name, td := range pending {
		path := filepath.Join(s.opts.Root, name)
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			s.logger.Debug("pending landing directory vanished", "name", name)
			continue
		}
		s.mu.Lock()
		s.known[name] = td
		s.mu.Unlock()

		s.logger.Info("landing directory created", "path", path, "tenant", td.Tenant, "env", td.Env)
		s.bus.Publish(event.Event{
			Type:    event.TenantDirCreated,
			DirName: name,
			Tenant:  td.Tenant,
			Env:     td.Env,
			Data:    map[string]any{"path": path},
		})
	}
}

func (s *Service) removed(name string) {
	s.mu.Lock()
	delete(s.pending, name)
	td, wasKnown := s.known[name]
	delete(s.known, name)
	s.mu.Unlock()

	if !wasKnown {
		return
	}
	path := filepath.Join(s.opts.Root, name)
	s.logger.Warn("landing directory removed", "path", path, "tenant", td.Tenant)
	s.bus.Publish(event.Event{
		Type:    event.TenantDirRemoved,
		DirName: name,
		Tenant:  td.Tenant,
		Env:     td.Env,
		Data:    map[string]any{"path": path},
	})
}

// landingDir parses name and keeps it only for the watched env.
func (s *Service) landingDir(name string) (scanner.TenantDir, bool) {
	td, ok := scanner.ParseDirName(name)
	if !ok || !strings.EqualFold(td.Env, s.opts.Env) {
		return scanner.TenantDir{}, false
	}
	return td, true
}

// snapshot lists the landing directories currently under Root, or nil if
// Root cannot be read.
func (s *Service) snapshot() map[string]scanner.TenantDir {
	entries, err := os.ReadDir(s.opts.Root)
	if err != nil {
		s.logger.Warn("reading landing root", "path", s.opts.Root, "error", err)
		return nil
	}
	snap := make(map[string]scanner.TenantDir)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if td, ok := s.landingDir(e.Name()); ok {
			snap[e.Name()] = td
		}
	}
	return snap
}
