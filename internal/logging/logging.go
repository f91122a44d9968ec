// Package logging owns the process logger: a slog handler that can be swapped
// at runtime, a shared level, and an optional rotating log file.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes the desired logging configuration.
type Config struct {
	Level          string `json:"level"`
	Format         string `json:"format"`
	FilePath       string `json:"file_path,omitempty"`
	FileMaxSizeMB  int    `json:"file_max_size_mb,omitempty"`
	FileMaxFiles   int    `json:"file_max_files,omitempty"`
	FileMaxAgeDays int    `json:"file_max_age_days,omitempty"`
}

// Merge returns c with every non-zero field of patch applied.
func (c Config) Merge(patch Config) Config {
	if patch.Level != "" {
		c.Level = patch.Level
	}
	if patch.Format != "" {
		c.Format = patch.Format
	}
	if patch.FilePath != "" {
		c.FilePath = patch.FilePath
	}
	if patch.FileMaxSizeMB > 0 {
		c.FileMaxSizeMB = patch.FileMaxSizeMB
	}
	if patch.FileMaxFiles > 0 {
		c.FileMaxFiles = patch.FileMaxFiles
	}
	if patch.FileMaxAgeDays > 0 {
		c.FileMaxAgeDays = patch.FileMaxAgeDays
	}
	return c
}

// Validate reports the first unrecognized level or format.
func (c Config) Validate() error {
	if c.Level != "" && !ValidLevel(c.Level) {
		return fmt.Errorf("invalid level %q: must be debug, info, warn, or error", c.Level)
	}
	if c.Format != "" && !ValidFormat(c.Format) {
		return fmt.Errorf("invalid format %q: must be text or json", c.Format)
	}
	return nil
}

// String returns a human-readable summary of the config.
func (c Config) String() string {
	s := fmt.Sprintf("level=%s format=%s", c.Level, c.Format)
	if c.FilePath != "" {
		s += fmt.Sprintf(" file=%s max_size=%dMB max_files=%d max_age=%dd",
			c.FilePath, c.FileMaxSizeMB, c.FileMaxFiles, c.FileMaxAgeDays)
	}
	return s
}

// DefaultConfig returns the configuration used before any file or env override.
func DefaultConfig() Config {
	return Config{
		Level:          "info",
		Format:         "json",
		FileMaxSizeMB:  100,
		FileMaxFiles:   3,
		FileMaxAgeDays: 30,
	}
}

// swappable is a slog.Handler whose delegate can be replaced while loggers
// derived from it stay valid. Attributes and groups recorded through With
// are replayed onto every new delegate.
type swappable struct {
	root  *atomic.Pointer[slog.Handler]
	attrs []slog.Attr
	group string
}

func (s *swappable) current() slog.Handler {
	h := *s.root.Load()
	if s.group != "" {
		h = h.WithGroup(s.group)
	}
	if len(s.attrs) > 0 {
		h = h.WithAttrs(s.attrs)
	}
	return h
}

func (s *swappable) Enabled(ctx context.Context, level slog.Level) bool {
	return (*s.root.Load()).Enabled(ctx, level)
}

func (s *swappable) Handle(ctx context.Context, r slog.Record) error {
	return s.current().Handle(ctx, r)
}

func (s *swappable) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(s.attrs)+len(attrs))
	merged = append(merged, s.attrs...)
	merged = append(merged, attrs...)
	return &swappable{root: s.root, attrs: merged, group: s.group}
}

func (s *swappable) WithGroup(name string) slog.Handler {
	if name == "" {
		return s
	}
	if len(s.attrs) > 0 {
		// Groups after attributes would need nested replay; bind to the
		// current delegate instead.
		return s.current().WithGroup(name)
	}
	g := name
	if s.group != "" {
		g = s.group + "." + name
	}
	return &swappable{root: s.root, group: g}
}

// Manager owns the logger lifecycle and supports runtime reconfiguration.
type Manager struct {
	levelVar *slog.LevelVar
	root     *atomic.Pointer[slog.Handler]

	mu     sync.Mutex
	config Config
	closer io.Closer
}

// NewManager creates a Manager and returns it along with a ready-to-use logger.
func NewManager(cfg Config) (*Manager, *slog.Logger) {
	m := &Manager{
		levelVar: &slog.LevelVar{},
		root:     &atomic.Pointer[slog.Handler]{},
	}
	m.levelVar.Set(ParseLevel(cfg.Level))
	m.install(cfg)
	return m, slog.New(&swappable{root: m.root})
}

// install builds the writer and delegate handler for cfg. Callers hold mu
// or have exclusive access.
func (m *Manager) install(cfg Config) {
	writer, closer := buildWriter(cfg)
	h := buildHandler(writer, m.levelVar, cfg.Format)
	m.root.Store(&h)
	m.closer = closer
	m.config = cfg
}

// Reconfigure applies a new configuration at runtime. Level-only changes
// are instant via LevelVar; format or output changes rebuild the handler.
func (m *Manager) Reconfigure(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.levelVar.Set(ParseLevel(cfg.Level))

	old := m.config
	if cfg.Format == old.Format && cfg.FilePath == old.FilePath &&
		cfg.FileMaxSizeMB == old.FileMaxSizeMB && cfg.FileMaxFiles == old.FileMaxFiles &&
		cfg.FileMaxAgeDays == old.FileMaxAgeDays {
		m.config = cfg
		return
	}

	if m.closer != nil {
		_ = m.closer.Close()
		m.closer = nil
	}
	m.install(cfg)
}

// Config returns the current configuration snapshot.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Close releases the log file writer, if any. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closer == nil {
		return nil
	}
	err := m.closer.Close()
	m.closer = nil
	return err
}

// ParseLevel converts a level name to slog.Level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FormatLevel converts a slog.Level to its config name.
func FormatLevel(l slog.Level) string {
	switch {
	case l <= slog.LevelDebug:
		return "debug"
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	default:
		return "info"
	}
}

// ValidLevel returns true if s is a recognized log level.
func ValidLevel(s string) bool {
	switch s {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// ValidFormat returns true if s is a recognized log format.
func ValidFormat(s string) bool {
	return s == "text" || s == "json"
}

// buildWriter returns stdout, or stdout mirrored into a lumberjack file when
// a path is configured. The lumberjack logger is returned as the closer.
func buildWriter(cfg Config) (io.Writer, io.Closer) {
	if cfg.FilePath == "" {
		return os.Stdout, nil
	}
	def := DefaultConfig()
	lj := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    positiveOr(cfg.FileMaxSizeMB, def.FileMaxSizeMB),
		MaxBackups: positiveOr(cfg.FileMaxFiles, def.FileMaxFiles),
		MaxAge:     positiveOr(cfg.FileMaxAgeDays, def.FileMaxAgeDays),
	}
	return io.MultiWriter(os.Stdout, lj), lj
}

func buildHandler(w io.Writer, leveler slog.Leveler, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: leveler}
	if format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
