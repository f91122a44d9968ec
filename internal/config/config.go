package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither a flag nor FE_CONFIG_PATH names a file.
const DefaultPath = "/etc/fileexporter/config.yaml"

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Scan    ScanConfig    `yaml:"scan"`
	Watch   WatchConfig   `yaml:"watch"`
	API     APIConfig     `yaml:"api"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level          string `yaml:"level"`
	Format         string `yaml:"format"`
	FilePath       string `yaml:"file_path"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb"`
	FileMaxFiles   int    `yaml:"file_max_files"`
	FileMaxAgeDays int    `yaml:"file_max_age_days"`
}

// ScanConfig holds the landing-filesystem scan settings.
type ScanConfig struct {
	RootPath                    string         `yaml:"root_path"`
	Env                         string         `yaml:"env"`
	MaxFailures                 int            `yaml:"max_failures"`
	MaxDepth                    int            `yaml:"max_depth"`
	RecentTimeWindowHours       int            `yaml:"recent_time_window_hours"`
	MaxParallelTenantScans      int            `yaml:"max_parallel_tenant_scans"`
	MaxConcurrentDirectoryScans int            `yaml:"max_concurrent_directory_scans"`
	DepthGroupTenants           []string       `yaml:"depth_group_tenants"`
	SupportedImageExtensions    []string       `yaml:"supported_image_extensions"`
	ZombieThresholdsByTenant    map[string]int `yaml:"zombie_thresholds_by_tenant"`
	ZombieTimeThresholdMinutes  int            `yaml:"zombie_time_threshold_minutes"`
	ScanIntervalMinutes         int            `yaml:"scan_interval_minutes"`
	ProgressLogThreshold        int            `yaml:"progress_log_threshold"`
	MaxReasonFileBytes          int64          `yaml:"max_reason_file_bytes"`
	RunHistorySize              int            `yaml:"run_history_size"`
}

// WatchConfig controls the root-path filesystem watcher.
type WatchConfig struct {
	Enabled             bool `yaml:"enabled"`
	DebounceSeconds     int  `yaml:"debounce_seconds"`
	PollIntervalSeconds int  `yaml:"poll_interval_seconds"`
}

// APIConfig holds on-demand trigger settings.
type APIConfig struct {
	TriggersPerMinute int `yaml:"triggers_per_minute"`
	TriggerBurst      int `yaml:"trigger_burst"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Scan: ScanConfig{
			RootPath:                    "/landing",
			Env:                         "prod",
			MaxFailures:                 10000,
			MaxDepth:                    3,
			RecentTimeWindowHours:       24,
			MaxParallelTenantScans:      4,
			MaxConcurrentDirectoryScans: 16,
			SupportedImageExtensions:    []string{".jpg", ".jpeg", ".png", ".tif", ".tiff"},
			ZombieThresholdsByTenant:    map[string]int{},
			ZombieTimeThresholdMinutes:  60,
			ScanIntervalMinutes:         5,
			ProgressLogThreshold:        1000,
			MaxReasonFileBytes:          1 << 20,
			RunHistorySize:              100,
		},
		Watch: WatchConfig{
			Enabled:             true,
			DebounceSeconds:     5,
			PollIntervalSeconds: 60,
		},
		API: APIConfig{
			TriggersPerMinute: 6,
			TriggerBurst:      3,
		},
	}
}

// ResolvePath returns the config path to load: the explicit value if set,
// then FE_CONFIG_PATH, then DefaultPath.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v := os.Getenv("FE_CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() error {
	ints := []struct {
		key string
		dst *int
	}{
		{"FE_PORT", &c.Server.Port},
		{"FE_MAX_FAILURES", &c.Scan.MaxFailures},
		{"FE_MAX_DEPTH", &c.Scan.MaxDepth},
		{"FE_RECENT_TIME_WINDOW_HOURS", &c.Scan.RecentTimeWindowHours},
		{"FE_MAX_PARALLEL_TENANT_SCANS", &c.Scan.MaxParallelTenantScans},
		{"FE_MAX_CONCURRENT_DIRECTORY_SCANS", &c.Scan.MaxConcurrentDirectoryScans},
		{"FE_ZOMBIE_TIME_THRESHOLD_MINUTES", &c.Scan.ZombieTimeThresholdMinutes},
		{"FE_SCAN_INTERVAL_MINUTES", &c.Scan.ScanIntervalMinutes},
		{"FE_PROGRESS_LOG_THRESHOLD", &c.Scan.ProgressLogThreshold},
	}
	for _, e := range ints {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = n
	}

	if v := os.Getenv("FE_BASE_PATH"); v != "" {
		c.Server.BasePath = v
	}
	if v := os.Getenv("FE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("FE_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("FE_ROOT_PATH"); v != "" {
		c.Scan.RootPath = v
	}
	if v := os.Getenv("FE_ENV"); v != "" {
		c.Scan.Env = v
	}
	if v := os.Getenv("FE_DEPTH_GROUP_TENANTS"); v != "" {
		c.Scan.DepthGroupTenants = splitList(v)
	}
	if v := os.Getenv("FE_SUPPORTED_IMAGE_EXTENSIONS"); v != "" {
		c.Scan.SupportedImageExtensions = splitList(v)
	}
	if v := os.Getenv("FE_ZOMBIE_THRESHOLDS_BY_TENANT"); v != "" {
		m, err := parseThresholds(v)
		if err != nil {
			return fmt.Errorf("FE_ZOMBIE_THRESHOLDS_BY_TENANT: %w", err)
		}
		c.Scan.ZombieThresholdsByTenant = m
	}
	if v := os.Getenv("FE_WATCH_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FE_WATCH_ENABLED: %w", err)
		}
		c.Watch.Enabled = b
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Scan.RootPath == "" {
		return fmt.Errorf("scan.root_path is required")
	}
	switch strings.ToLower(c.Scan.Env) {
	case "dev", "int", "prod":
	default:
		return fmt.Errorf("scan.env must be dev, int or prod, got %q", c.Scan.Env)
	}
	if c.Scan.MaxParallelTenantScans < 1 {
		return fmt.Errorf("scan.max_parallel_tenant_scans must be positive")
	}
	if c.Scan.MaxConcurrentDirectoryScans < 1 {
		return fmt.Errorf("scan.max_concurrent_directory_scans must be positive")
	}
	if c.Scan.MaxDepth < 1 {
		return fmt.Errorf("scan.max_depth must be at least 1")
	}
	if c.Scan.ScanIntervalMinutes < 1 {
		return fmt.Errorf("scan.scan_interval_minutes must be positive")
	}
	if c.Scan.RecentTimeWindowHours < 0 || c.Scan.ZombieTimeThresholdMinutes < 0 {
		return fmt.Errorf("time windows must not be negative")
	}
	for tenant, minutes := range c.Scan.ZombieThresholdsByTenant {
		if minutes < 0 {
			return fmt.Errorf("zombie threshold for %q must not be negative", tenant)
		}
	}
	if c.Scan.MaxReasonFileBytes <= 0 {
		c.Scan.MaxReasonFileBytes = 1 << 20
	}
	if c.Scan.RunHistorySize <= 0 {
		c.Scan.RunHistorySize = 100
	}
	if c.Watch.DebounceSeconds <= 0 {
		c.Watch.DebounceSeconds = 5
	}
	if c.Watch.PollIntervalSeconds <= 0 {
		c.Watch.PollIntervalSeconds = 60
	}
	if c.API.TriggersPerMinute <= 0 || c.API.TriggerBurst <= 0 {
		return fmt.Errorf("api trigger rate and burst must be positive")
	}
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseThresholds reads "tenantA=120,tenantB=30".
func parseThresholds(v string) (map[string]int, error) {
	out := make(map[string]int)
	for _, pair := range splitList(v) {
		name, minutes, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("malformed entry %q", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(minutes))
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", pair, err)
		}
		out[strings.TrimSpace(name)] = n
	}
	return out, nil
}
