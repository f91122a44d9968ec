package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Scan.MaxReasonFileBytes != 1<<20 {
		t.Errorf("max reason bytes = %d, want %d", cfg.Scan.MaxReasonFileBytes, 1<<20)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
scan:
  root_path: /mnt/landing
  env: int
  max_depth: 4
  depth_group_tenants: [alpha, beta]
  zombie_thresholds_by_tenant:
    special: 120
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FE_MAX_DEPTH", "6")
	t.Setenv("FE_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scan.RootPath != "/mnt/landing" {
		t.Errorf("root = %q, want /mnt/landing", cfg.Scan.RootPath)
	}
	if cfg.Scan.MaxDepth != 6 {
		t.Errorf("max depth = %d, want 6 (env wins)", cfg.Scan.MaxDepth)
	}
	if got := cfg.Scan.ZombieThresholdsByTenant["special"]; got != 120 {
		t.Errorf("special threshold = %d, want 120", got)
	}
	if len(cfg.Scan.DepthGroupTenants) != 2 {
		t.Errorf("depth group tenants = %v, want 2 entries", cfg.Scan.DepthGroupTenants)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_EnvThresholds(t *testing.T) {
	t.Setenv("FE_ZOMBIE_THRESHOLDS_BY_TENANT", "a=10, b=20")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scan.ZombieThresholdsByTenant["a"] != 10 || cfg.Scan.ZombieThresholdsByTenant["b"] != 20 {
		t.Errorf("thresholds = %v", cfg.Scan.ZombieThresholdsByTenant)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad env", "FE_ENV", "uat"},
		{"bad port", "FE_PORT", "70000"},
		{"non numeric", "FE_MAX_DEPTH", "deep"},
		{"zero gate", "FE_MAX_CONCURRENT_DIRECTORY_SCANS", "0"},
		{"bad threshold", "FE_ZOMBIE_THRESHOLDS_BY_TENANT", "a:10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(""); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv("FE_CONFIG_PATH", "/from/env.yaml")
	if got := ResolvePath("/explicit.yaml"); got != "/explicit.yaml" {
		t.Errorf("ResolvePath = %q, want /explicit.yaml", got)
	}
	if got := ResolvePath(""); got != "/from/env.yaml" {
		t.Errorf("ResolvePath = %q, want /from/env.yaml", got)
	}
}
