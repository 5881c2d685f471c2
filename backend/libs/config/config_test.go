package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Name    string        `yaml:"name" env:"TEST_NAME"`
	Timeout time.Duration `yaml:"timeout"`
	Limits  struct {
		Max   int     `yaml:"max"`
		Ratio float64 `yaml:"ratio"`
	} `yaml:"limits"`
	Enabled bool   `yaml:"enabled"`
	Skipped string `yaml:"skipped" env:"-"`
}

func TestLoadConfigFromFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `
name: from-file
timeout: 5s
limits:
  max: 3
  ratio: 0.5
skipped: keep
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("TEST_NAME", "from-env")
	t.Setenv("LIMITS_MAX", "7")
	t.Setenv("TIMEOUT", "1m30s")
	t.Setenv("ENABLED", "true")
	t.Setenv("SKIPPED", "ignored")

	var cfg testConfig
	if err := LoadConfigFrom(path, &cfg); err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Name != "from-env" {
		t.Fatalf("expected env override for name, got %q", cfg.Name)
	}
	if cfg.Limits.Max != 7 {
		t.Fatalf("expected nested env override 7, got %d", cfg.Limits.Max)
	}
	if cfg.Limits.Ratio != 0.5 {
		t.Fatalf("expected ratio from file 0.5, got %f", cfg.Limits.Ratio)
	}
	if cfg.Timeout != 90*time.Second {
		t.Fatalf("expected timeout 1m30s, got %s", cfg.Timeout)
	}
	if !cfg.Enabled {
		t.Fatalf("expected enabled from env")
	}
	if cfg.Skipped != "keep" {
		t.Fatalf("expected env:\"-\" field to keep file value, got %q", cfg.Skipped)
	}
}

func TestLoadConfigRejectsNonPointer(t *testing.T) {
	if err := LoadConfigFrom("", testConfig{}); err == nil {
		t.Fatalf("expected error for non-pointer target")
	}
	if err := LoadConfigFrom("", nil); err == nil {
		t.Fatalf("expected error for nil target")
	}
}

func TestLoadConfigBadEnvValue(t *testing.T) {
	t.Setenv("TIMEOUT", "soon")

	var cfg testConfig
	if err := LoadConfigFrom("", &cfg); err == nil {
		t.Fatalf("expected parse error for invalid duration")
	}
}
