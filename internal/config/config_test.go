package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ReleaseCount != 25 {
		t.Fatalf("expected release count 25, got %d", cfg.ReleaseCount)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected log level warn, got %s", cfg.LogLevel)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
bin_dir: /opt/bin
release_count: 10
timeout: 5s
download_url: https://mirror.example.com/
min_free_space_factor: 2.5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BinDir != "/opt/bin" {
		t.Fatalf("expected bin dir /opt/bin, got %s", cfg.BinDir)
	}
	if cfg.ReleaseCount != 10 {
		t.Fatalf("expected release count 10, got %d", cfg.ReleaseCount)
	}
	if cfg.Timeout != 5*time.Second {
		t.Fatalf("expected timeout 5s, got %s", cfg.Timeout)
	}
	if cfg.DownloadURL != "https://mirror.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.DownloadURL)
	}
	if math.Abs(cfg.MinFreeSpaceFactor-2.5) > 0.0001 {
		t.Fatalf("expected factor 2.5, got %v", cfg.MinFreeSpaceFactor)
	}
	if cfg.PrimaryExecutable != "helm" {
		t.Fatalf("expected default primary executable, got %s", cfg.PrimaryExecutable)
	}
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "log_level: info\n")
	t.Setenv("FELLOE_LOG_LEVEL", "debug")
	t.Setenv("FELLOE_TIMEOUT", "12")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected env log level debug, got %s", cfg.LogLevel)
	}
	if cfg.Timeout != 12*time.Second {
		t.Fatalf("expected bare number timeout as seconds, got %s", cfg.Timeout)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{name: "negative count", contents: "release_count: -1\n"},
		{name: "path in executable", contents: "primary_executable: bin/helm\n"},
		{name: "negative factor", contents: "min_free_space_factor: -3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.contents))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "release_count: [\n")); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	cfg := Default()
	cfg.BinDir = "/custom/bin"
	cfg.Timeout = 45 * time.Second

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != cfg {
		t.Fatalf("expected %+v, got %+v", cfg, loaded)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the config file, found %d entries", len(entries))
	}
}
