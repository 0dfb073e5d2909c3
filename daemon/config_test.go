package daemon

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q, want 0.0.0.0:8080", cfg.Addr())
	}
	if cfg.MaxSteps != 100 {
		t.Errorf("MaxSteps = %d, want 100", cfg.MaxSteps)
	}
}

func TestLoadConfig_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowstep.yaml")
	content := "port: 9090\nmax_steps: 25\nlog_level: debug\nschedule_poll: 1s\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.MaxSteps != 25 {
		t.Errorf("MaxSteps = %d, want 25", cfg.MaxSteps)
	}
	if cfg.SchedulePoll != time.Second {
		t.Errorf("SchedulePoll = %v, want 1s", cfg.SchedulePoll)
	}
	// Untouched keys keep their defaults.
	if cfg.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want default", cfg.Host)
	}
	if cfg.CORSOrigin != "*" {
		t.Errorf("CORSOrigin = %q, want default", cfg.CORSOrigin)
	}
}

func TestLoadConfig_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowstep.yaml")
	if err := os.WriteFile(path, []byte(":\n:"), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestDiscoverConfigPathFrom(t *testing.T) {
	cwd := t.TempDir()
	home := t.TempDir()

	// Nothing anywhere: not found, no error.
	path, found, err := DiscoverConfigPathFrom("", cwd, home)
	if err != nil || found || path != "" {
		t.Errorf("empty discovery = %q, %v, %v", path, found, err)
	}

	// Home config found when project config is absent.
	homeCfg := filepath.Join(home, ".flowstep", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(homeCfg), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(homeCfg, []byte("port: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	path, found, err = DiscoverConfigPathFrom("", cwd, home)
	if err != nil || !found || path != homeCfg {
		t.Errorf("home discovery = %q, %v, %v, want %q", path, found, err, homeCfg)
	}

	// Project config wins over home config.
	projectCfg := filepath.Join(cwd, "flowstep.yaml")
	if err := os.WriteFile(projectCfg, []byte("port: 2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	path, found, err = DiscoverConfigPathFrom("", cwd, home)
	if err != nil || !found || path != projectCfg {
		t.Errorf("project discovery = %q, %v, %v, want %q", path, found, err, projectCfg)
	}

	// Explicit missing path is an error.
	if _, _, err := DiscoverConfigPathFrom(filepath.Join(cwd, "missing.yaml"), cwd, home); err == nil {
		t.Error("expected error for explicit missing path")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
