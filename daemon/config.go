// Package daemon holds startup configuration for the flowstep server.
package daemon

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	projectConfigName = "flowstep.yaml"
	homeConfigName    = "config.yaml"
)

// Config is the resolved startup configuration for `flowstep serve`.
// File keys absent from flowstep.yaml keep the defaults below; CLI flags
// override the file.
type Config struct {
	Host         string
	Port         int
	CORSOrigin   string
	MaxBody      int64
	MaxSteps     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SchedulePoll time.Duration
	OTLPEndpoint string
	LogLevel     string
}

// DefaultConfig returns the built-in server defaults.
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		CORSOrigin:   "*",
		MaxBody:      1 << 20,
		MaxSteps:     100,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		SchedulePoll: 5 * time.Second,
		LogLevel:     "info",
	}
}

// Addr returns the listen address in host:port form.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DiscoverConfigPath resolves the config location with first-match semantics:
// the explicit path if given, then ./flowstep.yaml, then
// ~/.flowstep/config.yaml. The boolean reports whether a file was found.
func DiscoverConfigPath(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("resolve user home: %w", err)
	}
	return DiscoverConfigPathFrom(explicitPath, cwd, homeDir)
}

// DiscoverConfigPathFrom is a testable variant of DiscoverConfigPath.
func DiscoverConfigPathFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	candidates := make([]string, 0, 2)
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		candidates = append(candidates, filepath.Clean(clean))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		candidates = append(candidates, filepath.Join(homeDir, ".flowstep", homeConfigName))
	}

	for i, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			// An explicit path that does not exist is an error.
			if i == 0 && strings.TrimSpace(explicitPath) != "" {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// fileConfig mirrors Config for YAML decoding. Pointer fields distinguish
// absent keys from zero values, and durations arrive as strings like "30s".
type fileConfig struct {
	Host         *string `yaml:"host"`
	Port         *int    `yaml:"port"`
	CORSOrigin   *string `yaml:"cors_origin"`
	MaxBody      *int64  `yaml:"max_body"`
	MaxSteps     *int    `yaml:"max_steps"`
	ReadTimeout  *string `yaml:"read_timeout"`
	WriteTimeout *string `yaml:"write_timeout"`
	SchedulePoll *string `yaml:"schedule_poll"`
	OTLPEndpoint *string `yaml:"otlp_endpoint"`
	LogLevel     *string `yaml:"log_level"`
}

// LoadConfig reads a YAML config file and overlays it on DefaultConfig.
func LoadConfig(path string) (Config, error) {
	// #nosec G304 -- path resolved from explicit local config discovery.
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %q: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parsing config %q: %w", path, err)
	}

	cfg := DefaultConfig()
	if fc.Host != nil {
		cfg.Host = *fc.Host
	}
	if fc.Port != nil {
		cfg.Port = *fc.Port
	}
	if fc.CORSOrigin != nil {
		cfg.CORSOrigin = *fc.CORSOrigin
	}
	if fc.MaxBody != nil {
		cfg.MaxBody = *fc.MaxBody
	}
	if fc.MaxSteps != nil {
		cfg.MaxSteps = *fc.MaxSteps
	}
	if fc.OTLPEndpoint != nil {
		cfg.OTLPEndpoint = *fc.OTLPEndpoint
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if err := overlayDuration(&cfg.ReadTimeout, fc.ReadTimeout, "read_timeout"); err != nil {
		return Config{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	if err := overlayDuration(&cfg.WriteTimeout, fc.WriteTimeout, "write_timeout"); err != nil {
		return Config{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	if err := overlayDuration(&cfg.SchedulePoll, fc.SchedulePoll, "schedule_poll"); err != nil {
		return Config{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return cfg, nil
}

func overlayDuration(dst *time.Duration, src *string, key string) error {
	if src == nil {
		return nil
	}
	d, err := time.ParseDuration(*src)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

// ParseLogLevel maps a config log level string to a slog.Level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", level)
	}
}
