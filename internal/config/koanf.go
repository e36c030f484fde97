// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config files searched, first match wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/warden/config.yaml",
	"/etc/warden/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8000,
			Host:         "0.0.0.0",
			Environment:  "production", // error details stay hidden unless explicitly development
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Ingress: IngressConfig{
			MaxBodyBytes:      10 << 20,
			MaxParameters:     10000,
			RateLimitRequests: 0,
			RateLimitWindow:   time.Minute,
			CORSOrigins:       []string{},
		},
		Routes: RoutesConfig{
			StaticDir:      ".",
			MainPage:       "main.html",
			PairPage:       "pair.html",
			CodeUpstream:   "",
			MetricsEnabled: true,
			PageCacheTTL:   5 * time.Second,
		},
		Faults: FaultsConfig{
			CrashLogPath: "crashes.log",
			GracePeriod:  5 * time.Second,
			BufferSize:   256,
		},
		Shutdown: ShutdownConfig{
			DrainTimeout:   10 * time.Second,
			ReadinessDelay: 0,
		},
		Watchdog: WatchdogConfig{
			Interval:   60 * time.Second,
			WarnMB:     500,
			CriticalMB: 800,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5.0,
			FailureDecay:     30.0,
			FailureBackoff:   15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Default returns the built-in configuration without reading files or the environment.
func Default() *Config {
	return defaultConfig()
}

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. YAML file: path if non-empty, else CONFIG_PATH, else DefaultConfigPaths
//  3. Environment variables (highest priority)
//
// An explicit path that does not exist is an error; a missing default file is not.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := applyEnvAliases(k); err != nil {
		return nil, err
	}
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"ingress.cors_origins",
}

// processSliceFields splits comma-separated env values into slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to config paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"port":               "server.port",
	"http_host":          "server.host",
	"environment":        "server.environment",
	"http_read_timeout":  "server.read_timeout",
	"http_write_timeout": "server.write_timeout",
	"http_idle_timeout":  "server.idle_timeout",

	"max_body_bytes":      "ingress.max_body_bytes",
	"max_parameters":      "ingress.max_parameters",
	"rate_limit_requests": "ingress.rate_limit_requests",
	"rate_limit_window":   "ingress.rate_limit_window",
	"cors_origins":        "ingress.cors_origins",

	"static_dir":      "routes.static_dir",
	"main_page":       "routes.main_page",
	"pair_page":       "routes.pair_page",
	"code_upstream":   "routes.code_upstream",
	"metrics_enabled": "routes.metrics_enabled",
	"page_cache_ttl":  "routes.page_cache_ttl",

	"crash_log_path":     "faults.crash_log_path",
	"fault_grace_period": "faults.grace_period",
	"crash_log_buffer":   "faults.buffer_size",

	"shutdown_timeout":         "shutdown.drain_timeout",
	"shutdown_readiness_delay": "shutdown.readiness_delay",

	"watchdog_interval":    "watchdog.interval",
	"watchdog_warn_mb":     "watchdog.warn_mb",
	"watchdog_critical_mb": "watchdog.critical_mb",

	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envAliases are secondary names consulted only when the primary is unset.
// env.Provider walks os.Environ in no defined order, so aliases cannot live in
// envMappings without making precedence depend on the environment layout.
var envAliases = []struct {
	alias   string
	primary string
}{
	{"NODE_ENV", "ENVIRONMENT"},
	{"HTTP_PORT", "PORT"},
}

func applyEnvAliases(k *koanf.Koanf) error {
	for _, a := range envAliases {
		if os.Getenv(a.primary) != "" {
			continue
		}
		v := os.Getenv(a.alias)
		if v == "" {
			continue
		}
		path := envMappings[strings.ToLower(a.primary)]
		if err := k.Set(path, v); err != nil {
			return fmt.Errorf("failed to apply %s: %w", a.alias, err)
		}
	}
	return nil
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
