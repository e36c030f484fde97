// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package config

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// Config holds all Warden configuration.
//
// Loading order (see Load):
//  1. Defaults from defaultConfig
//  2. Optional YAML file
//  3. Environment variables
//
// Config is immutable after Load and safe for concurrent reads.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Ingress    IngressConfig    `koanf:"ingress"`
	Routes     RoutesConfig     `koanf:"routes"`
	Faults     FaultsConfig     `koanf:"faults"`
	Shutdown   ShutdownConfig   `koanf:"shutdown"`
	Watchdog   WatchdogConfig   `koanf:"watchdog"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Port         int           `koanf:"port" validate:"min=1,max=65535"`
	Host         string        `koanf:"host"`
	Environment  string        `koanf:"environment" validate:"environment"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" validate:"gt=0"`
}

// IngressConfig bounds what a request may carry before it reaches a route.
type IngressConfig struct {
	MaxBodyBytes      int64         `koanf:"max_body_bytes" validate:"gt=0"`
	MaxParameters     int           `koanf:"max_parameters" validate:"gt=0"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"min=0"` // 0 disables
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// RoutesConfig describes the static resources and the optional /code collaborator.
type RoutesConfig struct {
	StaticDir      string        `koanf:"static_dir" validate:"required"`
	MainPage       string        `koanf:"main_page" validate:"required"`
	PairPage       string        `koanf:"pair_page" validate:"required"`
	CodeUpstream   string        `koanf:"code_upstream"`
	MetricsEnabled bool          `koanf:"metrics_enabled"`
	PageCacheTTL   time.Duration `koanf:"page_cache_ttl" validate:"min=0"` // 0 disables
}

// FaultsConfig configures the fault interceptor and crash log.
type FaultsConfig struct {
	CrashLogPath string        `koanf:"crash_log_path" validate:"required"`
	GracePeriod  time.Duration `koanf:"grace_period" validate:"gt=0"`
	BufferSize   int           `koanf:"buffer_size" validate:"gt=0"`
}

// ShutdownConfig configures the drain deadline.
type ShutdownConfig struct {
	DrainTimeout time.Duration `koanf:"drain_timeout" validate:"gt=0"`

	// ReadinessDelay keeps the listener open after draining starts so that
	// /health/ready can answer 503. It counts against DrainTimeout. 0 disables.
	ReadinessDelay time.Duration `koanf:"readiness_delay" validate:"min=0,ltfield=DrainTimeout"`
}

// WatchdogConfig configures periodic heap sampling.
type WatchdogConfig struct {
	Interval   time.Duration `koanf:"interval" validate:"gt=0"`
	WarnMB     uint64        `koanf:"warn_mb" validate:"gt=0"`
	CriticalMB uint64        `koanf:"critical_mb" validate:"gtfield=WarnMB"`
}

// SupervisorConfig mirrors suture's restart policy.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gt=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"gt=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff" validate:"gt=0"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"loglevel"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// IsDevelopment reports whether error details may be exposed to clients.
// Only an explicit development setting enables it.
func (c *Config) IsDevelopment() bool {
	switch strings.ToLower(c.Server.Environment) {
	case "development", "dev":
		return true
	}
	return false
}

// IsProduction reports whether the process runs with production defaults.
func (c *Config) IsProduction() bool {
	return !c.IsDevelopment()
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
