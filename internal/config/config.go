// Package config loads and validates the YAML config snapshot, and owns
// the resolution order for where that file lives on disk.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mir00r/bal/internal/domain"
	"gopkg.in/yaml.v2"
)

// rawRuntime mirrors domain.RuntimeTuning but with every field optional, so
// a config file may set any subset of the tuning parameters; fields left
// unset take their DefaultRuntimeTuning values, which do not vary with the
// number of backends.
type rawRuntime struct {
	HealthCheckIntervalMS       *int    `yaml:"health_check_interval_ms"`
	HealthCheckTimeoutMS        *int    `yaml:"health_check_timeout_ms"`
	HealthCheckFailThreshold    *int    `yaml:"health_check_fail_threshold"`
	HealthCheckSuccessThreshold *int    `yaml:"health_check_success_threshold"`
	BackendConnectTimeoutMS     *int    `yaml:"backend_connect_timeout_ms"`
	FailoverBackoffInitialMS    *int    `yaml:"failover_backoff_initial_ms"`
	FailoverBackoffMaxMS        *int    `yaml:"failover_backoff_max_ms"`
	BackendCooldownMS           *int    `yaml:"backend_cooldown_ms"`
	ProtectionTriggerThreshold  *int    `yaml:"protection_trigger_threshold"`
	ProtectionWindowMS          *int    `yaml:"protection_window_ms"`
	ProtectionStableSuccessThr  *int    `yaml:"protection_stable_success_threshold"`
	MaxConcurrentConnections    *int    `yaml:"max_concurrent_connections"`
	ConnectionIdleTimeoutMS     *int    `yaml:"connection_idle_timeout_ms"`
	TCPBacklog                  *int    `yaml:"tcp_backlog"`
	OverloadPolicy              *string `yaml:"overload_policy"`
}

// merge overlays every set field of r onto a copy of base and returns the result.
func (r rawRuntime) merge(base domain.RuntimeTuning) domain.RuntimeTuning {
	set := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	set(&base.HealthCheckIntervalMS, r.HealthCheckIntervalMS)
	set(&base.HealthCheckTimeoutMS, r.HealthCheckTimeoutMS)
	set(&base.HealthCheckFailThreshold, r.HealthCheckFailThreshold)
	set(&base.HealthCheckSuccessThreshold, r.HealthCheckSuccessThreshold)
	set(&base.BackendConnectTimeoutMS, r.BackendConnectTimeoutMS)
	set(&base.FailoverBackoffInitialMS, r.FailoverBackoffInitialMS)
	set(&base.FailoverBackoffMaxMS, r.FailoverBackoffMaxMS)
	set(&base.BackendCooldownMS, r.BackendCooldownMS)
	set(&base.ProtectionTriggerThreshold, r.ProtectionTriggerThreshold)
	set(&base.ProtectionWindowMS, r.ProtectionWindowMS)
	set(&base.ProtectionStableSuccessThr, r.ProtectionStableSuccessThr)
	set(&base.MaxConcurrentConnections, r.MaxConcurrentConnections)
	set(&base.ConnectionIdleTimeoutMS, r.ConnectionIdleTimeoutMS)
	set(&base.TCPBacklog, r.TCPBacklog)
	if r.OverloadPolicy != nil {
		base.OverloadPolicy = *r.OverloadPolicy
	}
	return base
}

// rawFile is the on-disk shape. Mode is accepted and discarded for
// backward compatibility, per the binding contract in spec.md §6.
type rawFile struct {
	Mode        interface{}       `yaml:"mode"`
	Port        int               `yaml:"port"`
	BindAddress string            `yaml:"bind_address"`
	Method      string            `yaml:"method"`
	LogLevel    string            `yaml:"log_level"`
	Backends    []domain.Endpoint `yaml:"backends"`
	Runtime     rawRuntime        `yaml:"runtime"`
}

// Load reads and parses path into a fully-defaulted, but not yet validated,
// Snapshot at generation 0. Callers validate separately so a load failure
// and a validation failure can be reported with distinct detail in the
// check/doctor contracts.
func Load(path string) (*domain.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var raw rawFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	bindAddr := raw.BindAddress
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	method := domain.Method(raw.Method)
	if raw.Method == "" {
		method = domain.RoundRobin
	}
	logLevel := raw.LogLevel
	if logLevel == "" {
		logLevel = "info"
	}

	snap := &domain.Snapshot{
		Generation: 0,
		BindAddr:   bindAddr,
		Port:       raw.Port,
		Method:     method,
		Backends:   raw.Backends,
		Runtime:    raw.Runtime.merge(domain.DefaultRuntimeTuning(len(raw.Backends))),
		LogLevel:   logLevel,
		ConfigPath: path,
	}
	return snap, nil
}

// Resolve returns the config path to use, following the precedence order
// in spec.md §6: an explicit --config path wins if set, and is an error if
// it does not exist; otherwise $HOME/.bal/config.yaml (written from the
// default template if absent); otherwise /etc/bal/config.yaml.
func Resolve(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}

	home, err := os.UserHomeDir()
	if err == nil {
		homePath := filepath.Join(home, ".bal", "config.yaml")
		if _, statErr := os.Stat(homePath); statErr == nil {
			return homePath, nil
		}
		if writeErr := writeDefaultTemplate(homePath); writeErr == nil {
			return homePath, nil
		}
	}

	const systemPath = "/etc/bal/config.yaml"
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath, nil
	}

	return "", fmt.Errorf("no config file found: pass --config, or create %s or %s", filepath.Join(home, ".bal", "config.yaml"), systemPath)
}

// writeDefaultTemplate creates a minimal, valid config file at path,
// creating its parent directory if needed.
func writeDefaultTemplate(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	const template = `# bal configuration
port: 8080
bind_address: 127.0.0.1
method: round_robin
log_level: info

backends:
  - host: 127.0.0.1
    port: 9001
  - host: 127.0.0.1
    port: 9002
`
	return os.WriteFile(path, []byte(template), 0o644)
}
