// Package config provides configuration loading for the subagent
// orchestration daemon.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// StateDirEnv is the environment variable that relocates the
// persistence root (spec.md §6).
const StateDirEnv = "OPENCLAW_STATE_DIR"

// Config represents the daemon configuration.
type Config struct {
	Agent     AgentConfig `toml:"agent"`
	Telemetry Telemetry   `toml:"telemetry"`
	Agents    AgentsBlock `toml:"agents"`
}

// AgentConfig identifies this daemon instance.
type AgentConfig struct {
	ID        string `toml:"id"`
	Workspace string `toml:"workspace"`
}

// Telemetry controls tracing export.
type Telemetry struct {
	Enabled  bool   `toml:"enabled"`
	Protocol string `toml:"protocol"` // noop, otel
	Endpoint string `toml:"endpoint"`
}

// AgentsBlock nests the "agents.defaults.subagents" table named in spec.md §6.
type AgentsBlock struct {
	Defaults DefaultsBlock `toml:"defaults"`
}

// DefaultsBlock holds the subagents policy defaults.
type DefaultsBlock struct {
	Subagents SubagentsConfig `toml:"subagents"`
}

// SubagentsConfig is the "agents.defaults.subagents" configuration table.
type SubagentsConfig struct {
	ArchiveAfterMinutes int              `toml:"archive_after_minutes"`
	Orchestration       OrchestrationCfg `toml:"orchestration"`
}

// OrchestrationCfg mirrors orchestrator.OrchestrationConfig field-for-field
// so it can be decoded directly from TOML and then converted.
type OrchestrationCfg struct {
	RetryOnFailure              bool    `toml:"retry_on_failure"`
	MaxRetries                  int     `toml:"max_retries"`
	BackoffMultiplier           float64 `toml:"backoff_multiplier"`
	InitialDelayMs              int     `toml:"initial_delay_ms"`
	MaxDelayMs                  int     `toml:"max_delay_ms"`
	VerifyCompletion            bool    `toml:"verify_completion"`
	VerificationPrompt          string  `toml:"verification_prompt"`
	VerificationTimeoutSeconds  int     `toml:"verification_timeout_seconds"`
	RetryOnVerificationFailure  bool    `toml:"retry_on_verification_failure"`
	VerificationHook            string  `toml:"verification_hook"`
}

// New creates a config with hard-coded defaults (spec.md §4.1).
func New() *Config {
	return &Config{
		Telemetry: Telemetry{
			Protocol: "noop",
		},
		Agents: AgentsBlock{
			Defaults: DefaultsBlock{
				Subagents: SubagentsConfig{
					ArchiveAfterMinutes: 60,
					Orchestration: OrchestrationCfg{
						MaxRetries:                 3,
						BackoffMultiplier:          2,
						InitialDelayMs:             1000,
						MaxDelayMs:                 60000,
						VerificationTimeoutSeconds: 30,
						RetryOnVerificationFailure: true,
					},
				},
			},
		},
	}
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file, overlaying onto defaults.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads configuration from agentrund.toml in the current directory.
// A missing file is not an error; the hard-coded defaults are returned.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	path := filepath.Join(cwd, "agentrund.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return New(), nil
	}
	return LoadFile(path)
}

// StateDir resolves the persistence root: OPENCLAW_STATE_DIR if set,
// otherwise ~/.openclaw.
func StateDir() (string, error) {
	if dir := os.Getenv(StateDirEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".openclaw"), nil
}

// RunsFilePath returns the persistence file path named in spec.md §6:
// <stateDir>/subagents/runs.json.
func RunsFilePath(stateDir string) string {
	return filepath.Join(stateDir, "subagents", "runs.json")
}

// ArchiveDBPath returns the SQLite ledger path alongside runs.json.
func ArchiveDBPath(stateDir string) string {
	return filepath.Join(stateDir, "subagents", "archive.sqlite3")
}
