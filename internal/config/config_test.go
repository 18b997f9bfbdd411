package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig_LoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "agentrund.toml")
	os.WriteFile(configPath, []byte(`
[agent]
id = "test-daemon"
workspace = "/workspace"

[agents.defaults.subagents]
archive_after_minutes = 15

[agents.defaults.subagents.orchestration]
retry_on_failure = true
max_retries = 5
backoff_multiplier = 3.0
initial_delay_ms = 500
max_delay_ms = 20000
verify_completion = true
verification_prompt = "done?"
verification_timeout_seconds = 10
retry_on_verification_failure = false
verification_hook = "custom"
`), 0644)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}

	if cfg.Agent.ID != "test-daemon" {
		t.Errorf("expected id 'test-daemon', got %s", cfg.Agent.ID)
	}
	sub := cfg.Agents.Defaults.Subagents
	if sub.ArchiveAfterMinutes != 15 {
		t.Errorf("expected archive_after_minutes 15, got %d", sub.ArchiveAfterMinutes)
	}
	orch := sub.Orchestration
	if !orch.RetryOnFailure || orch.MaxRetries != 5 || orch.BackoffMultiplier != 3.0 {
		t.Errorf("unexpected orchestration decode: %+v", orch)
	}
	if orch.VerificationHook != "custom" {
		t.Errorf("expected verification_hook 'custom', got %s", orch.VerificationHook)
	}
}

func TestConfig_DefaultsWithoutFile(t *testing.T) {
	cfg := New()
	sub := cfg.Agents.Defaults.Subagents
	if sub.ArchiveAfterMinutes != 60 {
		t.Errorf("expected default archive_after_minutes 60, got %d", sub.ArchiveAfterMinutes)
	}
	if sub.Orchestration.MaxRetries != 3 {
		t.Errorf("expected default max_retries 3, got %d", sub.Orchestration.MaxRetries)
	}
	if sub.Orchestration.BackoffMultiplier != 2 {
		t.Errorf("expected default backoff_multiplier 2, got %v", sub.Orchestration.BackoffMultiplier)
	}
	if !sub.Orchestration.RetryOnVerificationFailure {
		t.Error("expected default retry_on_verification_failure true")
	}
}

func TestConfig_LoadDefault_MissingFileIsNotError(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd)
	os.Chdir(tmpDir)

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("expected no error for missing config, got %v", err)
	}
	if cfg.Agents.Defaults.Subagents.ArchiveAfterMinutes != 60 {
		t.Error("expected hard-coded defaults when no file present")
	}
}

func TestStateDir_EnvOverride(t *testing.T) {
	os.Setenv(StateDirEnv, "/tmp/custom-state")
	defer os.Unsetenv(StateDirEnv)

	dir, err := StateDir()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir != "/tmp/custom-state" {
		t.Errorf("expected env override, got %s", dir)
	}
}

func TestRunsFilePath(t *testing.T) {
	got := RunsFilePath("/state")
	want := filepath.Join("/state", "subagents", "runs.json")
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
