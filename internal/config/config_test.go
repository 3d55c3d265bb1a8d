package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.AssetPolicy != "fail_fast" {
		t.Errorf("AssetPolicy = %q, want fail_fast", cfg.AssetPolicy)
	}
	if cfg.Retention.Std() != 24*time.Hour {
		t.Errorf("Retention = %v, want 24h", cfg.Retention.Std())
	}
	if cfg.Unit.MaxAttempts != 3 {
		t.Errorf("Unit.MaxAttempts = %d, want 3", cfg.Unit.MaxAttempts)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
max_retries: 5
asset_policy: partial
retention: 48h
unit:
  max_attempts: 2
  initial_delay: 500ms
  max_delay: 10s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.AssetPolicy != "partial" {
		t.Errorf("AssetPolicy = %q, want partial", cfg.AssetPolicy)
	}
	if cfg.Retention.Std() != 48*time.Hour {
		t.Errorf("Retention = %v, want 48h", cfg.Retention.Std())
	}
	if cfg.Unit.InitialDelay.Std() != 500*time.Millisecond {
		t.Errorf("InitialDelay = %v, want 500ms", cfg.Unit.InitialDelay.Std())
	}
	// Fields absent from the file keep defaults.
	if cfg.SweepCron != "*/10 * * * *" {
		t.Errorf("SweepCron = %q, want default", cfg.SweepCron)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "max_retries: 5\n")
	t.Setenv("PIPELINE_MAX_RETRIES", "1")
	t.Setenv("PIPELINE_ASSET_POLICY", "partial")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.MaxRetries != 1 {
		t.Errorf("MaxRetries = %d, want 1 (env wins)", cfg.MaxRetries)
	}
	if cfg.AssetPolicy != "partial" {
		t.Errorf("AssetPolicy = %q, want partial (env wins)", cfg.AssetPolicy)
	}
}

func TestLoad_InvalidPolicy(t *testing.T) {
	path := writeConfig(t, "asset_policy: sometimes\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown asset_policy")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "retention: tomorrow\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error for bad duration")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
