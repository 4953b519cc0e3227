package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("REVEAL_REPEAT", "")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.StoreBackend != "local" {
		t.Errorf("StoreBackend = %q", cfg.StoreBackend)
	}
	if cfg.SaveAttempts != 3 {
		t.Errorf("SaveAttempts = %d", cfg.SaveAttempts)
	}
	if cfg.RevealRepeat != 0 {
		t.Errorf("RevealRepeat = %v", cfg.RevealRepeat)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("REVEAL_REPEAT", "300ms")
	t.Setenv("PATH_FOLD_CASE", "true")
	t.Setenv("PATH_RESERVED_NAMES", "node_modules, .git ,")
	t.Setenv("SAVE_ATTEMPTS", "not-a-number")
	t.Setenv("RATE_LIMIT_RPM", "120")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RevealRepeat != 300*time.Millisecond {
		t.Errorf("RevealRepeat = %v", cfg.RevealRepeat)
	}
	if !cfg.FoldCase {
		t.Error("FoldCase not set")
	}
	if len(cfg.ReservedNames) != 2 || cfg.ReservedNames[1] != ".git" {
		t.Errorf("ReservedNames = %q", cfg.ReservedNames)
	}
	if cfg.SaveAttempts != 3 {
		t.Errorf("bad int should fall back, got %d", cfg.SaveAttempts)
	}
	if cfg.RateLimitRPM != 120 {
		t.Errorf("RateLimitRPM = %d", cfg.RateLimitRPM)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Error("postgres without DATABASE_URL should fail")
	}

	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("RATE_LIMIT_RPM", "-1")
	if _, err := Load(); err == nil {
		t.Error("negative RATE_LIMIT_RPM should fail")
	}
	t.Setenv("RATE_LIMIT_RPM", "")

	t.Setenv("STORE_BACKEND", "floppy")
	if _, err := Load(); err == nil {
		t.Error("unknown backend should fail")
	}
}
