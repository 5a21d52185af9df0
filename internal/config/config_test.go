package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("default port = %d", cfg.Port)
	}
	if cfg.RematchDelay != 1500*time.Millisecond {
		t.Fatalf("default rematch delay = %v", cfg.RematchDelay)
	}
	if cfg.RematchMaxDelay <= cfg.RematchDelay {
		t.Fatalf("backoff cap %v not above base %v", cfg.RematchMaxDelay, cfg.RematchDelay)
	}
	if len(cfg.StunURLs) == 0 {
		t.Fatalf("no default STUN servers")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("CONFIG_ENV", "test")

	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := "port: 9999\nrelay_url: ws://example.test/api/ws\nrematch_delay: 3s\n"
	if err := os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9999 || cfg.RelayURL != "ws://example.test/api/ws" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.RematchDelay != 3*time.Second {
		t.Fatalf("rematch_delay = %v, want 3s", cfg.RematchDelay)
	}
	// Untouched keys keep their defaults.
	if cfg.PingPeriod != 54*time.Second {
		t.Fatalf("ping_period default lost: %v", cfg.PingPeriod)
	}
}
