package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := "redis:\n  addr: localhost:6379\nsession:\n  tick: 500ms\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "quiz.db" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("expected redis addr, got %q", cfg.Redis.Addr)
	}
	if got := Duration(cfg.Session.Tick, time.Second); got != 500*time.Millisecond {
		t.Fatalf("expected 500ms tick, got %v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDuration(t *testing.T) {
	if got := Duration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %v", got)
	}
	if got := Duration("garbage", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for invalid, got %v", got)
	}
	if got := Duration("90s", time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %v", got)
	}
}
