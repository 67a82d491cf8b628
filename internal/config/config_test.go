package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: "9090"
  public_url: https://quiz.example.com
redis:
  addr: localhost:6379
events:
  kafka_brokers: [kafka:9092]
session:
  countdown: 0
  xlsx: true
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Server.PublicURL != "https://quiz.example.com" {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Session.Countdown != 0 || !cfg.Session.XLSX {
		t.Fatalf("unexpected session config %+v", cfg.Session)
	}
	if cfg.Quiz.TTL != "10m" || cfg.Logging.Level != "info" || cfg.Events.Topic != "quizroom.sessions" {
		t.Fatalf("defaults not kept: %+v", cfg)
	}
	if len(cfg.Events.KafkaBrokers) != 1 || cfg.Events.KafkaBrokers[0] != "kafka:9092" {
		t.Fatalf("unexpected brokers %v", cfg.Events.KafkaBrokers)
	}
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	if _, err := Load(missing, false); err == nil {
		t.Fatalf("expected error for missing required file")
	}
	cfg, err := Load(missing, true)
	if err != nil {
		t.Fatalf("optional missing file: %v", err)
	}
	if cfg.Session.Countdown != 7 {
		t.Fatalf("expected default countdown, got %d", cfg.Session.Countdown)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("quiz:\n  ttl: soon\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path, false); err == nil {
		t.Fatalf("expected invalid ttl to be rejected")
	}
}

func TestDuration(t *testing.T) {
	if got := Duration("", time.Minute); got != time.Minute {
		t.Fatalf("empty: got %v", got)
	}
	if got := Duration("90s", time.Minute); got != 90*time.Second {
		t.Fatalf("parsed: got %v", got)
	}
	if got := Duration("bogus", time.Minute); got != time.Minute {
		t.Fatalf("invalid: got %v", got)
	}
}
