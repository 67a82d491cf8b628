package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		// PublicURL is the base URL participants use to reach this server.
		PublicURL string `yaml:"public_url"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
		Dir string `yaml:"dir"`
	} `yaml:"quiz"`
	Events struct {
		KafkaBrokers []string `yaml:"kafka_brokers"`
		Topic        string   `yaml:"topic"`
	} `yaml:"events"`
	Session struct {
		Countdown  int    `yaml:"countdown"`
		ResultsDir string `yaml:"results_dir"`
		XLSX       bool   `yaml:"xlsx"`
	} `yaml:"session"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Redis.TTL = "2h"
	cfg.Quiz.TTL = "10m"
	cfg.Quiz.Dir = "quizzes"
	cfg.Events.Topic = "quizroom.sessions"
	cfg.Session.Countdown = 7
	cfg.Session.ResultsDir = "results"
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	return cfg
}

// Load reads YAML config from path over the defaults. An empty path, or a
// missing file when optional is set, yields the defaults.
func Load(path string, optional bool) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects values that would fail later in a less obvious place.
func (c Config) Validate() error {
	if c.Session.Countdown < 0 {
		return fmt.Errorf("session.countdown must not be negative: %d", c.Session.Countdown)
	}
	for name, raw := range map[string]string{"redis.ttl": c.Redis.TTL, "quiz.ttl": c.Quiz.TTL} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json: %q", c.Logging.Format)
	}
	return nil
}

// Duration parses a duration string or returns the fallback if empty.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
