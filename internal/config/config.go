// Package config loads the sessiond configuration from a YAML file with
// environment overrides for deployment-injected values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" parse directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full sessiond configuration.
type Config struct {
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"log_level"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	LiveKit struct {
		URL           string   `yaml:"url"`
		APIKey        string   `yaml:"api_key"`
		APISecret     string   `yaml:"api_secret"`
		TokenTTL      Duration `yaml:"token_ttl"`
		DeleteTimeout Duration `yaml:"delete_timeout"`
	} `yaml:"livekit"`

	Chat struct {
		BaseURL string   `yaml:"base_url"`
		Timeout Duration `yaml:"timeout"`
	} `yaml:"chat"`

	Directory struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"directory"`

	Retry struct {
		Interval    Duration `yaml:"interval"`
		Backoff     Duration `yaml:"backoff"`
		MaxAttempts int      `yaml:"max_attempts"`
	} `yaml:"retry"`
}

// Default returns a configuration that boots against local services.
func Default() Config {
	var cfg Config
	cfg.Listen = ":8080"
	cfg.LogLevel = "info"
	cfg.Redis.Addr = "localhost:6379"
	cfg.LiveKit.URL = "http://localhost:7880"
	cfg.LiveKit.TokenTTL = Duration(6 * time.Hour)
	cfg.LiveKit.DeleteTimeout = Duration(5 * time.Second)
	cfg.Chat.BaseURL = "http://localhost:8081"
	cfg.Chat.Timeout = Duration(10 * time.Second)
	cfg.Directory.BaseURL = "http://localhost:8082"
	cfg.Retry.Interval = Duration(30 * time.Second)
	cfg.Retry.Backoff = Duration(time.Minute)
	cfg.Retry.MaxAttempts = 5
	return cfg
}

// Load reads the config file at path (if it exists) over the defaults, then
// applies environment overrides. A missing file is not an error; a malformed
// one is.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults + env only.
	default:
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv maps SESSIOND_* variables onto the fields deployments typically
// inject (addresses and credentials).
func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	set(&cfg.Listen, "SESSIOND_LISTEN")
	set(&cfg.LogLevel, "SESSIOND_LOG_LEVEL")
	set(&cfg.Redis.Addr, "SESSIOND_REDIS_ADDR")
	set(&cfg.Redis.Password, "SESSIOND_REDIS_PASSWORD")
	set(&cfg.LiveKit.URL, "SESSIOND_LIVEKIT_URL")
	set(&cfg.LiveKit.APIKey, "SESSIOND_LIVEKIT_API_KEY")
	set(&cfg.LiveKit.APISecret, "SESSIOND_LIVEKIT_API_SECRET")
	set(&cfg.Chat.BaseURL, "SESSIOND_CHAT_BASE_URL")
	set(&cfg.Directory.BaseURL, "SESSIOND_DIRECTORY_BASE_URL")
}
