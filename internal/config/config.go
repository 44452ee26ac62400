// Package config loads the sync backend configuration from YAML with
// environment overrides.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/leobar37/leobit2-sub001/internal/errors"
)

type Config struct {
	App struct {
		Name string `yaml:"name"`
		Env  string `yaml:"env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Storage struct {
		DataDir string `yaml:"data_dir"`
	} `yaml:"storage"`

	Remote struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
		Token   string        `yaml:"token"`
	} `yaml:"remote"`

	Sync struct {
		Interval            time.Duration `yaml:"interval"`
		BatchSize           int           `yaml:"batch_size"`
		PullLimit           int           `yaml:"pull_limit"`
		MaxRetries          int           `yaml:"max_retries"`
		CycleTimeout        time.Duration `yaml:"cycle_timeout"`
		MissingResultPolicy string        `yaml:"missing_result_policy"` // success | retry
	} `yaml:"sync"`

	Connectivity struct {
		ProbeInterval time.Duration `yaml:"probe_interval"`
		ProbeTimeout  time.Duration `yaml:"probe_timeout"`
	} `yaml:"connectivity"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// Load reads path, applies defaults and environment overrides. An empty
// path skips the file.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrConfig, "failed to read config file", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrConfig, "failed to parse config file", err)
		}
	}

	c.applyEnvOverrides()
	c.applyDefaults()
	return &c, nil
}

// sane defaults
func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "leobit-sync"
	}
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "./data"
	}
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = 30 * time.Second
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 30 * time.Second
	}
	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = 50
	}
	if c.Sync.PullLimit == 0 {
		c.Sync.PullLimit = 100
	}
	if c.Sync.MaxRetries == 0 {
		c.Sync.MaxRetries = 5
	}
	if c.Sync.CycleTimeout == 0 {
		c.Sync.CycleTimeout = 2 * time.Minute
	}
	if c.Sync.MissingResultPolicy == "" {
		c.Sync.MissingResultPolicy = "success"
	}
	if c.Connectivity.ProbeInterval == 0 {
		c.Connectivity.ProbeInterval = 15 * time.Second
	}
	if c.Connectivity.ProbeTimeout == 0 {
		c.Connectivity.ProbeTimeout = 5 * time.Second
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8787"
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := getEnvStr("DATA_DIR"); ok {
		c.Storage.DataDir = v
	}

	if v, ok := getEnvStr("SYNC_REMOTE_URL"); ok {
		c.Remote.BaseURL = v
	}
	if v, ok := getEnvDur("SYNC_REMOTE_TIMEOUT"); ok {
		c.Remote.Timeout = v
	}
	if v, ok := getEnvStr("SYNC_REMOTE_TOKEN"); ok {
		c.Remote.Token = v
	}

	if v, ok := getEnvDur("SYNC_INTERVAL"); ok {
		c.Sync.Interval = v
	}
	if v, ok := getEnvInt("SYNC_BATCH_SIZE"); ok {
		c.Sync.BatchSize = v
	}
	if v, ok := getEnvInt("SYNC_MAX_RETRIES"); ok {
		c.Sync.MaxRetries = v
	}
	if v, ok := getEnvStr("SYNC_MISSING_RESULT_POLICY"); ok {
		c.Sync.MissingResultPolicy = strings.ToLower(v)
	}

	if v, ok := getEnvStr("HTTP_ADDR"); ok {
		c.Server.Addr = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(msg string) error {
		return apperrors.New(apperrors.ErrConfig, msg)
	}

	switch c.App.Env {
	case "dev", "test", "prod":
	default:
		return invalid("app.env must be dev, test or prod")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level must be debug, info, warn or error")
	}
	if c.Sync.Interval < time.Second {
		return invalid("sync.interval must be at least 1s")
	}
	if c.Sync.BatchSize < 1 || c.Sync.BatchSize > 1000 {
		return invalid("sync.batch_size must be between 1 and 1000")
	}
	if c.Sync.PullLimit < 1 || c.Sync.PullLimit > 1000 {
		return invalid("sync.pull_limit must be between 1 and 1000")
	}
	if c.Sync.MaxRetries < 1 {
		return invalid("sync.max_retries must be positive")
	}
	if c.Sync.CycleTimeout <= 0 {
		return invalid("sync.cycle_timeout must be positive")
	}
	switch c.Sync.MissingResultPolicy {
	case "success", "retry":
	default:
		return invalid("sync.missing_result_policy must be success or retry")
	}
	if c.Remote.BaseURL != "" && !strings.HasPrefix(c.Remote.BaseURL, "http://") && !strings.HasPrefix(c.Remote.BaseURL, "https://") {
		return invalid("remote.base_url must be an http(s) URL")
	}
	return nil
}
