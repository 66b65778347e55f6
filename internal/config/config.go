// Package config gathers calsync settings from an optional YAML file and
// CALSYNC_* environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort       = "8080"
	defaultDBPath     = "calsync.db"
	defaultSyncCron   = "*/15 * * * *"
	defaultMaxResults = 2500
)

// Config is the process configuration.
type Config struct {
	Port      string `yaml:"port"`
	DBPath    string `yaml:"db_path"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// SyncCron is the five-field schedule for SyncAll. Empty disables
	// scheduled syncs.
	SyncCron string `yaml:"sync_cron"`

	// MetadataPath, when set, keeps sync metadata in a JSON file instead of
	// the database.
	MetadataPath string `yaml:"metadata_path"`

	GoogleCredentials string `yaml:"google_credentials"`
	GoogleToken       string `yaml:"google_token"`

	MaxResults         int64 `yaml:"max_results"`
	FullSyncPastDays   int   `yaml:"full_sync_past_days"`
	FullSyncFutureDays int   `yaml:"full_sync_future_days"`

	// WSOrigins lists accepted websocket origin patterns. Empty accepts all.
	WSOrigins []string `yaml:"ws_origins"`

	// SyncRateLimit caps manual sync triggers per client per minute.
	SyncRateLimit int `yaml:"sync_rate_limit"`
}

// LookupFunc reads one environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:          defaultPort,
		DBPath:        defaultDBPath,
		LogLevel:      "info",
		LogFormat:     "text",
		SyncCron:      defaultSyncCron,
		MaxResults:    defaultMaxResults,
		SyncRateLimit: 6,
	}
}

// Normalize replaces missing or out-of-range values with defaults.
func (c *Config) Normalize() {
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.DBPath == "" {
		c.DBPath = defaultDBPath
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
		c.LogFormat = strings.ToLower(c.LogFormat)
	default:
		c.LogFormat = "text"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.SyncCron = strings.TrimSpace(c.SyncCron)
	if c.MaxResults <= 0 || c.MaxResults > defaultMaxResults {
		c.MaxResults = defaultMaxResults
	}
	if c.FullSyncPastDays < 0 {
		c.FullSyncPastDays = 0
	}
	if c.FullSyncFutureDays < 0 {
		c.FullSyncFutureDays = 0
	}
	if c.SyncRateLimit <= 0 {
		c.SyncRateLimit = 6
	}
}

// Validate reports settings the process cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.GoogleCredentials == "" {
		errs = append(errs, errors.New("CALSYNC_GOOGLE_CREDENTIALS is required"))
	}
	if c.GoogleToken == "" {
		errs = append(errs, errors.New("CALSYNC_GOOGLE_TOKEN is required"))
	}
	return errors.Join(errs...)
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is set and the file exists), then environment overrides.
func Load(path string, lookup LookupFunc) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	if lookup == nil {
		return nil
	}

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("CALSYNC_PORT", &c.Port)
	str("CALSYNC_DB_PATH", &c.DBPath)
	str("CALSYNC_LOG_LEVEL", &c.LogLevel)
	str("CALSYNC_LOG_FORMAT", &c.LogFormat)
	str("CALSYNC_SYNC_CRON", &c.SyncCron)
	str("CALSYNC_METADATA_PATH", &c.MetadataPath)
	str("CALSYNC_GOOGLE_CREDENTIALS", &c.GoogleCredentials)
	str("CALSYNC_GOOGLE_TOKEN", &c.GoogleToken)

	if v, ok := lookup("CALSYNC_WS_ORIGINS"); ok {
		c.WSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.WSOrigins = append(c.WSOrigins, o)
			}
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"CALSYNC_FULL_SYNC_PAST_DAYS", &c.FullSyncPastDays},
		{"CALSYNC_FULL_SYNC_FUTURE_DAYS", &c.FullSyncFutureDays},
		{"CALSYNC_SYNC_RATE_LIMIT", &c.SyncRateLimit},
	}
	for _, it := range ints {
		v, ok := lookup(it.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", it.key, err)
		}
		*it.dst = n
	}

	if v, ok := lookup("CALSYNC_MAX_RESULTS"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("CALSYNC_MAX_RESULTS: %w", err)
		}
		c.MaxResults = n
	}
	return nil
}
