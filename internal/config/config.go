// Package config loads eventindexer configuration.
//
// Values are applied in order of increasing precedence:
//  1. Hardcoded defaults (NewConfig)
//  2. YAML file (--config, or .eventindexer.yaml in the working directory)
//  3. Environment variables (ES_END_POINT, DAYS_TO_KEEP_INDEX, EVENTINDEXER_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/eventindexer/internal/errors"
	"github.com/Aman-CERP/eventindexer/internal/partition"
)

// ProjectFileNames are the config file names looked up in the working
// directory when no explicit path is given, in order.
var ProjectFileNames = []string{".eventindexer.yaml", ".eventindexer.yml"}

// Blob providers.
const (
	ProviderFile = "file"
	ProviderGCS  = "gcs"
)

// Config is the full eventindexer configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Partition PartitionConfig `yaml:"partition" json:"partition"`
	Retention RetentionConfig `yaml:"retention" json:"retention"`
	Blob      BlobConfig      `yaml:"blob" json:"blob"`
	Decode    DecodeConfig    `yaml:"decode" json:"decode"`
	Ledger    LedgerConfig    `yaml:"ledger" json:"ledger"`
	Watch     WatchConfig     `yaml:"watch" json:"watch"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`

	// source is the file the config was read from, empty for defaults only.
	source string
}

// SearchConfig locates the partition indexes.
type SearchConfig struct {
	// Endpoint is a directory holding one index per partition, or mem://.
	Endpoint       string `yaml:"endpoint" json:"endpoint"`
	OpenIndexCache int    `yaml:"open_index_cache" json:"open_index_cache"`
	// OpenTimeout bounds the wait for a partition another process holds open.
	OpenTimeout string `yaml:"open_timeout" json:"open_timeout"`
}

// PartitionConfig controls partition naming.
type PartitionConfig struct {
	Prefix        string `yaml:"prefix" json:"prefix"`
	DateBucketLen int    `yaml:"date_bucket_len" json:"date_bucket_len"`
}

// RetentionConfig controls the sweeper.
type RetentionConfig struct {
	DaysToKeep int `yaml:"days_to_keep" json:"days_to_keep"`
}

// BlobConfig selects where event objects are read from.
type BlobConfig struct {
	Provider string `yaml:"provider" json:"provider"`
	// Root is the local directory holding <bucket>/<key> for the file provider.
	Root string `yaml:"root" json:"root"`
}

// DecodeConfig bounds the line decoder.
type DecodeConfig struct {
	MaxLineBytes int `yaml:"max_line_bytes" json:"max_line_bytes"`
}

// LedgerConfig controls the ingest audit ledger.
type LedgerConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// WatchConfig tunes the object watcher.
type WatchConfig struct {
	Debounce string `yaml:"debounce" json:"debounce"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig returns a configuration with all defaults applied.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			Endpoint:       "./data/indices",
			OpenIndexCache: 16,
			OpenTimeout:    "5s",
		},
		Partition: PartitionConfig{
			Prefix:        partition.DefaultPrefix,
			DateBucketLen: partition.DefaultBucketTokenLen,
		},
		Retention: RetentionConfig{
			DaysToKeep: 7,
		},
		Blob: BlobConfig{
			Provider: ProviderFile,
			Root:     "./data/blobs",
		},
		Decode: DecodeConfig{
			MaxLineBytes: 4 * 1024 * 1024,
		},
		Ledger: LedgerConfig{
			Enabled: true,
			Path:    "./data/ledger.db",
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// Load builds the configuration. An explicit path must exist; otherwise the
// project file names are looked up in dir and a missing file is fine.
func Load(dir, path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		if !fileExists(path) {
			return nil, errors.New(errors.ErrCodeConfigNotFound,
				fmt.Sprintf("config file %s not found", path), nil).
				WithSuggestion("Run 'eventindexer config init' to create one")
		}
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	} else if found := findProjectFile(dir); found != "" {
		if err := cfg.loadYAML(found); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Source returns the file the configuration was read from, or "".
func (c *Config) Source() string {
	return c.source
}

func findProjectFile(dir string) string {
	for _, name := range ProjectFileNames {
		p := filepath.Join(dir, name)
		if fileExists(p) {
			return p
		}
	}
	return ""
}

// loadYAML reads a YAML file over the current values. Keys absent from the
// file keep their current value; keys present, including zeros, replace it.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.ConfigError(fmt.Sprintf("failed to read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err).
			WithDetail("path", path)
	}
	c.source = path
	return nil
}

func (c *Config) applyEnvOverrides() {
	// Names used by the original deployment come first so the
	// EVENTINDEXER_* forms win when both are set.
	if v := os.Getenv("ES_END_POINT"); v != "" {
		c.Search.Endpoint = v
	}
	if v := os.Getenv("EVENTINDEXER_ENDPOINT"); v != "" {
		c.Search.Endpoint = v
	}
	if v := os.Getenv("DAYS_TO_KEEP_INDEX"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			c.Retention.DaysToKeep = n
		}
	}
	if v := os.Getenv("EVENTINDEXER_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			c.Retention.DaysToKeep = n
		}
	}
	if v := os.Getenv("EVENTINDEXER_BLOB_PROVIDER"); v != "" {
		c.Blob.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("EVENTINDEXER_BLOB_ROOT"); v != "" {
		c.Blob.Root = v
	}
	if v := os.Getenv("EVENTINDEXER_LEDGER_PATH"); v != "" {
		c.Ledger.Path = v
	}
	if v := os.Getenv("EVENTINDEXER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		err := errors.ConfigError(fmt.Sprintf(format, args...), nil)
		if c.source != "" {
			err = err.WithDetail("path", c.source)
		}
		return err
	}

	if strings.TrimSpace(c.Search.Endpoint) == "" {
		return invalid("search.endpoint must not be empty")
	}
	if c.Search.OpenIndexCache <= 0 {
		return invalid("search.open_index_cache must be positive, got %d", c.Search.OpenIndexCache)
	}
	if c.Partition.Prefix == "" {
		return invalid("partition.prefix must not be empty")
	}
	if c.Partition.Prefix != strings.ToLower(c.Partition.Prefix) {
		return invalid("partition.prefix must be lowercase, got %s", c.Partition.Prefix)
	}
	if c.Partition.DateBucketLen < 0 {
		return invalid("partition.date_bucket_len must be non-negative, got %d", c.Partition.DateBucketLen)
	}
	if c.Retention.DaysToKeep < 0 || c.Retention.DaysToKeep > partition.MaxRetentionDays {
		return invalid("retention.days_to_keep must be between 0 and %d, got %d", partition.MaxRetentionDays, c.Retention.DaysToKeep)
	}

	switch c.Blob.Provider {
	case ProviderFile:
		if c.Blob.Root == "" {
			return invalid("blob.root is required for the file provider")
		}
	case ProviderGCS:
	default:
		return invalid("blob.provider must be 'file' or 'gcs', got %s", c.Blob.Provider)
	}

	if c.Decode.MaxLineBytes <= 0 {
		return invalid("decode.max_line_bytes must be positive, got %d", c.Decode.MaxLineBytes)
	}
	if c.Ledger.Enabled && c.Ledger.Path == "" {
		return invalid("ledger.path is required when the ledger is enabled")
	}
	if _, err := c.DebounceWindow(); err != nil {
		return invalid("watch.debounce: %v", err)
	}
	if d, err := c.OpenTimeout(); err != nil {
		return invalid("search.open_timeout: %v", err)
	} else if d == 0 {
		return invalid("search.open_timeout must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return invalid("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxFiles < 0 {
		return invalid("logging.max_size_mb and logging.max_files must be non-negative")
	}
	return nil
}

// DebounceWindow parses watch.debounce. An empty value means zero.
func (c *Config) DebounceWindow() (time.Duration, error) {
	return parseDuration(c.Watch.Debounce)
}

// OpenTimeout parses search.open_timeout. An empty value means zero.
func (c *Config) OpenTimeout() (time.Duration, error) {
	return parseDuration(c.Search.OpenTimeout)
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must be non-negative, got %s", d)
	}
	return d, nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
