// Package config loads avc configuration from a TOML file and AVC_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	AVCDir       = ".avc"
	ConfigFile   = "config.toml"
	DatabaseFile = "avc.db"
	BlobsDir     = "blobs"
)

// Storage backends.
const (
	BackendFS     = "fs"
	BackendBbolt  = "bbolt"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Search backends.
const (
	SearchNone          = "none"
	SearchWeaviate      = "weaviate"
	SearchElasticsearch = "elasticsearch"
)

// Config represents the avc configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Storage  StorageConfig  `toml:"storage"`
	Content  ContentConfig  `toml:"content"`
	Database DatabaseConfig `toml:"database"`
	Search   SearchConfig   `toml:"search"`
	Webhooks WebhooksConfig `toml:"webhooks"`
	Retry    RetryConfig    `toml:"retry"`

	path string // file the config was loaded from, if any
}

type ServerConfig struct {
	Listen            string `toml:"listen"`
	LogLevel          string `toml:"log_level"`
	LogFormat         string `toml:"log_format"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
	MaxRequestBody    int64  `toml:"max_request_body"`
}

type StorageConfig struct {
	Backend       string `toml:"backend"`
	DataDir       string `toml:"data_dir"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisPrefix   string `toml:"redis_prefix"`
}

type ContentConfig struct {
	Hash             string `toml:"hash"`
	Dedup            bool   `toml:"dedup"`
	SerializeUploads bool   `toml:"serialize_uploads"`
}

type DatabaseConfig struct {
	// Path of the sqlite file. Relative paths are resolved against the data
	// directory.
	Path string `toml:"path"`
}

type SearchConfig struct {
	Backend          string `toml:"backend"`
	WeaviateURL      string `toml:"weaviate_url"`
	ElasticsearchURL string `toml:"elasticsearch_url"`
	Index            string `toml:"index"`
}

type WebhooksConfig struct {
	URLs []string `toml:"urls"`
}

// RetryConfig holds durations as strings ("500ms", "30s").
type RetryConfig struct {
	MaxRetries     int    `toml:"max_retries"`
	InitialBackoff string `toml:"initial_backoff"`
	MaxBackoff     string `toml:"max_backoff"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:            "127.0.0.1:8730",
			LogLevel:          "info",
			LogFormat:         "json",
			RequestsPerMinute: 300,
			MaxRequestBody:    16 * 1024 * 1024,
		},
		Storage: StorageConfig{
			Backend:     BackendFS,
			DataDir:     defaultDataDir(),
			RedisPrefix: "avc",
		},
		Content: ContentConfig{
			Hash:  "sha256",
			Dedup: true,
		},
		Database: DatabaseConfig{Path: DatabaseFile},
		Search:   SearchConfig{Backend: SearchNone},
		Retry: RetryConfig{
			MaxRetries:     3,
			InitialBackoff: "500ms",
			MaxBackoff:     "30s",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return AVCDir
	}
	return filepath.Join(home, AVCDir)
}

// FindConfigFile finds .avc/config.toml by walking up from the current
// directory. Returns "" if there is none.
func FindConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		p := filepath.Join(dir, AVCDir, ConfigFile)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Load reads the configuration. An explicit path must exist; with an empty
// path the nearest .avc/config.toml is used, or the defaults if there is
// none. Environment variables are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("AVC_CONFIG")
	}
	if path == "" {
		path = FindConfigFile()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		cfg.path = path
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// DatabasePath returns the absolute sqlite path.
func (c *Config) DatabasePath() string {
	if filepath.IsAbs(c.Database.Path) {
		return c.Database.Path
	}
	return filepath.Join(c.Storage.DataDir, c.Database.Path)
}

// BlobsPath returns where the fs and bbolt backends keep content.
func (c *Config) BlobsPath() string {
	if c.Storage.Backend == BackendBbolt {
		return filepath.Join(c.Storage.DataDir, "blobs.db")
	}
	return filepath.Join(c.Storage.DataDir, BlobsDir)
}

// Backoff returns the parsed retry durations.
func (c *Config) Backoff() (initial, maxBackoff time.Duration, err error) {
	initial, err = time.ParseDuration(c.Retry.InitialBackoff)
	if err != nil {
		return 0, 0, fmt.Errorf("retry.initial_backoff: %w", err)
	}
	maxBackoff, err = time.ParseDuration(c.Retry.MaxBackoff)
	if err != nil {
		return 0, 0, fmt.Errorf("retry.max_backoff: %w", err)
	}
	return initial, maxBackoff, nil
}

// Validate checks enumerated values and required fields.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case BackendFS, BackendBbolt, BackendMemory:
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			errs = append(errs, errors.New("storage.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}

	switch c.Content.Hash {
	case "sha256", "blake3":
	default:
		errs = append(errs, fmt.Errorf("unknown content.hash %q", c.Content.Hash))
	}

	switch c.Search.Backend {
	case SearchNone, "":
	case SearchWeaviate:
		if c.Search.WeaviateURL == "" {
			errs = append(errs, errors.New("search.weaviate_url is required for the weaviate backend"))
		}
	case SearchElasticsearch:
		if c.Search.ElasticsearchURL == "" {
			errs = append(errs, errors.New("search.elasticsearch_url is required for the elasticsearch backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown search.backend %q", c.Search.Backend))
	}

	switch c.Server.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown server.log_format %q", c.Server.LogFormat))
	}

	if c.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("retry.max_retries must not be negative"))
	}
	if _, _, err := c.Backoff(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// applyEnv overrides fields from AVC_* environment variables.
func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("AVC_LISTEN", &c.Server.Listen)
	str("AVC_LOG_LEVEL", &c.Server.LogLevel)
	str("AVC_LOG_FORMAT", &c.Server.LogFormat)
	str("AVC_STORAGE_BACKEND", &c.Storage.Backend)
	str("AVC_DATA_DIR", &c.Storage.DataDir)
	str("AVC_REDIS_ADDR", &c.Storage.RedisAddr)
	str("AVC_REDIS_PASSWORD", &c.Storage.RedisPassword)
	str("AVC_REDIS_PREFIX", &c.Storage.RedisPrefix)
	str("AVC_CONTENT_HASH", &c.Content.Hash)
	str("AVC_DATABASE_PATH", &c.Database.Path)
	str("AVC_SEARCH_BACKEND", &c.Search.Backend)
	str("AVC_WEAVIATE_URL", &c.Search.WeaviateURL)
	str("AVC_ELASTICSEARCH_URL", &c.Search.ElasticsearchURL)
	str("AVC_SEARCH_INDEX", &c.Search.Index)

	if v := os.Getenv("AVC_WEBHOOK_URLS"); v != "" {
		c.Webhooks.URLs = splitList(v)
	}

	for key, dst := range map[string]*bool{
		"AVC_CONTENT_DEDUP":     &c.Content.Dedup,
		"AVC_SERIALIZE_UPLOADS": &c.Content.SerializeUploads,
	} {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}

	for key, dst := range map[string]*int{
		"AVC_REDIS_DB":            &c.Storage.RedisDB,
		"AVC_REQUESTS_PER_MINUTE": &c.Server.RequestsPerMinute,
	} {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	return nil
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
