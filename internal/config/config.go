// Package config manages application configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/clitic/music/internal/aggregator"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "music.yaml"

// ErrMissingAPIKey is returned when a command needs the API but YT_API_KEY
// is not set.
var ErrMissingAPIKey = errors.New("YT_API_KEY is not set - create an API key in the Google Cloud console and export it or put it in .env")

// Snapshot backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	APIKey     string `yaml:"api_key"`
	APIURL     string `yaml:"api_url"`
	CategoryID string `yaml:"category_id"`
	MaxResults int    `yaml:"max_results"`
	MaxPages   int    `yaml:"max_pages"`

	Mode        aggregator.Mode `yaml:"mode"`
	MinRegions  int             `yaml:"min_regions"`
	Concurrency int             `yaml:"concurrency"`
	HTTPTimeout time.Duration   `yaml:"http_timeout"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Snapshot SnapshotConfig `yaml:"snapshot"`
	Notify   NotifyConfig   `yaml:"notify"`
	Report   ReportConfig   `yaml:"report"`
}

// SnapshotConfig selects and configures the snapshot backend.
type SnapshotConfig struct {
	Backend       string `yaml:"backend"`
	Dir           string `yaml:"dir"`
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPrefix   string `yaml:"redis_prefix"`
	IgnoreCorrupt bool   `yaml:"ignore_corrupt"`
}

// NotifyConfig configures new-video notifications. An empty NATSURL
// disables them.
type NotifyConfig struct {
	NATSURL   string `yaml:"nats_url"`
	Subject   string `yaml:"subject"`
	JetStream bool   `yaml:"jetstream"`
}

// ReportConfig configures the markdown report. An empty MarkdownPath
// disables it.
type ReportConfig struct {
	MarkdownPath string `yaml:"markdown_path"`
	Top          int    `yaml:"top"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		APIURL:      "https://www.googleapis.com",
		CategoryID:  "10",
		MaxResults:  50,
		MaxPages:    1,
		Mode:        aggregator.ModeFrequency,
		MinRegions:  aggregator.DefaultMinRegions,
		Concurrency: 4,
		HTTPTimeout: 30 * time.Second,
		LogLevel:    "info",
		LogFormat:   "text",
		Snapshot: SnapshotConfig{
			Backend:     BackendFile,
			Dir:         ".",
			SQLitePath:  "music.db",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "music",
		},
		Notify: NotifyConfig{
			Subject: "music.trending.new",
		},
		Report: ReportConfig{
			Top: 10,
		},
	}
}

// LoadOptions tells Load where to look.
type LoadOptions struct {
	// Path is an explicit config file. When empty MUSIC_CONFIG is used,
	// then DefaultFile if it exists.
	Path string
	// DotEnv is a .env file loaded before reading the environment. Variables
	// already set are not overridden. Missing files are ignored.
	DotEnv string
}

// Load builds the configuration.
// Priority: env vars > config file > defaults. Flags are applied by the
// caller afterwards.
func Load(opts LoadOptions) (*Config, error) {
	if opts.DotEnv != "" {
		if err := godotenv.Load(opts.DotEnv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", opts.DotEnv, err)
		}
	}

	cfg := DefaultConfig()

	path, required := opts.Path, true
	if path == "" {
		path = os.Getenv("MUSIC_CONFIG")
	}
	if path == "" {
		path, required = DefaultFile, false
	}
	if err := cfg.loadFromFile(path); err != nil {
		if required || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadFromEnv overrides config with environment variables.
func (c *Config) loadFromEnv() error {
	strs := map[string]*string{
		"MUSIC_API_URL":          &c.APIURL,
		"MUSIC_CATEGORY_ID":      &c.CategoryID,
		"MUSIC_LOG_LEVEL":        &c.LogLevel,
		"MUSIC_LOG_FORMAT":       &c.LogFormat,
		"MUSIC_SNAPSHOT_BACKEND": &c.Snapshot.Backend,
		"MUSIC_SNAPSHOT_DIR":     &c.Snapshot.Dir,
		"MUSIC_SQLITE_PATH":      &c.Snapshot.SQLitePath,
		"MUSIC_REDIS_ADDR":       &c.Snapshot.RedisAddr,
		"MUSIC_REDIS_PREFIX":     &c.Snapshot.RedisPrefix,
		"MUSIC_NATS_URL":         &c.Notify.NATSURL,
		"MUSIC_NATS_SUBJECT":     &c.Notify.Subject,
		"MUSIC_REPORT_MARKDOWN":  &c.Report.MarkdownPath,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("YT_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("MUSIC_MODE"); v != "" {
		c.Mode = aggregator.Mode(v)
	}

	ints := map[string]*int{
		"MUSIC_MAX_RESULTS": &c.MaxResults,
		"MUSIC_MAX_PAGES":   &c.MaxPages,
		"MUSIC_MIN_REGIONS": &c.MinRegions,
		"MUSIC_CONCURRENCY": &c.Concurrency,
		"MUSIC_REPORT_TOP":  &c.Report.Top,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %q is not an integer", key, v)
			}
			*dst = n
		}
	}

	if v := os.Getenv("MUSIC_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MUSIC_HTTP_TIMEOUT: %w", err)
		}
		c.HTTPTimeout = d
	}

	bools := map[string]*bool{
		"MUSIC_IGNORE_CORRUPT": &c.Snapshot.IgnoreCorrupt,
		"MUSIC_NATS_JETSTREAM": &c.Notify.JetStream,
	}
	for key, dst := range bools {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %q is not a boolean", key, v)
			}
			*dst = b
		}
	}
	return nil
}

// Validate checks configuration validity. It does not require an API key;
// commands that call the API use RequireAPIKey.
func (c *Config) Validate() error {
	mode, err := aggregator.ParseMode(string(c.Mode))
	if err != nil {
		return err
	}
	c.Mode = mode

	if c.MinRegions < 1 {
		return fmt.Errorf("min_regions must be at least 1")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if c.MaxResults < 1 || c.MaxResults > 50 {
		return fmt.Errorf("max_results must be between 1 and 50")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max_pages must be non-negative")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive")
	}
	if c.APIURL == "" {
		return fmt.Errorf("api_url must not be empty")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}

	switch c.Snapshot.Backend {
	case BackendFile:
		if c.Snapshot.Dir == "" {
			return fmt.Errorf("snapshot.dir must not be empty")
		}
	case BackendSQLite:
		if c.Snapshot.SQLitePath == "" {
			return fmt.Errorf("snapshot.sqlite_path must not be empty")
		}
	case BackendRedis:
		if c.Snapshot.RedisAddr == "" {
			return fmt.Errorf("snapshot.redis_addr must not be empty")
		}
	default:
		return fmt.Errorf("snapshot.backend must be file, sqlite or redis, got %q", c.Snapshot.Backend)
	}

	if c.Notify.NATSURL != "" && c.Notify.Subject == "" {
		return fmt.Errorf("notify.subject must not be empty when notify.nats_url is set")
	}
	if c.Report.Top < 0 {
		return fmt.Errorf("report.top must be non-negative")
	}
	return nil
}

// RequireAPIKey returns ErrMissingAPIKey when no key is configured.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
}

// Masked returns a copy safe to print: the API key is reduced to its last
// four characters.
func (c *Config) Masked() Config {
	out := *c
	switch n := len(out.APIKey); {
	case n == 0:
	case n <= 4:
		out.APIKey = "****"
	default:
		out.APIKey = "****" + out.APIKey[n-4:]
	}
	return out
}

// YAML renders the masked configuration as YAML.
func (c *Config) YAML() (string, error) {
	m := c.Masked()
	data, err := yaml.Marshal(&m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
