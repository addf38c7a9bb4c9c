package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Sink names accepted in Config.Sinks.
const (
	SinkMongo = "mongo"
	SinkCSV   = "csv"
	SinkJSON  = "json"
)

// MongoConfig describes the document store holding crawled comments.
type MongoConfig struct {
	URI        string        `yaml:"uri"`
	Database   string        `yaml:"database"`
	Collection string        `yaml:"collection"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	AuthSource string        `yaml:"auth_source"`
	Timeout    time.Duration `yaml:"timeout"`
}

// AnalysisConfig tunes the text analytics.
type AnalysisConfig struct {
	StopwordsFile  string `yaml:"stopwords_file"`
	DictionaryFile string `yaml:"dictionary_file"`
	TopWords       int    `yaml:"top_words"`
	MinWordLength  int    `yaml:"min_word_length"`
}

// APIConfig configures the report server.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// Config holds crawler configuration.
type Config struct {
	StartURL           string         `yaml:"start_url"`
	MaxPages           int            `yaml:"max_pages"`
	Cookie             string         `yaml:"cookie"`
	Delay              time.Duration  `yaml:"delay"`
	Timeout            time.Duration  `yaml:"timeout"`
	MaxRetries         int            `yaml:"max_retries"`
	RetryBackoff       time.Duration  `yaml:"retry_backoff"`
	RetryBackoffMax    time.Duration  `yaml:"retry_backoff_max"`
	UserAgent          string         `yaml:"user_agent"`
	NextLabel          string         `yaml:"next_label"`
	PathMarker         string         `yaml:"path_marker"`
	StopOnPersistError bool           `yaml:"stop_on_persist_error"`
	DedupeMaxSize      int            `yaml:"dedupe_max_size"`
	Sinks              []string       `yaml:"sinks"`
	OutputFile         string         `yaml:"output_file"`
	MetricsAddr        string         `yaml:"metrics_addr"`
	Verbose            bool           `yaml:"verbose"`
	Mongo              MongoConfig    `yaml:"mongo"`
	Analysis           AnalysisConfig `yaml:"analysis"`
	API                APIConfig      `yaml:"api"`
}

// DefaultConfig returns conservative defaults for the review site.
func DefaultConfig() *Config {
	return &Config{
		MaxPages:        25,
		Delay:           2 * time.Second,
		Timeout:         5 * time.Second,
		MaxRetries:      5,
		RetryBackoff:    2 * time.Second,
		RetryBackoffMax: 2 * time.Second,
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		NextLabel:       "后页",
		PathMarker:      "comments",
		DedupeMaxSize:   10000,
		Sinks:           []string{SinkMongo},
		OutputFile:      "output/comments.jsonl",
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "douban",
			Timeout:  10 * time.Second,
		},
		Analysis: AnalysisConfig{
			TopWords:      50,
			MinWordLength: 2,
		},
		API: APIConfig{
			Addr: ":8080",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from REVIEWS_* environment variables.
func (c *Config) ApplyEnv() error {
	if value, ok := EnvString("REVIEWS_START_URL"); ok {
		c.StartURL = value
	}
	if value, ok, err := EnvInt("REVIEWS_PAGES"); err != nil {
		return fmt.Errorf("invalid REVIEWS_PAGES: %w", err)
	} else if ok {
		c.MaxPages = value
	}
	if value, ok := EnvString("REVIEWS_COOKIE"); ok {
		c.Cookie = value
	}
	if value, ok := EnvString("REVIEWS_MONGO_URI"); ok {
		c.Mongo.URI = value
	}
	if value, ok := EnvString("REVIEWS_DB"); ok {
		c.Mongo.Database = value
	}
	if value, ok := EnvString("REVIEWS_COLLECTION"); ok {
		c.Mongo.Collection = value
	}
	if value, ok := EnvString("REVIEWS_METRICS_ADDR"); ok {
		c.MetricsAddr = value
	}
	return nil
}

// HasSink reports whether name is one of the configured sinks.
func (c *Config) HasSink(name string) bool {
	for _, s := range c.Sinks {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// Validate ensures all crawl configuration values are coherent.
func (c *Config) Validate() error {
	if c.StartURL == "" {
		return fmt.Errorf("start URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.StartURL)
	if err != nil {
		return fmt.Errorf("invalid start URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("start URL must include a host")
	}
	if c.PathMarker == "" {
		return fmt.Errorf("path marker cannot be empty")
	}
	if !strings.Contains(c.StartURL, c.PathMarker) {
		return fmt.Errorf("start URL must contain path marker %q", c.PathMarker)
	}
	if c.NextLabel == "" {
		return fmt.Errorf("next label cannot be empty")
	}

	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.DedupeMaxSize < 0 {
		return fmt.Errorf("dedupe max size cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	if len(c.Sinks) == 0 {
		return fmt.Errorf("at least one sink is required")
	}
	seen := make(map[string]bool, len(c.Sinks))
	for _, s := range c.Sinks {
		key := strings.ToLower(s)
		if seen[key] {
			return fmt.Errorf("duplicate sink %q", s)
		}
		seen[key] = true
		switch key {
		case SinkMongo:
			if err := c.ValidateStore(); err != nil {
				return err
			}
		case SinkCSV, SinkJSON:
			if c.OutputFile == "" {
				return fmt.Errorf("output file cannot be empty")
			}
		default:
			return fmt.Errorf("sink must be mongo, csv, or json, got %q", s)
		}
	}

	return nil
}

// ValidateStore checks the fields needed to reach the document store.
func (c *Config) ValidateStore() error {
	if c.Mongo.URI == "" {
		return fmt.Errorf("mongo uri cannot be empty")
	}
	if c.Mongo.Database == "" {
		return fmt.Errorf("mongo database cannot be empty")
	}
	if c.Mongo.Collection == "" {
		return fmt.Errorf("mongo collection cannot be empty")
	}
	if c.Mongo.Timeout <= 0 {
		return fmt.Errorf("mongo timeout must be positive")
	}
	return nil
}
