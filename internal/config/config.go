// Package config loads and validates agent configuration via Viper.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig             `mapstructure:"server"`
	Auth     AuthConfig               `mapstructure:"auth"`
	Fetch    FetchConfig              `mapstructure:"fetch"`
	Headless HeadlessConfig           `mapstructure:"headless"`
	Parse    ParseConfig              `mapstructure:"parse"`
	Cache    CacheConfig              `mapstructure:"cache"`
	Storage  StorageConfig            `mapstructure:"storage"`
	History  HistoryConfig            `mapstructure:"history"`
	Events   EventsConfig             `mapstructure:"events"`
	Research ResearchConfig           `mapstructure:"research"`
	Logging  LoggingConfig            `mapstructure:"logging"`
	Profiles map[string]ProfileConfig `mapstructure:"profiles"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int    `mapstructure:"port"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	AgentName      string `mapstructure:"agent_name"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// FetchConfig governs the HTTP fetch pipeline.
type FetchConfig struct {
	UserAgent        string  `mapstructure:"user_agent"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxBodyBytes     int64   `mapstructure:"max_body_bytes"`
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
	HostRPS          float64 `mapstructure:"host_rps"`
	HostBurst        int     `mapstructure:"host_burst"`
	BreakerThreshold int     `mapstructure:"breaker_threshold"`
	BreakerCooldownS int     `mapstructure:"breaker_cooldown_seconds"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// ParseConfig tunes the extraction pipeline.
type ParseConfig struct {
	MinContentLength int  `mapstructure:"min_content_length"`
	MaxLinks         int  `mapstructure:"max_links"`
	DetectLanguage   bool `mapstructure:"detect_language"`
}

// CacheConfig selects and sizes the analysis result cache.
type CacheConfig struct {
	Provider   string `mapstructure:"provider"` // memory, redis, off
	MaxEntries int    `mapstructure:"max_entries"`
	RedisAddr  string `mapstructure:"redis_addr"`
	RedisTTLS  int    `mapstructure:"redis_ttl_seconds"`
}

// StorageConfig selects the blob store used for exported artifacts.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"` // local, gcs, noop
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// HistoryConfig selects the analysis history store. The default provider is
// noop so that nothing is persisted across requests unless asked for.
type HistoryConfig struct {
	Provider string `mapstructure:"provider"` // postgres, memory, noop
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
}

// EventsConfig configures completion event publishing.
type EventsConfig struct {
	Provider  string `mapstructure:"provider"` // pubsub, noop
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ResearchConfig holds settings for the academic search clients.
type ResearchConfig struct {
	CrossrefBase   string `mapstructure:"crossref_base"`
	PubmedBase     string `mapstructure:"pubmed_base"`
	ContactEmail   string `mapstructure:"contact_email"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxResults     int    `mapstructure:"max_results"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ProfileConfig is a named extraction profile: field name to CSS selector,
// plus optional request headers applied when the profile is in use.
type ProfileConfig struct {
	Selectors map[string]string `mapstructure:"selectors"`
	Headers   map[string]string `mapstructure:"headers"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// PORT is the deployment convention for the listen port and wins over
	// the config file.
	if raw := os.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse PORT %q: %w", raw, err)
		}
		cfg.Server.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8503)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("server.agent_name", "molaison-research-agent")
	v.SetDefault("fetch.user_agent", "molaison-research-agent/1.0")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.max_body_bytes", 10*1024*1024)
	v.SetDefault("fetch.max_retries", 2)
	v.SetDefault("fetch.backoff_initial_ms", 250)
	v.SetDefault("fetch.backoff_max_ms", 2000)
	v.SetDefault("fetch.host_rps", 2.0)
	v.SetDefault("fetch.host_burst", 2)
	v.SetDefault("fetch.breaker_threshold", 5)
	v.SetDefault("fetch.breaker_cooldown_seconds", 60)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("parse.min_content_length", 50)
	v.SetDefault("parse.max_links", 500)
	v.SetDefault("parse.detect_language", true)
	v.SetDefault("cache.provider", "memory")
	v.SetDefault("cache.max_entries", 512)
	v.SetDefault("cache.redis_ttl_seconds", 3600)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.base_dir", "output")
	v.SetDefault("storage.prefix", "exports")
	v.SetDefault("history.provider", "noop")
	v.SetDefault("history.table", "analyses")
	v.SetDefault("events.provider", "noop")
	v.SetDefault("research.crossref_base", "https://api.crossref.org")
	v.SetDefault("research.pubmed_base", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("research.timeout_seconds", 20)
	v.SetDefault("research.max_results", 10)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		return fmt.Errorf("fetch.max_body_bytes must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Cache.Provider {
	case "memory", "off":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr must be set when cache.provider is redis")
		}
	default:
		return fmt.Errorf("unknown cache provider %q", c.Cache.Provider)
	}
	switch c.Storage.Provider {
	case "local", "memory", "noop":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
		}
	default:
		return fmt.Errorf("unknown storage provider %q", c.Storage.Provider)
	}
	switch c.History.Provider {
	case "memory", "noop":
	case "postgres":
		if c.History.DSN == "" {
			return fmt.Errorf("history.dsn must be set when history.provider is postgres")
		}
	default:
		return fmt.Errorf("unknown history provider %q", c.History.Provider)
	}
	switch c.Events.Provider {
	case "noop":
	case "pubsub":
		if c.Events.ProjectID == "" || c.Events.TopicName == "" {
			return fmt.Errorf("events.project_id and events.topic_name must be set when events.provider is pubsub")
		}
	default:
		return fmt.Errorf("unknown events provider %q", c.Events.Provider)
	}
	return nil
}

// FetchTimeout converts the fetch timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// RequestTimeout is the per-request budget applied by the HTTP middleware.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}
