// Package config loads the sitebot configuration from file and
// environment. A config file is optional; every setting has a default and
// can be overridden with SITEBOT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug             bool          `mapstructure:"debug"`
	DefaultWebsiteURL string        `mapstructure:"default_website_url"`
	MaxProcessingTime time.Duration `mapstructure:"max_processing_time"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig contains LLM provider configurations and role routing.
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration.
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // openai, or an openai-compatible endpoint
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration.
type LLMModel struct {
	Name        string  `mapstructure:"name"`
	APIName     string  `mapstructure:"api_name"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// LLMRoutingConfig maps oracle roles to configured model keys.
type LLMRoutingConfig struct {
	Decision  string `mapstructure:"decision"`  // explore-vs-answer calls
	Synthesis string `mapstructure:"synthesis"` // final answer drafting
	Fallback  string `mapstructure:"fallback"`
}

// ModelFor resolves the configured model key for a role, falling back to
// the routing fallback when the role is unset.
func (r LLMRoutingConfig) ModelFor(role string) string {
	var m string
	switch role {
	case "decision":
		m = r.Decision
	case "synthesis":
		m = r.Synthesis
	}
	if m == "" {
		m = r.Fallback
	}
	return m
}

// CrawlConfig bounds a single crawl session.
type CrawlConfig struct {
	MaxPages        int           `mapstructure:"max_pages"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	RetryBudget     int           `mapstructure:"retry_budget"`
	MaxLinksPerPage int           `mapstructure:"max_links_per_page"`
	MaxBodyChars    int           `mapstructure:"max_body_chars"`
	TopCandidates   int           `mapstructure:"top_candidates"`
	UserAgent       string        `mapstructure:"user_agent"`
	// AllowedHosts extends the same-origin crawl policy with extra hosts.
	AllowedHosts []string `mapstructure:"allowed_hosts"`
}

func (c CrawlConfig) Validate() error {
	if c.MaxPages <= 0 {
		return errors.New("crawl.max_pages must be > 0")
	}
	if c.FetchTimeout <= 0 {
		return errors.New("crawl.fetch_timeout must be > 0")
	}
	if c.RetryBudget < 0 {
		return errors.New("crawl.retry_budget cannot be negative")
	}
	return nil
}

// StorageConfig selects where finished sessions are kept.
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // inmemory or redis
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

func (s StorageConfig) Validate() error {
	switch s.Type {
	case "", "inmemory":
		return nil
	case "redis":
		if s.Redis.Addr == "" {
			return errors.New("storage.redis.addr required for redis storage")
		}
		return nil
	default:
		return fmt.Errorf("unsupported storage.type %q", s.Type)
	}
}

// TelemetryConfig contains monitoring settings.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig reads configuration from path (or the standard lookup
// locations when path is empty) and the SITEBOT_* environment, applying
// defaults for everything left unset. A missing config file is fine;
// invalid values are not.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetDefault("general.default_website_url", "https://example.com")
	v.SetDefault("general.max_processing_time", "5m")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("crawl.max_pages", 10)
	v.SetDefault("crawl.fetch_timeout", "10s")
	v.SetDefault("crawl.retry_budget", 1)
	v.SetDefault("crawl.max_links_per_page", 40)
	v.SetDefault("crawl.max_body_chars", 20000)
	v.SetDefault("crawl.top_candidates", 5)
	v.SetDefault("storage.type", "inmemory")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.ttl", "24h")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("llm.routing.fallback", "default")
	v.SetDefault("llm.providers.openai.type", "openai")
	v.SetDefault("llm.providers.openai.timeout", "60s")
	v.SetDefault("llm.providers.openai.models.default.name", "gpt-5")
	v.SetDefault("llm.providers.openai.models.default.max_tokens", 4096)
	v.SetDefault("llm.providers.openai.models.default.temperature", 0.2)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("SITEBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Crawl.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
