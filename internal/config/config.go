// Package config loads application configuration via Viper and initializes
// the global zap logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Reader      ReaderConfig      `yaml:"reader" mapstructure:"reader"`
	Browserbase BrowserbaseConfig `yaml:"browserbase" mapstructure:"browserbase"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Discord     DiscordConfig     `yaml:"discord" mapstructure:"discord"`
	Track       TrackConfig       `yaml:"track" mapstructure:"track"`
	Grants      GrantsConfig      `yaml:"grants" mapstructure:"grants"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ReaderConfig holds reader rendering service settings.
type ReaderConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// BrowserbaseConfig holds browser-session provider settings.
type BrowserbaseConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	ProjectID    string `yaml:"project_id" mapstructure:"project_id"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	ExtensionDir string `yaml:"extension_dir" mapstructure:"extension_dir"`
}

// AnthropicConfig holds model provider settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// DiscordConfig holds the chat transport credentials and channel routing.
type DiscordConfig struct {
	Token    string            `yaml:"token" mapstructure:"token"`
	BaseURL  string            `yaml:"base_url" mapstructure:"base_url"`
	Channels map[string]string `yaml:"channels" mapstructure:"channels"`
	ErrorCh  string            `yaml:"error_channel" mapstructure:"error_channel"`
	GrantsCh string            `yaml:"grants_channel" mapstructure:"grants_channel"`
}

// TrackConfig governs the per-source news/blog pipelines.
type TrackConfig struct {
	SourceTimeoutSecs  int `yaml:"source_timeout_secs" mapstructure:"source_timeout_secs"`
	CaptchaTimeoutSecs int `yaml:"captcha_timeout_secs" mapstructure:"captcha_timeout_secs"`
}

// GrantsConfig governs the bulk grant ingestion pipeline. ExportForm is sent
// as a form-encoded POST body; the export endpoint returns the HTML search
// page on a bare GET, so the default form requests the open-topic CSV
// download.
type GrantsConfig struct {
	ExportURL         string            `yaml:"export_url" mapstructure:"export_url"`
	ExportForm        map[string]string `yaml:"export_form" mapstructure:"export_form"`
	TempDir           string            `yaml:"temp_dir" mapstructure:"temp_dir"`
	EnrichConcurrency int               `yaml:"enrich_concurrency" mapstructure:"enrich_concurrency"`
}

// ServerConfig configures the cron trigger server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("NEWSWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("reader.base_url", "https://r.jina.ai")
	v.SetDefault("browserbase.base_url", "https://api.browserbase.com/v1")
	v.SetDefault("browserbase.extension_dir", "extensions/bypass-paywalls")
	v.SetDefault("discord.base_url", "https://discord.com/api/v10")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("track.source_timeout_secs", 300)
	v.SetDefault("track.captcha_timeout_secs", 10)
	v.SetDefault("grants.export_url", "https://www.sbir.gov/topics")
	v.SetDefault("grants.export_form", map[string]string{
		"status": "Open",
		"op":     "Download",
	})
	v.SetDefault("grants.temp_dir", "/tmp/newswatch")
	v.SetDefault("grants.enrich_concurrency", 72)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks settings that are required at startup regardless of which
// pipeline runs. Missing credentials for a pipeline that never runs are
// caught later, at client construction.
func (c *Config) Validate() error {
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
	}
	if c.Anthropic.Key == "" {
		return eris.New("config: anthropic.key is required")
	}
	if c.Discord.Token == "" {
		return eris.New("config: discord.token is required")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
