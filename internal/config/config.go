package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"matchengine/internal/logger"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Log      logger.Config  `mapstructure:"log" yaml:"log"`
	Oracle   OracleConfig   `mapstructure:"oracle" yaml:"oracle"`
	OpenAI   OpenAIConfig   `mapstructure:"openai" yaml:"openai"`
	Gemini   GeminiConfig   `mapstructure:"gemini" yaml:"gemini"`
	Ranking  RankingConfig  `mapstructure:"ranking" yaml:"ranking"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	AMQP     AMQPConfig     `mapstructure:"amqp" yaml:"amqp"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host"`
	Port            int    `mapstructure:"port" yaml:"port"`
	GinMode         string `mapstructure:"gin_mode" yaml:"gin_mode"`
	AllowedOrigins  string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ShutdownTimeout string `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the SQL driver and pool sizes
type DatabaseConfig struct {
	Driver             string `mapstructure:"driver" yaml:"driver"`
	DSN                string `mapstructure:"dsn" yaml:"dsn"`
	MaxConnections     int    `mapstructure:"max_connections" yaml:"max_connections"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" yaml:"max_idle_connections"`
}

// OracleConfig controls the ranking oracle call
type OracleConfig struct {
	Provider      string  `mapstructure:"provider" yaml:"provider"`
	Timeout       string  `mapstructure:"timeout" yaml:"timeout"`
	RateLimit     float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst         int     `mapstructure:"burst" yaml:"burst"`
	MaxCandidates int     `mapstructure:"max_candidates" yaml:"max_candidates"`
	MaxLogLength  int     `mapstructure:"max_log_length" yaml:"max_log_length"`
}

// OpenAIConfig holds OpenAI-compatible API configuration
type OpenAIConfig struct {
	APIKey              string  `mapstructure:"api_key" yaml:"api_key"`
	APIBase             string  `mapstructure:"api_base" yaml:"api_base"`
	ChatModel           string  `mapstructure:"chat_model" yaml:"chat_model"`
	ChatTemperature     float64 `mapstructure:"chat_temperature" yaml:"chat_temperature"`
	ChatMaxTokens       int     `mapstructure:"chat_max_tokens" yaml:"chat_max_tokens"`
	ChatExtraBody       string  `mapstructure:"chat_extra_body" yaml:"chat_extra_body"` // JSON string, e.g. {"chat_template_kwargs":{"thinking":false}}
	EmbeddingModel      string  `mapstructure:"embedding_model" yaml:"embedding_model"`
	EmbeddingDimensions int     `mapstructure:"embedding_dimensions" yaml:"embedding_dimensions"`
	BatchSize           int     `mapstructure:"batch_size" yaml:"batch_size"`
	Timeout             string  `mapstructure:"timeout" yaml:"timeout"`
}

// Enabled reports whether an API key is configured
func (c OpenAIConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// GeminiConfig holds Gemini API configuration
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	Model  string `mapstructure:"model" yaml:"model"`
}

// RankingConfig holds the shortlist weights applied before the oracle call
type RankingConfig struct {
	WeightSimilarity float64 `mapstructure:"weight_similarity" yaml:"weight_similarity"`
	WeightPrice      float64 `mapstructure:"weight_price" yaml:"weight_price"`
}

// RedisConfig enables the distributed per-buyer lock when Addr is set
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	LockTTL  string `mapstructure:"lock_ttl" yaml:"lock_ttl"`
}

// AMQPConfig enables the criteria consumer and notification publisher when URL is set
type AMQPConfig struct {
	URL                  string `mapstructure:"url" yaml:"url"`
	CriteriaQueue        string `mapstructure:"criteria_queue" yaml:"criteria_queue"`
	NotificationExchange string `mapstructure:"notification_exchange" yaml:"notification_exchange"`
	Prefetch             int    `mapstructure:"prefetch" yaml:"prefetch"`
}

// legacyEnv binds the variable names the deployment already exports.
var legacyEnv = map[string]string{
	"database.dsn":    "DATABASE_URL",
	"openai.api_key":  "OPENAI_API_KEY",
	"openai.api_base": "OPENAI_API_BASE",
	"gemini.api_key":  "GEMINI_API_KEY",
	"redis.addr":      "REDIS_URL",
	"amqp.url":        "AMQP_URL",
}

// EnvPrefix prefixes every environment override, e.g. MATCHENGINE_SERVER_PORT.
const EnvPrefix = "MATCHENGINE"

// Init prepares v: .env files, optional config file, defaults and environment.
// A missing config file is not an error.
func Init(v *viper.Viper, path string) error {
	envFiles := []string{".env", ".env.local"}
	for _, envFile := range envFiles {
		_ = godotenv.Load(envFile)
	}

	if path != "" {
		v.SetConfigFile(path)
		for _, envFile := range envFiles {
			_ = godotenv.Load(filepath.Join(filepath.Dir(path), envFile))
		}
	} else {
		v.SetConfigName("matchengine")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/matchengine")
	}

	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	switch c.Oracle.Provider {
	case "openai", "gemini", "none":
	default:
		return fmt.Errorf("oracle.provider must be openai, gemini or none, got %q", c.Oracle.Provider)
	}
	for key, value := range map[string]string{
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"oracle.timeout":          c.Oracle.Timeout,
		"openai.timeout":          c.OpenAI.Timeout,
		"redis.lock_ttl":          c.Redis.LockTTL,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	if c.Oracle.MaxCandidates <= 0 {
		return fmt.Errorf("oracle.max_candidates must be positive")
	}
	if c.Oracle.RateLimit < 0 || c.Oracle.Burst < 0 {
		return fmt.Errorf("oracle.rate_limit and oracle.burst must not be negative")
	}
	return nil
}

// OracleTimeout is the bounded wait for one ranking call
func (c *Config) OracleTimeout() time.Duration { return mustDuration(c.Oracle.Timeout) }

// ShutdownTimeout bounds graceful server shutdown
func (c *Config) ShutdownTimeout() time.Duration { return mustDuration(c.Server.ShutdownTimeout) }

// HTTPTimeout is the OpenAI client transport timeout
func (c *Config) HTTPTimeout() time.Duration { return mustDuration(c.OpenAI.Timeout) }

// LockTTL is the expiry of a per-buyer redis lock
func (c *Config) LockTTL() time.Duration { return mustDuration(c.Redis.LockTTL) }

// mustDuration is only called on values Validate already accepted.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
