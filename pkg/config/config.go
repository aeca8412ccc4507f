package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for ekaya-chatbi.
// Values come from config.yaml with environment variable overrides.
// Secrets (passwords, keys, tokens) only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// SemanticModelsDir holds the *.yaml semantic model files.
	SemanticModelsDir string `yaml:"semantic_models_dir" env:"SEMANTIC_MODELS_DIR" env-default:"./semantic-models"`
	// CredentialsKey opens "enc:" values in semantic model configs.
	CredentialsKey string `yaml:"-" env:"CHATBI_CREDENTIALS_KEY"` // Secret - not in YAML

	ChatBI       ChatBIConfig       `yaml:"chatbi"`
	Redis        RedisConfig        `yaml:"redis"`
	Datasource   DatasourceConfig   `yaml:"datasource"`
	LLM          LLMConfig          `yaml:"llm"`
	Notification NotificationConfig `yaml:"notification"`
}

// ChatBIConfig tunes the answerQuestion pipeline.
type ChatBIConfig struct {
	// SummaryRowLimit caps the rows echoed back to the agent as text.
	SummaryRowLimit int `yaml:"summary_row_limit" env:"CHATBI_SUMMARY_ROW_LIMIT" env-default:"100"`
	// QueryTimeout bounds a single chart query.
	QueryTimeout time.Duration `yaml:"query_timeout" env:"CHATBI_QUERY_TIMEOUT" env-default:"60s"`
	// NotifyOnFailure posts diagnostics to the chat through the notifier.
	NotifyOnFailure bool `yaml:"notify_on_failure" env:"CHATBI_NOTIFY_ON_FAILURE" env-default:"false"`
}

// RedisConfig configures the metadata cache. An empty host disables it.
type RedisConfig struct {
	Host     string        `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int           `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string        `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"REDIS_CACHE_TTL" env-default:"10m"`
}

// Addr returns host:port.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// DatasourceConfig holds data source pool settings.
type DatasourceConfig struct {
	// ConnectionTTLMinutes is how long idle pools are kept alive.
	ConnectionTTLMinutes int `yaml:"connection_ttl_minutes" env:"DATASOURCE_CONNECTION_TTL_MINUTES" env-default:"5"`
	// MaxConnections limits the number of open data source pools.
	MaxConnections int `yaml:"max_connections" env:"DATASOURCE_MAX_CONNECTIONS" env-default:"32"`
	// PoolMaxConns is the maximum number of connections per pool.
	PoolMaxConns int32 `yaml:"pool_max_conns" env:"DATASOURCE_POOL_MAX_CONNS" env-default:"10"`
	// PoolMinConns is the minimum number of connections per pool.
	PoolMinConns int32 `yaml:"pool_min_conns" env:"DATASOURCE_POOL_MIN_CONNS" env-default:"1"`
}

// LLMConfig points the built-in chat loop at an OpenAI-compatible endpoint.
type LLMConfig struct {
	BaseURL       string `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`
	Model         string `yaml:"model" env:"LLM_MODEL" env-default:""`
	APIKey        string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	MaxIterations int    `yaml:"max_iterations" env:"LLM_MAX_ITERATIONS" env-default:"6"`
}

// IsAvailable returns true if an LLM endpoint is configured.
func (c *LLMConfig) IsAvailable() bool {
	return c.BaseURL != "" && c.Model != ""
}

// NotificationConfig configures the chat webhook notifier.
type NotificationConfig struct {
	WebhookURL string        `yaml:"webhook_url" env:"NOTIFY_WEBHOOK_URL" env-default:""`
	Token      string        `yaml:"-" env:"NOTIFY_WEBHOOK_TOKEN"` // Secret - not in YAML
	Timeout    time.Duration `yaml:"timeout" env:"NOTIFY_TIMEOUT" env-default:"10s"`
}

// IsEnabled returns true if a webhook is configured.
func (c *NotificationConfig) IsEnabled() bool {
	return c.WebhookURL != ""
}

// Load reads configuration from config.yaml with environment variable overrides.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile reads configuration from path with environment variable overrides.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if err := c.validateTLS(); err != nil {
		return err
	}
	if c.ChatBI.SummaryRowLimit <= 0 {
		return fmt.Errorf("chatbi.summary_row_limit must be positive, got %d", c.ChatBI.SummaryRowLimit)
	}
	if c.ChatBI.QueryTimeout <= 0 {
		return fmt.Errorf("chatbi.query_timeout must be positive")
	}
	if c.ChatBI.NotifyOnFailure && !c.Notification.IsEnabled() {
		return fmt.Errorf("chatbi.notify_on_failure requires notification.webhook_url")
	}
	return nil
}

// validateTLS ensures both cert and key are provided together and exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}
