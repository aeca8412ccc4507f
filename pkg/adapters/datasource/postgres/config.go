package postgres

import (
	"fmt"
	"net/url"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/config"
)

// Config contains PostgreSQL connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-ca", "verify-full"
}

const (
	DefaultPort    = 5432
	DefaultSSLMode = "require"
)

// FromMap creates a Config from a data source config map. Numbers may arrive
// as int (YAML) or float64 (JSON).
func FromMap(m map[string]any) (*Config, error) {
	cfg := &Config{
		Port:    DefaultPort,
		SSLMode: DefaultSSLMode,
	}

	host, ok := m["host"].(string)
	if !ok || host == "" {
		return nil, fmt.Errorf("host is required")
	}
	cfg.Host = host

	switch port := m["port"].(type) {
	case int:
		cfg.Port = port
	case float64:
		cfg.Port = int(port)
	}

	user, ok := m["user"].(string)
	if !ok || user == "" {
		return nil, fmt.Errorf("user is required")
	}
	cfg.User = user

	if password, ok := m["password"].(string); ok {
		cfg.Password = password
	}

	database, ok := m["database"].(string)
	if !ok || database == "" {
		return nil, fmt.Errorf("database is required")
	}
	cfg.Database = database

	if sslMode, ok := m["ssl_mode"].(string); ok && sslMode != "" {
		cfg.SSLMode = sslMode
	}

	return cfg, nil
}

// ConnectionString builds a PostgreSQL URL. User-provided parts are escaped
// so passwords containing @, / or # survive URL parsing. Loopback hosts are
// rewritten when running inside Docker.
func (c *Config) ConnectionString() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		config.ResolveHostForDocker(c.Host),
		c.Port,
		url.QueryEscape(c.Database),
		url.QueryEscape(c.SSLMode),
	)
}
