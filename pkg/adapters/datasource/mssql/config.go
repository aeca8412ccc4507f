package mssql

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/config"
)

// Authentication methods.
const (
	AuthSQL              = "sql"
	AuthServicePrincipal = "service_principal"
)

const (
	DefaultPort              = 1433
	DefaultConnectionTimeout = 30
)

// Config contains SQL Server connection options.
type Config struct {
	Host     string
	Port     int
	Database string

	// AuthMethod is AuthSQL or AuthServicePrincipal.
	AuthMethod string

	Username string
	Password string

	// Azure AD service principal
	TenantID     string
	ClientID     string
	ClientSecret string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int // seconds
}

// FromMap creates a Config from a data source config map. The auth method is
// detected from the credentials present unless auth_method is set.
func FromMap(m map[string]any) (*Config, error) {
	cfg := &Config{
		Port:              DefaultPort,
		Encrypt:           true,
		ConnectionTimeout: DefaultConnectionTimeout,
	}

	host, ok := m["host"].(string)
	if !ok || host == "" {
		return nil, fmt.Errorf("host is required")
	}
	cfg.Host = host

	if port, ok := intValue(m["port"]); ok {
		cfg.Port = port
	}

	database, ok := m["database"].(string)
	if !ok || database == "" {
		return nil, fmt.Errorf("database is required")
	}
	cfg.Database = database

	switch encrypt := m["encrypt"].(type) {
	case bool:
		cfg.Encrypt = encrypt
	case string:
		cfg.Encrypt = encrypt == "true" || encrypt == "strict"
	}
	if trust, ok := m["trust_server_certificate"].(bool); ok {
		cfg.TrustServerCertificate = trust
	}
	if timeout, ok := intValue(m["connection_timeout"]); ok {
		cfg.ConnectionTimeout = timeout
	}

	cfg.AuthMethod, _ = m["auth_method"].(string)
	if cfg.AuthMethod == "" {
		switch {
		case m["client_id"] != nil:
			cfg.AuthMethod = AuthServicePrincipal
		case m["user"] != nil || m["username"] != nil:
			cfg.AuthMethod = AuthSQL
		default:
			return nil, fmt.Errorf("could not auto-detect auth method; no credentials provided")
		}
	}

	switch cfg.AuthMethod {
	case AuthSQL:
		cfg.Username, _ = m["username"].(string)
		if cfg.Username == "" {
			cfg.Username, _ = m["user"].(string)
		}
		cfg.Password, _ = m["password"].(string)
	case AuthServicePrincipal:
		cfg.TenantID, _ = m["tenant_id"].(string)
		cfg.ClientID, _ = m["client_id"].(string)
		cfg.ClientSecret, _ = m["client_secret"].(string)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}

// Validate checks the fields required by the selected auth method.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.AuthMethod {
	case AuthSQL:
		if c.Username == "" {
			return fmt.Errorf("username is required for SQL authentication")
		}
	case AuthServicePrincipal:
		if c.TenantID == "" || c.ClientID == "" || c.ClientSecret == "" {
			return fmt.Errorf("tenant_id, client_id and client_secret are required for service principal")
		}
	default:
		return fmt.Errorf("invalid auth method: %s (must be sql or service_principal)", c.AuthMethod)
	}
	return nil
}

// Driver returns the database/sql driver name for the auth method.
func (c *Config) Driver() string {
	if c.AuthMethod == AuthServicePrincipal {
		return "azuresql"
	}
	return "sqlserver"
}

// ConnectionString builds a sqlserver:// URL for the auth method.
func (c *Config) ConnectionString() string {
	query := url.Values{}
	query.Add("database", c.Database)
	query.Add("encrypt", strconv.FormatBool(c.Encrypt))
	if c.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if c.ConnectionTimeout > 0 {
		query.Add("connection timeout", strconv.Itoa(c.ConnectionTimeout))
	}

	u := &url.URL{
		Scheme: "sqlserver",
		Host:   fmt.Sprintf("%s:%d", config.ResolveHostForDocker(c.Host), c.Port),
	}

	if c.AuthMethod == AuthServicePrincipal {
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		query.Add("user id", c.ClientID+"@"+c.TenantID)
		query.Add("password", c.ClientSecret)
	} else {
		u.User = url.UserPassword(c.Username, c.Password)
	}

	u.RawQuery = query.Encode()
	return u.String()
}
