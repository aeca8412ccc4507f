// Package llm drives an OpenAI-compatible chat model that answers through
// the answerQuestion tool.
package llm

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// DefaultMaxToolIterations bounds the model/tool round trips of one turn.
const DefaultMaxToolIterations = 6

// Client provides access to an OpenAI-compatible chat endpoint.
type Client struct {
	client            *openai.Client
	endpoint          string
	model             string
	maxToolIterations int
	logger            *zap.Logger
}

// Config holds configuration for creating a client.
type Config struct {
	Endpoint      string // Base URL, e.g., "https://api.openai.com/v1"
	Model         string
	APIKey        string // Optional for local endpoints
	MaxIterations int
}

// NewClient creates a client. Requests carry the chat id of their context as
// X-Request-Id.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	clientConfig.HTTPClient = &http.Client{Transport: &contextAwareTransport{base: http.DefaultTransport}}

	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxToolIterations
	}

	return &Client{
		client:            openai.NewClientWithConfig(clientConfig),
		endpoint:          cfg.Endpoint,
		model:             cfg.Model,
		maxToolIterations: maxIterations,
		logger:            logger.Named("llm"),
	}, nil
}

// GetModel returns the configured model name.
func (c *Client) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *Client) GetEndpoint() string {
	return c.endpoint
}
