package handlers

import (
	"net/http"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/config"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/services"
)

// ServiceName is reported by /ping.
const ServiceName = "ekaya-chatbi"

// PingResponse contains service status and version information.
type PingResponse struct {
	Status              string `json:"status"`
	Version             string `json:"version"`
	Service             string `json:"service"`
	GoVersion           string `json:"go_version"`
	Hostname            string `json:"hostname"`
	Environment         string `json:"environment"`
	ActiveConversations int    `json:"active_conversations"`
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status      string                      `json:"status"`
	Connections *datasource.ConnectionStats `json:"connections,omitempty"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg           *config.Config
	connManager   *datasource.ConnectionManager
	conversations *services.ConversationRegistry
	logger        *zap.Logger
}

// NewHealthHandler creates a HealthHandler. connManager and conversations may be nil.
func NewHealthHandler(cfg *config.Config, connManager *datasource.ConnectionManager, conversations *services.ConversationRegistry, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		cfg:           cfg,
		connManager:   connManager,
		conversations: conversations,
		logger:        logger,
	}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health with data source pool statistics.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{Status: "ok"}
	if h.connManager != nil {
		stats := h.connManager.GetStats()
		response.Connections = &stats
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping with version and environment details.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     ServiceName,
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}
	if h.conversations != nil {
		response.ActiveConversations = h.conversations.Active()
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
