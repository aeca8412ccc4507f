package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/logging"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/retry"
)

const (
	DefaultConnectionTTLMinutes = 5
	DefaultCleanupInterval      = 1 * time.Minute
	DefaultMaxConnections       = 32
	DefaultPoolMaxConns         = 10
	DefaultPoolMinConns         = 1
)

// ConnectionManagerConfig holds configuration for the connection manager.
type ConnectionManagerConfig struct {
	TTLMinutes     int
	MaxConnections int
	PoolMaxConns   int32
	PoolMinConns   int32
}

// TTL returns the idle lifetime of a pool.
func (c ConnectionManagerConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// PoolOpener opens a new pool for a data source.
type PoolOpener func(ctx context.Context) (PoolConnector, error)

// ConnectionManager shares one pool per data source across invocations,
// health-checks pools on reuse and closes pools idle longer than the TTL.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*ManagedConnection // key: data source name
	cfg         ConnectionManagerConfig
	retryCfg    *retry.Config
	stopped     bool
	stopChan    chan struct{}
	logger      *zap.Logger
}

// ManagedConnection is a pooled connection with its last use time.
type ManagedConnection struct {
	connector PoolConnector
	lastUsed  time.Time
	mu        sync.Mutex
}

// NewConnectionManager creates a connection manager and starts its cleanup
// goroutine, which runs until Close is called.
func NewConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger) *ConnectionManager {
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = DefaultConnectionTTLMinutes
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}
	if cfg.PoolMinConns <= 0 {
		cfg.PoolMinConns = DefaultPoolMinConns
	}

	manager := &ConnectionManager{
		connections: make(map[string]*ManagedConnection),
		cfg:         cfg,
		retryCfg:    retry.DefaultConfig(),
		stopChan:    make(chan struct{}),
		logger:      logger.Named("connection-manager"),
	}

	go manager.cleanupExpiredConnections()
	return manager
}

// Config returns the effective configuration.
func (m *ConnectionManager) Config() ConnectionManagerConfig {
	return m.cfg
}

// GetOrCreateConnection returns the pool registered under key, opening it with
// open when missing or unhealthy. Opening is retried for transient failures.
func (m *ConnectionManager) GetOrCreateConnection(ctx context.Context, key string, open PoolOpener) (PoolConnector, error) {
	m.mu.RLock()
	managed, exists := m.connections[key]
	m.mu.RUnlock()

	if exists {
		managed.mu.Lock()

		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := retry.Do(healthCtx, m.retryCfg, func() error {
			return managed.connector.Ping(healthCtx)
		})
		cancel()

		if err == nil {
			managed.lastUsed = time.Now()
			managed.mu.Unlock()
			return managed.connector, nil
		}

		m.logger.Warn("connection unhealthy, recreating",
			zap.String("key", key),
			zap.String("error", logging.SanitizeError(err)),
		)
		managed.mu.Unlock()
		m.removeConnection(key)
	}

	return m.createConnection(ctx, key, open)
}

// createConnection opens and stores a new pool. Caller must not hold m.mu.
func (m *ConnectionManager) createConnection(ctx context.Context, key string, open PoolOpener) (PoolConnector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, fmt.Errorf("connection manager closed")
	}

	// Another goroutine may have opened it while we waited for the lock.
	if managed, exists := m.connections[key]; exists && managed != nil {
		managed.mu.Lock()
		defer managed.mu.Unlock()
		managed.lastUsed = time.Now()
		return managed.connector, nil
	}

	if len(m.connections) >= m.cfg.MaxConnections {
		m.logger.Warn("reached max connections limit",
			zap.Int("current", len(m.connections)),
			zap.Int("max", m.cfg.MaxConnections),
		)
		return nil, fmt.Errorf("maximum connections limit (%d) reached", m.cfg.MaxConnections)
	}

	connector, err := retry.DoWithResult(ctx, m.retryCfg, func() (PoolConnector, error) {
		return open(ctx)
	})
	if err != nil {
		m.logger.Error("failed to open pool after retries",
			zap.String("key", key),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("open pool for %s: %w", key, err)
	}

	m.connections[key] = &ManagedConnection{
		connector: connector,
		lastUsed:  time.Now(),
	}

	m.logger.Info("created new connection pool",
		zap.String("key", key),
		zap.String("type", connector.GetType()),
		zap.Int("totalConnections", len(m.connections)),
	)

	return connector, nil
}

// removeConnection closes and forgets a pool. Caller must not hold m.mu.
func (m *ConnectionManager) removeConnection(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, exists := m.connections[key]; exists && managed != nil {
		if err := managed.connector.Close(); err != nil {
			m.logger.Debug("close pool", zap.String("key", key), zap.Error(err))
		}
		delete(m.connections, key)
	}
}

func (m *ConnectionManager) cleanupExpiredConnections() {
	ticker := time.NewTicker(DefaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup(time.Now())
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup closes pools idle longer than the TTL.
// Lock order: manager lock, then connection lock.
func (m *ConnectionManager) performCleanup(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	ttl := m.cfg.TTL()
	var expired []string
	for key, managed := range m.connections {
		managed.mu.Lock()
		idle := now.Sub(managed.lastUsed)
		managed.mu.Unlock()

		if idle > ttl {
			expired = append(expired, key)
		}
	}

	for _, key := range expired {
		_ = m.connections[key].connector.Close()
		delete(m.connections, key)
	}

	if len(expired) > 0 {
		m.logger.Info("cleaned up expired connections",
			zap.Int("count", len(expired)),
			zap.Int("remaining", len(m.connections)),
		)
	}
}

// Close closes every pool and stops the cleanup goroutine. Idempotent.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}

	m.stopped = true
	close(m.stopChan)

	for _, managed := range m.connections {
		_ = managed.connector.Close()
	}
	m.connections = make(map[string]*ManagedConnection)
	m.logger.Info("connection manager closed")
	return nil
}

// ConnectionStats describes the manager state.
type ConnectionStats struct {
	TotalConnections  int            `json:"total_connections"`
	MaxConnections    int            `json:"max_connections"`
	TTLMinutes        int            `json:"ttl_minutes"`
	ConnectionsByType map[string]int `json:"connections_by_type"`
	OldestIdleSeconds int            `json:"oldest_idle_seconds"`
}

// GetStats returns statistics about the pools.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	stats := ConnectionStats{
		TotalConnections:  len(m.connections),
		MaxConnections:    m.cfg.MaxConnections,
		TTLMinutes:        m.cfg.TTLMinutes,
		ConnectionsByType: make(map[string]int),
	}

	for _, managed := range m.connections {
		stats.ConnectionsByType[managed.connector.GetType()]++

		managed.mu.Lock()
		idle := int(now.Sub(managed.lastUsed).Seconds())
		managed.mu.Unlock()
		if idle > stats.OldestIdleSeconds {
			stats.OldestIdleSeconds = idle
		}
	}

	return stats
}
