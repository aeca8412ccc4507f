package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-chatbi/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-chatbi/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/config"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/crypto"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/database"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/handlers"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/llm"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/mcp"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/middleware"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/notify"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/retry"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/semantic"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	if len(os.Args) == 3 && os.Args[1] == "seal" {
		os.Exit(seal(os.Args[2]))
	}

	cfg, err := config.Load(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if env == "local" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("semantic_models_dir", cfg.SemanticModelsDir),
		zap.String("redis", cfg.Redis.Host),
		zap.Bool("llm", cfg.LLM.IsAvailable()),
		zap.Bool("notifications", cfg.Notification.IsEnabled()),
		zap.Any("adapters", datasource.RegisteredAdapters()))

	// Semantic models, optionally cached in Redis
	var catalogOpts []semantic.FileCatalogOption
	if cfg.CredentialsKey != "" {
		sealer, err := crypto.NewSealer(cfg.CredentialsKey)
		if err != nil {
			return fmt.Errorf("invalid credentials key: %w", err)
		}
		catalogOpts = append(catalogOpts, semantic.WithSealer(sealer))
	}
	fileCatalog, err := semantic.NewFileCatalog(cfg.SemanticModelsDir, logger, catalogOpts...)
	if err != nil {
		return fmt.Errorf("failed to load semantic models: %w", err)
	}
	var catalog semantic.Catalog = fileCatalog
	if cfg.Redis.Host != "" {
		redisClient, err := database.NewRedisClient(ctx, &cfg.Redis, retry.DefaultConfig(), logger)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		catalog = semantic.NewCachedCatalog(fileCatalog, redisClient, cfg.Redis.CacheTTL, logger)
	}

	connManager := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		TTLMinutes:     cfg.Datasource.ConnectionTTLMinutes,
		MaxConnections: cfg.Datasource.MaxConnections,
		PoolMaxConns:   cfg.Datasource.PoolMaxConns,
		PoolMinConns:   cfg.Datasource.PoolMinConns,
	}, logger)
	defer func() {
		if err := connManager.Close(); err != nil {
			logger.Warn("Failed to close data source pools", zap.Error(err))
		}
	}()

	core := services.NewDSCoreService(catalog, datasource.NewEngineFactory(connManager), logger)
	resolver := services.NewMetadataResolver(core, logger)

	var notifier services.Notifier
	if cfg.Notification.IsEnabled() {
		notifier = notify.NewClient(cfg.Notification.WebhookURL, cfg.Notification.Token, cfg.Notification.Timeout, logger)
	}

	answers := services.NewChatAnswerService(core, resolver, services.NewIntentRepairer(logger), notifier,
		services.ChatAnswerConfig{
			SummaryRowLimit: cfg.ChatBI.SummaryRowLimit,
			QueryTimeout:    cfg.ChatBI.QueryTimeout,
			NotifyOnFailure: cfg.ChatBI.NotifyOnFailure,
		}, logger)
	conversations := services.NewConversationRegistry(logger)
	hub := services.NewChatHub(services.DefaultSubscriberBuffer, logger)

	var agent handlers.ChatAgent
	if cfg.LLM.IsAvailable() {
		client, err := llm.NewClient(&llm.Config{
			Endpoint:      cfg.LLM.BaseURL,
			Model:         cfg.LLM.Model,
			APIKey:        cfg.LLM.APIKey,
			MaxIterations: cfg.LLM.MaxIterations,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create LLM client: %w", err)
		}
		agent = llm.NewChartAgent(client, answers, resolver, logger)
	}

	mcpServer := mcp.NewServer(mcp.ServerName, cfg.Version, logger)
	tools.RegisterHealthTool(mcpServer.MCP(), cfg.Version, conversations)
	tools.RegisterAnswerTool(mcpServer.MCP(), &tools.AnswerToolDeps{
		Answers:       answers,
		Conversations: conversations,
		Hub:           hub,
		Logger:        logger,
	})

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, connManager, conversations, logger).RegisterRoutes(mux)
	handlers.NewChatHandler(answers, conversations, hub, agent, logger).RegisterRoutes(mux)
	handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux)
	handlers.RegisterMetricsRoute(mux)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-chatbi",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version),
			zap.Bool("tls", cfg.TLSCertPath != ""))
		if cfg.TLSCertPath != "" {
			serveErr <- server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			serveErr <- server.ListenAndServe()
		}
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down", zap.Int("active_conversations", conversations.Active()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Open SSE streams keep Shutdown waiting until their invocations finish.
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// seal prints the sealed form of a credential for use in a semantic model
// file. The key comes from CHATBI_CREDENTIALS_KEY.
func seal(plaintext string) int {
	sealer, err := crypto.NewSealer(os.Getenv("CHATBI_CREDENTIALS_KEY"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "CHATBI_CREDENTIALS_KEY: %v\n", err)
		return 1
	}
	sealed, err := sealer.Seal(plaintext)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seal: %v\n", err)
		return 1
	}
	fmt.Println(sealed)
	return 0
}
