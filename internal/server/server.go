package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"pfpgofer/internal/address"
	"pfpgofer/internal/batcher"
	"pfpgofer/internal/config"
	"pfpgofer/internal/instruction"
	"pfpgofer/internal/metadata"
	"pfpgofer/internal/pfp"
	"pfpgofer/internal/plugin"
	"pfpgofer/internal/rpc"
)

// Server represents the main server
type Server struct {
	cfg           *config.Config
	registry      *rpc.Registry
	engine        *batcher.Engine
	resolver      *pfp.Resolver
	instructions  *instruction.Builder
	pluginManager *plugin.PluginManager
	router        chi.Router
	httpServer    *http.Server
	logger        zerolog.Logger
}

// New creates a new Server with every configured group registered
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	deriver, err := address.NewDeriver(cfg.DerivationCacheSize)
	if err != nil {
		return nil, err
	}

	registry, err := rpc.NewRegistryFromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create RPC registry: %w", err)
	}

	// Create plugin manager based on config
	var pluginMgr *plugin.PluginManager
	var transformer plugin.Transformer
	if cfg.IsPluginsEnabled() {
		pluginMgr = plugin.NewPluginManager(logger)
		pluginMgr.SetTimeout(cfg.GetPluginTimeoutDuration())

		if err := pluginMgr.LoadFromDirectory(cfg.GetPluginDirectory()); err != nil {
			registry.Close()
			return nil, fmt.Errorf("failed to load plugins: %w", err)
		}

		logger.Info().
			Strs("plugins", pluginMgr.Names()).
			Str("directory", cfg.GetPluginDirectory()).
			Msg("plugins enabled")
		transformer = pluginMgr
	} else {
		logger.Info().Msg("plugins disabled")
	}

	engine := batcher.NewEngine(
		batcher.ConfigFrom(cfg.Batching),
		deriver,
		func(endpoint string) (batcher.AccountFetcher, error) {
			c, err := registry.Dial(endpoint)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		metadata.NewResolver(deriver, cfg.GetRequestTimeoutDuration(), logger),
		logger,
	)

	batchCfg := engine.Config()
	logger.Info().
		Int("size", batchCfg.BatchSize).
		Dur("interval", batchCfg.Interval).
		Int("payloadConcurrency", batchCfg.PayloadConcurrency).
		Msg("batching configured")

	s := &Server{
		cfg:      cfg,
		registry: registry,
		engine:   engine,
		resolver: pfp.NewResolver(engine, pfp.Config{
			CDNBase:     cfg.CDNBase,
			Transformer: transformer,
			Logger:      logger,
		}),
		instructions:  instruction.NewBuilder(deriver),
		pluginManager: pluginMgr,
		logger:        logger,
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		s.logger.Info().
			Str("addr", addr).
			Msg("starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Log available endpoints
	for _, name := range s.registry.GroupNames() {
		s.logger.Info().
			Str("group", name).
			Str("url", fmt.Sprintf("http://%s/%s/pfp/{owner}", addr, name)).
			Msg("endpoint available")
	}

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server...")

	var httpErr error
	if s.httpServer != nil {
		httpErr = s.httpServer.Shutdown(ctx)
	}

	// Settle lookups still queued
	if err := s.engine.Close(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("batch engine did not drain")
	}

	if s.pluginManager != nil {
		s.pluginManager.Close()
	}

	s.registry.Close()

	if httpErr != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", httpErr)
	}

	s.logger.Info().Msg("server stopped")
	return nil
}
