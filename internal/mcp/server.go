// Package mcp exposes the diagnostic core as Model Context Protocol tools. The lite server needs
// no external services: a knowledge snapshot file, an in-memory result cache and SQLite feedback.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/ddx-reasoning-core/internal/cache"
	"github.com/ddx-reasoning-core/internal/config"
	"github.com/ddx-reasoning-core/internal/domain"
	"github.com/ddx-reasoning-core/internal/feedback"
	"github.com/ddx-reasoning-core/internal/knowledge"
	"github.com/ddx-reasoning-core/internal/repository"
	"github.com/ddx-reasoning-core/internal/service"
	"github.com/ddx-reasoning-core/pkg/external"
)

const (
	serverName    = "ddx-reasoning-core-lite"
	serverVersion = "v1.0.0"
)

// LiteServer is a lightweight MCP server that requires no external databases.
type LiteServer struct {
	config        *config.LiteConfig
	mcpServer     *mcp.Server
	knowledge     *knowledge.Store
	pipeline      *service.DiagnosticPipeline
	differentials *repository.MemoryDifferentialRepository
	feedbackStore feedback.Store
	cache         *cache.MemoryCache
	literature    domain.LiteratureRetriever
	logger        *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithFeedbackStore sets a custom feedback store.
func WithFeedbackStore(store feedback.Store) LiteServerOption {
	return func(s *LiteServer) error {
		s.feedbackStore = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		s.logger = logger
		return nil
	}
}

// WithKnowledgeStore uses an already populated knowledge store instead of loading
// the configured snapshot file.
func WithKnowledgeStore(store *knowledge.Store) LiteServerOption {
	return func(s *LiteServer) error {
		if store == nil {
			return errors.New("knowledge store is nil")
		}
		s.knowledge = store
		return nil
	}
}

// WithLiterature sets the citation source used for reasoning chains.
func WithLiterature(lit domain.LiteratureRetriever) LiteServerOption {
	return func(s *LiteServer) error {
		s.literature = lit
		return nil
	}
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(cfg *config.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	server := &LiteServer{config: cfg}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	if server.logger == nil {
		server.logger = config.NewLogger(cfg.Logging())
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if server.knowledge == nil {
		server.knowledge = knowledge.NewStore(4096, server.logger)
		if err := server.knowledge.Reload(cfg.KnowledgePath()); err != nil {
			return nil, fmt.Errorf("failed to load knowledge snapshot %s: %w", cfg.KnowledgePath(), err)
		}
	}

	server.cache = cache.NewMemoryCache(cache.Config{MaxItems: cfg.CacheMaxItems, TTL: cfg.CacheTTL})

	differentials, err := repository.NewMemoryDifferentialRepository(cfg.CacheMaxItems)
	if err != nil {
		return nil, err
	}
	server.differentials = differentials

	if server.feedbackStore == nil {
		store, err := feedback.NewSQLiteStore(cfg.FeedbackDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create feedback store: %w", err)
		}
		server.feedbackStore = store
	}

	if server.literature == nil && cfg.LiteratureEnabled {
		server.literature = newLiteratureClient(cfg.Literature(), server.knowledge, server.logger)
	}

	admission := service.NewAdmissionController(domain.AdmissionConfig{
		MaxConcurrent: runtime.NumCPU(),
		MaxQueue:      64,
	}, server.logger)
	pipeline, err := service.NewDiagnosticPipeline(cfg.Diagnosis(), server.knowledge, server.literature, server.logger,
		service.WithAdmission(admission))
	if err != nil {
		return nil, fmt.Errorf("failed to create diagnostic pipeline: %w", err)
	}
	server.pipeline = pipeline

	server.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)
	server.registerTools()

	server.logger.WithFields(logrus.Fields{
		"data_dir":   cfg.DataDir,
		"literature": server.literature != nil,
	}).Info("Lite server initialized successfully")
	return server, nil
}

// newLiteratureClient builds PubMed behind a circuit breaker. There is no shared cache in lite
// mode; repeated cases are served by the result cache instead.
func newLiteratureClient(cfg domain.LiteratureConfig, store *knowledge.Store, logger *logrus.Logger) domain.LiteratureRetriever {
	names := func(diseaseID string) string {
		snapshot, err := store.Current()
		if err != nil {
			return ""
		}
		if d, ok := snapshot.Disease(diseaseID); ok {
			return d.Name
		}
		return ""
	}
	pubmed := external.NewPubMedClient(cfg, logger, external.WithNameResolver(names))
	return external.NewResilientLiteratureClient(pubmed, nil, 0, external.CircuitBreakerConfigFrom("pubmed", cfg), logger)
}

// Start runs the server on the configured transport until ctx is cancelled.
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.WithField("transport", s.config.Transport).Info("Starting diagnostic MCP server (lite)")

	if s.config.Transport == "http" {
		return s.serveHTTP(ctx)
	}
	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

func (s *LiteServer) serveHTTP(ctx context.Context) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcpServer }, nil)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", httpServer.Addr).Info("MCP HTTP transport listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("MCP HTTP transport failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// Close cleans up server resources.
func (s *LiteServer) Close() error {
	if s.feedbackStore != nil {
		if err := s.feedbackStore.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close feedback store")
			return err
		}
	}
	return nil
}

// GetFeedbackStore returns the feedback store for external access.
func (s *LiteServer) GetFeedbackStore() feedback.Store {
	return s.feedbackStore
}

// GetCache returns the memory cache for external access.
func (s *LiteServer) GetCache() *cache.MemoryCache {
	return s.cache
}
