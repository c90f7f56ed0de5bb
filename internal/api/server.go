// Package api exposes the diagnostic pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ddx-reasoning-core/internal/domain"
	"github.com/ddx-reasoning-core/internal/feedback"
	"github.com/ddx-reasoning-core/internal/knowledge"
	"github.com/ddx-reasoning-core/internal/middleware"
	"github.com/ddx-reasoning-core/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Dependencies are the collaborators the HTTP boundary drives.
type Dependencies struct {
	Engine        domain.DiagnosticEngine
	Admission     *service.AdmissionController // optional
	Differentials domain.DifferentialRepository
	Feedback      feedback.Store // optional
	Knowledge     *knowledge.Store
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	deps          Dependencies
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, deps Dependencies, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	if gin.Mode() != gin.TestMode {
		if cfg.Logging.Level == "debug" {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.AuditLogger(logger))

	// The pipeline enforces its own deadline; the HTTP bound leaves room for persistence.
	if d := cfg.Diagnosis.Deadline; d > 0 {
		router.Use(middleware.RequestTimeout(d + 5*time.Second))
	}

	s := &Server{
		configManager: configManager,
		deps:          deps,
		logger:        logger,
		router:        router,
	}
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		var err error
		if cfg.TLSEnabled {
			err = s.server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/diagnose", s.handleDiagnose)
		v1.GET("/differentials/:id", s.handleGetDifferential)
		v1.GET("/cases/:case_id/differentials", s.handleListDifferentials)
		v1.POST("/feedback", s.handleRecordFeedback)
		v1.GET("/calibration", s.handleCalibration)
		v1.GET("/knowledge", s.handleKnowledge)
		v1.GET("/stats/top-diseases", s.handleTopDiseaseStats)
	}
}
