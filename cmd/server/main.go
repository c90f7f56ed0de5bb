// Command server runs the diagnostic reasoning core behind its HTTP API, backed by PostgreSQL.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ddx-reasoning-core/internal/api"
	"github.com/ddx-reasoning-core/internal/config"
	"github.com/ddx-reasoning-core/internal/database"
	"github.com/ddx-reasoning-core/internal/domain"
	"github.com/ddx-reasoning-core/internal/feedback"
	"github.com/ddx-reasoning-core/internal/knowledge"
	"github.com/ddx-reasoning-core/internal/repository"
	"github.com/ddx-reasoning-core/internal/service"
	"github.com/ddx-reasoning-core/pkg/external"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := config.NewLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if err := run(ctx, configManager, logger); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, configManager *config.Manager, logger *logrus.Logger) error {
	cfg := configManager.GetConfig()

	store := knowledge.NewStore(cfg.Knowledge.LookupCacheSize, logger)
	if err := store.Reload(cfg.Knowledge.SnapshotPath); err != nil {
		return err
	}
	go store.WatchFile(ctx, cfg.Knowledge.SnapshotPath, cfg.Knowledge.ReloadInterval)

	dbConfig := database.ConfigFromDomain(cfg.Database)
	db, err := database.NewConnection(ctx, dbConfig, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrate(ctx, dbConfig.URL(), cfg.Database.MigrationsPath, logger); err != nil {
		return err
	}

	feedbackStore, err := feedback.NewPostgresStoreFromURL(dbConfig.URL())
	if err != nil {
		return err
	}
	defer feedbackStore.Close()

	var literature domain.LiteratureRetriever
	if cfg.Literature.Enabled {
		client, closeCache := newLiteratureClient(cfg, store, logger)
		defer closeCache()
		literature = client
	}

	admission := service.NewAdmissionController(cfg.Admission, logger)
	pipeline, err := service.NewDiagnosticPipeline(cfg.Diagnosis, store, literature, logger, service.WithAdmission(admission))
	if err != nil {
		return err
	}

	server := api.NewServer(configManager, api.Dependencies{
		Engine:        pipeline,
		Admission:     admission,
		Differentials: repository.NewDifferentialRepository(db.Pool, logger),
		Feedback:      feedbackStore,
		Knowledge:     store,
	}, logger)

	logger.WithFields(logrus.Fields{
		"host":              cfg.Server.Host,
		"port":              cfg.Server.Port,
		"environment":       cfg.Environment,
		"literature":        cfg.Literature.Enabled,
		"knowledge_version": currentVersion(store),
	}).Info("Starting diagnostic reasoning server")
	return server.Start(ctx)
}

func migrate(ctx context.Context, url, path string, logger *logrus.Logger) error {
	if path == "" {
		path = "migrations"
	}
	runner, err := database.NewMigrationRunner(url, path, logger)
	if err != nil {
		return err
	}
	defer runner.Close()
	return runner.Up(ctx)
}

// newLiteratureClient layers PubMed behind a circuit breaker and, when Redis is configured and
// reachable, a shared citation cache.
func newLiteratureClient(cfg *domain.Config, store *knowledge.Store, logger *logrus.Logger) (domain.LiteratureRetriever, func()) {
	names := func(diseaseID string) string {
		snapshot, err := store.Current()
		if err != nil {
			return ""
		}
		d, _ := snapshot.Disease(diseaseID)
		return d.Name
	}
	pubmed := external.NewPubMedClient(cfg.Literature, logger, external.WithNameResolver(names))
	breaker := external.CircuitBreakerConfigFrom("pubmed", cfg.Literature)

	closeCache := func() {}
	var citationStore external.CitationStore
	if cfg.Cache.RedisURL != "" {
		cache, err := external.NewCitationCache(cfg.Cache)
		if err != nil {
			logger.WithError(err).Warn("Citation cache unavailable, continuing without it")
		} else {
			citationStore = cache
			closeCache = func() { cache.Close() }
		}
	}
	return external.NewResilientLiteratureClient(pubmed, citationStore, cfg.Literature.CacheTTL, breaker, logger), closeCache
}

func currentVersion(store *knowledge.Store) string {
	snapshot, err := store.Current()
	if err != nil {
		return ""
	}
	return snapshot.Version()
}
