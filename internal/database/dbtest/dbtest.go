// Package dbtest starts a throwaway PostgreSQL for integration tests.
package dbtest

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ddx-reasoning-core/internal/database"
)

// MigrationsPath locates the repository's migrations directory.
func MigrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
}

func password() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "test_fallback_password_123"
	}
	return "test_" + hex.EncodeToString(b)
}

// Start runs a migrated postgres:15-alpine container. It skips in -short mode.
func Start(t *testing.T) (*database.DB, database.Config) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}

	ctx := context.Background()
	pw := password()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword(pw),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	config := database.Config{
		Host:        host,
		Port:        port.Int(),
		Database:    "testdb",
		Username:    "testuser",
		Password:    pw,
		MaxConns:    10,
		MinConns:    2,
		MaxConnLife: time.Hour,
		MaxConnIdle: 30 * time.Minute,
		SSLMode:     "disable",
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	runner, err := database.NewMigrationRunner(config.URL(), MigrationsPath(), logger)
	if err != nil {
		t.Fatalf("Failed to create migration runner: %v", err)
	}
	defer runner.Close()
	if err := runner.Up(ctx); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	db, err := database.NewConnection(ctx, config, logger)
	if err != nil {
		t.Fatalf("Failed to create database connection: %v", err)
	}
	t.Cleanup(db.Close)

	return db, config
}
