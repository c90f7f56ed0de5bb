package feedback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL feedback store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL feedback store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Save upserts feedback keyed by case and disease.
func (s *PostgresStore) Save(ctx context.Context, feedback *Feedback) error {
	if err := feedback.Validate(); err != nil {
		return fmt.Errorf("invalid feedback: %w", err)
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO diagnosis_feedback (
			case_id, differential_id, disease_id, rank, predicted_confidence,
			outcome, knowledge_version, model_version, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (case_id, disease_id) DO UPDATE SET
			differential_id = EXCLUDED.differential_id,
			rank = EXCLUDED.rank,
			predicted_confidence = EXCLUDED.predicted_confidence,
			outcome = EXCLUDED.outcome,
			knowledge_version = EXCLUDED.knowledge_version,
			model_version = EXCLUDED.model_version,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		feedback.CaseID,
		feedback.DifferentialID,
		feedback.DiseaseID,
		feedback.Rank,
		feedback.PredictedConfidence,
		string(feedback.Outcome),
		feedback.KnowledgeVersion,
		feedback.ModelVersion,
		feedback.Notes,
		now,
		now,
	).Scan(&feedback.ID, &feedback.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}

	feedback.UpdatedAt = now
	return nil
}

// Get retrieves the feedback for a case and disease.
func (s *PostgresStore) Get(ctx context.Context, caseID, diseaseID string) (*Feedback, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM diagnosis_feedback WHERE case_id = $1 AND disease_id = $2 LIMIT 1",
		caseID, diseaseID)

	fb, err := scanFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	return fb, nil
}

// List returns feedback entries with pagination.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Feedback, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM diagnosis_feedback ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var result []*Feedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, fb)
	}
	return result, rows.Err()
}

// Count returns the total number of feedback entries.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM diagnosis_feedback").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count feedback: %w", err)
	}
	return count, nil
}

// Delete removes a feedback entry by ID.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM diagnosis_feedback WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete feedback: %w", err)
	}
	return nil
}

// Samples returns prediction/outcome pairs in insertion order.
func (s *PostgresStore) Samples(ctx context.Context, modelVersion string) (Samples, error) {
	if modelVersion == "" {
		return collectSamples(ctx, s.db, "SELECT predicted_confidence, outcome FROM diagnosis_feedback ORDER BY id")
	}
	return collectSamples(ctx, s.db,
		"SELECT predicted_confidence, outcome FROM diagnosis_feedback WHERE model_version = $1 ORDER BY id",
		modelVersion)
}

// ExportJSON exports all feedback to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s, writer)
}

// ImportJSON imports feedback from a JSON reader.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importJSON(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
