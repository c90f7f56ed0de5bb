package feedback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite feedback store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

const selectColumns = `id, case_id, differential_id, disease_id, rank, predicted_confidence,
	outcome, knowledge_version, model_version, notes, created_at, updated_at`

func scanFeedback(s scanner) (*Feedback, error) {
	fb := &Feedback{}
	var outcome string

	err := s.Scan(
		&fb.ID, &fb.CaseID, &fb.DifferentialID, &fb.DiseaseID, &fb.Rank, &fb.PredictedConfidence,
		&outcome, &fb.KnowledgeVersion, &fb.ModelVersion, &fb.Notes, &fb.CreatedAt, &fb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	fb.Outcome = Outcome(outcome)
	return fb, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS diagnosis_feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		case_id TEXT NOT NULL,
		differential_id TEXT DEFAULT '',
		disease_id TEXT NOT NULL,
		rank INTEGER NOT NULL DEFAULT 0,
		predicted_confidence REAL NOT NULL,
		outcome TEXT NOT NULL,
		knowledge_version TEXT DEFAULT '',
		model_version TEXT DEFAULT '',
		notes TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(case_id, disease_id)
	);

	CREATE INDEX IF NOT EXISTS idx_feedback_disease ON diagnosis_feedback(disease_id);
	CREATE INDEX IF NOT EXISTS idx_feedback_model ON diagnosis_feedback(model_version);
	CREATE INDEX IF NOT EXISTS idx_feedback_created_at ON diagnosis_feedback(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Save stores or updates feedback for a case and disease.
func (s *SQLiteStore) Save(ctx context.Context, feedback *Feedback) error {
	if err := feedback.Validate(); err != nil {
		return fmt.Errorf("invalid feedback: %w", err)
	}
	now := time.Now().UTC()

	var existingID int64
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT id, created_at FROM diagnosis_feedback WHERE case_id = ? AND disease_id = ?",
		feedback.CaseID, feedback.DiseaseID,
	).Scan(&existingID, &createdAt)

	if err == nil {
		feedback.ID = existingID
		feedback.CreatedAt = createdAt
		feedback.UpdatedAt = now

		_, err = s.db.ExecContext(ctx, `
			UPDATE diagnosis_feedback SET
				differential_id = ?,
				rank = ?,
				predicted_confidence = ?,
				outcome = ?,
				knowledge_version = ?,
				model_version = ?,
				notes = ?,
				updated_at = ?
			WHERE id = ?
		`,
			feedback.DifferentialID,
			feedback.Rank,
			feedback.PredictedConfidence,
			string(feedback.Outcome),
			feedback.KnowledgeVersion,
			feedback.ModelVersion,
			feedback.Notes,
			now,
			existingID,
		)
		return err
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check existing: %w", err)
	}

	feedback.CreatedAt = now
	feedback.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO diagnosis_feedback (
			case_id, differential_id, disease_id, rank, predicted_confidence,
			outcome, knowledge_version, model_version, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
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
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	feedback.ID = id
	return nil
}

// Get retrieves the feedback for a case and disease.
func (s *SQLiteStore) Get(ctx context.Context, caseID, diseaseID string) (*Feedback, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM diagnosis_feedback WHERE case_id = ? AND disease_id = ? LIMIT 1",
		caseID, diseaseID)

	fb, err := scanFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return fb, nil
}

// List returns feedback entries with pagination.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Feedback, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM diagnosis_feedback ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
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
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM diagnosis_feedback").Scan(&count)
	return count, err
}

// Delete removes a feedback entry by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM diagnosis_feedback WHERE id = ?", id)
	return err
}

// Samples returns prediction/outcome pairs in insertion order.
func (s *SQLiteStore) Samples(ctx context.Context, modelVersion string) (Samples, error) {
	query := "SELECT predicted_confidence, outcome FROM diagnosis_feedback"
	var args []interface{}
	if modelVersion != "" {
		query += " WHERE model_version = ?"
		args = append(args, modelVersion)
	}
	query += " ORDER BY id"

	return collectSamples(ctx, s.db, query, args...)
}

func collectSamples(ctx context.Context, db *sql.DB, query string, args ...interface{}) (Samples, error) {
	var samples Samples
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return samples, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var confidence float64
		var outcome string
		if err := rows.Scan(&confidence, &outcome); err != nil {
			return samples, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples.add(confidence, Outcome(outcome))
	}
	return samples, rows.Err()
}

// ExportJSON exports all feedback to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s, writer)
}

// ImportJSON imports feedback from a JSON reader.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importJSON(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
