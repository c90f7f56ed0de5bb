package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/ddx-reasoning-core/internal/domain"
)

// DifferentialRepository persists produced differentials as JSONB documents.
// Rows are write-once; a re-run of the same case produces a new row.
type DifferentialRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewDifferentialRepository creates a new differential repository
func NewDifferentialRepository(db *pgxpool.Pool, logger *logrus.Logger) *DifferentialRepository {
	return &DifferentialRepository{
		db:  db,
		log: logger,
	}
}

// Save inserts a differential. Saving the same ID twice is a no-op.
func (r *DifferentialRepository) Save(ctx context.Context, dd *domain.DifferentialDiagnosis) error {
	if dd == nil {
		return fmt.Errorf("differential is required")
	}
	id, err := uuid.Parse(dd.ID)
	if err != nil {
		return fmt.Errorf("invalid differential id %q: %w", dd.ID, err)
	}

	payload, err := json.Marshal(dd)
	if err != nil {
		return fmt.Errorf("marshaling differential: %w", err)
	}

	var topID string
	var topConfidence float64
	if top, ok := dd.Top(); ok {
		topID = top.Candidate.DiseaseID
		topConfidence = top.Confidence.Point
	}

	query := `
		INSERT INTO differentials (
			id, case_id, top_disease_id, top_confidence, diagnosis_count,
			urgent, degraded, knowledge_version, model_version, payload, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (id) DO NOTHING`

	_, err = r.db.Exec(ctx, query,
		id,
		dd.CaseID,
		topID,
		topConfidence,
		len(dd.Diagnoses),
		len(dd.UrgentFlags) > 0,
		dd.DegradedExplainability,
		dd.Metadata.KnowledgeVersion,
		dd.Metadata.ModelVersion,
		payload,
		dd.Metadata.GeneratedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"differential_id": dd.ID,
			"case_id":         dd.CaseID,
			"error":           err,
		}).Error("Failed to save differential")
		return fmt.Errorf("saving differential: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"differential_id":   dd.ID,
		"case_id":           dd.CaseID,
		"top_disease":       topID,
		"knowledge_version": dd.Metadata.KnowledgeVersion,
	}).Debug("Differential saved")
	return nil
}

// GetByID retrieves a differential by its ID
func (r *DifferentialRepository) GetByID(ctx context.Context, id string) (*domain.DifferentialDiagnosis, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("differential %s: %w", id, domain.ErrNotFound)
	}

	var payload []byte
	err = r.db.QueryRow(ctx, `SELECT payload FROM differentials WHERE id = $1`, parsed).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("differential %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting differential: %w", err)
	}
	return decodeDifferential(payload)
}

// ListByCase returns every differential for a case, newest first.
func (r *DifferentialRepository) ListByCase(ctx context.Context, caseID string) ([]*domain.DifferentialDiagnosis, error) {
	rows, err := r.db.Query(ctx,
		`SELECT payload FROM differentials WHERE case_id = $1 ORDER BY created_at DESC, id`, caseID)
	if err != nil {
		return nil, fmt.Errorf("listing differentials: %w", err)
	}
	defer rows.Close()

	result := []*domain.DifferentialDiagnosis{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning differential: %w", err)
		}
		dd, err := decodeDifferential(payload)
		if err != nil {
			return nil, err
		}
		result = append(result, dd)
	}
	return result, rows.Err()
}

// CountByTopDisease tallies how often each disease was ranked first.
func (r *DifferentialRepository) CountByTopDisease(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT top_disease_id, COUNT(*) FROM differentials WHERE top_disease_id <> '' GROUP BY top_disease_id`)
	if err != nil {
		return nil, fmt.Errorf("counting differentials: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func decodeDifferential(payload []byte) (*domain.DifferentialDiagnosis, error) {
	var dd domain.DifferentialDiagnosis
	if err := json.Unmarshal(payload, &dd); err != nil {
		return nil, fmt.Errorf("unmarshaling differential: %w", err)
	}
	return &dd, nil
}
