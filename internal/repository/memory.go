package repository

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ddx-reasoning-core/internal/domain"
)

// MemoryDifferentialRepository keeps the most recent differentials in process.
// Used by the lite server, which runs without PostgreSQL.
type MemoryDifferentialRepository struct {
	mu     sync.Mutex
	items  *lru.Cache[string, *domain.DifferentialDiagnosis]
	byCase map[string][]string // case ID -> differential IDs, oldest first
}

// NewMemoryDifferentialRepository bounds the store to capacity entries.
func NewMemoryDifferentialRepository(capacity int) (*MemoryDifferentialRepository, error) {
	if capacity <= 0 {
		capacity = 1000
	}
	r := &MemoryDifferentialRepository{byCase: map[string][]string{}}

	items, err := lru.NewWithEvict(capacity, r.onEvict)
	if err != nil {
		return nil, fmt.Errorf("creating differential store: %w", err)
	}
	r.items = items
	return r, nil
}

// onEvict runs under r.mu because every mutating call holds it.
func (r *MemoryDifferentialRepository) onEvict(id string, dd *domain.DifferentialDiagnosis) {
	ids := r.byCase[dd.CaseID]
	for i, v := range ids {
		if v == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(r.byCase, dd.CaseID)
		return
	}
	r.byCase[dd.CaseID] = ids
}

// Save stores a differential. Saving the same ID twice is a no-op.
func (r *MemoryDifferentialRepository) Save(_ context.Context, dd *domain.DifferentialDiagnosis) error {
	if dd == nil || dd.ID == "" {
		return fmt.Errorf("differential with an id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items.Contains(dd.ID) {
		return nil
	}
	r.byCase[dd.CaseID] = append(r.byCase[dd.CaseID], dd.ID)
	r.items.Add(dd.ID, dd)
	return nil
}

// GetByID retrieves a differential by its ID
func (r *MemoryDifferentialRepository) GetByID(_ context.Context, id string) (*domain.DifferentialDiagnosis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dd, ok := r.items.Get(id)
	if !ok {
		return nil, fmt.Errorf("differential %s: %w", id, domain.ErrNotFound)
	}
	return dd, nil
}

// ListByCase returns every retained differential for a case, newest first.
func (r *MemoryDifferentialRepository) ListByCase(_ context.Context, caseID string) ([]*domain.DifferentialDiagnosis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.byCase[caseID]
	result := make([]*domain.DifferentialDiagnosis, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if dd, ok := r.items.Peek(ids[i]); ok {
			result = append(result, dd)
		}
	}
	return result, nil
}

// Len returns the number of retained differentials.
func (r *MemoryDifferentialRepository) Len() int {
	return r.items.Len()
}
