package calculator

import (
	"context"
	"sync"
)

// AuditRepository stores one Record per compute request.
type AuditRepository interface {
	Create(ctx context.Context, r *Record) error
	ListByCalculator(ctx context.Context, calculatorID string, limit, offset int) ([]*Record, int, error)
}

// memoryAuditRepo keeps the most recent records in memory. It is used when
// no database is configured.
type memoryAuditRepo struct {
	mu      sync.RWMutex
	max     int
	records []*Record
}

// NewMemoryAuditRepo returns a repository retaining at most max records.
func NewMemoryAuditRepo(max int) AuditRepository {
	if max <= 0 {
		max = 1000
	}
	return &memoryAuditRepo{max: max}
}

func (r *memoryAuditRepo) Create(_ context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records = append(r.records, &cp)
	if over := len(r.records) - r.max; over > 0 {
		r.records = append([]*Record(nil), r.records[over:]...)
	}
	return nil
}

// ListByCalculator returns records newest first.
func (r *memoryAuditRepo) ListByCalculator(_ context.Context, calculatorID string, limit, offset int) ([]*Record, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []*Record
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].CalculatorID == calculatorID {
			cp := *r.records[i]
			matched = append(matched, &cp)
		}
	}
	total := len(matched)
	if offset >= total {
		return []*Record{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}
