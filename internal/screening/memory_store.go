package screening

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu          sync.RWMutex
	assessments map[string][]*RiskAssessment // entity → assessments
}

// NewMemoryStore creates an in-memory assessment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assessments: make(map[string][]*RiskAssessment),
	}
}

func (s *MemoryStore) Record(ctx context.Context, assessment *RiskAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := copyAssessment(assessment)
	s.assessments[assessment.Entity] = append(s.assessments[assessment.Entity], cp)
	return nil
}

func (s *MemoryStore) ListByEntity(ctx context.Context, entity string, limit int) ([]*RiskAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.assessments[entity]
	if len(all) == 0 {
		return nil, nil
	}

	// Return most recent first, up to limit
	start := len(all) - limit
	if start < 0 {
		start = 0
	}

	result := make([]*RiskAssessment, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		result = append(result, copyAssessment(all[i]))
	}
	return result, nil
}

func copyAssessment(a *RiskAssessment) *RiskAssessment {
	cp := *a
	cp.EntityInfo.Tags = append([]string(nil), a.EntityInfo.Tags...)
	if a.DominantFactor != nil {
		f := *a.DominantFactor
		cp.DominantFactor = &f
	}
	if a.ActivityStats != nil {
		st := *a.ActivityStats
		cp.ActivityStats = &st
	}
	return &cp
}
