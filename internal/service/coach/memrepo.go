package coach

import (
	"context"
	"sort"
	"sync"
)

// memrepo is the in-process Repository used when no database is configured.
type memrepo struct {
	mu    sync.RWMutex
	byID  map[string]*AnalysisRecord
	byFEN map[string][]*AnalysisRecord
}

func NewMemoryRepository() Repository {
	return &memrepo{
		byID:  make(map[string]*AnalysisRecord),
		byFEN: make(map[string][]*AnalysisRecord),
	}
}

func (m *memrepo) InsertAnalysis(ctx context.Context, rec *AnalysisRecord) error {
	if rec == nil {
		return ErrDuplicateRecord
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[rec.ID]; exists {
		return ErrDuplicateRecord
	}
	cp := cloneRecord(rec)
	m.byID[cp.ID] = cp
	m.byFEN[cp.FEN] = append(m.byFEN[cp.FEN], cp)
	return nil
}

func (m *memrepo) GetAnalysis(ctx context.Context, id string) (*AnalysisRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byID[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneRecord(rec), nil
}

func (m *memrepo) RecentAnalyses(ctx context.Context, fen string, limit int) ([]*AnalysisRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	src := append([]*AnalysisRecord(nil), m.byFEN[fen]...)
	m.mu.RUnlock()

	sort.SliceStable(src, func(i, j int) bool {
		return src[i].CreatedAt.After(src[j].CreatedAt)
	})
	if len(src) > limit {
		src = src[:limit]
	}
	out := make([]*AnalysisRecord, len(src))
	for i, rec := range src {
		out[i] = cloneRecord(rec)
	}
	return out, nil
}

func cloneRecord(rec *AnalysisRecord) *AnalysisRecord {
	cp := *rec
	cp.Facts = append([]byte(nil), rec.Facts...)
	return &cp
}
