package archive

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/park285/cheese-arena/internal/domain"
)

// MemoryRepository is used when no DATABASE_URL is configured.
type MemoryRepository struct {
	mu      sync.RWMutex
	matches map[string]*domain.MatchRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{matches: make(map[string]*domain.MatchRecord)}
}

func (m *MemoryRepository) SaveMatch(_ context.Context, rec *domain.MatchRecord) error {
	if rec == nil {
		return ErrNilRecord
	}
	cp := *rec
	cp.MovesUCI = append([]string{}, rec.MovesUCI...)
	cp.MovesSAN = append([]string{}, rec.MovesSAN...)
	m.mu.Lock()
	m.matches[strings.TrimSpace(rec.SessionID)] = &cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryRepository) GetMatch(_ context.Context, sessionID string) (*domain.MatchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g, ok := m.matches[strings.TrimSpace(sessionID)]; ok {
		cp := *g
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryRepository) RecentByPlayer(_ context.Context, identity string, limit int) ([]*domain.MatchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]*domain.MatchRecord, 0)
	for _, g := range m.matches {
		if g.Involves(identity) {
			cp := *g
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].SessionID > items[j].SessionID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
