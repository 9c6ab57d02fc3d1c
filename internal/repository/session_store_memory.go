package repository

import (
	"context"
	"sync"

	"MarketCore/internal/domain/models"
	"MarketCore/internal/domain/repository"
)

// MemorySessionStore keeps session states in process memory.
type MemorySessionStore struct {
	mu     sync.RWMutex
	states map[string]models.SessionState
}

var _ repository.SessionStore = (*MemorySessionStore)(nil)

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{states: make(map[string]models.SessionState)}
}

func (m *MemorySessionStore) Load(_ context.Context, symbol string) (models.SessionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[storeKey(symbol)]
	if !ok {
		return models.SessionState{}, models.ErrStateNotFound
	}
	return st.Clone(), nil
}

func (m *MemorySessionStore) Save(_ context.Context, symbol string, st models.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[storeKey(symbol)] = st.Clone()
	return nil
}
