package kv

import (
	"context"
	"sync"
)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{data: make(map[string]map[string][]byte)}
}

type MemoryRepository struct {
	mu     sync.RWMutex
	data   map[string]map[string][]byte
	writes int
}

func (m *MemoryRepository) Get(_ context.Context, scope, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	val, ok := m.data[scope][key]
	if !ok {
		return nil, nil
	}

	ret := make([]byte, len(val))
	copy(ret, val)
	return ret, nil
}

func (m *MemoryRepository) Set(_ context.Context, scope, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data[scope] == nil {
		m.data[scope] = make(map[string][]byte)
	}

	val := make([]byte, len(value))
	copy(val, value)
	m.data[scope][key] = val
	m.writes++

	return nil
}

// Writes is the number of Set calls so far
func (m *MemoryRepository) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.writes
}
