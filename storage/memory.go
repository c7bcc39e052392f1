package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/ruteri/wallet-custody-backend/interfaces"
)

// MemoryStore is an in-process key-value store. Values are copied on the way in and out.
type MemoryStore struct {
	mu   sync.RWMutex
	name string
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{
		name: name,
		data: make(map[string][]byte),
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[key]
	if !ok {
		return nil, interfaces.ErrContentNotFound
	}
	return append([]byte(nil), value...), nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// Update runs fn with the store locked.
func (m *MemoryStore) Update(ctx context.Context, key string, fn interfaces.UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, found := m.data[key]
	next, err := fn(append([]byte(nil), current...), found)
	if err != nil {
		return err
	}
	m.data[key] = append([]byte(nil), next...)
	return nil
}

// Keys returns the number of stored keys.
func (m *MemoryStore) Keys() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryStore) Available(ctx context.Context) bool {
	return true
}

func (m *MemoryStore) Name() string {
	return fmt.Sprintf("memory-%s", m.name)
}

func (m *MemoryStore) LocationURI() string {
	return fmt.Sprintf("memory://%s", m.name)
}
