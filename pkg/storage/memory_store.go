package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"
)

// MemoryStore keeps objects in-process. Backs tests that need to observe
// whether a blob is still reachable after a failed registration.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	putErr  error
	delErr  error
}

// NewMemoryObjectStore initializes an empty in-memory object store.
func NewMemoryObjectStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// FailPuts makes subsequent Put calls return err (nil restores normal behavior).
func (m *MemoryStore) FailPuts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
}

// FailDeletes makes subsequent Delete calls return err (nil restores normal behavior).
func (m *MemoryStore) FailDeletes(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delErr = err
}

func (m *MemoryStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "memory://" + key, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delErr != nil {
		return m.delErr
	}
	delete(m.objects, key)
	return nil
}

// Has reports whether the object is reachable; used by tests.
func (m *MemoryStore) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok
}

// Len reports stored object count; used by tests.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
