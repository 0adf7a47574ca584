package file

import (
	"context"
	"io"
	"strings"
	"sync"
)

// MemoryObjects is an ObjectStore held in memory. It serves development runs
// without S3 and the tests.
type MemoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	// FailSuffix rejects puts whose key ends with a listed suffix.
	FailSuffix map[string]error
}

func NewMemoryObjects() *MemoryObjects {
	return &MemoryObjects{objects: map[string][]byte{}}
}

func (m *MemoryObjects) Put(_ context.Context, key, _ string, body io.Reader, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for suffix, err := range m.FailSuffix {
		if strings.HasSuffix(key, suffix) {
			return err
		}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *MemoryObjects) PresignGet(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[key]; !ok {
		return "", ErrKeyNotFound
	}
	return "memory://" + key, nil
}

func (m *MemoryObjects) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	return b, ok
}

func (m *MemoryObjects) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
