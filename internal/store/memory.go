package store

import (
	"context"
	"sync"

	"github.com/pipewatch/pipewatch/internal/models"
)

// MemoryStore provides an in-memory implementation useful for tests and local
// runs without durable infrastructure.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.ExecutionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]models.ExecutionRecord{}}
}

func copyRecord(rec models.ExecutionRecord) models.ExecutionRecord {
	out := rec
	out.Failures = append([]models.FailureEntry(nil), rec.Failures...)
	return out
}

func (m *MemoryStore) Get(ctx context.Context, executionID string) (models.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[executionID]
	if !ok {
		return models.ExecutionRecord{}, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (m *MemoryStore) Put(ctx context.Context, rec models.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ExecutionID] = copyRecord(rec)
	return nil
}

func (m *MemoryStore) MarkNotified(ctx context.Context, executionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[executionID]
	if !ok {
		return ErrNotFound
	}
	if rec.IsNotified {
		return ErrAlreadyNotified
	}
	rec.IsNotified = true
	m.records[executionID] = rec
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
