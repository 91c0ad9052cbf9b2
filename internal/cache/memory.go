package cache

import (
	"sync"

	"github.com/aerc-harvest/harvester/internal/model"
	"github.com/aerc-harvest/harvester/pkg/failure"
)

// MemoryBackend is an in-memory Backend: a RWMutex-guarded
// map[string]model.FetchRecord. Lives only for the duration of the
// process (no persistence).
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string]model.FetchRecord
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data: make(map[string]model.FetchRecord),
	}
}

var _ Backend = (*MemoryBackend)(nil)

func (b *MemoryBackend) Get(key string) (model.FetchRecord, bool, failure.ClassifiedError) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	record, exists := b.data[key]
	return record, exists, nil
}

func (b *MemoryBackend) Put(key string, record model.FetchRecord) failure.ClassifiedError {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data[key] = record
	return nil
}

func (b *MemoryBackend) Delete(key string) failure.ClassifiedError {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.data, key)
	return nil
}

// Size returns the number of entries currently stored. Primarily
// useful for testing and diagnostics.
func (b *MemoryBackend) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.data)
}
