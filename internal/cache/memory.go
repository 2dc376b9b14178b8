package cache

import (
	"context"
	"sync"
)

// MemoryBackend is the process-local cache implementation: a single
// mutex-guarded map shared by every Handle it hands out. Instance is
// infallible - there is no pool to exhaust.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend constructs an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

// Instance always succeeds; the returned handle is a thin view over the
// shared map and Close is a no-op.
func (b *MemoryBackend) Instance(_ context.Context) (Handle, error) {
	return &memoryHandle{backend: b}, nil
}

type memoryHandle struct {
	backend *MemoryBackend
}

func (h *memoryHandle) Read(_ context.Context, method, key string) (ReadResult, error) {
	mapKey := method + "\x00" + key
	h.backend.mu.RLock()
	defer h.backend.mu.RUnlock()
	value, ok := h.backend.data[mapKey]
	return ReadResult{Key: key, Value: value, Hit: ok}, nil
}

func (h *memoryHandle) Write(_ context.Context, method, key string, value []byte) error {
	mapKey := method + "\x00" + key
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	// Copy so later mutation of the caller's slice can't corrupt a
	// previously written value.
	stored := make([]byte, len(value))
	copy(stored, value)
	h.backend.data[mapKey] = stored
	return nil
}

func (h *memoryHandle) Close() {}

// Len reports the number of entries currently stored.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// SizeBytes sums stored value lengths.
func (b *MemoryBackend) SizeBytes() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total int64
	for _, v := range b.data {
		total += int64(len(v))
	}
	return total
}
