package cache

import (
	"context"
	"sync"
	"time"

	"github.com/joseph-ayodele/docparse/internal/entity"
)

type memEntry struct {
	backend   string
	digest    string
	payload   []byte
	createdAt time.Time
}

// MemoryStore keeps entries for the lifetime of the process only.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[entity.Fingerprint]memEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[entity.Fingerprint]memEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Lookup(ctx context.Context, fp entity.Fingerprint) (*entity.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	e, ok := m.entries[fp]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	artifact, err := verify(e.payload, e.digest)
	if err != nil {
		m.mu.Lock()
		delete(m.entries, fp)
		m.mu.Unlock()
		return nil, ErrMiss
	}
	return &entity.CacheEntry{
		Fingerprint: fp,
		Artifact:    artifact,
		CreatedAt:   e.createdAt,
		BackendID:   e.backend,
	}, nil
}

func (m *MemoryStore) Insert(ctx context.Context, fp entity.Fingerprint, artifact *entity.Artifact, backendID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, digest, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entries[fp]; ok {
		if existing.digest != digest {
			return conflictError(fp, existing.digest, digest)
		}
		return nil
	}
	m.entries[fp] = memEntry{backend: backendID, digest: digest, payload: payload, createdAt: m.now()}
	return nil
}

func (m *MemoryStore) Prune(_ context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for fp, e := range m.entries {
		if e.createdAt.Before(olderThan) {
			delete(m.entries, fp)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Stats(context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Stats{Driver: "memory", Entries: int64(len(m.entries))}
	for _, e := range m.entries {
		st.Bytes += int64(len(e.payload))
	}
	return st, nil
}

func (m *MemoryStore) Close() error { return nil }

// Len is the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
