// Package cache provides the content-addressed lookup that lets the
// pipeline skip LLM calls for segments it has already translated under
// an identical configuration.
package cache

import (
	"context"
	"sync"
	"time"

	"subweave/internal/subtitle"
	"subweave/pkg/log"
)

// Backend is the persistence collaborator behind the cache.
type Backend interface {
	GetCache(ctx context.Context, contentHash, configFingerprint string) ([]subtitle.Entry, bool, error)
	PutCache(ctx context.Context, contentHash, configFingerprint string, entries []subtitle.Entry) error
}

// Store wraps a backend with the pipeline's cache semantics: a miss is
// not an error, and backend failures degrade to a miss so translation
// always proceeds.
type Store struct {
	backend Backend
}

func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Lookup returns the cached translation for (contentHash, configFingerprint).
// A hit increments the access count and refreshes recency in the backend.
func (s *Store) Lookup(ctx context.Context, contentHash, configFingerprint string) ([]subtitle.Entry, bool) {
	if s == nil || s.backend == nil {
		return nil, false
	}
	entries, ok, err := s.backend.GetCache(ctx, contentHash, configFingerprint)
	if err != nil {
		log.Warn("Cache lookup failed for %s: %v", shortHash(contentHash), err)
		return nil, false
	}
	return entries, ok
}

// Put stores a translation result. Idempotent: identical keys overwrite.
func (s *Store) Put(ctx context.Context, contentHash, configFingerprint string, entries []subtitle.Entry) {
	if s == nil || s.backend == nil {
		return
	}
	if err := s.backend.PutCache(ctx, contentHash, configFingerprint, entries); err != nil {
		log.Warn("Cache store failed for %s: %v", shortHash(contentHash), err)
	}
}

// shortHash truncates a content hash for log output without panicking on
// hashes shorter than the truncation length.
func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

// memoryBackend is an in-process backend used in tests and when the
// service runs without a database.
type memoryBackend struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	payload        []subtitle.Entry
	accessCount    int
	lastAccessedAt time.Time
}

// NewMemory returns a Store backed by process memory.
func NewMemory() *Store {
	return NewStore(&memoryBackend{entries: make(map[string]*memoryEntry)})
}

func memoryKey(contentHash, configFingerprint string) string {
	return contentHash + "|" + configFingerprint
}

func (m *memoryBackend) GetCache(_ context.Context, contentHash, configFingerprint string) ([]subtitle.Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[memoryKey(contentHash, configFingerprint)]
	if !ok {
		return nil, false, nil
	}
	entry.accessCount++
	entry.lastAccessedAt = time.Now()
	return append([]subtitle.Entry(nil), entry.payload...), true, nil
}

func (m *memoryBackend) PutCache(_ context.Context, contentHash, configFingerprint string, entries []subtitle.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memoryKey(contentHash, configFingerprint)
	existing, ok := m.entries[key]
	if !ok {
		existing = &memoryEntry{}
		m.entries[key] = existing
	}
	existing.payload = append([]subtitle.Entry(nil), entries...)
	existing.lastAccessedAt = time.Now()
	return nil
}
