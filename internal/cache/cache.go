// Package cache provides TTL response caches keyed by a hash of normalized
// request content.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Standard TTLs.
const (
	LookupTTL    = 24 * time.Hour
	GeneratedTTL = 7 * 24 * time.Hour
)

// Cache stores opaque values for a bounded time. Implementations treat
// backend errors as misses.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// Key hashes a namespace and request parts into a cache key. Parts are
// lowercased and whitespace-collapsed so trivially different prompts share an
// entry.
func Key(namespace string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strings.Join(strings.Fields(strings.ToLower(p)), " ")))
		h.Write([]byte{0})
	}
	return namespace + ":" + hex.EncodeToString(h.Sum(nil))[:32]
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process cache.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	nowFunc func() time.Time
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), nowFunc: time.Now}
}

// SetClock replaces the cache's time source.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowFunc = now
}

// Get returns an unexpired value.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !m.nowFunc().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value for ttl.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: value, expiresAt: m.nowFunc().Add(ttl)}
}

// Len returns the number of entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Backend is the persistence a Store cache needs.
type Backend interface {
	GetCached(ctx context.Context, key string) ([]byte, bool, error)
	SetCached(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Store caches through a persistent backend so entries survive restarts.
type Store struct {
	backend Backend
}

// NewStore wraps a persistent backend.
func NewStore(b Backend) *Store {
	return &Store{backend: b}
}

// Get returns an unexpired value from the backend.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	v, ok, err := s.backend.GetCached(ctx, key)
	if err != nil {
		zap.L().Warn("cache: get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return v, ok
}

// Set stores value in the backend.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := s.backend.SetCached(ctx, key, value, ttl); err != nil {
		zap.L().Warn("cache: set failed", zap.String("key", key), zap.Error(err))
	}
}
