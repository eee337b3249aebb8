// Package memory implements an in-process key/value storage with an optional
// byte quota, mirroring the behaviour of browser local storage.
package memory

import (
	"context"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/persist"
)

// ErrQuotaExceeded is returned by Set when the write would exceed the quota.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

var (
	_ persist.Storage = (*Storage)(nil)
	_ persist.Pinger  = (*Storage)(nil)
)

// Storage is a concurrency-safe map of string values.
type Storage struct {
	mu     sync.RWMutex
	values map[string]string
	used   int
	quota  int
}

// New returns an empty Storage. A quota of zero or less means unlimited;
// otherwise the summed length of keys and values may not exceed quota bytes.
func New(quota int) *Storage {
	return &Storage{
		values: make(map[string]string),
		quota:  quota,
	}
}

// Get returns the value stored under key.
func (s *Storage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	return v, ok, nil
}

// Set stores value under key. A rejected write leaves the previous value.
func (s *Storage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.used
	if old, ok := s.values[key]; ok {
		used -= len(key) + len(old)
	}
	used += len(key) + len(value)

	if s.quota > 0 && used > s.quota {
		return errors.Wrapf(ErrQuotaExceeded, "set %q: %d bytes over quota %d", key, used, s.quota)
	}

	s.values[key] = value
	s.used = used
	return nil
}

// Ping always succeeds.
func (s *Storage) Ping(context.Context) error { return nil }
