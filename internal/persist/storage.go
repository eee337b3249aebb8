package persist

import "context"

// Storage is a durable key/value store for persisted collections.
type Storage interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
}

// Pinger is implemented by storages that can report their availability.
type Pinger interface {
	Ping(ctx context.Context) error
}
