// Package store provides the durable key-value storage used for workspace
// checkpoints and cached service data, with Redis and in-memory backends.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist in the store
var ErrNotFound = errors.New("store: key not found")

// Store is a minimal key-value interface. Values are opaque bytes; callers
// own serialization. A zero TTL stores the value without expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Close() error
}

// IsNotFound reports whether err means the key was absent
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
