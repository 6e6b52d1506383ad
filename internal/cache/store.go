// Package cache holds the shared presence store: small namespaced maps that keep
// insertion order, plus short-lived locks. Every method is a single atomic step
// against the backend so callers never read-modify-write a whole map.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = errors.New("cache: miss")

// Store is the contract shared by the Redis and in-memory backends.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored under key in namespace ns, or ErrMiss.
	Get(ctx context.Context, ns, key string) (string, error)

	// Set overwrites the value for key. A new key is appended to the namespace
	// order; an existing key keeps its position.
	Set(ctx context.Context, ns, key, value string) error

	// SetNX stores the value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, ns, key, value string) (bool, error)

	// Delete removes key and reports whether it was present.
	Delete(ctx context.Context, ns, key string) (bool, error)

	// CompareAndDelete removes key only while its value equals expected.
	CompareAndDelete(ctx context.Context, ns, key, expected string) (bool, error)

	// PopPair removes the oldest entry whose key differs from self and returns it.
	// When such an entry exists, self's own entry is removed in the same step.
	// When none exists the namespace is left untouched and ok is false.
	PopPair(ctx context.Context, ns, self string) (key, value string, ok bool, err error)

	// Keys lists the keys of ns, oldest first.
	Keys(ctx context.Context, ns string) ([]string, error)

	// Lock takes key for token until ttl passes. It reports false if another
	// token holds it.
	Lock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// Unlock releases key if token still holds it.
	Unlock(ctx context.Context, key, token string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}
