package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by a Backend when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Backend stores opaque values with a time-to-live.
type Backend interface {
	// Get returns the value for key or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, overwriting any previous value. A
	// non-positive ttl stores the value without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Close releases backend resources.
	Close() error
}

// NopBackend never stores anything.
type NopBackend struct{}

// Get always reports a miss.
func (NopBackend) Get(context.Context, string) ([]byte, error) { return nil, ErrMiss }

// Set discards the value.
func (NopBackend) Set(context.Context, string, []byte, time.Duration) error { return nil }

// Close does nothing.
func (NopBackend) Close() error { return nil }
