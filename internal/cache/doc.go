// Package cache holds the read-through result cache keyed by request
// fingerprint.
//
// ResultCache is fail-open: any backend error is logged and treated as a miss
// on read and as a no-op on write, so an unavailable cache only costs
// recomputation. Backends are a mutex-guarded in-memory map, Redis, or a
// no-op that always misses.
package cache
