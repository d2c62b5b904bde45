// Package resilience protects calls to unreliable dependencies.
//
// A Policy composes, from the inside out: a per-attempt timeout, retry with
// capped exponential backoff for transient failures, and a circuit breaker
// that fails fast once a call site keeps failing. ExecuteWithFallback adds a
// default value for read paths that can degrade.
//
// Policies and their breakers are owned by a Registry, one per call-site
// name. Breaker state is shared by every caller using that name and lives
// until the Registry is Reset.
package resilience
