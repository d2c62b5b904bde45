// Package ciutil detects CI environments and locates the PostgreSQL database
// used by integration tests.
package ciutil
