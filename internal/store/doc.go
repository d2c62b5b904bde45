// Package store defines the persistence interfaces of the pipeline and the
// errors implementations return. The SQL implementation lives in
// internal/platform/sqlstore.
package store
