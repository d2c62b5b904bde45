// Package sqlstore implements store.JobStore on database/sql.
//
// Two dialects are supported: PostgreSQL through the pgx stdlib driver and
// SQLite through the pure-Go modernc driver. Queries are written once with
// '?' placeholders and rebound per dialect. Schema migrations are embedded
// and applied with goose.
package sqlstore
