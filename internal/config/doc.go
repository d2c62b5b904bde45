// Package config loads, parses and validates configuration from defaults, an
// optional YAML file and MEDVEX_-prefixed environment variables (for example
// MEDVEX_DATABASE_URL for database.url).
package config
