// Package database manages the archive's PostgreSQL connection pool and schema.
package database
