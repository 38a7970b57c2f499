// Package database opens the PostgreSQL pool used to persist merged points.
package database
