// Package database manages the PostgreSQL connection pool backing the
// update archive.
package database
