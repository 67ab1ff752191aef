// Package database provides the PostgreSQL layer: pool setup, startup DDL,
// and the pgx-backed repositories for channels, messages, and the user
// directory.
package database
