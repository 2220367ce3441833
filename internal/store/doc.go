// Package store persists watch targets and delivery outcomes.
//
// The engine talks to the Store interface only; concrete drivers are
// selected by config:
//   - "sqlite": local SQLite database file
//   - "postgres": shared Postgres database (DSN)
//   - "memory": process-local, used by tests
package store
