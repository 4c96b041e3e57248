// Package storage persists reminder items and per-user/per-scope settings.
//
// Drivers:
//   - "memory": process-local maps, lost on exit (tests, dry runs)
//   - "file":   memory plus an atomic JSON snapshot after every mutation
//   - "sqlite": SQLite database file (WAL), schema embedded in the binary
//
// Every driver implements reminder.Store. I/O failures wrap
// reminder.ErrStoreUnavailable and missing rows are reminder.ErrNotFound.
package storage
