// Package storage provides the durable key/value layer behind reminder state.
//
// Values are plain strings; the schema (key names, encodings) belongs to the
// caller. Drivers:
//   - "sqlite": single-table SQLite database (modernc.org/sqlite, no cgo)
//   - "file":   JSON snapshot + append-only journal, compacted periodically
//   - "memory": process-local map, for tests and throwaway runs
package storage
