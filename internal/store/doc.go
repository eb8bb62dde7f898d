// Package store provides the SQLite-backed export ledger.
//
// Every export run is recorded with the files it wrote and, per file, the
// ordered functions and the batch each landed in. The ledger answers "what
// did the last bake produce" without re-reading generated source.
//
// # Ordering
//
// Runs are ordered by seq, a logical counter assigned when the run is
// recorded, never by wall time. Queries use ORDER BY seq ASC, id ASC
// COLLATE BINARY so listings are identical across machines.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
