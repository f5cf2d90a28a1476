// Package sqlite provides a SQLite-backed implementation of logstore.Client.
//
// The store keeps one append-only table of records with:
//   - Position: global order across all streams (INTEGER PRIMARY KEY AUTOINCREMENT)
//   - Revision: per-stream order, UNIQUE(stream_id, revision)
//   - Metadata: free-form JSON carrying $causationId and $correlationId
//
// Persistent subscriptions are rows holding a filter and a checkpoint
// position. Each acknowledgement is written to the acked table before Ack
// returns and pruned once a checkpoint covers it, so a crash between
// checkpoints does not redeliver settled records. Parked records are kept
// per subscription for offline diagnosis and are never redelivered.
//
// # Concurrency
//
// The pool is limited to a single connection, so appends are serialized and
// the expected-revision check and the inserts of one batch run in the same
// transaction. Reads materialize their rows before yielding so a caller that
// appends from inside a range loop cannot deadlock on the pool.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package sqlite
