// Package store provides SQLite-backed durable storage for
// standardization run archives.
//
// The store is an append-only archive with:
//   - Runs: one row per completed correction loop (score, ready flag, iterations)
//   - Issues: the validation findings behind a run's report
//   - Records: the final standardized records, as canonical JSON
//   - Layer scores: per-layer sub-scores for trend queries
//
// Writes are idempotent: every INSERT carries ON CONFLICT DO NOTHING,
// so re-archiving a run is a silent no-op. Reads order by run id
// COLLATE BINARY; run ids are UUIDv7, so binary order is creation
// order without ever consulting wall-clock columns.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// Record and report hashes are computed in internal/sdtm using RFC 8785
// canonical JSON and SHA-256 with domain separation.
package store
