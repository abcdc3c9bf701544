// Package sqlite persists journey state in a single SQLite database.
//
// The database holds the authoritative journey_records table, the
// append-only transition_log and signal_log, the cache_snapshots table,
// and job_runs for batch idempotency claims. Mutations run the whole
// read-modify-write cycle plus any staged audit writes inside one
// transaction; the connection pool is capped at a single connection so
// concurrent writers serialize rather than fail with SQLITE_BUSY.
package sqlite
