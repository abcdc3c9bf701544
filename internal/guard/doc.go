// Package guard detects and repairs drift between journey records and
// their cache snapshots.
//
// Snapshots are written in the same unit of work as every record
// mutation, so under normal operation they cannot drift. The guard
// exists for the abnormal cases: manual data edits, partial restores,
// or bugs in an older writer. A sweep walks all tracked users, compares
// each snapshot field by field against the authoritative record, and
// rewrites stale snapshots from the record. The record always wins.
package guard
