// Package journey defines the authoritative data model for a user's
// behavior-change journey: the six-stage lifecycle, agency and trust
// scoring state, append-only audit entries, and the denormalized cache
// snapshot read by fast paths.
//
// # Data Model
//
// Each user has exactly one Record, created lazily on first access and
// never deleted. The Record is mutated exclusively by the stage engine
// and the agency/trust scorers, always inside a store unit of work so
// that audit entries and the cache snapshot commit atomically with the
// mutation.
//
// Transition and SignalEntry rows are append-only; the Store interface
// deliberately exposes no way to update or delete them.
//
// # Invariants
//
//   - Stage advances one ordinal step at a time and never skips.
//   - StabilityDays is non-zero only while Stage == StageStability.
//   - AgencyMode matches the threshold mapping of AgencyScore unless a
//     coach override is active.
//   - AgencyScore and TrustScore are always within [0,1].
package journey
