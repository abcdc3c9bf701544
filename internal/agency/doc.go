// Package agency scores how self-directed a user currently is.
//
// Six weighted signals aggregate into a score in [0,1], mapped onto
// three contiguous modes (passive / transitional / active). The
// coach_dependency signal is inverted before weighting: low dependency
// contributes positively to agency.
//
// A coach may override the computed mode. Overrides are ternary — one of
// the three modes mapped to a fixed representative score — so the stored
// shape is identical to the computed path. While an override is active
// it supersedes computation for all consumers; clearing it restores the
// mapping from the last computed signals.
//
// Every computation appends one SignalEntry per signal plus a composite
// entry to the audit log, and syncs the cache snapshot in the same unit
// of work as the record mutation.
package agency
