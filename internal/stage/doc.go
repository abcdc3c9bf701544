// Package stage implements the six-stage lifecycle machine.
//
// The lifecycle is a linear chain S0→S1→S2→S3→S4→S5 with S5 terminal.
// Advancement moves exactly one ordinal step and is gated on days in
// stage; S4 additionally requires the stability window (90 qualifying
// days by default) before graduation. The only non-forward transition is
// an interruption, permitted from S2 onward.
//
// Business preconditions such as "consent signed" are the caller's
// responsibility; this engine gates only on elapsed time and stability
// counters. The administrative force flag bypasses eligibility, never
// adjacency.
//
// Every transition appends an immutable audit entry and syncs the cache
// snapshot inside the same unit of work as the record mutation.
package stage
