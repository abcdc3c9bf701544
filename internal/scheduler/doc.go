// Package scheduler runs the periodic batch jobs: the nightly stability
// count and the snapshot reconciliation sweep.
//
// Each run claims a (job, calendar-day) window in the store before doing
// any work, so duplicate invocations of the same job for the same day,
// whether from overlapping deployments or manual reruns, are no-ops.
// Within a run, each user is processed independently; a failing user is
// counted and skipped rather than aborting the batch.
package scheduler
