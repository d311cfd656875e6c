// Package scan runs one scan through its lifecycle.
//
// An Orchestrator allocates a scan run in the metadata store, crawls the
// root into a staging artifact, bulk-loads the artifact, computes the delta
// against the previous state of the root and finalizes the run with change
// totals and run metadata. Phases are strictly sequential. A failure in any
// phase moves the orchestrator to StateFailed, leaves the scan run open and
// returns a *PhaseError naming the scan id and phase.
//
// Cleanup after a successful finalize (purging staging rows and deleting the
// artifact) is best effort and only logged on failure.
package scan
