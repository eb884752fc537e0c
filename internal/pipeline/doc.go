// Package pipeline processes image candidates.
//
// Each candidate is a Job that runs through a Pipeline of steps: declared
// quality, fetch, content quality, fingerprint, commit and record. The
// first step that decides the outcome settles the job; the remaining steps
// are skipped except the record step, which writes the outcome to the
// ledger.
//
// A BatchProcessor runs the candidates of one source with bounded
// concurrency using errgroup. A step error stops the whole batch; such
// errors are reserved for cancellation and storage failures.
package pipeline
