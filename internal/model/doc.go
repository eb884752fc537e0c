// Package model defines the core data structures used throughout BoxHunt.
//
// This package contains the following main types:
//   - ImageCandidate: an image reference returned by a source, not yet judged
//   - ImageRecord: one append-only ledger row holding a candidate's outcome
//   - CrawlState: the checkpoint of a (keyword, source) pair
//   - RunSummary: the user-visible result of a run
//   - Stats: an aggregate view over every storage domain
//
// Models live in their own package because the source adapters, the
// storage manager, the orchestrator and the report writers all share them.
package model
