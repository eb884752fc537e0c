// Package database keeps the history of BoxHunt runs in SQLite.
//
// Each crawl, resume or crawl-site run stores its summary: one row in runs
// with the totals, one row per source in run_sources, and the full summary
// as JSON so the history command can render any past run again.
//
// The ledger and checkpoints in the data directory stay the source of truth
// for resumption; the history database is a convenience and losing it loses
// nothing a run depends on.
//
// The driver is modernc.org/sqlite, which needs no cgo.
package database
