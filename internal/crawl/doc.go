// Package crawl is the run context of BoxHunt.
//
// A Crawler owns everything one run mutates: the deduplication index,
// rebuilt from every storage domain's ledger when the Crawler is created,
// and the checkpoints of the (keyword, source) pairs it processes. Several
// Crawlers may live in one process; they share nothing but the storage
// manager they were given.
//
// Each pair moves through pending, in_progress and completed. A pair is
// completed once every candidate its source returned has a terminal ledger
// row, and it is exhausted with failures when one of those rows is failed.
// Sources run concurrently; the keywords of one source run in order.
package crawl
