package dedup

import (
	"cmp"
	"maps"
	"slices"
	"time"

	"github.com/nao1215/boxhunt/internal/model"
	"github.com/nao1215/boxhunt/internal/phash"
)

// Entry is one accepted image in the index.
type Entry struct {
	ID           string
	Fingerprint  model.Fingerprint
	DownloadedAt time.Time
}

// Match is the accepted image a probe fingerprint collides with.
type Match struct {
	ID           string
	Distance     int
	DownloadedAt time.Time
}

// Index holds the fingerprints of every accepted image in its scope.
//
// An Index is not safe for concurrent use. It belongs to one run context,
// which serialises each Lookup with the Insert that may follow it.
type Index struct {
	threshold int
	entries   map[string]Entry
}

// NewIndex creates an empty index. Two fingerprints at Hamming distance
// less than or equal to threshold are near-duplicates.
func NewIndex(threshold int) *Index {
	return &Index{
		threshold: threshold,
		entries:   make(map[string]Entry),
	}
}

// Threshold returns the configured duplicate threshold.
func (ix *Index) Threshold() int {
	return ix.threshold
}

// Lookup returns the accepted image closest to fp, if any lies within the
// threshold. Ties resolve to the smallest distance, then the earliest
// download, then the smallest id, so the answer does not depend on
// insertion order.
func (ix *Index) Lookup(fp model.Fingerprint) (Match, bool) {
	var (
		best  Match
		found bool
	)
	for _, e := range ix.entries {
		d := phash.Distance(fp, e.Fingerprint)
		if d > ix.threshold {
			continue
		}
		m := Match{ID: e.ID, Distance: d, DownloadedAt: e.DownloadedAt}
		if !found || better(m, best) {
			best = m
			found = true
		}
	}
	return best, found
}

func better(a, b Match) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	if !a.DownloadedAt.Equal(b.DownloadedAt) {
		return a.DownloadedAt.Before(b.DownloadedAt)
	}
	return a.ID < b.ID
}

// Insert adds an accepted image. Inserting an id twice keeps one entry.
func (ix *Index) Insert(e Entry) {
	ix.entries[e.ID] = e
}

// Rebuild replaces the content of the index with the downloaded records.
// Records of any other status and records without a fingerprint are
// ignored. It returns the resulting size.
func (ix *Index) Rebuild(records []model.ImageRecord) int {
	clear(ix.entries)
	for _, r := range records {
		if r.Status != model.StatusDownloaded {
			continue
		}
		fp, ok := r.Fingerprint()
		if !ok {
			continue
		}
		ix.Insert(Entry{ID: r.ID, Fingerprint: fp, DownloadedAt: r.DownloadedAt})
	}
	return len(ix.entries)
}

// Len returns the number of fingerprints in the index.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Entries returns every entry ordered by download time, then id.
func (ix *Index) Entries() []Entry {
	return slices.SortedFunc(maps.Values(ix.entries), func(a, b Entry) int {
		if c := a.DownloadedAt.Compare(b.DownloadedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
