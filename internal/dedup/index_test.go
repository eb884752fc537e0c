package dedup

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/nao1215/boxhunt/internal/model"
	"github.com/nao1215/boxhunt/internal/phash"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// TestLookup tests threshold handling and tie-breaking.
func TestLookup(t *testing.T) {
	t.Parallel()

	t.Run("empty index has no match", func(t *testing.T) {
		t.Parallel()
		if _, ok := NewIndex(5).Lookup(0); ok {
			t.Error("expected no match")
		}
	})

	t.Run("threshold is inclusive", func(t *testing.T) {
		t.Parallel()
		ix := NewIndex(5)
		ix.Insert(Entry{ID: "a", Fingerprint: 0})

		if m, ok := ix.Lookup(0b11111); !ok || m.Distance != 5 {
			t.Errorf("expected match at distance 5, got %+v %v", m, ok)
		}
		if _, ok := ix.Lookup(0b111111); ok {
			t.Error("expected no match at distance 6")
		}
	})

	t.Run("zero threshold matches exact fingerprints only", func(t *testing.T) {
		t.Parallel()
		ix := NewIndex(0)
		ix.Insert(Entry{ID: "a", Fingerprint: 42})
		if _, ok := ix.Lookup(42); !ok {
			t.Error("expected exact match")
		}
		if _, ok := ix.Lookup(43); ok {
			t.Error("expected no match")
		}
	})

	t.Run("smallest distance wins", func(t *testing.T) {
		t.Parallel()
		ix := NewIndex(5)
		ix.Insert(Entry{ID: "far", Fingerprint: 0b1111, DownloadedAt: base})
		ix.Insert(Entry{ID: "near", Fingerprint: 0b1, DownloadedAt: base.Add(time.Hour)})
		m, ok := ix.Lookup(0)
		if !ok || m.ID != "near" {
			t.Errorf("expected near, got %+v", m)
		}
	})

	t.Run("earliest download breaks distance ties", func(t *testing.T) {
		t.Parallel()
		ix := NewIndex(5)
		ix.Insert(Entry{ID: "a-late", Fingerprint: 0b01, DownloadedAt: base.Add(time.Minute)})
		ix.Insert(Entry{ID: "z-early", Fingerprint: 0b10, DownloadedAt: base})
		m, _ := ix.Lookup(0)
		if m.ID != "z-early" {
			t.Errorf("expected z-early, got %q", m.ID)
		}
	})

	t.Run("smallest id breaks remaining ties", func(t *testing.T) {
		t.Parallel()
		ix := NewIndex(5)
		ix.Insert(Entry{ID: "b", Fingerprint: 0b01, DownloadedAt: base})
		ix.Insert(Entry{ID: "a", Fingerprint: 0b10, DownloadedAt: base})
		m, _ := ix.Lookup(0)
		if m.ID != "a" {
			t.Errorf("expected a, got %q", m.ID)
		}
	})
}

// TestInsertIsASet tests that re-inserting an id does not grow the index.
func TestInsertIsASet(t *testing.T) {
	t.Parallel()

	ix := NewIndex(5)
	ix.Insert(Entry{ID: "a", Fingerprint: 1})
	ix.Insert(Entry{ID: "a", Fingerprint: 1})
	if ix.Len() != 1 {
		t.Errorf("got %d entries, expected 1", ix.Len())
	}
}

// TestRebuild tests replay of ledger records.
func TestRebuild(t *testing.T) {
	t.Parallel()

	records := []model.ImageRecord{
		{ID: "1", Status: model.StatusDownloaded, PerceptualHash: model.Fingerprint(0xF0).String(), DownloadedAt: base},
		{ID: "2", Status: model.StatusDuplicate, PerceptualHash: model.Fingerprint(0xF1).String()},
		{ID: "3", Status: model.StatusRejected},
		{ID: "4", Status: model.StatusFailed},
		{ID: "5", Status: model.StatusDownloaded, PerceptualHash: model.Fingerprint(0xFFFF0000).String(), DownloadedAt: base.Add(time.Second)},
		{ID: "1", Status: model.StatusDownloaded, PerceptualHash: model.Fingerprint(0xF0).String(), DownloadedAt: base},
		{ID: "6", Status: model.StatusDownloaded},
	}

	t.Run("only downloaded records with a hash count", func(t *testing.T) {
		t.Parallel()
		ix := NewIndex(5)
		if n := ix.Rebuild(records); n != 2 {
			t.Errorf("got %d entries, expected 2", n)
		}
	})

	t.Run("order independent", func(t *testing.T) {
		t.Parallel()
		forward := NewIndex(5)
		forward.Rebuild(records)

		reversed := make([]model.ImageRecord, len(records))
		for i, r := range records {
			reversed[len(records)-1-i] = r
		}
		backward := NewIndex(5)
		backward.Rebuild(reversed)

		a, b := forward.Entries(), backward.Entries()
		if len(a) != len(b) {
			t.Fatalf("sizes differ: %d vs %d", len(a), len(b))
		}
		for i := range a {
			if a[i] != b[i] {
				t.Errorf("entry %d differs: %+v vs %+v", i, a[i], b[i])
			}
		}
	})

	t.Run("replaces previous content", func(t *testing.T) {
		t.Parallel()
		ix := NewIndex(5)
		ix.Insert(Entry{ID: "stale", Fingerprint: 7})
		ix.Rebuild(records)
		for _, e := range ix.Entries() {
			if e.ID == "stale" {
				t.Error("stale entry survived rebuild")
			}
		}
	})
}

// TestAcceptedSetHasNoNearDuplicates drives the index the way the
// orchestrator does and checks that accepted fingerprints stay pairwise
// farther apart than the threshold.
func TestAcceptedSetHasNoNearDuplicates(t *testing.T) {
	t.Parallel()

	const threshold = 5
	r := rand.New(rand.NewPCG(7, 11))
	ix := NewIndex(threshold)

	for i := range 2000 {
		var fp model.Fingerprint
		if i > 0 && r.IntN(2) == 0 {
			// Perturb an existing entry by a few bits.
			entries := ix.Entries()
			if len(entries) > 0 {
				fp = entries[r.IntN(len(entries))].Fingerprint
				for range r.IntN(8) {
					fp ^= 1 << r.IntN(64)
				}
			}
		} else {
			fp = model.Fingerprint(r.Uint64())
		}

		if _, dup := ix.Lookup(fp); dup {
			continue
		}
		ix.Insert(Entry{ID: model.NewRecordID(), Fingerprint: fp, DownloadedAt: base.Add(time.Duration(i))})
	}

	entries := ix.Entries()
	for i := range entries {
		for j := i + 1; j < len(entries); j++ {
			if d := phash.Distance(entries[i].Fingerprint, entries[j].Fingerprint); d <= threshold {
				t.Fatalf("accepted %s and %s at distance %d", entries[i].ID, entries[j].ID, d)
			}
		}
	}
}
