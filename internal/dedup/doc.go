// Package dedup provides the near-duplicate index over accepted images.
//
// The index is a derived view: it can always be rebuilt from the
// downloaded rows of the ledgers, which is how a resumed run recovers it.
package dedup
