// Package storage persists accepted images, per-candidate outcomes and pair
// checkpoints under a data directory.
//
// Layout:
//
//	<data>/<domain>/images/<source>_<content hash>.<ext>
//	<data>/<domain>/metadata.csv
//	<data>/<domain>/state/<keyword slug>__<source>.json
//
// The ledger (metadata.csv) is append-only. A row is the durability boundary
// of an outcome: image bytes are renamed into place before their row is
// appended, and a torn trailing row left by a crash is cut off when the
// ledger is opened again.
//
// Every disk failure is reported wrapped in ErrStorage.
package storage
