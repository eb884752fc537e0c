package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/crypto/sha3"

	"github.com/nao1215/boxhunt/internal/model"
)

const (
	// LedgerFile is the name of the ledger inside a domain directory.
	LedgerFile = "metadata.csv"
	// ImagesDir holds the accepted image files of a domain.
	ImagesDir = "images"
	// StateDir holds the pair checkpoints of a domain.
	StateDir = "state"

	tempSuffix = ".tmp"
)

// Manager owns the data directory: one ledger, one image directory and one
// checkpoint directory per storage domain.
//
// Manager is safe for concurrent use. Appends to one domain's ledger are
// serialised; different domains do not contend.
type Manager struct {
	dataDir string
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	domains map[string]*domain
}

type domain struct {
	name   string
	dir    string
	ledger *ledger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used to report ledger repairs.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock sets the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager rooted at dataDir, creating the directory if needed.
func NewManager(dataDir string, opts ...Option) (*Manager, error) {
	m := &Manager{
		dataDir: dataDir,
		logger:  slog.Default(),
		now:     time.Now,
		domains: make(map[string]*domain),
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: create data dir %s: %w", ErrStorage, dataDir, err)
	}
	return m, nil
}

// DataDir returns the root directory.
func (m *Manager) DataDir() string {
	return m.dataDir
}

// ValidateDomain checks that name can be used as a single directory name.
func ValidateDomain(name string) error {
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidDomain, name)
	}
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			continue
		}
		return fmt.Errorf("%w: %q contains %q", ErrInvalidDomain, name, r)
	}
	return nil
}

// OpenDomain opens a domain, creating its directories and ledger on first use.
func (m *Manager) OpenDomain(name string) error {
	_, err := m.domain(name)
	return err
}

func (m *Manager) domain(name string) (*domain, error) {
	if err := ValidateDomain(name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.domains[name]; ok {
		return d, nil
	}

	dir := filepath.Join(m.dataDir, name)
	for _, sub := range []string{ImagesDir, StateDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o750); err != nil {
			return nil, fmt.Errorf("%w: create %s: %w", ErrStorage, sub, err)
		}
	}

	l, err := openLedger(filepath.Join(dir, LedgerFile), m.logger.With("domain", name))
	if err != nil {
		return nil, err
	}

	d := &domain{name: name, dir: dir, ledger: l}
	m.domains[name] = d
	return d, nil
}

// Domains lists every domain that exists on disk or was opened, sorted.
func (m *Manager) Domains() ([]string, error) {
	entries, err := os.ReadDir(m.dataDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: list data dir: %w", ErrStorage, err)
	}

	names := make(map[string]struct{})
	for _, e := range entries {
		if !e.IsDir() || ValidateDomain(e.Name()) != nil {
			continue
		}
		dir := filepath.Join(m.dataDir, e.Name())
		if exists(filepath.Join(dir, LedgerFile)) || exists(filepath.Join(dir, StateDir)) {
			names[e.Name()] = struct{}{}
		}
	}

	m.mu.Lock()
	for name := range m.domains {
		names[name] = struct{}{}
	}
	m.mu.Unlock()

	return slices.Sorted(maps.Keys(names)), nil
}

// AcceptFields carries what the pipeline learned about an accepted image.
type AcceptFields struct {
	// Extension is the file extension without the dot, for example "jpg".
	Extension   string
	Width       int
	Height      int
	Fingerprint model.Fingerprint

	// DownloadedAt defaults to the manager clock.
	DownloadedAt time.Time
}

// Accept writes the image bytes durably and then appends exactly one
// downloaded row.
//
// The row is the durability boundary: a crash after the rename but before
// the append leaves an orphan file that a later Accept of the same content
// overwrites and CleanupOrphans removes.
func (m *Manager) Accept(domainName string, c model.ImageCandidate, data []byte, f AcceptFields) (*model.ImageRecord, error) {
	d, err := m.domain(domainName)
	if err != nil {
		return nil, err
	}

	filename := ImageFilename(c.SourceID, data, f.Extension)
	if err := writeFileAtomic(filepath.Join(d.dir, ImagesDir), filename, data); err != nil {
		return nil, err
	}

	now := m.now()
	downloaded := f.DownloadedAt
	if downloaded.IsZero() {
		downloaded = now
	}

	rec := model.ImageRecord{
		ID:             model.NewRecordID(),
		Filename:       filename,
		URL:            c.URL,
		SourceID:       c.SourceID,
		Title:          c.Title,
		Width:          f.Width,
		Height:         f.Height,
		FileSize:       int64(len(data)),
		PerceptualHash: f.Fingerprint.String(),
		DownloadedAt:   downloaded,
		RecordedAt:     now,
		Status:         model.StatusDownloaded,
	}
	if err := d.ledger.append(rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// OutcomeFields carries the optional data of a non-accept outcome.
type OutcomeFields struct {
	Width    int
	Height   int
	FileSize int64

	// Fingerprint is recorded for duplicates. Rebuild ignores it because
	// only downloaded rows enter the index.
	Fingerprint *model.Fingerprint
}

// ErrNotAnOutcome is returned by RecordOutcome for the downloaded status,
// which only Accept may write.
var ErrNotAnOutcome = errors.New("downloaded is written by Accept")

// RecordOutcome appends a failed, rejected or duplicate row. No image bytes
// are written.
func (m *Manager) RecordOutcome(domainName string, c model.ImageCandidate, status model.Status, f OutcomeFields) (*model.ImageRecord, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidStatus, status)
	}
	if status == model.StatusDownloaded {
		return nil, ErrNotAnOutcome
	}

	d, err := m.domain(domainName)
	if err != nil {
		return nil, err
	}

	rec := model.ImageRecord{
		ID:         model.NewRecordID(),
		URL:        c.URL,
		SourceID:   c.SourceID,
		Title:      c.Title,
		Width:      f.Width,
		Height:     f.Height,
		FileSize:   f.FileSize,
		RecordedAt: m.now(),
		Status:     status,
	}
	if f.Fingerprint != nil {
		rec.PerceptualHash = f.Fingerprint.String()
	}
	if err := d.ledger.append(rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DomainRecords returns every ledger row of a domain in append order.
func (m *Manager) DomainRecords(domainName string) ([]model.ImageRecord, error) {
	d, err := m.domain(domainName)
	if err != nil {
		return nil, err
	}
	return d.ledger.snapshot(), nil
}

// Records returns the rows of every domain, domain by domain.
func (m *Manager) Records() ([]model.ImageRecord, error) {
	var all []model.ImageRecord
	err := m.eachDomain(func(_ string, records []model.ImageRecord) {
		all = append(all, records...)
	})
	return all, err
}

func (m *Manager) eachDomain(fn func(name string, records []model.ImageRecord)) error {
	names, err := m.Domains()
	if err != nil {
		return err
	}
	for _, name := range names {
		records, err := m.DomainRecords(name)
		if err != nil {
			return err
		}
		fn(name, records)
	}
	return nil
}

// Terminal returns the current outcome of every candidate of a domain,
// keyed by candidate id. Later rows win.
func (m *Manager) Terminal(domainName string) (map[string]model.ImageRecord, error) {
	records, err := m.DomainRecords(domainName)
	if err != nil {
		return nil, err
	}
	return latestByCandidate(records), nil
}

func latestByCandidate(records []model.ImageRecord) map[string]model.ImageRecord {
	out := make(map[string]model.ImageRecord, len(records))
	for _, r := range records {
		out[r.CandidateID()] = r
	}
	return out
}

// Close closes every open ledger.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, d := range m.domains {
		if err := d.ledger.close(); err != nil {
			errs = append(errs, fmt.Errorf("close ledger of %s: %w", name, err))
		}
		delete(m.domains, name)
	}
	return errors.Join(errs...)
}

// ImageFilename returns the content-addressed file name of an image:
// <source>_<first 16 hex digits of SHA3-256(data)>.<ext>.
func ImageFilename(sourceID string, data []byte, ext string) string {
	sum := sha3.Sum256(data)
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s_%s.%s", fileSafe(sourceID), hex.EncodeToString(sum[:8]), ext)
}

// fileSafe replaces every rune that is not a letter, digit, '-' or '.' with '_'.
func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '.' {
			return r
		}
		return '_'
	}, s)
}

// writeFileAtomic writes data to dir/name through a synced temp file and a rename.
func writeFileAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, name+".*"+tempSuffix)
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrStorage, err)
	}
	tmpName := tmp.Name()

	fail := func(step string, err error) error {
		_ = tmp.Close()         //nolint:errcheck // already failing
		_ = os.Remove(tmpName) //nolint:errcheck // already failing
		return fmt.Errorf("%w: %s %s: %w", ErrStorage, step, name, err)
	}

	if _, err := tmp.Write(data); err != nil {
		return fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName) //nolint:errcheck // already failing
		return fmt.Errorf("%w: close %s: %w", ErrStorage, name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmpName) //nolint:errcheck // already failing
		return fmt.Errorf("%w: rename %s: %w", ErrStorage, name, err)
	}
	syncDir(dir)
	return nil
}

// syncDir flushes a directory entry change. Not every platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir) //nolint:gosec // dir is inside the data dir
	if err != nil {
		return
	}
	_ = d.Sync()  //nolint:errcheck // unsupported on some platforms
	_ = d.Close() //nolint:errcheck // read-only handle
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
