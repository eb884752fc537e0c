package storage

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/nao1215/boxhunt/internal/model"
)

// ledger is the append-only metadata file of one storage domain.
//
// Every append encodes one row in memory and writes it with a single write
// followed by fsync. A failed write is truncated away, so a row is either
// fully present or absent. A crash can still leave a torn trailing row; it
// is cut off the next time the ledger is opened.
type ledger struct {
	path string

	mu      sync.Mutex
	file    *os.File
	size    int64
	records []model.ImageRecord
}

// openLedger opens or creates the ledger at path, repairs a torn trailing
// row and loads every record.
func openLedger(path string, logger *slog.Logger) (*ledger, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644) //nolint:gosec // path is built from the data dir
	if err != nil {
		return nil, fmt.Errorf("%w: open ledger %s: %w", ErrStorage, path, err)
	}

	l := &ledger{path: path, file: file}
	if err := l.load(logger); err != nil {
		_ = file.Close() //nolint:errcheck // already failing
		return nil, err
	}
	return l, nil
}

func (l *ledger) load(logger *slog.Logger) error {
	data, err := io.ReadAll(l.file)
	if err != nil {
		return fmt.Errorf("%w: read ledger %s: %w", ErrStorage, l.path, err)
	}

	if len(data) == 0 {
		return l.writeHeader()
	}

	// Bytes after the last newline are a row whose append never finished.
	good := int64(bytes.LastIndexByte(data, '\n') + 1)

	reader := csv.NewReader(bytes.NewReader(data[:good]))
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil || !isHeader(header) {
		if good == 0 {
			// Torn header from a crash right after creation.
			return l.truncateTo(0, logger, "torn header")
		}
		return fmt.Errorf("%w: %s is not a ledger (unexpected header)", ErrStorage, l.path)
	}

	var records []model.ImageRecord
	for {
		offset := reader.InputOffset()
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && reader.InputOffset() >= good {
			// A final row that is not even valid CSV is a torn append.
			good = offset
			break
		}
		if err == nil {
			var rec model.ImageRecord
			rec, err = decodeRecord(row)
			if err == nil {
				records = append(records, rec)
				continue
			}
		}

		// A complete row this version cannot decode stays on disk.
		line, _ := reader.FieldPos(0)
		logger.Warn("skipping malformed ledger row", "ledger", l.path, "line", line, "error", err)
	}

	l.records = records
	if good < int64(len(data)) {
		return l.truncateTo(good, logger, "torn trailing row")
	}
	l.size = good
	if _, err := l.file.Seek(good, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek ledger %s: %w", ErrStorage, l.path, err)
	}
	return nil
}

func (l *ledger) truncateTo(size int64, logger *slog.Logger, reason string) error {
	logger.Warn("repairing ledger", "ledger", l.path, "reason", reason, "offset", size)
	if err := l.file.Truncate(size); err != nil {
		return fmt.Errorf("%w: truncate ledger %s: %w", ErrStorage, l.path, err)
	}
	if _, err := l.file.Seek(size, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek ledger %s: %w", ErrStorage, l.path, err)
	}
	l.size = size
	if size == 0 {
		return l.writeHeader()
	}
	return l.file.Sync()
}

func (l *ledger) writeHeader() error {
	row, err := encodeRow(LedgerHeader)
	if err != nil {
		return err
	}
	return l.write(row)
}

// append durably adds one record.
func (l *ledger) append(r model.ImageRecord) error {
	row, err := encodeRow(encodeRecord(r))
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.write(row); err != nil {
		return err
	}
	l.records = append(l.records, r)
	return nil
}

// write appends raw bytes with one write and fsync, rolling back on failure.
// Callers hold l.mu, except during open.
func (l *ledger) write(row []byte) error {
	n, err := l.file.WriteAt(row, l.size)
	if err == nil && n != len(row) {
		err = io.ErrShortWrite
	}
	if err == nil {
		err = l.file.Sync()
	}
	if err != nil {
		_ = l.file.Truncate(l.size) //nolint:errcheck // best effort rollback
		return fmt.Errorf("%w: append to ledger %s: %w", ErrStorage, l.path, err)
	}
	l.size += int64(n)
	return nil
}

// snapshot returns a copy of every loaded record in file order.
func (l *ledger) snapshot() []model.ImageRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.records)
}

func (l *ledger) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func encodeRow(fields []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return nil, fmt.Errorf("%w: encode ledger row: %w", ErrStorage, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("%w: encode ledger row: %w", ErrStorage, err)
	}
	return buf.Bytes(), nil
}
