package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/boxhunt/internal/model"
)

// ExportFormat names an export encoding.
type ExportFormat string

const (
	// ExportCSV writes the merged ledger with a leading domain column.
	ExportCSV ExportFormat = "csv"
	// ExportJSON writes an indented JSON array.
	ExportJSON ExportFormat = "json"
)

// ParseExportFormat converts a user supplied format name.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case ExportCSV, ExportJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownExportFormat, s)
	}
}

// ExportedRecord is one exported ledger row.
type ExportedRecord struct {
	Domain string `json:"domain"`
	model.ImageRecord
}

// Export writes every ledger row of every domain to w.
func (m *Manager) Export(w io.Writer, format ExportFormat) (int, error) {
	var rows []ExportedRecord
	err := m.eachDomain(func(name string, records []model.ImageRecord) {
		for _, r := range records {
			rows = append(rows, ExportedRecord{Domain: name, ImageRecord: r})
		}
	})
	if err != nil {
		return 0, err
	}

	switch format {
	case ExportCSV:
		return len(rows), exportCSV(w, rows)
	case ExportJSON:
		return len(rows), exportJSON(w, rows)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownExportFormat, format)
	}
}

func exportCSV(w io.Writer, rows []ExportedRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"domain"}, LedgerHeader...)); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(append([]string{r.Domain}, encodeRecord(r.ImageRecord)...)); err != nil {
			return fmt.Errorf("write export row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func exportJSON(w io.Writer, rows []ExportedRecord) error {
	if rows == nil {
		rows = []ExportedRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}
