package storage

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/boxhunt/internal/model"
)

// LedgerHeader is the fixed column order of every ledger file.
// It must stay stable: resumption re-reads ledgers written by older runs.
var LedgerHeader = []string{
	"id",
	"filename",
	"url",
	"source",
	"title",
	"width",
	"height",
	"file_size",
	"perceptual_hash",
	"download_time",
	"created_at",
	"status",
}

// encodeRecord renders a record as ledger columns.
func encodeRecord(r model.ImageRecord) []string {
	return []string{
		r.ID,
		r.Filename,
		r.URL,
		r.SourceID,
		singleLine(r.Title),
		formatInt(int64(r.Width)),
		formatInt(int64(r.Height)),
		formatInt(r.FileSize),
		r.PerceptualHash,
		formatTime(r.DownloadedAt),
		formatTime(r.RecordedAt),
		string(r.Status),
	}
}

// decodeRecord parses ledger columns into a record.
func decodeRecord(row []string) (model.ImageRecord, error) {
	if len(row) != len(LedgerHeader) {
		return model.ImageRecord{}, fmt.Errorf("got %d columns, want %d", len(row), len(LedgerHeader))
	}

	width, err := parseInt(row[5])
	if err != nil {
		return model.ImageRecord{}, fmt.Errorf("width: %w", err)
	}
	height, err := parseInt(row[6])
	if err != nil {
		return model.ImageRecord{}, fmt.Errorf("height: %w", err)
	}
	size, err := parseInt(row[7])
	if err != nil {
		return model.ImageRecord{}, fmt.Errorf("file_size: %w", err)
	}
	if row[8] != "" {
		if _, err := model.ParseFingerprint(row[8]); err != nil {
			return model.ImageRecord{}, err
		}
	}
	downloaded, err := parseTime(row[9])
	if err != nil {
		return model.ImageRecord{}, fmt.Errorf("download_time: %w", err)
	}
	created, err := parseTime(row[10])
	if err != nil {
		return model.ImageRecord{}, fmt.Errorf("created_at: %w", err)
	}
	status, err := model.ParseStatus(row[11])
	if err != nil {
		return model.ImageRecord{}, err
	}
	if row[0] == "" || row[2] == "" || row[3] == "" {
		return model.ImageRecord{}, fmt.Errorf("missing id, url or source")
	}

	return model.ImageRecord{
		ID:             row[0],
		Filename:       row[1],
		URL:            row[2],
		SourceID:       row[3],
		Title:          row[4],
		Width:          int(width),
		Height:         int(height),
		FileSize:       size,
		PerceptualHash: row[8],
		DownloadedAt:   downloaded,
		RecordedAt:     created,
		Status:         status,
	}, nil
}

func isHeader(row []string) bool {
	return slices.Equal(row, LedgerHeader)
}

func formatInt(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}

func parseInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a ledger timestamp. Empty means unset.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// singleLine keeps every ledger row on one physical line, which is what
// lets a torn trailing row be detected by its missing newline.
func singleLine(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.Join(strings.Fields(s), " ")
}
