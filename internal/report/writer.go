package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/boxhunt/internal/model"
)

// ErrUnknownFormat is returned by NewWriter for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown report format")

// Format names an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formats lists the supported formats.
var Formats = []Format{FormatText, FormatJSON, FormatMarkdown}

// ParseFormat parses a format name. "md" is accepted for markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "simple":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Writer renders reports to an output destination.
type Writer interface {
	// WriteSummary renders the result of a crawl, resume or crawl-site run.
	WriteSummary(summary *model.RunSummary) (int, error)

	// WriteStats renders the statistics of the data directory.
	WriteStats(stats *model.Stats) (int, error)
}

// NewWriter returns the writer for format. verbose adds per-pair detail to
// the text writer.
func NewWriter(format Format, output io.Writer, verbose bool) (Writer, error) {
	switch format {
	case FormatText:
		return NewSimpleWriter(output, WithVerbose(verbose)), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// MultiWriter writes to multiple Writers, e.g. the terminal and a file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WriteSummary writes the summary to every writer, stopping on the first error.
func (m *MultiWriter) WriteSummary(summary *model.RunSummary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteSummary(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteStats writes the statistics to every writer, stopping on the first error.
func (m *MultiWriter) WriteStats(stats *model.Stats) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteStats(stats)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// runStatus is the one-line outcome of a run.
func runStatus(s *model.RunSummary) string {
	switch {
	case s.Aborted:
		return "ABORTED - " + s.AbortReason
	case len(s.Unfinished()) > 0:
		return "Incomplete (resume is safe)"
	default:
		return "Complete"
	}
}

// pairNote describes why a pair needs attention, or returns "".
func pairNote(p model.PairSummary) string {
	switch {
	case p.Warning != "":
		return p.Warning
	case p.ExhaustedWithFailures():
		return "exhausted with failures"
	case p.Status != model.PairCompleted:
		return "not finished"
	default:
		return ""
	}
}
