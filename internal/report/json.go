package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/boxhunt/internal/model"
)

// JSONWriter outputs reports in JSON format for tool integration.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// summaryDocument adds derived fields to a run summary.
type summaryDocument struct {
	*model.RunSummary

	Totals                model.SourceSummary `json:"totals"`
	DurationSeconds       float64             `json:"duration_seconds"`
	ExhaustedWithFailures []model.PairSummary `json:"exhausted_with_failures,omitempty"`
	Unfinished            []model.PairSummary `json:"unfinished,omitempty"`
}

// WriteSummary outputs a run summary with its totals.
func (w *JSONWriter) WriteSummary(s *model.RunSummary) (int, error) {
	return w.writeJSON(summaryDocument{
		RunSummary:            s,
		Totals:                s.Totals(),
		DurationSeconds:       s.Duration().Seconds(),
		ExhaustedWithFailures: s.ExhaustedWithFailures(),
		Unfinished:            s.Unfinished(),
	})
}

// WriteStats outputs data-directory statistics.
func (w *JSONWriter) WriteStats(st *model.Stats) (int, error) {
	return w.writeJSON(st)
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}
