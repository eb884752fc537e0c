package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nao1215/boxhunt/internal/model"
)

const ruleWidth = 70

// SimpleWriter outputs plain text for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose lists every pair, not only those needing attention.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables per-pair output.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteSummary outputs a run summary.
func (w *SimpleWriter) WriteSummary(s *model.RunSummary) (int, error) {
	var sb strings.Builder

	section(&sb, "BOXHUNT RUN SUMMARY", "=")
	fmt.Fprintf(&sb, "Run ID:     %s\n", s.RunID)
	fmt.Fprintf(&sb, "Mode:       %s\n", s.Mode)
	fmt.Fprintf(&sb, "Keywords:   %s\n", strings.Join(s.Keywords, ", "))
	fmt.Fprintf(&sb, "Started:    %s\n", s.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&sb, "Duration:   %s\n", s.Duration().Round(time.Millisecond))
	fmt.Fprintf(&sb, "Status:     %s\n", runStatus(s))
	fmt.Fprintf(&sb, "Index size: %d fingerprints\n\n", s.IndexSize)

	w.writeSources(&sb, s)
	w.writePairs(&sb, s)
	w.writeWarnings(&sb, s.Warnings)

	if len(s.Unfinished()) > 0 || s.Aborted {
		sb.WriteString("Run `boxhunt resume` to continue; completed work is not repeated.\n")
	}
	sb.WriteString(strings.Repeat("=", ruleWidth) + "\n")

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeSources(sb *strings.Builder, s *model.RunSummary) {
	section(sb, "SOURCES", "-")
	if len(s.Sources) == 0 {
		sb.WriteString("  No source produced candidates\n\n")
		return
	}
	sources := append(s.SortedSources(), ptr(s.Totals()))

	fmt.Fprintf(sb, "  %-14s %10s %10s %9s %8s %6s %7s %9s\n",
		"SOURCE", "CANDIDATES", "DOWNLOADED", "DUPLICATE", "REJECTED", "FAILED", "SKIPPED", "SIZE")
	for _, src := range sources {
		fmt.Fprintf(sb, "  %-14s %10d %10d %9d %8d %6d %7d %9s\n",
			src.SourceID, src.Candidates, src.Downloaded, src.Duplicate, src.Rejected,
			src.Failed, src.Skipped, humanize.Bytes(uint64(max(src.Bytes, 0))))
	}
	sb.WriteString("\n")

	totals := s.Totals()
	if len(totals.RejectReasons) > 0 {
		sb.WriteString("  Reject reasons:\n")
		for _, reason := range slices.Sorted(maps.Keys(totals.RejectReasons)) {
			fmt.Fprintf(sb, "    %-28s %d\n", reason, totals.RejectReasons[reason])
		}
		sb.WriteString("\n")
	}
}

func (w *SimpleWriter) writePairs(sb *strings.Builder, s *model.RunSummary) {
	var pairs []model.PairSummary
	for _, p := range s.Pairs {
		if w.verbose || pairNote(p) != "" {
			pairs = append(pairs, p)
		}
	}
	if len(pairs) == 0 {
		return
	}

	section(sb, "PAIRS", "-")
	for _, p := range pairs {
		fmt.Fprintf(sb, "  [%s] %s / %s (%d candidates, %d processed)\n",
			p.Status, p.SourceID, p.Keyword, p.Candidates, p.Processed)
		if note := pairNote(p); note != "" {
			fmt.Fprintf(sb, "      %s\n", note)
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeWarnings(sb *strings.Builder, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	section(sb, "WARNINGS", "-")
	for _, msg := range warnings {
		fmt.Fprintf(sb, "  ! %s\n", msg)
	}
	sb.WriteString("\n")
}

// WriteStats outputs data-directory statistics.
func (w *SimpleWriter) WriteStats(st *model.Stats) (int, error) {
	var sb strings.Builder

	section(&sb, "BOXHUNT STATISTICS", "=")
	fmt.Fprintf(&sb, "Ledger rows:    %d\n", st.Records)
	fmt.Fprintf(&sb, "Candidates:     %d\n", st.Candidates)
	fmt.Fprintf(&sb, "Images:         %d (%s)\n", st.Images, humanize.Bytes(uint64(max(st.TotalBytes, 0))))
	if st.Images > 0 {
		fmt.Fprintf(&sb, "Average size:   %.0fx%.0f\n", st.AverageWidth, st.AverageHeight)
	}
	sb.WriteString("\n")

	counts(&sb, "BY STATUS", statusCounts(st))
	counts(&sb, "BY SOURCE", st.BySource)
	counts(&sb, "BY FORMAT", st.ByFormat)
	counts(&sb, "BY DOMAIN", st.ByDomain)
	counts(&sb, "PAIRS", pairCounts(st))

	sb.WriteString(strings.Repeat("=", ruleWidth) + "\n")
	return io.WriteString(w.output, sb.String())
}

func counts(sb *strings.Builder, title string, m map[string]int) {
	if len(m) == 0 {
		return
	}
	section(sb, title, "-")
	for _, k := range slices.Sorted(maps.Keys(m)) {
		fmt.Fprintf(sb, "  %-20s %s\n", k, humanize.Comma(int64(m[k])))
	}
	sb.WriteString("\n")
}

func section(sb *strings.Builder, title, rule string) {
	sb.WriteString(strings.Repeat(rule, ruleWidth) + "\n")
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat(rule, ruleWidth) + "\n\n")
}

func statusCounts(st *model.Stats) map[string]int {
	out := make(map[string]int, len(st.ByStatus))
	for status, n := range st.ByStatus {
		out[string(status)] = n
	}
	return out
}

func pairCounts(st *model.Stats) map[string]int {
	out := make(map[string]int, len(st.Pairs))
	for status, n := range st.Pairs {
		out[string(status)] = n
	}
	return out
}

func ptr[T any](v T) *T {
	return &v
}
