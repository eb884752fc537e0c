package report

import (
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/boxhunt/internal/model"
)

// MarkdownWriter outputs reports in Markdown for documentation and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// WriteSummary outputs a run summary.
func (w *MarkdownWriter) WriteSummary(s *model.RunSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("BoxHunt Run Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + s.RunID + "`"},
			{"Mode", string(s.Mode)},
			{"Keywords", strings.Join(s.Keywords, ", ")},
			{"Started", s.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", s.Duration().String()},
			{"Status", statusText(s)},
			{"Index Size", strconv.Itoa(s.IndexSize)},
		},
	})
	md.PlainText("")

	totals := s.Totals()
	md.H2("Outcomes")
	md.PlainText("")
	rows := make([][]string, 0, len(s.Sources)+1)
	for _, src := range s.SortedSources() {
		rows = append(rows, sourceRow(src.SourceID, src))
	}
	rows = append(rows, sourceRow("**Total**", &totals))
	md.Table(markdown.TableSet{
		Header: []string{"Source", "Candidates", "Downloaded", "Duplicate", "Rejected", "Failed", "Skipped", "Size"},
		Rows:   rows,
	})
	md.PlainText("")

	if totals.Processed() > 0 {
		w.writePieChart(md, "Outcome Distribution", map[string]int{
			"Downloaded": totals.Downloaded,
			"Duplicate":  totals.Duplicate,
			"Rejected":   totals.Rejected,
			"Failed":     totals.Failed,
		})
	}

	if len(totals.RejectReasons) > 0 {
		md.H2("Reject Reasons")
		md.PlainText("")
		reasons := slices.Sorted(maps.Keys(totals.RejectReasons))
		reasonRows := make([][]string, len(reasons))
		for i, r := range reasons {
			reasonRows[i] = []string{string(r), strconv.Itoa(totals.RejectReasons[r])}
		}
		md.Table(markdown.TableSet{Header: []string{"Reason", "Count"}, Rows: reasonRows})
		md.PlainText("")
	}

	w.writePairs(md, s)
	w.writeAlert(md, s)

	if len(s.Warnings) > 0 {
		md.H2("Warnings")
		md.PlainText("")
		md.BulletList(s.Warnings...)
		md.PlainText("")
	}

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writePairs(md *markdown.Markdown, s *model.RunSummary) {
	if len(s.Pairs) == 0 {
		return
	}
	md.H2("Pairs")
	md.PlainText("")
	rows := make([][]string, len(s.Pairs))
	for i, p := range s.Pairs {
		note := pairNote(p)
		if note == "" {
			note = "-"
		}
		rows[i] = []string{
			p.SourceID,
			p.Keyword,
			string(p.Status),
			strconv.Itoa(p.Candidates),
			strconv.Itoa(p.Processed),
			truncateString(note, 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Source", "Keyword", "Status", "Candidates", "Processed", "Note"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *model.RunSummary) {
	switch {
	case s.Aborted:
		md.Cautionf("The run was aborted: %s. Run `boxhunt resume` to continue.", s.AbortReason)
	case len(s.Unfinished()) > 0:
		md.Warningf("%d pair(s) did not finish. Run `boxhunt resume` to continue; completed work is not repeated.",
			len(s.Unfinished()))
	case len(s.ExhaustedWithFailures()) > 0:
		md.Importantf("%d pair(s) completed with failed downloads. `boxhunt resume --retry-failed` tries them again.",
			len(s.ExhaustedWithFailures()))
	default:
		md.Tip("Every pair completed.")
	}
	md.PlainText("")
}

// WriteStats outputs data-directory statistics.
func (w *MarkdownWriter) WriteStats(st *model.Stats) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("BoxHunt Statistics")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Ledger Rows", strconv.Itoa(st.Records)},
			{"Candidates", strconv.Itoa(st.Candidates)},
			{"Images", strconv.Itoa(st.Images)},
			{"Total Size", humanize.Bytes(uint64(max(st.TotalBytes, 0)))},
			{"Average Dimensions", strconv.FormatFloat(st.AverageWidth, 'f', 0, 64) + "x" +
				strconv.FormatFloat(st.AverageHeight, 'f', 0, 64)},
		},
	})
	md.PlainText("")

	statuses := statusCounts(st)
	if len(statuses) > 0 {
		w.writePieChart(md, "Outcome Distribution", statuses)
	}
	w.writeCounts(md, "By Source", "Source", st.BySource)
	w.writeCounts(md, "By Format", "Format", st.ByFormat)
	w.writeCounts(md, "By Domain", "Domain", st.ByDomain)
	w.writeCounts(md, "Pairs", "Status", pairCounts(st))

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeCounts(md *markdown.Markdown, title, column string, m map[string]int) {
	if len(m) == 0 {
		return
	}
	md.H2(title)
	md.PlainText("")
	keys := slices.Sorted(maps.Keys(m))
	rows := make([][]string, len(keys))
	for i, k := range keys {
		rows[i] = []string{k, strconv.Itoa(m[k])}
	}
	md.Table(markdown.TableSet{Header: []string{column, "Count"}, Rows: rows})
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart of the non-zero values.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, title string, values map[string]int) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle(title),
		piechart.WithShowData(true),
	)
	for _, label := range slices.Sorted(maps.Keys(values)) {
		if n := values[label]; n > 0 {
			chart.LabelAndIntValue(label, uint64(n))
		}
	}
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated by [BoxHunt](https://github.com/nao1215/boxhunt)*")
}

func statusText(s *model.RunSummary) string {
	switch {
	case s.Aborted:
		return "❌ Aborted - " + s.AbortReason
	case len(s.Unfinished()) > 0:
		return "⚠️ Incomplete (resume is safe)"
	default:
		return "✅ Complete"
	}
}

func sourceRow(name string, s *model.SourceSummary) []string {
	return []string{
		name,
		strconv.Itoa(s.Candidates),
		strconv.Itoa(s.Downloaded),
		strconv.Itoa(s.Duplicate),
		strconv.Itoa(s.Rejected),
		strconv.Itoa(s.Failed),
		strconv.Itoa(s.Skipped),
		humanize.Bytes(uint64(max(s.Bytes, 0))),
	}
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
