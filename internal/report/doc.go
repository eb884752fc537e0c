// Package report renders run summaries and data-directory statistics.
//
// Three writers share the Writer interface:
//   - SimpleWriter: plain text for the terminal
//   - JSONWriter: structured output for other tools
//   - MarkdownWriter: a shareable document with a mermaid pie chart
//
// The data lives in the model package; this package only formats it.
package report
