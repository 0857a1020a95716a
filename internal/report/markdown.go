package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/FleetingTimes/nor-crawler/internal/model"
)

// maxListedOutcomes caps the per-URL table so reports for large runs stay
// readable.
const maxListedOutcomes = 100

// MarkdownWriter outputs summaries in Markdown format for documentation
// and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given
// writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the summary in Markdown format.
func (w *MarkdownWriter) Write(summary *model.Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeBuckets(md, summary)
	w.writeFailures(md, summary)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, summary *model.Summary) {
	md.H1("Crawl Run Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", summary.RunID},
			{"Started", summary.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Elapsed", summary.Elapsed().String()},
			{"URLs", strconv.Itoa(summary.Total())},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeBuckets(md *markdown.Markdown, summary *model.Summary) {
	md.H2("Outcomes")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Bucket", "Count"},
		Rows: [][]string{
			{"🟢 Succeeded", strconv.Itoa(summary.Succeeded)},
			{"🔴 Failed", strconv.Itoa(summary.Failed)},
			{"🚫 Excluded", strconv.Itoa(summary.Excluded)},
			{"⏱️ Timed out", strconv.Itoa(summary.TimedOut)},
			{"**Total**", "**" + strconv.Itoa(summary.Total()) + "**"},
		},
	})
	md.PlainText("")

	if summary.Total() > 0 {
		w.writePieChart(md, summary)
	}
}

// writePieChart writes a mermaid pie chart of the outcome distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, summary *model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Outcome Distribution"),
		piechart.WithShowData(true),
	)

	if summary.Succeeded > 0 {
		chart.LabelAndIntValue("Succeeded", uint64(summary.Succeeded))
	}
	if summary.Failed > 0 {
		chart.LabelAndIntValue("Failed", uint64(summary.Failed))
	}
	if summary.Excluded > 0 {
		chart.LabelAndIntValue("Excluded", uint64(summary.Excluded))
	}
	if summary.TimedOut > 0 {
		chart.LabelAndIntValue("Timed out", uint64(summary.TimedOut))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, summary *model.Summary) {
	var rows [][]string
	for _, o := range summary.Outcomes {
		if o.Succeeded() {
			continue
		}
		rows = append(rows, []string{
			o.URL,
			o.Class.String(),
			strconv.Itoa(o.StatusCode),
			strconv.Itoa(o.Attempts),
		})
		if len(rows) == maxListedOutcomes {
			break
		}
	}
	if len(rows) == 0 {
		return
	}

	md.H2("Unsuccessful URLs")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Class", "Status", "Attempts"},
		Rows:   rows,
	})
	md.PlainText("")
}
