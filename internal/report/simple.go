package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/FleetingTimes/nor-crawler/internal/model"
)

// SimpleWriter outputs human-readable text summaries for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose lists every terminal outcome instead of just the failures.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose lists every outcome in the output, not only failures.
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

// Write outputs the summary in human-readable format.
func (w *SimpleWriter) Write(summary *model.Summary) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, summary)
	w.writeBuckets(&sb, summary)
	w.writeOutcomes(&sb, summary)

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, summary *model.Summary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                          CRAWL RUN REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Run ID:    %s\n", summary.RunID))
	sb.WriteString(fmt.Sprintf("Started:   %s\n", summary.StartedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Elapsed:   %s\n", summary.Elapsed().Round(10*time.Millisecond)))
	sb.WriteString(fmt.Sprintf("URLs:      %d\n", summary.Total()))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeBuckets(sb *strings.Builder, summary *model.Summary) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("OUTCOMES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("  SUCCEEDED: %d\n", summary.Succeeded))
	sb.WriteString(fmt.Sprintf("  FAILED:    %d\n", summary.Failed))
	sb.WriteString(fmt.Sprintf("  EXCLUDED:  %d\n", summary.Excluded))
	sb.WriteString(fmt.Sprintf("  TIMED OUT: %d\n", summary.TimedOut))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeOutcomes(sb *strings.Builder, summary *model.Summary) {
	listed := summary.Outcomes
	title := "ALL URLS"
	if !w.verbose {
		title = "UNSUCCESSFUL URLS"
		listed = nil
		for _, o := range summary.Outcomes {
			if !o.Succeeded() {
				listed = append(listed, o)
			}
		}
	}
	if len(listed) == 0 {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for _, o := range listed {
		if o.StatusCode != 0 {
			sb.WriteString(fmt.Sprintf("  [%s] %s (status %d, %d attempts)\n",
				o.Class.String(), o.URL, o.StatusCode, o.Attempts))
		} else {
			sb.WriteString(fmt.Sprintf("  [%s] %s (%d attempts)\n",
				o.Class.String(), o.URL, o.Attempts))
		}
	}
	sb.WriteString("\n")
}
