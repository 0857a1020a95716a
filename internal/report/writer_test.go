package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/FleetingTimes/nor-crawler/internal/model"
)

// createTestSummary builds a summary with a mix of terminal outcomes.
func createTestSummary() *model.Summary {
	summary := &model.Summary{
		RunID:      "run-test",
		StartedAt:  time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 2, 1, 10, 5, 0, 0, time.UTC),
	}
	outcomes := []model.Outcome{
		{RunID: "run-test", URL: "https://example.com/", Domain: "example.com", StatusCode: 200, Class: model.ClassNone, Attempts: 1},
		{RunID: "run-test", URL: "https://example.com/broken", Domain: "example.com", StatusCode: 503, Class: model.ClassServerError, Attempts: 4},
		{RunID: "run-test", URL: "https://example.com/private/x", Domain: "example.com", Class: model.ClassExcluded, Attempts: 0},
	}
	for _, o := range outcomes {
		summary.Record(o)
	}
	return summary
}

func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header and buckets", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestSummary()); err != nil {
			t.Fatalf("Write failed: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"CRAWL RUN REPORT", "run-test", "SUCCEEDED: 1", "FAILED:    1", "EXCLUDED:  1"} {
			if !strings.Contains(output, want) {
				t.Errorf("output missing %q", want)
			}
		}
	})

	t.Run("lists only failures by default", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestSummary()); err != nil {
			t.Fatalf("Write failed: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "https://example.com/broken") {
			t.Error("output missing the failed URL")
		}
		if strings.Contains(output, "[success] https://example.com/") {
			t.Error("non-verbose output lists successful URLs")
		}
	})

	t.Run("verbose lists every outcome", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(createTestSummary()); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if !strings.Contains(buf.String(), "[success] https://example.com/") {
			t.Error("verbose output missing successful URL")
		}
	})
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(createTestSummary()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var decoded model.Summary
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.RunID != "run-test" {
		t.Errorf("RunID = %q, want run-test", decoded.RunID)
	}
	if decoded.Succeeded != 1 || decoded.Failed != 1 || decoded.Excluded != 1 {
		t.Errorf("buckets = %d/%d/%d, want 1/1/1", decoded.Succeeded, decoded.Failed, decoded.Excluded)
	}
	if len(decoded.Outcomes) != 3 {
		t.Errorf("Outcomes = %d, want 3", len(decoded.Outcomes))
	}
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if _, err := NewMarkdownWriter(&buf).Write(createTestSummary()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	output := buf.String()
	for _, want := range []string{"# Crawl Run Report", "## Outcomes", "run-test", "mermaid", "## Unsuccessful URLs", "server_error"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	var text, jsonBuf bytes.Buffer
	mw := NewMultiWriter(NewSimpleWriter(&text), NewJSONWriter(&jsonBuf))

	if _, err := mw.Write(createTestSummary()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if text.Len() == 0 || jsonBuf.Len() == 0 {
		t.Error("MultiWriter skipped a destination")
	}
}
