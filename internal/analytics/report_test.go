package analytics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vthunder/hourglass/internal/config"
	"github.com/vthunder/hourglass/internal/timelog"
)

func newTestPipeline(t *testing.T) (*Pipeline, *timelog.Store, config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.StateDir = filepath.Join(dir, "state")
	cfg.DataDir = filepath.Join(dir, "data")
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	store := timelog.NewStore(cfg.WorkbookPath(), cfg.LockPath())
	return NewPipeline(cfg, store, nil), store, cfg
}

func TestPipelineRunProducesReport(t *testing.T) {
	p, store, cfg := newTestPipeline(t)
	if err := store.EnsureWorkbook(nil); err != nil {
		t.Fatalf("EnsureWorkbook: %v", err)
	}
	for _, ts := range []string{
		"2026-03-02T09:00:00", "2026-03-02T10:00:00", "2026-03-02T14:00:00",
	} {
		st, _ := ParseTimestamp(ts)
		e := timelog.NewEntry(st, "work item", "", "Work", 3, 4, timelog.PromptRegular)
		if err := store.AppendEntry(e); err != nil {
			t.Fatalf("AppendEntry: %v", err)
		}
	}

	res, err := p.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Daily) != 1 {
		t.Errorf("got %d daily summaries, want 1", len(res.Daily))
	}
	if len(res.Weekly) != 1 {
		t.Errorf("got %d weekly summaries, want 1", len(res.Weekly))
	}
	// 09:00 to 14:00 at a one-hour interval expects 6 check-ins; only 3
	// were recorded, so the day is flagged.
	if len(res.Missed) != 1 {
		t.Errorf("got %d missed reports, want 1", len(res.Missed))
	}

	html, err := os.ReadFile(cfg.ReportPath())
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	body := string(html)
	if !strings.Contains(body, "2026-03-02") {
		t.Error("report missing summarized date")
	}
	if !strings.Contains(body, "Work") {
		t.Error("report missing category")
	}
}

// A held workbook lock must degrade the run, not abort it: the report is
// still written, with warnings explaining what was unavailable.
func TestPipelineDegradesOnLockTimeout(t *testing.T) {
	p, store, cfg := newTestPipeline(t)
	if err := os.WriteFile(cfg.LockPath(), []byte("held"), 0644); err != nil {
		t.Fatalf("hold lock: %v", err)
	}
	store.SetLockTimeout(100 * time.Millisecond)

	res, err := p.Run()
	if err != nil {
		t.Fatalf("Run should not fail outright: %v", err)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected warnings from degraded sources")
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "locked") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings do not mention the lock: %v", res.Warnings)
	}

	html, err := os.ReadFile(cfg.ReportPath())
	if err != nil {
		t.Fatalf("degraded run must still write the report: %v", err)
	}
	if !strings.Contains(string(html), "Warnings") {
		t.Error("report should include the warnings section")
	}
}

// Fractional minutes cells are legitimate hand-entered values; only text
// that does not parse as a number at all counts as bad.
func TestTaskHistoryFlagsOnlyNonNumericMinutes(t *testing.T) {
	tasks := []timelog.Task{{ID: "t1", Title: "errands"}}
	events := []timelog.TaskEvent{
		{TaskID: "t1", Timestamp: "2026-03-02T10:00:00", Action: "worked", Minutes: 0, MinutesRaw: "0.4"},
		{TaskID: "t1", Timestamp: "2026-03-02T11:00:00", Action: "worked", Minutes: 0, MinutesRaw: "oops"},
		{TaskID: "t1", Timestamp: "2026-03-02T12:00:00", Action: "worked", Minutes: 30, MinutesRaw: "30"},
	}

	res := &Result{}
	rows := taskHistory(tasks, events, res)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(res.Warnings))
	}
	if !strings.Contains(res.Warnings[0], "1 task events") {
		t.Errorf("warning should count exactly the unparseable cell: %q", res.Warnings[0])
	}
}

func TestPipelineCountsParseFailures(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	if err := store.EnsureWorkbook(nil); err != nil {
		t.Fatalf("EnsureWorkbook: %v", err)
	}
	bad := timelog.Entry{ID: "1", Timestamp: "not-a-date", Activity: "x", Category: "Work"}
	if err := store.AppendEntry(bad); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}

	res, err := p.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ParseFailures != 1 {
		t.Errorf("parse failures = %d, want 1", res.ParseFailures)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a parse-failure warning")
	}
}
