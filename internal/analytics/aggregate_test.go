package analytics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vthunder/hourglass/internal/timelog"
)

func blockAt(day string, hour int, spanHours float64, category, activity string, energy, focus int) Block {
	d, err := time.ParseInLocation("2006-01-02", day, time.Local)
	if err != nil {
		panic(err)
	}
	end := d.Add(time.Duration(hour) * time.Hour)
	return Block{
		Start:    end.Add(-time.Duration(spanHours * float64(time.Hour))),
		End:      end,
		Category: category,
		Activity: activity,
		Energy:   energy,
		Focus:    focus,
	}
}

func TestDailySummariesGroupByEndDate(t *testing.T) {
	blocks := []Block{
		blockAt("2026-03-02", 10, 1, "Work", "report", 4, 4),
		blockAt("2026-03-02", 11, 1, "Work", "report", 3, 3),
		blockAt("2026-03-02", 14, 1, "Admin", "email", 2, 2),
		blockAt("2026-03-03", 9, 1, "Study", "reading", 5, 5),
	}
	daily := DailySummaries(blocks, nil, time.Second)
	if len(daily) != 2 {
		t.Fatalf("got %d days, want 2", len(daily))
	}
	if daily[0].Date != "2026-03-02" || daily[1].Date != "2026-03-03" {
		t.Errorf("days = %s, %s", daily[0].Date, daily[1].Date)
	}
	d := daily[0]
	if d.TotalHours != 3 {
		t.Errorf("total hours = %v, want 3", d.TotalHours)
	}
	if len(d.TopCategories) != 2 || d.TopCategories[0].Category != "Work" {
		t.Errorf("top categories = %+v", d.TopCategories)
	}
	if d.TopCategories[0].Hours != 2 {
		t.Errorf("Work hours = %v, want 2", d.TopCategories[0].Hours)
	}
	if len(d.Suggestions) != 3 {
		t.Errorf("got %d suggestions, want exactly 3", len(d.Suggestions))
	}
	if d.Narrative == "" {
		t.Error("heuristic narrative should not be empty")
	}
}

func TestCategoryRankingTieKeepsInsertionOrder(t *testing.T) {
	blocks := []Block{
		blockAt("2026-03-02", 9, 1, "Admin", "a", 3, 3),
		blockAt("2026-03-02", 10, 1, "Work", "b", 3, 3),
	}
	daily := DailySummaries(blocks, nil, time.Second)
	if daily[0].TopCategories[0].Category != "Admin" {
		t.Errorf("tie should keep first-encountered category first, got %s",
			daily[0].TopCategories[0].Category)
	}
}

func TestWeeklySummariesKeyIsMonday(t *testing.T) {
	// 2026-03-04 is a Wednesday; its week's Monday is 2026-03-02.
	blocks := []Block{
		blockAt("2026-03-04", 10, 1, "Work", "coding", 4, 4),
		blockAt("2026-03-06", 10, 1, "Work", "coding", 4, 4),
		blockAt("2026-03-09", 10, 1, "Work", "coding", 4, 4), // next Monday
	}
	weekly := WeeklySummaries(blocks, nil, time.Second)
	if len(weekly) != 2 {
		t.Fatalf("got %d weeks, want 2", len(weekly))
	}
	if weekly[0].WeekOf != "2026-03-02" {
		t.Errorf("week key = %s, want 2026-03-02", weekly[0].WeekOf)
	}
	if weekly[1].WeekOf != "2026-03-09" {
		t.Errorf("second week key = %s, want 2026-03-09", weekly[1].WeekOf)
	}
}

func TestWeeklyTopActivitiesTrimmedAndRanked(t *testing.T) {
	blocks := []Block{
		blockAt("2026-03-02", 9, 1, "Work", "coding", 3, 3),
		blockAt("2026-03-02", 10, 1, "Work", "coding", 3, 3),
		blockAt("2026-03-02", 11, 1, "Work", "  ", 3, 3),
		blockAt("2026-03-02", 12, 1, "Work", "review", 3, 3),
	}
	weekly := WeeklySummaries(blocks, nil, time.Second)
	acts := weekly[0].TopActivities
	if len(acts) != 2 {
		t.Fatalf("got %d activities, want 2 (blank skipped)", len(acts))
	}
	if acts[0].Activity != "coding" || acts[0].Count != 2 {
		t.Errorf("top activity = %+v", acts[0])
	}
}

type fakeSummarizer struct {
	narrative   string
	suggestions []string
	err         error
	slow        bool
}

func (f *fakeSummarizer) Summarize(ctx context.Context, input string) (string, []string, error) {
	if f.slow {
		<-ctx.Done()
		return "", nil, ctx.Err()
	}
	return f.narrative, f.suggestions, f.err
}

func TestNarrativeOverrideFromSummarizer(t *testing.T) {
	blocks := []Block{blockAt("2026-03-02", 10, 1, "Work", "coding", 4, 4)}
	s := &fakeSummarizer{narrative: "A focused day.", suggestions: []string{"one", "two", "three", "four"}}
	daily := DailySummaries(blocks, s, time.Second)
	if daily[0].Narrative != "A focused day." {
		t.Errorf("narrative = %q", daily[0].Narrative)
	}
	if len(daily[0].Suggestions) != 3 {
		t.Errorf("got %d suggestions, want 3 (extra trimmed)", len(daily[0].Suggestions))
	}
}

func TestNarrativeFallbackOnEmptyOrError(t *testing.T) {
	blocks := []Block{blockAt("2026-03-02", 10, 1, "Work", "coding", 4, 4)}

	for name, s := range map[string]*fakeSummarizer{
		"empty": {narrative: "   "},
		"error": {err: errors.New("model unavailable")},
		"slow":  {slow: true},
	} {
		daily := DailySummaries(blocks, s, 50*time.Millisecond)
		if !strings.Contains(daily[0].Narrative, "You tracked") {
			t.Errorf("%s: expected heuristic narrative, got %q", name, daily[0].Narrative)
		}
		if len(daily[0].Suggestions) != 3 {
			t.Errorf("%s: got %d suggestions, want 3", name, len(daily[0].Suggestions))
		}
	}
}

func TestNarrativePartialSuggestionsPadded(t *testing.T) {
	blocks := []Block{blockAt("2026-03-02", 10, 1, "Work", "coding", 4, 4)}
	s := &fakeSummarizer{narrative: "ok", suggestions: []string{"just one"}}
	daily := DailySummaries(blocks, s, time.Second)
	if len(daily[0].Suggestions) != 3 {
		t.Fatalf("got %d suggestions, want 3", len(daily[0].Suggestions))
	}
	if daily[0].Suggestions[0] != "just one" {
		t.Errorf("first suggestion = %q", daily[0].Suggestions[0])
	}
}

func stampsOnly(timestamps ...string) []timelog.Entry {
	entries := make([]timelog.Entry, len(timestamps))
	for i, ts := range timestamps {
		entries[i] = timelog.Entry{Timestamp: ts, Activity: "x", Category: "Work"}
	}
	return entries
}

func TestMissedCheckInsSingleEntryDaySkipped(t *testing.T) {
	reports := EstimateMissedCheckIns(stampsOnly("2026-03-02T09:00:00"), 1.0, 2.0)
	if len(reports) != 0 {
		t.Errorf("single-entry day should produce no report, got %d", len(reports))
	}
}

// Check-ins at 09:00 and 14:00: five observed hours at a one-hour
// interval expect six check-ins; two were recorded, so four are missed
// and the five-hour gap also trips the gap threshold.
func TestMissedCheckInsDetectsShortfall(t *testing.T) {
	reports := EstimateMissedCheckIns(
		stampsOnly("2026-03-02T09:00:00", "2026-03-02T14:00:00"), 1.0, 2.0)
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}
	r := reports[0]
	if r.Date != "2026-03-02" {
		t.Errorf("date = %s", r.Date)
	}
	if r.Expected != 6 || r.Actual != 2 || r.Missed != 4 {
		t.Errorf("expected/actual/missed = %d/%d/%d, want 6/2/4", r.Expected, r.Actual, r.Missed)
	}
	if r.LargestGapHours != 5 {
		t.Errorf("largest gap = %v, want 5", r.LargestGapHours)
	}
}

// A fully covered day produces no report.
func TestMissedCheckInsNoneWhenCadenceHeld(t *testing.T) {
	reports := EstimateMissedCheckIns(stampsOnly(
		"2026-03-02T09:00:00",
		"2026-03-02T10:00:00",
		"2026-03-02T11:00:00",
	), 1.0, 2.0)
	if len(reports) != 0 {
		t.Errorf("got %d reports, want 0", len(reports))
	}
}

// Count is fine but one gap crosses the break threshold: still reported.
func TestMissedCheckInsLargeGapAloneTriggers(t *testing.T) {
	reports := EstimateMissedCheckIns(stampsOnly(
		"2026-03-02T09:00:00",
		"2026-03-02T09:10:00",
		"2026-03-02T09:20:00",
		"2026-03-02T09:30:00",
		"2026-03-02T12:00:00",
	), 1.0, 2.0)
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}
	if reports[0].LargestGapHours < 2.0 {
		t.Errorf("largest gap = %v, want >= 2", reports[0].LargestGapHours)
	}
}

// The expectation derives from the day's observed span, never a full 24
// hours: a sub-hour day is judged against a one-hour floor.
func TestMissedCheckInsSpanFloor(t *testing.T) {
	reports := EstimateMissedCheckIns(
		stampsOnly("2026-03-02T09:00:00", "2026-03-02T09:30:00"), 1.0, 2.0)
	if len(reports) != 0 {
		t.Errorf("half-hour day with 2 check-ins should not be flagged, got %+v", reports)
	}
}
