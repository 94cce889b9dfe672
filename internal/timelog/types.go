package timelog

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sheet names inside the workbook. Users open this file in a spreadsheet
// app, so the names are human-readable and stable.
const (
	EntriesSheet          = "Entries"
	LookupSheet           = "Lookup"
	TasksSheet            = "Tasks"
	TaskEventsSheet       = "Task_Events"
	ReflectionsIndexSheet = "Reflections_Index"
)

// PromptType distinguishes how a check-in was captured.
type PromptType string

const (
	PromptRegular PromptType = "regular"
	PromptManual  PromptType = "manual"
	PromptCatchUp PromptType = "catch_up"
	PromptDriving PromptType = "driving"
)

var entriesColumns = []string{
	"id", "timestamp", "activity", "notes", "category",
	"energy", "focus", "prompt_type", "start_time", "end_time", "created_at",
}

var lookupColumns = []string{"category", "keywords", "regex", "updated_at"}

var tasksColumns = []string{
	"id", "title", "status", "created_at", "completed_at",
	"last_worked_at", "total_minutes", "notes",
}

var taskEventsColumns = []string{
	"id", "task_id", "timestamp", "action", "minutes",
	"effort", "could_be_faster", "notes",
}

var reflectionsIndexColumns = []string{"date", "path", "created_at", "mood"}

// DefaultCategories seeds the Lookup sheet on first run.
var DefaultCategories = []string{
	"Work", "Study", "Admin", "Break", "Exercise", "Chores", "Social", "Other",
}

const tsLayout = "2006-01-02T15:04:05"

// Entry is one check-in row. Timestamp stays a string here: cells are
// user-editable, so parsing (and parse-failure counting) belongs to the
// analytics boundary, not the store.
type Entry struct {
	ID         string
	Timestamp  string
	Activity   string
	Notes      string
	Category   string
	Energy     int
	Focus      int
	PromptType PromptType
	StartTime  string
	EndTime    string
	CreatedAt  string
}

// NewEntry builds an entry for a check-in captured at ts.
func NewEntry(ts time.Time, activity, notes, category string, energy, focus int, promptType PromptType) Entry {
	now := time.Now()
	return Entry{
		ID:         fmt.Sprintf("%d", now.UnixMilli()),
		Timestamp:  ts.Format(tsLayout),
		Activity:   activity,
		Notes:      notes,
		Category:   category,
		Energy:     energy,
		Focus:      focus,
		PromptType: promptType,
		CreatedAt:  now.Format(tsLayout),
	}
}

// WithSpan sets the explicit start/end pair used by catch-up backfills.
func (e Entry) WithSpan(start, end time.Time) Entry {
	e.StartTime = start.Format(tsLayout)
	e.EndTime = end.Format(tsLayout)
	return e
}

// Task is one row in the Tasks sheet.
type Task struct {
	ID           string
	Title        string
	Status       string
	CreatedAt    string
	CompletedAt  string
	LastWorkedAt string
	TotalMinutes int
	Notes        string
}

// TaskEvent is one row in the Task_Events sheet.
type TaskEvent struct {
	ID            string
	TaskID        string
	Timestamp     string
	Action        string // "worked" or "completed"
	Minutes       int
	MinutesRaw    string // original cell text, for flagging non-numeric values
	Effort        int
	CouldBeFaster bool
	Notes         string
}

// normHeader normalizes header names so "Prompt Type" and "prompt_type"
// match.
func normHeader(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

// toInt converts a user-editable cell to an int, never failing. Malformed
// cells (including stray header text like "minutes") fall back to def.
func toInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return def
}

// toBool reads spreadsheet-style booleans.
func toBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		return true
	}
	return false
}
