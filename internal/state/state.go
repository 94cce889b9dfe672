// Package state persists the scheduler's durable timestamps.
//
// The state file is the single source of truth for prompt suppression:
// the scheduler mode is informational, but snoozed_until/paused_until
// decide. The store writes through on every mutation and tolerates a
// missing or corrupt file by starting from zero state.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const dateLayout = "2006-01-02"

// SchedulerState is the persisted scheduler record. All fields are
// optional; the zero value is a valid first-run state.
type SchedulerState struct {
	LastPromptAt       time.Time // last time a prompt was presented
	LastEntryAt        time.Time // last time a check-in was recorded
	SnoozedUntil       time.Time // prompt suppression, short
	PausedUntil        time.Time // prompt suppression, long; clears snooze
	LastResumeAt       time.Time // last time a catch-up was handled
	LastReflectionDate string    // YYYY-MM-DD of last completed reflection
}

// wire format: timestamps as RFC3339 strings, empty string for absent.
type stateJSON struct {
	LastPromptAt       string `json:"last_prompt_at,omitempty"`
	LastEntryAt        string `json:"last_entry_at,omitempty"`
	SnoozedUntil       string `json:"snoozed_until,omitempty"`
	PausedUntil        string `json:"paused_until,omitempty"`
	LastResumeAt       string `json:"last_resume_at,omitempty"`
	LastReflectionDate string `json:"last_reflection_date,omitempty"`
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ApplySnooze sets the snooze window ending minutes from now.
func ApplySnooze(s *SchedulerState, minutes int, now time.Time) {
	s.SnoozedUntil = now.Add(time.Duration(minutes) * time.Minute)
}

// ApplyPause sets the pause window and cancels any pending snooze. Pause
// has absolute priority, so a lingering snooze would only confuse.
func ApplyPause(s *SchedulerState, minutes int, now time.Time) {
	s.PausedUntil = now.Add(time.Duration(minutes) * time.Minute)
	s.SnoozedUntil = time.Time{}
}

// DayString formats a day for LastReflectionDate.
func DayString(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseDay parses a YYYY-MM-DD string; returns zero time on failure.
func ParseDay(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Store reads and writes SchedulerState as a JSON file.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store persisting to <stateDir>/state.json.
func NewStore(stateDir string) *Store {
	return &Store{path: filepath.Join(stateDir, "state.json")}
}

// Load reads the persisted state. A missing or unreadable file yields the
// zero state: the scheduler must tolerate starting from nothing.
func (s *Store) Load() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return SchedulerState{}
	}
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return SchedulerState{}
	}
	return SchedulerState{
		LastPromptAt:       parseTime(raw.LastPromptAt),
		LastEntryAt:        parseTime(raw.LastEntryAt),
		SnoozedUntil:       parseTime(raw.SnoozedUntil),
		PausedUntil:        parseTime(raw.PausedUntil),
		LastResumeAt:       parseTime(raw.LastResumeAt),
		LastReflectionDate: raw.LastReflectionDate,
	}
}

// Save writes the full state as one unit. Persistence failures propagate:
// silently losing scheduler state would corrupt future catch-up decisions.
func (s *Store) Save(st SchedulerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := stateJSON{
		LastPromptAt:       fmtTime(st.LastPromptAt),
		LastEntryAt:        fmtTime(st.LastEntryAt),
		SnoozedUntil:       fmtTime(st.SnoozedUntil),
		PausedUntil:        fmtTime(st.PausedUntil),
		LastResumeAt:       fmtTime(st.LastResumeAt),
		LastReflectionDate: st.LastReflectionDate,
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("state: create directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("state: write: %w", err)
	}
	return nil
}
