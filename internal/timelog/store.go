// Package timelog is the workbook-backed record store. Check-ins, tasks,
// task events and reflection index rows live as sheets in a single .xlsx
// file that the user may also open and edit by hand.
//
// Every operation takes a bounded file lock so the scheduler's write path
// and the analytics read path never interleave, and every write lands via
// a temp file + rename so a reader never observes a half-written workbook.
// Hand-edited sheets are decoded tolerantly: header rows are located by
// scanning, header names are normalized, and stray duplicate header rows
// inside the data region are skipped.
package timelog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const defaultLockTimeout = 5 * time.Second

// Maximum rows scanned when hunting for a header row in a hand-edited
// sheet.
const headerScanLimit = 20

// Store reads and writes the time-log workbook.
type Store struct {
	path        string
	lock        *fileLock
	lockTimeout time.Duration
}

// NewStore creates a store over the workbook at path, using lockPath to
// serialize access.
func NewStore(path, lockPath string) *Store {
	return &Store{
		path:        path,
		lock:        newFileLock(lockPath),
		lockTimeout: defaultLockTimeout,
	}
}

// Path returns the workbook path.
func (s *Store) Path() string { return s.path }

// SetLockTimeout overrides the bounded wait for the workbook lock.
func (s *Store) SetLockTimeout(d time.Duration) { s.lockTimeout = d }

func (s *Store) openOrCreate() (*excelize.File, error) {
	if _, err := os.Stat(s.path); err == nil {
		f, err := excelize.OpenFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("timelog: open workbook: %w", err)
		}
		return f, nil
	}
	f := excelize.NewFile()
	// The default sheet becomes Entries so the workbook is usable as-is.
	if err := f.SetSheetName(f.GetSheetName(0), EntriesSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("timelog: rename default sheet: %w", err)
	}
	return f, nil
}

// atomicSave writes the workbook to a temp file and renames it over the
// target so readers never see a partial file.
func (s *Store) atomicSave(f *excelize.File) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("timelog: create data directory: %w", err)
	}
	// The temp name must keep an .xlsx suffix: SaveAs rejects unknown
	// workbook extensions.
	tmp, err := os.CreateTemp(dir, "time_log_*.tmp.xlsx")
	if err != nil {
		return fmt.Errorf("timelog: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	tmp.Close()

	if err := f.SaveAs(tmpName); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("timelog: save workbook: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("timelog: replace workbook: %w", err)
	}
	return nil
}

// update locks, opens (creating if needed), runs fn, and atomically saves.
func (s *Store) update(fn func(*excelize.File) error) error {
	release, err := s.lock.acquire(s.lockTimeout)
	if err != nil {
		return err
	}
	defer release()

	f, err := s.openOrCreate()
	if err != nil {
		return err
	}
	defer f.Close()

	if err := fn(f); err != nil {
		return err
	}
	return s.atomicSave(f)
}

// view locks and opens read-only; a missing workbook runs fn with nil.
func (s *Store) view(fn func(*excelize.File) error) error {
	release, err := s.lock.acquire(s.lockTimeout)
	if err != nil {
		return err
	}
	defer release()

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return fn(nil)
	}
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return fmt.Errorf("timelog: open workbook: %w", err)
	}
	defer f.Close()
	return fn(f)
}

func hasSheet(f *excelize.File, name string) bool {
	for _, s := range f.GetSheetList() {
		if s == name {
			return true
		}
	}
	return false
}

func ensureSheet(f *excelize.File, name string) error {
	if hasSheet(f, name) {
		return nil
	}
	_, err := f.NewSheet(name)
	return err
}

// headerMap returns column index (1-based) per normalized header name for
// the sheet's first row, writing the expected header row if the sheet is
// empty and extending it with any missing expected columns.
func headerMap(f *excelize.File, sheet string, expected []string) (map[string]int, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("timelog: read %s: %w", sheet, err)
	}

	var header []string
	if len(rows) > 0 {
		header = rows[0]
	}
	empty := true
	for _, h := range header {
		if strings.TrimSpace(h) != "" {
			empty = false
			break
		}
	}
	if empty {
		header = append([]string{}, expected...)
	} else {
		have := make(map[string]bool, len(header))
		for _, h := range header {
			have[normHeader(h)] = true
		}
		for _, col := range expected {
			if !have[col] {
				header = append(header, col)
			}
		}
	}

	cells := make([]any, len(header))
	for i, h := range header {
		cells[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &cells); err != nil {
		return nil, fmt.Errorf("timelog: write %s header: %w", sheet, err)
	}

	m := make(map[string]int, len(header))
	for i, h := range header {
		if n := normHeader(h); n != "" {
			if _, dup := m[n]; !dup {
				m[n] = i + 1
			}
		}
	}
	return m, nil
}

// appendRow writes values into the next free row, placed by header name.
func appendRow(f *excelize.File, sheet string, hm map[string]int, values map[string]any) error {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("timelog: read %s: %w", sheet, err)
	}
	rowIdx := len(rows) + 1

	width := 0
	for _, col := range hm {
		if col > width {
			width = col
		}
	}
	cells := make([]any, width)
	for name, v := range values {
		if col, ok := hm[name]; ok {
			cells[col-1] = v
		}
	}
	start, err := excelize.CoordinatesToCellName(1, rowIdx)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, start, &cells)
}

// findHeaderRow scans the first rows of a hand-edited sheet for one that
// contains every required normalized header. Returns the 0-based index of
// that row and its normalized headers, or -1 when nothing matches.
func findHeaderRow(rows [][]string, required ...string) (int, []string) {
	limit := len(rows)
	if limit > headerScanLimit {
		limit = headerScanLimit
	}
	for i := 0; i < limit; i++ {
		headers := make([]string, len(rows[i]))
		found := 0
		for j, cell := range rows[i] {
			headers[j] = normHeader(cell)
		}
		for _, req := range required {
			for _, h := range headers {
				if h == req {
					found++
					break
				}
			}
		}
		if found == len(required) {
			return i, headers
		}
	}
	return -1, nil
}

// decodeRows turns data rows after the header into name→value maps,
// skipping blank rows and rows that repeat the header (a known artifact
// of hand-edited sheets).
func decodeRows(rows [][]string, headerIdx int, headers []string) []map[string]string {
	headerSet := make(map[string]bool, len(headers))
	for _, h := range headers {
		if h != "" {
			headerSet[h] = true
		}
	}

	var out []map[string]string
	for _, row := range rows[headerIdx+1:] {
		blank := true
		repeated := false
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				blank = false
				if headerSet[normHeader(cell)] {
					repeated = true
				}
			}
		}
		if blank || repeated {
			continue
		}
		rec := make(map[string]string, len(headers))
		for i, h := range headers {
			if h == "" || i >= len(row) {
				continue
			}
			rec[h] = row[i]
		}
		if len(rec) > 0 {
			out = append(out, rec)
		}
	}
	return out
}

// EnsureWorkbook provisions all sheets, header rows and seed categories.
// Idempotent; safe to call on every start.
func (s *Store) EnsureWorkbook(categories []string) error {
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	return s.update(func(f *excelize.File) error {
		for _, sheet := range []string{EntriesSheet, LookupSheet, TasksSheet, TaskEventsSheet} {
			if err := ensureSheet(f, sheet); err != nil {
				return err
			}
		}
		if _, err := headerMap(f, EntriesSheet, entriesColumns); err != nil {
			return err
		}
		if _, err := headerMap(f, TasksSheet, tasksColumns); err != nil {
			return err
		}
		if _, err := headerMap(f, TaskEventsSheet, taskEventsColumns); err != nil {
			return err
		}
		return s.seedCategories(f, categories)
	})
}

func (s *Store) seedCategories(f *excelize.File, categories []string) error {
	hm, err := headerMap(f, LookupSheet, lookupColumns)
	if err != nil {
		return err
	}
	rows, err := f.GetRows(LookupSheet)
	if err != nil {
		return err
	}
	catCol := hm["category"]
	existing := make(map[string]bool)
	for i, row := range rows {
		if i == 0 || catCol-1 >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[catCol-1]); v != "" {
			existing[v] = true
		}
	}
	now := time.Now().Format(tsLayout)
	for _, cat := range categories {
		if existing[cat] {
			continue
		}
		if err := appendRow(f, LookupSheet, hm, map[string]any{
			"category":   cat,
			"updated_at": now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// AppendEntry appends one check-in row.
func (s *Store) AppendEntry(e Entry) error {
	return s.update(func(f *excelize.File) error {
		if err := ensureSheet(f, EntriesSheet); err != nil {
			return err
		}
		hm, err := headerMap(f, EntriesSheet, entriesColumns)
		if err != nil {
			return err
		}
		return appendRow(f, EntriesSheet, hm, map[string]any{
			"id":          e.ID,
			"timestamp":   e.Timestamp,
			"activity":    e.Activity,
			"notes":       e.Notes,
			"category":    e.Category,
			"energy":      e.Energy,
			"focus":       e.Focus,
			"prompt_type": string(e.PromptType),
			"start_time":  e.StartTime,
			"end_time":    e.EndTime,
			"created_at":  e.CreatedAt,
		})
	})
}

// ReadEntries returns all check-in rows. A missing workbook is "no data
// yet" (nil, nil); a lock timeout is a distinct error so callers can
// degrade instead of concluding the log is empty.
func (s *Store) ReadEntries() ([]Entry, error) {
	var entries []Entry
	err := s.view(func(f *excelize.File) error {
		if f == nil || !hasSheet(f, EntriesSheet) {
			return nil
		}
		rows, err := f.GetRows(EntriesSheet)
		if err != nil {
			return fmt.Errorf("timelog: read entries: %w", err)
		}
		idx, headers := findHeaderRow(rows, "timestamp", "activity")
		if idx < 0 {
			return nil
		}
		for _, rec := range decodeRows(rows, idx, headers) {
			entries = append(entries, Entry{
				ID:         rec["id"],
				Timestamp:  rec["timestamp"],
				Activity:   rec["activity"],
				Notes:      rec["notes"],
				Category:   defaultStr(rec["category"], "Other"),
				Energy:     toInt(rec["energy"], 3),
				Focus:      toInt(rec["focus"], 3),
				PromptType: PromptType(defaultStr(rec["prompt_type"], string(PromptRegular))),
				StartTime:  rec["start_time"],
				EndTime:    rec["end_time"],
				CreatedAt:  rec["created_at"],
			})
		}
		return nil
	})
	return entries, err
}

func defaultStr(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// ReadCategories returns categories from the Lookup sheet, falling back
// to the defaults when the sheet is absent or empty.
func (s *Store) ReadCategories() ([]string, error) {
	cats := []string{}
	err := s.view(func(f *excelize.File) error {
		if f == nil || !hasSheet(f, LookupSheet) {
			return nil
		}
		rows, err := f.GetRows(LookupSheet)
		if err != nil {
			return fmt.Errorf("timelog: read lookup: %w", err)
		}
		idx, headers := findHeaderRow(rows, "category")
		if idx < 0 {
			return nil
		}
		for _, rec := range decodeRows(rows, idx, headers) {
			if v := strings.TrimSpace(rec["category"]); v != "" {
				cats = append(cats, v)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(cats) == 0 {
		return append([]string{}, DefaultCategories...), nil
	}
	return cats, nil
}

// AddTasks appends open tasks with the given titles, returning their IDs.
func (s *Store) AddTasks(titles []string) ([]string, error) {
	var ids []string
	err := s.update(func(f *excelize.File) error {
		if err := ensureSheet(f, TasksSheet); err != nil {
			return err
		}
		hm, err := headerMap(f, TasksSheet, tasksColumns)
		if err != nil {
			return err
		}
		now := time.Now()
		for _, title := range titles {
			clean := strings.TrimSpace(title)
			if clean == "" {
				continue
			}
			id := fmt.Sprintf("task_%d_%d", now.UnixMilli(), len(ids))
			if err := appendRow(f, TasksSheet, hm, map[string]any{
				"id":            id,
				"title":         clean,
				"status":        "open",
				"created_at":    now.Format(tsLayout),
				"total_minutes": 0,
			}); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

// ReadTasks returns tasks, optionally filtered by status ("" for all).
func (s *Store) ReadTasks(statusFilter string) ([]Task, error) {
	var tasks []Task
	err := s.view(func(f *excelize.File) error {
		if f == nil || !hasSheet(f, TasksSheet) {
			return nil
		}
		rows, err := f.GetRows(TasksSheet)
		if err != nil {
			return fmt.Errorf("timelog: read tasks: %w", err)
		}
		idx, headers := findHeaderRow(rows, "id", "title")
		if idx < 0 {
			return nil
		}
		for _, rec := range decodeRows(rows, idx, headers) {
			status := strings.ToLower(strings.TrimSpace(rec["status"]))
			if statusFilter != "" && status != statusFilter {
				continue
			}
			tasks = append(tasks, Task{
				ID:           rec["id"],
				Title:        rec["title"],
				Status:       status,
				CreatedAt:    rec["created_at"],
				CompletedAt:  rec["completed_at"],
				LastWorkedAt: rec["last_worked_at"],
				TotalMinutes: toInt(rec["total_minutes"], 0),
				Notes:        rec["notes"],
			})
		}
		return nil
	})
	return tasks, err
}

// ReadTaskEvents returns all task events. Rows repeating the header and
// blank rows are skipped; MinutesRaw keeps the original cell so callers
// can flag non-numeric values.
func (s *Store) ReadTaskEvents() ([]TaskEvent, error) {
	var events []TaskEvent
	err := s.view(func(f *excelize.File) error {
		if f == nil || !hasSheet(f, TaskEventsSheet) {
			return nil
		}
		rows, err := f.GetRows(TaskEventsSheet)
		if err != nil {
			return fmt.Errorf("timelog: read task events: %w", err)
		}
		idx, headers := findHeaderRow(rows, "task_id", "timestamp")
		if idx < 0 {
			return nil
		}
		for _, rec := range decodeRows(rows, idx, headers) {
			events = append(events, TaskEvent{
				ID:            rec["id"],
				TaskID:        rec["task_id"],
				Timestamp:     rec["timestamp"],
				Action:        rec["action"],
				Minutes:       toInt(rec["minutes"], 0),
				MinutesRaw:    rec["minutes"],
				Effort:        toInt(rec["effort"], 3),
				CouldBeFaster: toBool(rec["could_be_faster"]),
				Notes:         rec["notes"],
			})
		}
		return nil
	})
	return events, err
}

// LogTaskEvent appends a task event and updates the task's rollup fields
// (last_worked_at/total_minutes for "worked", status/completed_at for
// "completed").
func (s *Store) LogTaskEvent(ev TaskEvent) error {
	return s.update(func(f *excelize.File) error {
		if err := ensureSheet(f, TaskEventsSheet); err != nil {
			return err
		}
		if err := ensureSheet(f, TasksSheet); err != nil {
			return err
		}
		evHM, err := headerMap(f, TaskEventsSheet, taskEventsColumns)
		if err != nil {
			return err
		}
		taskHM, err := headerMap(f, TasksSheet, tasksColumns)
		if err != nil {
			return err
		}

		now := time.Now()
		if ev.ID == "" {
			ev.ID = fmt.Sprintf("event_%d", now.UnixMilli())
		}
		if ev.Timestamp == "" {
			ev.Timestamp = now.Format(tsLayout)
		}
		if err := appendRow(f, TaskEventsSheet, evHM, map[string]any{
			"id":              ev.ID,
			"task_id":         ev.TaskID,
			"timestamp":       ev.Timestamp,
			"action":          ev.Action,
			"minutes":         ev.Minutes,
			"effort":          ev.Effort,
			"could_be_faster": ev.CouldBeFaster,
			"notes":           ev.Notes,
		}); err != nil {
			return err
		}

		rowIdx := findRowByID(f, TasksSheet, taskHM["id"], ev.TaskID)
		if rowIdx < 0 {
			return nil
		}
		switch ev.Action {
		case "worked":
			if err := setCell(f, TasksSheet, taskHM["last_worked_at"], rowIdx, ev.Timestamp); err != nil {
				return err
			}
			existing := toInt(getCell(f, TasksSheet, taskHM["total_minutes"], rowIdx), 0)
			return setCell(f, TasksSheet, taskHM["total_minutes"], rowIdx, existing+ev.Minutes)
		case "completed":
			if err := setCell(f, TasksSheet, taskHM["status"], rowIdx, "done"); err != nil {
				return err
			}
			return setCell(f, TasksSheet, taskHM["completed_at"], rowIdx, ev.Timestamp)
		}
		return nil
	})
}

// UpdateTaskFields updates a task's title and/or notes; nil leaves a
// field unchanged.
func (s *Store) UpdateTaskFields(taskID string, title, notes *string) error {
	return s.update(func(f *excelize.File) error {
		if err := ensureSheet(f, TasksSheet); err != nil {
			return err
		}
		hm, err := headerMap(f, TasksSheet, tasksColumns)
		if err != nil {
			return err
		}
		rowIdx := findRowByID(f, TasksSheet, hm["id"], taskID)
		if rowIdx < 0 {
			return fmt.Errorf("timelog: task not found: %s", taskID)
		}
		if title != nil {
			if err := setCell(f, TasksSheet, hm["title"], rowIdx, *title); err != nil {
				return err
			}
		}
		if notes != nil {
			if err := setCell(f, TasksSheet, hm["notes"], rowIdx, *notes); err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendReflectionIndex records a saved reflection document in the index
// sheet.
func (s *Store) AppendReflectionIndex(day, path, createdAt string) error {
	return s.update(func(f *excelize.File) error {
		if err := ensureSheet(f, ReflectionsIndexSheet); err != nil {
			return err
		}
		hm, err := headerMap(f, ReflectionsIndexSheet, reflectionsIndexColumns)
		if err != nil {
			return err
		}
		return appendRow(f, ReflectionsIndexSheet, hm, map[string]any{
			"date":       day,
			"path":       path,
			"created_at": createdAt,
		})
	})
}

// ReplaceSheet drops and rewrites a whole sheet. Analytics uses this for
// the generated summary sheets, which are recomputed from scratch each
// run.
func (s *Store) ReplaceSheet(name string, headers []string, dataRows [][]any) error {
	return s.update(func(f *excelize.File) error {
		if hasSheet(f, name) {
			if err := f.DeleteSheet(name); err != nil {
				return fmt.Errorf("timelog: delete sheet %s: %w", name, err)
			}
		}
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("timelog: create sheet %s: %w", name, err)
		}
		head := make([]any, len(headers))
		for i, h := range headers {
			head[i] = h
		}
		if err := f.SetSheetRow(name, "A1", &head); err != nil {
			return err
		}
		for i, row := range dataRows {
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return err
			}
			r := row
			if err := f.SetSheetRow(name, cell, &r); err != nil {
				return err
			}
		}
		return nil
	})
}

func findRowByID(f *excelize.File, sheet string, idCol int, id string) int {
	if idCol < 1 {
		return -1
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return -1
	}
	for i, row := range rows {
		if i == 0 || idCol-1 >= len(row) {
			continue
		}
		if strings.TrimSpace(row[idCol-1]) == id {
			return i + 1
		}
	}
	return -1
}

func setCell(f *excelize.File, sheet string, col, row int, value any) error {
	if col < 1 {
		return nil
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, value)
}

func getCell(f *excelize.File, sheet string, col, row int) string {
	if col < 1 {
		return ""
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return ""
	}
	v, err := f.GetCellValue(sheet, cell)
	if err != nil {
		return ""
	}
	return v
}
