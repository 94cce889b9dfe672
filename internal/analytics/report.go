package analytics

import (
	"errors"
	"fmt"
	"html/template"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vthunder/hourglass/internal/config"
	"github.com/vthunder/hourglass/internal/logging"
	"github.com/vthunder/hourglass/internal/timelog"
)

// TaskDayRow is one row of per-day task effort in the report.
type TaskDayRow struct {
	Date      string
	TaskTitle string
	Minutes   int
	Events    int
	Completed bool
	AvgEffort float64
}

// Result is everything one aggregation run produced.
type Result struct {
	Daily         []DailySummary
	Weekly        []WeeklySummary
	Missed        []MissedReport
	TaskHistory   []TaskDayRow
	ParseFailures int
	Warnings      []string
}

// Pipeline reads the record store, reconstructs blocks, aggregates them,
// and writes the summary sheets and the HTML report. Every data source is
// read best-effort: a lock timeout or permission error on one source
// degrades that source to empty data with a warning instead of aborting
// the run.
type Pipeline struct {
	cfg        config.Config
	store      *timelog.Store
	summarizer Summarizer
}

func NewPipeline(cfg config.Config, store *timelog.Store, summarizer Summarizer) *Pipeline {
	return &Pipeline{cfg: cfg, store: store, summarizer: summarizer}
}

// Run performs one full aggregation pass. It always returns a Result; a
// degraded run reports its problems in Result.Warnings. The returned
// error covers only the final report write.
func (p *Pipeline) Run() (*Result, error) {
	res := &Result{}

	entries := p.readEntries(res)
	tasks, events := p.readTasks(res)

	blocks, failures := EntriesToBlocks(entries, p.cfg.Rules)
	res.ParseFailures = failures
	if failures > 0 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("%d check-in rows had unparseable timestamps and were skipped", failures))
	}

	timeout := time.Duration(p.cfg.LLMTimeoutSeconds) * time.Second
	res.Daily = DailySummaries(blocks, p.summarizer, timeout)
	res.Weekly = WeeklySummaries(blocks, p.summarizer, timeout)
	res.Missed = EstimateMissedCheckIns(entries, p.cfg.IntervalHours(), p.cfg.Rules.GapBreakHours)
	res.TaskHistory = taskHistory(tasks, events, res)

	p.writeSummarySheets(res)

	if err := p.writeHTMLReport(res); err != nil {
		return res, err
	}
	logging.Info("analytics", "report refreshed: %d days, %d weeks, %d missed-day flags, %d warnings",
		len(res.Daily), len(res.Weekly), len(res.Missed), len(res.Warnings))
	return res, nil
}

// readEntries degrades to no data on lock timeout or permission errors.
func (p *Pipeline) readEntries(res *Result) []timelog.Entry {
	entries, err := p.store.ReadEntries()
	if err != nil {
		res.Warnings = append(res.Warnings, degradeMessage("check-ins", err))
		return nil
	}
	return entries
}

func (p *Pipeline) readTasks(res *Result) ([]timelog.Task, []timelog.TaskEvent) {
	tasks, err := p.store.ReadTasks("")
	if err != nil {
		res.Warnings = append(res.Warnings, degradeMessage("tasks", err))
		tasks = nil
	}
	events, err := p.store.ReadTaskEvents()
	if err != nil {
		res.Warnings = append(res.Warnings, degradeMessage("task events", err))
		events = nil
	}
	return tasks, events
}

func degradeMessage(source string, err error) string {
	switch {
	case errors.Is(err, timelog.ErrLockTimeout):
		return fmt.Sprintf("%s unavailable (workbook locked); report built without them", source)
	case errors.Is(err, os.ErrPermission):
		return fmt.Sprintf("%s unavailable (permission denied); report built without them", source)
	default:
		return fmt.Sprintf("%s could not be read (%v); report built without them", source, err)
	}
}

// taskHistory rolls task events up per day per task. Non-numeric minutes
// cells (a hand-editing artifact) are counted as zero and flagged once.
func taskHistory(tasks []timelog.Task, events []timelog.TaskEvent, res *Result) []TaskDayRow {
	titles := make(map[string]string, len(tasks))
	for _, t := range tasks {
		titles[t.ID] = t.Title
	}

	type key struct{ day, taskID string }
	type agg struct {
		minutes, count, effortSum, effortN int
		completed                          bool
	}
	rollup := make(map[key]*agg)
	badMinutes := 0

	for _, ev := range events {
		ts, err := ParseTimestamp(ev.Timestamp)
		if err != nil {
			continue
		}
		k := key{day: ts.Format(dayLayout), taskID: ev.TaskID}
		a, ok := rollup[k]
		if !ok {
			a = &agg{}
			rollup[k] = a
		}
		if raw := strings.TrimSpace(ev.MinutesRaw); raw != "" {
			if _, err := strconv.ParseFloat(raw, 64); err != nil {
				badMinutes++
			}
		}
		a.minutes += ev.Minutes
		a.count++
		if ev.Action == "completed" {
			a.completed = true
		}
		if ev.Effort > 0 {
			a.effortSum += ev.Effort
			a.effortN++
		}
	}
	if badMinutes > 0 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("%d task events had non-numeric minutes and were counted as zero", badMinutes))
	}

	rows := make([]TaskDayRow, 0, len(rollup))
	for k, a := range rollup {
		title := titles[k.taskID]
		if title == "" {
			title = k.taskID
		}
		row := TaskDayRow{
			Date:      k.day,
			TaskTitle: title,
			Minutes:   a.minutes,
			Events:    a.count,
			Completed: a.completed,
		}
		if a.effortN > 0 {
			row.AvgEffort = float64(a.effortSum) / float64(a.effortN)
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date < rows[j].Date
		}
		return rows[i].TaskTitle < rows[j].TaskTitle
	})
	return rows
}

// writeSummarySheets rewrites the generated sheets in the workbook. Each
// sheet write degrades independently.
func (p *Pipeline) writeSummarySheets(res *Result) {
	dailyRows := make([][]any, len(res.Daily))
	for i, d := range res.Daily {
		dailyRows[i] = []any{
			d.Date, round1(d.TotalHours), formatCategories(d.TopCategories),
			round1(d.AvgEnergy), round1(d.AvgFocus), d.Narrative,
		}
	}
	p.replaceSheet(res, "Daily_Summaries",
		[]string{"date", "total_hours", "top_categories", "avg_energy", "avg_focus", "narrative"},
		dailyRows)

	weeklyRows := make([][]any, len(res.Weekly))
	for i, w := range res.Weekly {
		weeklyRows[i] = []any{
			w.WeekOf, round1(w.TotalHours), formatCategories(w.TopCategories),
			formatActivities(w.TopActivities), formatCategories(w.TimeSinks),
			round1(w.AvgEnergy), round1(w.AvgFocus), w.Narrative,
		}
	}
	p.replaceSheet(res, "Weekly_Summaries",
		[]string{"week_of", "total_hours", "top_categories", "top_activities", "time_sinks", "avg_energy", "avg_focus", "narrative"},
		weeklyRows)

	missedRows := make([][]any, len(res.Missed))
	for i, m := range res.Missed {
		missedRows[i] = []any{m.Date, m.Expected, m.Actual, m.Missed, round1(m.LargestGapHours)}
	}
	p.replaceSheet(res, "Missed_Checkins",
		[]string{"date", "expected", "actual", "missed", "largest_gap_hours"},
		missedRows)

	taskRows := make([][]any, len(res.TaskHistory))
	for i, t := range res.TaskHistory {
		taskRows[i] = []any{t.Date, t.TaskTitle, t.Minutes, t.Events, t.Completed, round1(t.AvgEffort)}
	}
	p.replaceSheet(res, "Task_History",
		[]string{"date", "task", "minutes", "events", "completed", "avg_effort"},
		taskRows)
}

func (p *Pipeline) replaceSheet(res *Result, name string, headers []string, rows [][]any) {
	if err := p.store.ReplaceSheet(name, headers, rows); err != nil {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("could not update %s sheet: %v", name, err))
	}
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

func formatCategories(cs []CategoryHours) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = fmt.Sprintf("%s (%.1fh)", c.Category, c.Hours)
	}
	return strings.Join(parts, ", ")
}

func formatActivities(as []ActivityCount) string {
	parts := make([]string, len(as))
	for i, a := range as {
		parts[i] = fmt.Sprintf("%s (%d)", a.Activity, a.Count)
	}
	return strings.Join(parts, ", ")
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Time Tracker Report</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
h1, h2 { color: #334; }
table { border-collapse: collapse; margin-bottom: 2em; }
th, td { border: 1px solid #ccc; padding: 4px 10px; text-align: left; }
th { background: #eef; }
.warn { color: #a40; }
.narrative { max-width: 40em; }
</style>
</head>
<body>
<h1>Time Tracker Report</h1>
<p>Generated {{.GeneratedAt}}</p>

<h2>Daily Summaries</h2>
{{if .Daily}}
<table>
<tr><th>Date</th><th>Hours</th><th>Top Categories</th><th>Energy</th><th>Focus</th><th class="narrative">Narrative</th></tr>
{{range .Daily}}
<tr><td>{{.Date}}</td><td>{{printf "%.1f" .TotalHours}}</td><td>{{.Categories}}</td><td>{{printf "%.1f" .AvgEnergy}}</td><td>{{printf "%.1f" .AvgFocus}}</td><td class="narrative">{{.Narrative}}</td></tr>
{{end}}
</table>
{{else}}<p>No tracked days yet.</p>{{end}}

<h2>Weekly Summaries</h2>
{{if .Weekly}}
<table>
<tr><th>Week of</th><th>Hours</th><th>Top Categories</th><th>Top Activities</th><th class="narrative">Narrative</th></tr>
{{range .Weekly}}
<tr><td>{{.WeekOf}}</td><td>{{printf "%.1f" .TotalHours}}</td><td>{{.Categories}}</td><td>{{.Activities}}</td><td class="narrative">{{.Narrative}}</td></tr>
{{end}}
</table>
{{else}}<p>No tracked weeks yet.</p>{{end}}

<h2>Possible Missed Check-ins</h2>
{{if .Missed}}
<table>
<tr><th>Date</th><th>Expected</th><th>Actual</th><th>Missed</th><th>Largest Gap (h)</th></tr>
{{range .Missed}}
<tr><td>{{.Date}}</td><td>{{.Expected}}</td><td>{{.Actual}}</td><td>{{.Missed}}</td><td>{{printf "%.1f" .LargestGapHours}}</td></tr>
{{end}}
</table>
{{else}}<p>No missed-check-in days detected.</p>{{end}}

<h2>Task Effort</h2>
{{if .Tasks}}
<table>
<tr><th>Date</th><th>Task</th><th>Minutes</th><th>Events</th><th>Completed</th></tr>
{{range .Tasks}}
<tr><td>{{.Date}}</td><td>{{.TaskTitle}}</td><td>{{.Minutes}}</td><td>{{.Events}}</td><td>{{if .Completed}}yes{{end}}</td></tr>
{{end}}
</table>
{{else}}<p>No task activity recorded.</p>{{end}}

{{if .Warnings}}
<h2>Warnings</h2>
{{range .Warnings}}<p class="warn">{{.}}</p>
{{end}}
{{end}}
</body>
</html>
`))

type reportDaily struct {
	Date       string
	TotalHours float64
	Categories string
	AvgEnergy  float64
	AvgFocus   float64
	Narrative  string
}

type reportWeekly struct {
	WeekOf     string
	TotalHours float64
	Categories string
	Activities string
	Narrative  string
}

// writeHTMLReport renders the report file. It writes even for a fully
// degraded run so the user always has something to open.
func (p *Pipeline) writeHTMLReport(res *Result) error {
	daily := make([]reportDaily, len(res.Daily))
	for i, d := range res.Daily {
		daily[i] = reportDaily{
			Date:       d.Date,
			TotalHours: d.TotalHours,
			Categories: formatCategories(d.TopCategories),
			AvgEnergy:  d.AvgEnergy,
			AvgFocus:   d.AvgFocus,
			Narrative:  d.Narrative,
		}
	}
	weekly := make([]reportWeekly, len(res.Weekly))
	for i, w := range res.Weekly {
		weekly[i] = reportWeekly{
			WeekOf:     w.WeekOf,
			TotalHours: w.TotalHours,
			Categories: formatCategories(w.TopCategories),
			Activities: formatActivities(w.TopActivities),
			Narrative:  w.Narrative,
		}
	}

	data := struct {
		GeneratedAt string
		Daily       []reportDaily
		Weekly      []reportWeekly
		Missed      []MissedReport
		Tasks       []TaskDayRow
		Warnings    []string
	}{
		GeneratedAt: time.Now().Format("2006-01-02 15:04"),
		Daily:       daily,
		Weekly:      weekly,
		Missed:      res.Missed,
		Tasks:       res.TaskHistory,
		Warnings:    res.Warnings,
	}

	f, err := os.Create(p.cfg.ReportPath())
	if err != nil {
		return fmt.Errorf("analytics: create report: %w", err)
	}
	defer f.Close()
	if err := reportTemplate.Execute(f, data); err != nil {
		return fmt.Errorf("analytics: render report: %w", err)
	}
	return nil
}
