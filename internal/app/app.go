// Package app wires the scheduler's events to the dialog, the record
// store, the category suggester and the analytics pipeline.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vthunder/hourglass/internal/analytics"
	"github.com/vthunder/hourglass/internal/config"
	"github.com/vthunder/hourglass/internal/dialog"
	"github.com/vthunder/hourglass/internal/logging"
	"github.com/vthunder/hourglass/internal/notify"
	"github.com/vthunder/hourglass/internal/ollama"
	"github.com/vthunder/hourglass/internal/scheduler"
	"github.com/vthunder/hourglass/internal/state"
	"github.com/vthunder/hourglass/internal/sysinfo"
	"github.com/vthunder/hourglass/internal/tagging"
	"github.com/vthunder/hourglass/internal/timelog"
)

// App handles the scheduler's prompt, catch-up and reflection events.
type App struct {
	cfg       config.Config
	store     *timelog.Store
	presenter dialog.Presenter
	notifier  notify.Notifier
	suggester *tagging.Suggester
	pipeline  *analytics.Pipeline
	events    *logging.EventLog
	llm       *ollama.Client // nil when the LLM is disabled or absent

	sched *scheduler.Scheduler

	refreshMu sync.Mutex
}

// New builds the app. Attach the scheduler afterwards with
// AttachScheduler; the scheduler needs the app's handlers as callbacks,
// so the two are created in sequence.
func New(cfg config.Config, store *timelog.Store, presenter dialog.Presenter,
	notifier notify.Notifier, suggester *tagging.Suggester,
	pipeline *analytics.Pipeline, events *logging.EventLog, llm *ollama.Client) *App {
	return &App{
		cfg:       cfg,
		store:     store,
		presenter: presenter,
		notifier:  notifier,
		suggester: suggester,
		pipeline:  pipeline,
		events:    events,
		llm:       llm,
	}
}

func (a *App) AttachScheduler(s *scheduler.Scheduler) { a.sched = s }

// Callbacks returns the scheduler callback set bound to this app.
func (a *App) Callbacks() scheduler.Callbacks {
	return scheduler.Callbacks{
		OnPrompt:     a.HandlePrompt,
		OnCatchUp:    a.HandleCatchUp,
		OnReflection: a.HandleReflection,
	}
}

// categories reads the category list, degrading to the defaults when the
// workbook is unavailable.
func (a *App) categories() []string {
	cats, err := a.store.ReadCategories()
	if err != nil {
		logging.Info("app", "categories unavailable, using defaults: %v", err)
		return timelog.DefaultCategories
	}
	return cats
}

func (a *App) openTasks() []dialog.TaskOption {
	tasks, err := a.store.ReadTasks("open")
	if err != nil {
		logging.Info("app", "open tasks unavailable: %v", err)
		return nil
	}
	opts := make([]dialog.TaskOption, len(tasks))
	for i, t := range tasks {
		opts[i] = dialog.TaskOption{ID: t.ID, Title: t.Title}
	}
	return opts
}

// resolveCategory fills in a category the user left blank: learned and
// built-in rules first, then the LLM, then "Other".
func (a *App) resolveCategory(activity, notes, chosen string, categories []string) string {
	if strings.TrimSpace(chosen) != "" {
		return chosen
	}
	if sug := a.suggester.Suggest(activity, notes); sug != nil {
		return sug.Category
	}
	if a.llm != nil {
		ctx, cancel := context.WithTimeout(context.Background(),
			time.Duration(a.cfg.LLMTimeoutSeconds)*time.Second)
		defer cancel()
		if cat, err := a.llm.ClassifyCategory(ctx, activity, notes, categories); err == nil && cat != "" {
			return cat
		}
	}
	return "Other"
}

// HandlePrompt runs one scheduled check-in.
func (a *App) HandlePrompt() {
	a.notifier.Notify("Time check-in", "What are you working on?")
	a.runPrompt(timelog.PromptRegular)
}

// ManualCheckIn runs a user-triggered "log now" check-in. It does not
// touch the snooze window: dismissing a prompt the user asked for is not
// a request to back off.
func (a *App) ManualCheckIn() {
	a.runPrompt(timelog.PromptManual)
}

func (a *App) runPrompt(kind timelog.PromptType) {
	cats := a.categories()
	form := dialog.PromptForm{
		Categories: cats,
		OpenTasks:  a.openTasks(),
	}
	res, ok := a.presenter.PresentPrompt(form)

	now := time.Now()
	if err := a.sched.MarkPrompted(now); err != nil {
		logging.Info("app", "persist prompt time: %v", err)
	}

	if !ok {
		if kind == timelog.PromptRegular {
			// A dismissed dialog means "not now": back off briefly instead
			// of re-prompting on the next tick.
			if err := a.sched.Snooze(a.cfg.DismissSnoozeMinutes); err != nil {
				logging.Info("app", "snooze after dismiss: %v", err)
			}
			a.events.Event("prompt dismissed, snoozing %dm", a.cfg.DismissSnoozeMinutes)
		}
		return
	}

	category := ""
	if res.QuickDriving {
		kind = timelog.PromptDriving
		category = "Other"
	} else {
		category = a.resolveCategory(res.Activity, res.Notes, res.Category, cats)
	}
	entry := timelog.NewEntry(now, res.Activity, res.Notes, category, res.Energy, res.Focus, kind)
	if err := a.store.AppendEntry(entry); err != nil {
		logging.Info("app", "append entry: %v", err)
		a.events.Event("check-in lost: %v", err)
		return
	}
	if err := a.sched.MarkEntry(now); err != nil {
		logging.Info("app", "persist entry time: %v", err)
	}
	if !res.QuickDriving {
		if err := a.suggester.Learn(res.Activity, res.Notes, category); err != nil {
			logging.Info("app", "learn category: %v", err)
		}
	}
	a.recordTaskWork(res, now)
	a.events.Event("check-in: %s [%s]", logging.Truncate(res.Activity, 60), category)
	a.RefreshReports()
}

func (a *App) recordTaskWork(res dialog.PromptResult, now time.Time) {
	if len(res.NewTasks) > 0 {
		if _, err := a.store.AddTasks(res.NewTasks); err != nil {
			logging.Info("app", "add tasks: %v", err)
		}
	}
	if res.WorkedTaskID == "" {
		return
	}
	ev := timelog.TaskEvent{
		TaskID:  res.WorkedTaskID,
		Action:  "worked",
		Minutes: res.WorkedMinutes,
	}
	if err := a.store.LogTaskEvent(ev); err != nil {
		logging.Info("app", "log task work: %v", err)
		return
	}
	if res.CompletedTask {
		done := timelog.TaskEvent{TaskID: res.WorkedTaskID, Action: "completed"}
		if err := a.store.LogTaskEvent(done); err != nil {
			logging.Info("app", "log task completion: %v", err)
		}
	}
}

// HandleCatchUp runs the catch-up flow for a gap of hoursMissed hours.
func (a *App) HandleCatchUp(hoursMissed int) {
	a.notifier.Notify("Catch-up", fmt.Sprintf("%d hour(s) unaccounted for", hoursMissed))

	lastPrompt := a.sched.State().LastPromptAt
	form := dialog.CatchUpForm{
		Hours:       hoursMissed,
		Categories:  a.categories(),
		AfterReboot: sysinfo.RebootedSince(lastPrompt),
	}
	res, ok := a.presenter.PresentCatchUp(form)

	now := time.Now()
	if err := a.sched.MarkResumeHandled(now); err != nil {
		logging.Info("app", "persist resume time: %v", err)
	}
	if err := a.sched.MarkPrompted(now); err != nil {
		logging.Info("app", "persist prompt time: %v", err)
	}

	if !ok {
		if err := a.sched.Snooze(a.cfg.DismissSnoozeMinutes); err != nil {
			logging.Info("app", "snooze after dismiss: %v", err)
		}
		a.events.Event("catch-up dismissed, snoozing %dm", a.cfg.DismissSnoozeMinutes)
		return
	}

	category := a.resolveCategory(res.Activity, res.Notes, res.Category, form.Categories)
	for _, entry := range backfillEntries(res, category, now, a.cfg.IntervalHours()) {
		if err := a.store.AppendEntry(entry); err != nil {
			logging.Info("app", "append catch-up entry: %v", err)
			a.events.Event("catch-up entry lost: %v", err)
			return
		}
	}
	if err := a.sched.MarkEntry(now); err != nil {
		logging.Info("app", "persist entry time: %v", err)
	}
	if err := a.suggester.Learn(res.Activity, res.Notes, category); err != nil {
		logging.Info("app", "learn category: %v", err)
	}
	a.events.Event("catch-up filled: %dh of %s [%s]", res.Hours, logging.Truncate(res.Activity, 60), category)
	a.RefreshReports()
}

// backfillEntries turns one catch-up answer into stored rows: either one
// entry per interval across the gap, or a single entry spanning it.
func backfillEntries(res dialog.CatchUpResult, category string, now time.Time, intervalHours float64) []timelog.Entry {
	hours := res.Hours
	if hours < 1 {
		hours = 1
	}

	if !res.SplitEntries {
		e := timelog.NewEntry(now, res.Activity, res.Notes, category, 3, 3, timelog.PromptCatchUp)
		return []timelog.Entry{e.WithSpan(now.Add(-time.Duration(hours)*time.Hour), now)}
	}

	interval := time.Duration(intervalHours * float64(time.Hour))
	n := int(float64(hours) / intervalHours)
	if n < 1 {
		n = 1
	}
	entries := make([]timelog.Entry, 0, n)
	for i := 0; i < n; i++ {
		ts := now.Add(-time.Duration(n-1-i) * interval)
		entries = append(entries, timelog.NewEntry(ts, res.Activity, res.Notes, category, 3, 3, timelog.PromptCatchUp))
	}
	return entries
}

// HandleReflection runs the end-of-day reflection for day. The answers
// land in a dated markdown file; the workbook only indexes it.
func (a *App) HandleReflection(day time.Time) {
	dayStr := state.DayString(day)
	a.notifier.Notify("Daily reflection", "A few minutes to close out "+dayStr)

	res, ok := a.presenter.PresentReflection(dialog.ReflectionForm{Day: dayStr})
	if !ok {
		a.events.Event("reflection for %s dismissed", dayStr)
		return
	}

	path, err := a.saveReflection(dayStr, res)
	if err != nil {
		logging.Info("app", "save reflection: %v", err)
		return
	}
	if err := a.store.AppendReflectionIndex(dayStr, path, time.Now().Format("2006-01-02T15:04:05")); err != nil {
		logging.Info("app", "index reflection: %v", err)
	}
	if err := a.sched.MarkReflectionCompleted(day); err != nil {
		logging.Info("app", "persist reflection date: %v", err)
	}
	a.events.Event("reflection saved for %s", dayStr)
}

func (a *App) saveReflection(day string, res dialog.ReflectionResult) (string, error) {
	dir := a.cfg.ReflectionsDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Reflection for %s\n\n", day)
	fmt.Fprintf(&sb, "## What went well\n\n%s\n\n", res.WentWell)
	fmt.Fprintf(&sb, "## What was challenging\n\n%s\n\n", res.Challenging)
	fmt.Fprintf(&sb, "## Focus for tomorrow\n\n%s\n", res.Tomorrow)

	path := filepath.Join(dir, day+".md")
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// ManageTasks runs the task-manager dialog and applies the edits. It is
// user-triggered (not scheduled), so callers invoke it directly.
func (a *App) ManageTasks() {
	tasks, err := a.store.ReadTasks("open")
	if err != nil {
		logging.Info("app", "tasks unavailable: %v", err)
		return
	}
	details := make([]dialog.TaskDetail, len(tasks))
	for i, t := range tasks {
		details[i] = dialog.TaskDetail{
			ID: t.ID, Title: t.Title, Status: t.Status,
			Notes: t.Notes, TotalMinutes: t.TotalMinutes,
		}
	}

	res, ok := a.presenter.PresentTaskManager(dialog.TaskManagerForm{Tasks: details})
	if !ok {
		return
	}
	for _, edit := range res.Edits {
		if edit.Title != nil || edit.Notes != nil {
			if err := a.store.UpdateTaskFields(edit.ID, edit.Title, edit.Notes); err != nil {
				logging.Info("app", "update task %s: %v", edit.ID, err)
			}
		}
		if edit.Complete {
			done := timelog.TaskEvent{TaskID: edit.ID, Action: "completed"}
			if err := a.store.LogTaskEvent(done); err != nil {
				logging.Info("app", "complete task %s: %v", edit.ID, err)
			}
		}
	}
	if len(res.NewTasks) > 0 {
		if _, err := a.store.AddTasks(res.NewTasks); err != nil {
			logging.Info("app", "add tasks: %v", err)
		}
	}
	a.events.Event("task manager: %d edits, %d new", len(res.Edits), len(res.NewTasks))
	a.RefreshReports()
}

// RefreshReports reruns the analytics pipeline in the background. Runs
// are serialized; a second request during a run simply queues behind it.
func (a *App) RefreshReports() {
	if a.pipeline == nil {
		return
	}
	go func() {
		a.refreshMu.Lock()
		defer a.refreshMu.Unlock()
		if _, err := a.pipeline.Run(); err != nil {
			logging.Info("app", "report refresh: %v", err)
		}
	}()
}

// RefreshReportsSync is RefreshReports without the goroutine, for
// startup and shutdown paths that want the report current before
// proceeding.
func (a *App) RefreshReportsSync() {
	if a.pipeline == nil {
		return
	}
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()
	if _, err := a.pipeline.Run(); err != nil {
		logging.Info("app", "report refresh: %v", err)
	}
}
