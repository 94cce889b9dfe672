// Package dialog defines the contract with the interactive UI. The core
// blocks on Present* calls and receives a typed result or Dismissed; how
// the form is actually drawn is the implementation's business.
package dialog

// PromptForm is what a regular check-in dialog shows.
type PromptForm struct {
	Categories        []string
	SuggestedCategory string
	OpenTasks         []TaskOption
}

// TaskOption is one selectable open task in the prompt form.
type TaskOption struct {
	ID    string
	Title string
}

// PromptResult is a submitted check-in.
type PromptResult struct {
	Activity string
	Notes    string
	Category string
	Energy   int
	Focus    int

	// QuickDriving is the one-keystroke "I'm in class/driving" answer:
	// the check-in is recorded with stock values and no further questions.
	QuickDriving bool

	// Optional task bookkeeping captured in the same form.
	WorkedTaskID  string
	WorkedMinutes int
	CompletedTask bool
	NewTasks      []string
}

// CatchUpForm asks the user to account for a gap.
type CatchUpForm struct {
	Hours       int
	Categories  []string
	AfterReboot bool // the gap spans a machine reboot
}

// CatchUpResult is a submitted catch-up. SplitEntries=true backfills one
// entry per interval across the gap; false records a single spanning
// entry.
type CatchUpResult struct {
	Activity     string
	Notes        string
	Category     string
	Hours        int
	SplitEntries bool
}

// ReflectionForm asks for the end-of-day reflection for Day.
type ReflectionForm struct {
	Day string // "2006-01-02"
}

// ReflectionResult is a submitted reflection.
type ReflectionResult struct {
	WentWell    string
	Challenging string
	Tomorrow    string
}

// TaskDetail is one task row shown in the task manager.
type TaskDetail struct {
	ID           string
	Title        string
	Status       string
	Notes        string
	TotalMinutes int
}

// TaskManagerForm lists the tasks open for editing.
type TaskManagerForm struct {
	Tasks []TaskDetail
}

// TaskEdit is one requested change; nil fields stay untouched.
type TaskEdit struct {
	ID       string
	Title    *string
	Notes    *string
	Complete bool
}

// TaskManagerResult is the set of edits the user made.
type TaskManagerResult struct {
	Edits    []TaskEdit
	NewTasks []string
}

// Presenter shows modal forms. Each call blocks until the user submits
// or dismisses; the bool result is false when dismissed. Implementations
// may panic on UI-toolkit failure; callers guard for that.
type Presenter interface {
	PresentPrompt(form PromptForm) (PromptResult, bool)
	PresentCatchUp(form CatchUpForm) (CatchUpResult, bool)
	PresentReflection(form ReflectionForm) (ReflectionResult, bool)
	PresentTaskManager(form TaskManagerForm) (TaskManagerResult, bool)
}
