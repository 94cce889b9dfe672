package dialog

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ConsolePresenter runs the forms as terminal prompts. An empty activity
// line counts as a dismissal, mirroring closing a dialog window.
type ConsolePresenter struct {
	in  *bufio.Scanner
	out io.Writer
}

func NewConsolePresenter(in io.Reader, out io.Writer) *ConsolePresenter {
	return &ConsolePresenter{in: bufio.NewScanner(in), out: out}
}

func (p *ConsolePresenter) readLine(prompt string) string {
	fmt.Fprint(p.out, prompt)
	if !p.in.Scan() {
		return ""
	}
	return strings.TrimSpace(p.in.Text())
}

func (p *ConsolePresenter) readScale(prompt string, def int) int {
	s := p.readLine(prompt)
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 5 {
		return def
	}
	return n
}

func (p *ConsolePresenter) PresentPrompt(form PromptForm) (PromptResult, bool) {
	fmt.Fprintln(p.out, "\n--- Check-in ---")
	activity := p.readLine("What are you doing? (empty to dismiss, ! if driving/in class) ")
	if activity == "" {
		return PromptResult{}, false
	}
	if activity == "!" {
		return PromptResult{
			Activity:     "Driving / in class",
			Energy:       3,
			Focus:        3,
			QuickDriving: true,
		}, true
	}

	hint := ""
	if form.SuggestedCategory != "" {
		hint = fmt.Sprintf(" [suggested: %s]", form.SuggestedCategory)
	}
	category := p.readLine(fmt.Sprintf("Category (%s)%s: ", strings.Join(form.Categories, "/"), hint))
	if category == "" {
		category = form.SuggestedCategory
	}

	res := PromptResult{
		Activity: activity,
		Category: category,
		Notes:    p.readLine("Notes (optional): "),
		Energy:   p.readScale("Energy 1-5 [3]: ", 3),
		Focus:    p.readScale("Focus 1-5 [3]: ", 3),
	}

	if len(form.OpenTasks) > 0 {
		fmt.Fprintln(p.out, "Open tasks:")
		for i, t := range form.OpenTasks {
			fmt.Fprintf(p.out, "  %d. %s\n", i+1, t.Title)
		}
		if pick := p.readLine("Worked on a task? (number or empty): "); pick != "" {
			if idx, err := strconv.Atoi(pick); err == nil && idx >= 1 && idx <= len(form.OpenTasks) {
				res.WorkedTaskID = form.OpenTasks[idx-1].ID
				if mins, err := strconv.Atoi(p.readLine("Minutes spent: ")); err == nil && mins > 0 {
					res.WorkedMinutes = mins
				}
				res.CompletedTask = strings.EqualFold(p.readLine("Completed it? (y/N): "), "y")
			}
		}
	}
	if titles := p.readLine("New tasks (comma-separated, optional): "); titles != "" {
		for _, t := range strings.Split(titles, ",") {
			if t = strings.TrimSpace(t); t != "" {
				res.NewTasks = append(res.NewTasks, t)
			}
		}
	}
	return res, true
}

func (p *ConsolePresenter) PresentCatchUp(form CatchUpForm) (CatchUpResult, bool) {
	fmt.Fprintf(p.out, "\n--- Catch-up: %d hour(s) unaccounted ---\n", form.Hours)
	if form.AfterReboot {
		fmt.Fprintln(p.out, "(the machine rebooted during this gap)")
	}
	activity := p.readLine("What were you doing? (empty to dismiss) ")
	if activity == "" {
		return CatchUpResult{}, false
	}
	res := CatchUpResult{
		Activity: activity,
		Category: p.readLine(fmt.Sprintf("Category (%s): ", strings.Join(form.Categories, "/"))),
		Notes:    p.readLine("Notes (optional): "),
		Hours:    form.Hours,
	}
	res.SplitEntries = strings.EqualFold(p.readLine("Split into hourly entries? (y/N): "), "y")
	return res, true
}

func (p *ConsolePresenter) PresentTaskManager(form TaskManagerForm) (TaskManagerResult, bool) {
	fmt.Fprintln(p.out, "\n--- Tasks ---")
	if len(form.Tasks) == 0 {
		fmt.Fprintln(p.out, "(no open tasks)")
	}
	for i, t := range form.Tasks {
		fmt.Fprintf(p.out, "  %d. [%s] %s (%dm logged)\n", i+1, t.Status, t.Title, t.TotalMinutes)
	}

	var res TaskManagerResult
	for {
		pick := p.readLine("Edit task number, or empty to finish: ")
		if pick == "" {
			break
		}
		idx, err := strconv.Atoi(pick)
		if err != nil || idx < 1 || idx > len(form.Tasks) {
			continue
		}
		task := form.Tasks[idx-1]
		edit := TaskEdit{ID: task.ID}
		if title := p.readLine(fmt.Sprintf("New title [%s]: ", task.Title)); title != "" {
			edit.Title = &title
		}
		if notes := p.readLine("New notes (empty keeps current): "); notes != "" {
			edit.Notes = &notes
		}
		edit.Complete = strings.EqualFold(p.readLine("Mark completed? (y/N): "), "y")
		res.Edits = append(res.Edits, edit)
	}
	if titles := p.readLine("New tasks (comma-separated, optional): "); titles != "" {
		for _, t := range strings.Split(titles, ",") {
			if t = strings.TrimSpace(t); t != "" {
				res.NewTasks = append(res.NewTasks, t)
			}
		}
	}
	if len(res.Edits) == 0 && len(res.NewTasks) == 0 {
		return res, false
	}
	return res, true
}

func (p *ConsolePresenter) PresentReflection(form ReflectionForm) (ReflectionResult, bool) {
	fmt.Fprintf(p.out, "\n--- Daily reflection for %s ---\n", form.Day)
	wentWell := p.readLine("What went well? (empty to dismiss) ")
	if wentWell == "" {
		return ReflectionResult{}, false
	}
	return ReflectionResult{
		WentWell:    wentWell,
		Challenging: p.readLine("What was challenging? "),
		Tomorrow:    p.readLine("Focus for tomorrow? "),
	}, true
}
