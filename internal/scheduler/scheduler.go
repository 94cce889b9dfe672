// Package scheduler decides, once per tick, whether to interrupt the user.
//
// The decision itself is a pure function (Decide, ReflectionDue) over the
// persisted SchedulerState, so it can be tested against literal clock
// values. The Scheduler type wraps it in a ticker loop that invokes the
// blocking UI callbacks and guarantees the Prompting guard is released on
// every exit path.
package scheduler

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vthunder/hourglass/internal/config"
	"github.com/vthunder/hourglass/internal/logging"
	"github.com/vthunder/hourglass/internal/state"
)

// Mode is the observable scheduler mode. Informational only: the
// authoritative suppression logic lives in the state timestamps.
type Mode string

const (
	ModeRunning   Mode = "running"
	ModeSnoozed   Mode = "snoozed"
	ModePaused    Mode = "paused"
	ModePrompting Mode = "prompting"
)

// ActionType identifies what a tick decided to do.
type ActionType string

const (
	ActionNone    ActionType = "none"
	ActionPrompt  ActionType = "prompt"
	ActionCatchUp ActionType = "catch_up"
)

// Action is the result of one tick's decision.
type Action struct {
	Type        ActionType
	HoursMissed int // only set for ActionCatchUp
}

func interval(cfg config.Config) time.Duration {
	m := cfg.IntervalMinutes
	if m < 1 {
		m = 1
	}
	return time.Duration(m) * time.Minute
}

func hoursBetween(start, end time.Time) float64 {
	h := end.Sub(start).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// Decide is the pure per-tick decision function.
//
// Pause beats snooze beats everything else. A scheduler that has never
// prompted prompts immediately. Past one interval, a large enough gap
// becomes a catch-up unless a catch-up was already handled within the
// last interval, in which case it downgrades to a plain prompt so the
// user is not dragged through catch-up twice in a row.
func Decide(st state.SchedulerState, cfg config.Config, now time.Time) Action {
	iv := interval(cfg)

	if !st.PausedUntil.IsZero() && now.Before(st.PausedUntil) {
		return Action{Type: ActionNone}
	}
	if !st.SnoozedUntil.IsZero() && now.Before(st.SnoozedUntil) {
		return Action{Type: ActionNone}
	}
	if st.LastPromptAt.IsZero() {
		return Action{Type: ActionPrompt}
	}

	elapsed := now.Sub(st.LastPromptAt)
	if elapsed < iv {
		return Action{Type: ActionNone}
	}

	// Detect larger gaps as missed intervals (sleep/lock/reboot).
	hoursElapsed := hoursBetween(st.LastPromptAt, now)
	intervalHours := cfg.IntervalHours()
	missedIntervals := int(math.Floor(hoursElapsed/intervalHours)) - 1
	hoursMissed := int(math.Floor(hoursElapsed))

	shouldCatchUp := missedIntervals >= 1 || hoursElapsed >= intervalHours*1.75
	if shouldCatchUp {
		if !st.LastResumeAt.IsZero() && now.Sub(st.LastResumeAt) < iv {
			// Already handled a resume recently; prompt normally instead.
			return Action{Type: ActionPrompt}
		}
		if hoursMissed < 1 {
			hoursMissed = 1
		}
		if hoursMissed > cfg.CatchUpMaxHours {
			hoursMissed = cfg.CatchUpMaxHours
		}
		return Action{Type: ActionCatchUp, HoursMissed: hoursMissed}
	}

	return Action{Type: ActionPrompt}
}

// reflectionTarget parses "HH:MM"; falls back to 23:30 on any problem.
func reflectionTarget(cfg config.Config) (hour, minute int) {
	parts := strings.SplitN(cfg.ReflectionTimeLocal, ":", 2)
	if len(parts) != 2 {
		return 23, 30
	}
	h, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	m, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 23, 30
	}
	return h, m
}

// ReflectionDue reports which day's reflection is due at now, if any.
// Catch-up reaches back a single day: a machine left off for a week gets
// yesterday's reflection, not seven.
func ReflectionDue(st state.SchedulerState, cfg config.Config, now time.Time) (time.Time, bool) {
	if !cfg.ReflectionEnabled {
		return time.Time{}, false
	}

	hour, minute := reflectionTarget(cfg)
	todayTarget := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	yesterdayTarget := todayTarget.AddDate(0, 0, -1)
	lastDone := state.ParseDay(st.LastReflectionDate)

	// Normal case: today, time has passed, and not done today.
	if !now.Before(todayTarget) && st.LastReflectionDate != state.DayString(now) {
		return todayTarget, true
	}

	// Catch-up: missed yesterday (or earlier) and time has passed.
	if !now.Before(yesterdayTarget) && (lastDone.IsZero() || lastDone.Before(dayOf(yesterdayTarget))) {
		return yesterdayTarget, true
	}

	return time.Time{}, false
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Callbacks are the blocking UI entry points the loop drives. Each call
// owns the interactive session for its duration; the loop will not fire
// another until it returns.
type Callbacks struct {
	OnPrompt     func()
	OnCatchUp    func(hoursMissed int)
	OnReflection func(day time.Time)
}

// Scheduler drives the decision function on a fixed tick.
type Scheduler struct {
	cfg       config.Config
	store     *state.Store
	callbacks Callbacks
	tickRate  time.Duration

	mu    sync.Mutex
	st    state.SchedulerState
	mode  Mode
	clock func() time.Time

	stopChan chan struct{}
	done     chan struct{}
}

// New creates a scheduler with persisted state loaded from the store.
func New(cfg config.Config, store *state.Store, callbacks Callbacks) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		store:     store,
		callbacks: callbacks,
		tickRate:  5 * time.Second,
		st:        store.Load(),
		mode:      ModeRunning,
		clock:     time.Now,
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Mode returns the current observable mode.
func (s *Scheduler) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// State returns a copy of the current state.
func (s *Scheduler) State() state.SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

func (s *Scheduler) setMode(mode Mode) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
}

// Start begins the tick loop.
func (s *Scheduler) Start() {
	go s.loop()
	logging.Info("scheduler", "Started (interval %dm, tick %s)", s.cfg.IntervalMinutes, s.tickRate)
}

// Stop halts the tick loop and waits for it to exit.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	<-s.done
}

func (s *Scheduler) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.tickRate)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	now := s.clock()
	action := Decide(s.State(), s.cfg, now)

	switch action.Type {
	case ActionPrompt:
		if s.callbacks.OnPrompt != nil {
			s.prompting(func() { s.callbacks.OnPrompt() })
		}
	case ActionCatchUp:
		if s.callbacks.OnCatchUp != nil {
			s.prompting(func() { s.callbacks.OnCatchUp(action.HoursMissed) })
		}
	}

	// Reflection runs on the same tick, but never while a prompt or
	// catch-up dialog from this tick is still the reason we're Prompting.
	if s.callbacks.OnReflection != nil && s.Mode() != ModePrompting {
		if day, due := ReflectionDue(s.State(), s.cfg, now); due {
			s.prompting(func() { s.callbacks.OnReflection(day) })
		}
	}
}

// prompting runs fn under the Prompting guard. The mode is restored on
// every exit path, including a panicking callback: a broken dialog must
// not wedge the scheduler.
func (s *Scheduler) prompting(fn func()) {
	if s.Mode() == ModePrompting {
		return
	}
	s.setMode(ModePrompting)
	defer s.setMode(ModeRunning)
	defer func() {
		if r := recover(); r != nil {
			logging.Info("scheduler", "Callback panic recovered: %v", r)
		}
	}()
	fn()
}

// persist saves the full state write-through. Failures propagate: losing
// state silently would corrupt future catch-up decisions.
func (s *Scheduler) persist() error {
	s.mu.Lock()
	st := s.st
	s.mu.Unlock()
	return s.store.Save(st)
}

// MarkPrompted records that a prompt was presented at when. A presented
// prompt counts as handling any pending snooze.
func (s *Scheduler) MarkPrompted(when time.Time) error {
	s.mu.Lock()
	s.st.LastPromptAt = when
	s.st.SnoozedUntil = time.Time{}
	s.mu.Unlock()
	return s.persist()
}

// MarkEntry records that a check-in was persisted at when.
func (s *Scheduler) MarkEntry(when time.Time) error {
	s.mu.Lock()
	s.st.LastEntryAt = when
	s.mu.Unlock()
	return s.persist()
}

// MarkResumeHandled records that a catch-up flow was acknowledged at when.
func (s *Scheduler) MarkResumeHandled(when time.Time) error {
	s.mu.Lock()
	s.st.LastResumeAt = when
	s.mu.Unlock()
	return s.persist()
}

// MarkReflectionCompleted records the day whose reflection was completed.
func (s *Scheduler) MarkReflectionCompleted(day time.Time) error {
	s.mu.Lock()
	s.st.LastReflectionDate = state.DayString(day)
	s.mu.Unlock()
	return s.persist()
}

// Snooze suppresses prompting for the given number of minutes.
func (s *Scheduler) Snooze(minutes int) error {
	if minutes <= 0 {
		minutes = s.cfg.SnoozeMinutes
	}
	s.mu.Lock()
	state.ApplySnooze(&s.st, minutes, s.clock())
	s.mode = ModeSnoozed
	s.mu.Unlock()
	return s.persist()
}

// Pause suppresses prompting for the given number of minutes and cancels
// any pending snooze.
func (s *Scheduler) Pause(minutes int) error {
	if minutes <= 0 {
		minutes = s.cfg.PauseMinutes
	}
	s.mu.Lock()
	state.ApplyPause(&s.st, minutes, s.clock())
	s.mode = ModePaused
	s.mu.Unlock()
	return s.persist()
}

// Resume clears both suppression windows.
func (s *Scheduler) Resume() error {
	s.mu.Lock()
	s.st.SnoozedUntil = time.Time{}
	s.st.PausedUntil = time.Time{}
	s.mode = ModeRunning
	s.mu.Unlock()
	return s.persist()
}
