// Package notify delivers fire-and-forget user notifications. Failures
// are swallowed: a missed toast must never break a check-in.
package notify

import "github.com/vthunder/hourglass/internal/logging"

// Notifier shows a short notification to the user.
type Notifier interface {
	Notify(title, message string)
}

// LogNotifier writes notifications to the log. It is the default when no
// desktop integration is wired in.
type LogNotifier struct{}

func (LogNotifier) Notify(title, message string) {
	logging.Info("notify", "%s: %s", title, message)
}
