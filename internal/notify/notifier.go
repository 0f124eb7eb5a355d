// Package notify arms computed reminder times as one-shot jobs and
// delivers them through a Notifier.
package notify

import (
	"context"
	"time"

	"github.com/kimhsiao/glimm/backend/internal/logging"
)

// Reminder is a single delivered prompt.
type Reminder struct {
	At    time.Time
	Title string
	Body  string
}

// Notifier delivers reminders to the user.
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// PermissionFunc reports whether the user allows reminders.
type PermissionFunc func(ctx context.Context) bool

// AlwaysGranted is the permission check for surfaces with no
// authorization flow.
func AlwaysGranted(context.Context) bool { return true }

// LogNotifier writes reminders to the structured log.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a LogNotifier; nil means the global logger.
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, r Reminder) error {
	logger := n.logger
	if logger == nil {
		logger = logging.Get()
	}
	logger.Info(r.Body, logging.Fields{
		"title":        r.Title,
		"scheduled_at": r.At.Format(time.RFC3339),
	})
	return nil
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, r Reminder) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, r Reminder) error {
	return f(ctx, r)
}
