// Package notify defines the notification contract. Rendering and delivery
// engines (mail, SMS, push) are external collaborators; this package only
// carries the payload to them.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Kind distinguishes the notification templates.
type Kind string

const (
	// KindAccountLocked carries a signed unlock link after a lockout.
	KindAccountLocked Kind = "account_locked"
	// KindAccountLogged carries a signed lock link after a successful login.
	KindAccountLogged Kind = "account_logged"
)

// Notification is the payload handed to the delivery engine.
type Notification struct {
	Kind         Kind
	Identifier   string
	LockDuration time.Duration
	ActionURL    string
	Channels     []string
}

// Notifier delivers notifications. Implementations must be safe for
// concurrent use; callers treat Send failures as best-effort.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the structured log. It is the default
// sink for deployments without a delivery engine wired, and doubles as the
// test double.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, notification Notification) error {
	n.logger.InfoContext(ctx, "notification dispatched",
		"kind", string(notification.Kind),
		"identifier", notification.Identifier,
		"channels", notification.Channels,
		"lock_duration_minutes", int(notification.LockDuration.Minutes()),
	)
	return nil
}
