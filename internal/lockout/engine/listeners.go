package engine

import (
	"context"
	"net/mail"
	"net/url"

	"lockgate/internal/lockout/events"
	"lockgate/internal/lockout/models"
	"lockgate/internal/lockout/notify"
	requesttime "lockgate/pkg/platform/middleware/requesttime"
)

const reasonTooManyAttempts = "too_many_attempts"

// RegisterDefaultListeners wires the standard EntityLocked reaction chain
// onto the dispatcher, in order: persist the lock, then notify. Each handler
// runs inside the dispatcher's failure boundary, so a notification failure
// never loses the lock record.
func (e *Engine) RegisterDefaultListeners() {
	e.dispatcher.OnLocked(e.MarkSubjectLocked)
	e.dispatcher.OnLocked(e.SendLockedNotification)
}

// MarkSubjectLocked turns a threshold-crossing event into a persistent lock
// record. An identifier that resolves to no subject is a no-op: the counter
// alone throttles identifiers that match nothing. A subject that already has
// an active lock is not locked again.
func (e *Engine) MarkSubjectLocked(ctx context.Context, event events.EntityLocked) error {
	if e.resolver == nil {
		return nil
	}
	subject, err := e.resolver.Resolve(ctx, event.Identifier)
	if err != nil {
		e.logger.Warn("failed to resolve subject for lock",
			"identifier", event.Identifier,
			"error", err,
		)
		return nil
	}
	if subject == nil {
		return nil
	}
	if e.HasActiveLock(ctx, subject) {
		return nil
	}

	reason := reasonTooManyAttempts
	opts := models.LockOptions{
		Reason: &reason,
		Meta: map[string]any{
			"identifier": event.Identifier,
		},
	}
	if event.Context.IP != "" {
		opts.Meta["ip"] = event.Context.IP
	}
	if event.Context.Fingerprint != "" {
		opts.Meta["fingerprint"] = event.Context.Fingerprint
	}
	if e.config.AutoUnlock > 0 {
		expiresAt := requesttime.Now(ctx).Add(e.config.AutoUnlock)
		opts.ExpiresAt = &expiresAt
	}

	e.Lock(ctx, subject, opts)
	return nil
}

// SendLockedNotification mails the locked-out identifier a signed unlock
// link. It only fires for identifiers that parse as email addresses and only
// when unlock-via-notification is enabled.
func (e *Engine) SendLockedNotification(ctx context.Context, event events.EntityLocked) error {
	if !e.config.UnlockViaNotification || e.notifier == nil || e.signer == nil {
		return nil
	}
	if _, err := mail.ParseAddress(event.Identifier); err != nil {
		return nil
	}

	actionURL, err := e.signer.Issue("unlock", url.Values{
		"identifier": {event.Identifier},
	}, e.config.UnlockLinkTTL)
	if err != nil {
		return err
	}

	notification := notify.Notification{
		Kind:         notify.KindAccountLocked,
		Identifier:   event.Identifier,
		LockDuration: e.config.AutoUnlock,
		ActionURL:    actionURL,
		Channels:     e.config.NotificationChannels,
	}
	if err := e.notifier.Send(ctx, notification); err != nil {
		return err
	}
	e.recordNotificationSent()
	return nil
}

// sendLoginNotification tells the subject a login happened and hands them a
// signed lock link in case it was not them. Failures are logged, not
// returned; the login itself already succeeded.
func (e *Engine) sendLoginNotification(ctx context.Context, subject models.Subject) {
	if e.notifier == nil || e.signer == nil {
		return
	}
	identifier := subject.LockIdentifier()
	if _, err := mail.ParseAddress(identifier); err != nil {
		return
	}

	actionURL, err := e.signer.Issue("lock", url.Values{
		"identifier": {identifier},
	}, e.config.LockLinkTTL)
	if err != nil {
		e.logger.Warn("failed to mint lock link",
			"identifier", identifier,
			"error", err,
		)
		return
	}

	notification := notify.Notification{
		Kind:       notify.KindAccountLogged,
		Identifier: identifier,
		ActionURL:  actionURL,
		Channels:   e.config.NotificationChannels,
	}
	if err := e.notifier.Send(ctx, notification); err != nil {
		e.logger.Warn("failed to send login notification",
			"identifier", identifier,
			"error", err,
		)
		return
	}
	e.recordNotificationSent()
}

func (e *Engine) recordNotificationSent() {
	if e.metrics == nil {
		return
	}
	for _, channel := range e.config.NotificationChannels {
		e.metrics.NotificationsSent.WithLabelValues(channel).Inc()
	}
}
