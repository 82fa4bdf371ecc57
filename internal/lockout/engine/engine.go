// Package engine implements the lockout decision core: counting failed
// attempts, crossing the threshold exactly once, creating and releasing lock
// records, and emitting lifecycle events.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"lockgate/internal/lockout/config"
	"lockgate/internal/lockout/counter"
	"lockgate/internal/lockout/events"
	"lockgate/internal/lockout/metrics"
	"lockgate/internal/lockout/models"
	"lockgate/internal/lockout/notify"
	"lockgate/internal/platform/privacy"
	dErrors "lockgate/pkg/domain-errors"
	requesttime "lockgate/pkg/platform/middleware/requesttime"
)

// Engine coordinates attempt counting, lock persistence and event dispatch.
// Construct it once with its collaborators and share it; all methods are safe
// for concurrent use as long as the collaborators are.
type Engine struct {
	counter    counter.Counter
	store      Store
	resolver   Resolver
	dispatcher *events.Dispatcher
	notifier   notify.Notifier
	signer     URLSigner
	revoker    SessionRevoker
	config     *config.Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Engine)

func WithResolver(r Resolver) Option {
	return func(e *Engine) {
		e.resolver = r
	}
}

func WithDispatcher(d *events.Dispatcher) Option {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

func WithSigner(s URLSigner) Option {
	return func(e *Engine) {
		e.signer = s
	}
}

func WithSessionRevoker(r SessionRevoker) Option {
	return func(e *Engine) {
		e.revoker = r
	}
}

func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		e.config = cfg
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func New(attempts counter.Counter, store Store, opts ...Option) (*Engine, error) {
	if attempts == nil {
		return nil, fmt.Errorf("attempt counter is required")
	}
	if store == nil {
		return nil, fmt.Errorf("lock store is required")
	}

	e := &Engine{
		counter: attempts,
		store:   store,
		revoker: noopRevoker{},
		config:  config.DefaultConfig(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dispatcher == nil {
		e.dispatcher = events.NewDispatcher(e.logger)
	}
	return e, nil
}

// Dispatcher exposes the event dispatcher so callers can register handlers.
func (e *Engine) Dispatcher() *events.Dispatcher {
	return e.dispatcher
}

// RecordFailure records one failed login attempt for the identifier and
// reports whether the identifier is now blocked. The threshold-crossing
// attempt dispatches EntityLocked exactly once: attempts arriving while the
// identifier is already over the limit return true without side effects.
// Counter failures propagate to the caller; the attempt log append does not.
func (e *Engine) RecordFailure(ctx context.Context, identifier string, reqCtx models.RequestContext) (bool, error) {
	blocked, err := e.HasTooManyAttempts(ctx, identifier)
	if err != nil {
		return false, err
	}
	if blocked {
		return true, nil
	}

	count, err := e.counter.Increment(ctx, identifier)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to record attempt")
	}
	if e.metrics != nil {
		e.metrics.FailedAttempts.Inc()
	}

	e.appendAttemptLog(ctx, identifier, reqCtx)

	if count < e.config.MaxAttempts {
		return false, nil
	}

	e.logger.Info("attempt threshold crossed",
		"identifier", identifier,
		"ip", privacy.AnonymizeIP(reqCtx.IP),
	)
	e.dispatcher.DispatchLocked(ctx, events.EntityLocked{
		Identifier: identifier,
		Context:    reqCtx,
	})
	return true, nil
}

// Attempts returns the current attempt count for the identifier.
func (e *Engine) Attempts(ctx context.Context, identifier string) (int, error) {
	count, err := e.counter.Get(ctx, identifier)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read attempt count")
	}
	return count, nil
}

// HasTooManyAttempts reports whether the identifier's count has reached the
// configured maximum.
func (e *Engine) HasTooManyAttempts(ctx context.Context, identifier string) (bool, error) {
	count, err := e.Attempts(ctx, identifier)
	if err != nil {
		return false, err
	}
	return count >= e.config.MaxAttempts, nil
}

// ClearAttempts resets the identifier's counter. Callers treat failures as
// best-effort; the counter decays on its own.
func (e *Engine) ClearAttempts(ctx context.Context, identifier string) error {
	if err := e.counter.Clear(ctx, identifier); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to clear attempts")
	}
	return nil
}

// Lock creates a lock record for the subject. It returns nil when persistence
// fails; lock creation never surfaces an error to the login path.
func (e *Engine) Lock(ctx context.Context, subject models.Subject, opts models.LockOptions) *models.LockRecord {
	lock, err := e.store.CreateLock(ctx, subject.Ref(), opts)
	if err != nil {
		e.logger.Error("failed to create lock record",
			"subject", subject.Ref().String(),
			"error", err,
		)
		return nil
	}
	if e.metrics != nil {
		e.metrics.Lockouts.Inc()
	}
	e.logger.Info("subject locked",
		"subject", subject.Ref().String(),
		"expires_at", lock.ExpiresAt,
	)
	return lock
}

// Unlock releases the subject's most recent active lock. Every step after
// the persistence write is best-effort: a counter or event failure never
// undoes an unlock that was already saved. Returns nil when nothing was
// unlocked.
func (e *Engine) Unlock(ctx context.Context, subject models.Subject, opts models.UnlockOptions) *models.LockRecord {
	lock, err := e.store.FindActiveLock(ctx, subject.Ref())
	if err != nil {
		e.logger.Error("failed to look up active lock",
			"subject", subject.Ref().String(),
			"error", err,
		)
		return nil
	}
	if lock == nil {
		return nil
	}

	if opts.Reason != nil {
		lock.Reason = opts.Reason
	}
	lock.MergeMeta(opts.Meta)
	if opts.Actor != "" {
		lock.MergeMeta(map[string]any{"actor": opts.Actor})
	}
	now := requesttime.Now(ctx)
	lock.UnlockedAt = &now

	if err := e.store.MarkUnlocked(ctx, lock); err != nil {
		e.logger.Error("failed to persist unlock",
			"lock_id", lock.ID,
			"error", err,
		)
		return nil
	}
	if e.metrics != nil {
		e.metrics.Unlocks.WithLabelValues(unlockTrigger(opts)).Inc()
	}

	identifier := subject.LockIdentifier()
	if err := e.counter.Clear(ctx, identifier); err != nil {
		e.logger.Warn("failed to clear attempt counter after unlock",
			"identifier", identifier,
			"error", err,
		)
	}

	e.dispatcher.DispatchUnlocked(ctx, events.EntityUnlocked{
		Subject:    subject,
		Lock:       lock,
		Identifier: identifier,
		Context:    opts.Context,
	})
	return lock
}

// HasActiveLock reports whether a persistent lock is currently in force.
// Store failures read as unlocked.
func (e *Engine) HasActiveLock(ctx context.Context, subject models.Subject) bool {
	active, err := e.store.HasActiveLock(ctx, subject.Ref())
	if err != nil {
		e.logger.Error("failed to check active lock",
			"subject", subject.Ref().String(),
			"error", err,
		)
		return false
	}
	return active
}

// IsLockedOut reports whether the subject should be denied: a persistent
// active lock, or an attempt counter at or over the limit. Store failures
// fall through to the counter; only counter failures surface.
func (e *Engine) IsLockedOut(ctx context.Context, subject models.Subject) (bool, error) {
	active, err := e.store.HasActiveLock(ctx, subject.Ref())
	if err != nil {
		e.logger.Error("failed to check active lock",
			"subject", subject.Ref().String(),
			"error", err,
		)
	} else if active {
		return true, nil
	}
	return e.HasTooManyAttempts(ctx, subject.LockIdentifier())
}

// RecordSuccessfulLogin reacts to a completed login. A subject that is still
// locked out gets its sessions revoked; when lock-on-login is enabled the
// subject is notified with a signed lock link so they can lock the account
// if the login was not theirs.
func (e *Engine) RecordSuccessfulLogin(ctx context.Context, subject models.Subject) error {
	lockedOut, err := e.IsLockedOut(ctx, subject)
	if err != nil {
		return err
	}
	if lockedOut && e.config.LogoutOnLogin {
		if err := e.revoker.RevokeSessions(ctx, subject); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke sessions")
		}
		e.logger.Info("revoked sessions for locked-out subject",
			"subject", subject.Ref().String(),
		)
	}

	if e.config.LockOnLogin {
		e.sendLoginNotification(ctx, subject)
	}
	return nil
}

func (e *Engine) appendAttemptLog(ctx context.Context, identifier string, reqCtx models.RequestContext) {
	entry := &models.AttemptLog{
		Identifier:  identifier,
		IPAddress:   reqCtx.IP,
		UserAgent:   reqCtx.UserAgent,
		AttemptedAt: requesttime.Now(ctx),
	}
	if e.resolver != nil {
		if subject, err := e.resolver.Resolve(ctx, identifier); err == nil && subject != nil {
			ref := subject.Ref()
			entry.Subject = &ref
		}
	}
	if err := e.store.AppendAttemptLog(ctx, entry); err != nil {
		e.logger.Warn("failed to append attempt log",
			"identifier", identifier,
			"error", err,
		)
	}
}

func unlockTrigger(opts models.UnlockOptions) string {
	if opts.Trigger != "" {
		return opts.Trigger
	}
	return models.UnlockTriggerAPI
}
