package engine

import (
	"context"
	"net/url"
	"time"

	"lockgate/internal/lockout/models"
)

// Store is the lock record persistence contract the engine depends on.
type Store interface {
	FindActiveLock(ctx context.Context, ref models.SubjectRef) (*models.LockRecord, error)
	HasActiveLock(ctx context.Context, ref models.SubjectRef) (bool, error)
	FindActiveLockByIdentifier(ctx context.Context, identifier string) (*models.LockRecord, error)
	CreateLock(ctx context.Context, ref models.SubjectRef, opts models.LockOptions) (*models.LockRecord, error)
	MarkUnlocked(ctx context.Context, lock *models.LockRecord) error
	AppendAttemptLog(ctx context.Context, entry *models.AttemptLog) error
}

// Resolver maps a login identifier to a subject. A nil, nil return means
// no subject matched.
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (models.Subject, error)
}

// URLSigner mints signed capability URLs for lock/unlock actions.
type URLSigner interface {
	Issue(action string, params url.Values, ttl time.Duration) (string, error)
}

// SessionRevoker terminates the active sessions of a subject. The engine
// invokes it when a locked-out subject somehow completes a login.
type SessionRevoker interface {
	RevokeSessions(ctx context.Context, subject models.Subject) error
}

// noopRevoker is the default SessionRevoker; session management lives outside
// this module unless the host application wires its own implementation.
type noopRevoker struct{}

func (noopRevoker) RevokeSessions(ctx context.Context, subject models.Subject) error {
	return nil
}
