// Package store persists lock records and the append-only attempt log.
// Stores are pure I/O; the active-lock predicate is the only domain rule they
// evaluate, and lock-state decisions belong to the engine.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"lockgate/internal/lockout/models"
	requesttime "lockgate/pkg/platform/middleware/requesttime"
)

// MemoryStore is an in-memory lock record store for tests and single-instance
// embedding.
type MemoryStore struct {
	mu    sync.RWMutex
	locks map[uuid.UUID]*models.LockRecord
	logs  []*models.AttemptLog
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		locks: make(map[uuid.UUID]*models.LockRecord),
	}
}

// FindActiveLock returns the most recent active lock for the subject, nil
// when none exists.
func (s *MemoryStore) FindActiveLock(ctx context.Context, ref models.SubjectRef) (*models.LockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := requesttime.Now(ctx)
	var active []*models.LockRecord
	for _, lock := range s.locks {
		if lock.Subject == ref && lock.IsActive(now) {
			active = append(active, lock)
		}
	}
	if len(active) == 0 {
		return nil, nil
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].LockedAt.After(active[j].LockedAt)
	})
	return copyLock(active[0]), nil
}

func (s *MemoryStore) HasActiveLock(ctx context.Context, ref models.SubjectRef) (bool, error) {
	lock, err := s.FindActiveLock(ctx, ref)
	if err != nil {
		return false, err
	}
	return lock != nil, nil
}

// FindActiveLockByIdentifier returns the most recent active lock whose meta
// carries the given identifier, used by the unlock action to find the subject
// behind a bare identifier.
func (s *MemoryStore) FindActiveLockByIdentifier(ctx context.Context, identifier string) (*models.LockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := requesttime.Now(ctx)
	var latest *models.LockRecord
	for _, lock := range s.locks {
		if !lock.IsActive(now) {
			continue
		}
		if id, ok := lock.Meta["identifier"].(string); !ok || id != identifier {
			continue
		}
		if latest == nil || lock.LockedAt.After(latest.LockedAt) {
			latest = lock
		}
	}
	if latest == nil {
		return nil, nil
	}
	return copyLock(latest), nil
}

func (s *MemoryStore) CreateLock(ctx context.Context, ref models.SubjectRef, opts models.LockOptions) (*models.LockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := requesttime.Now(ctx)
	lockedAt := now
	if opts.LockedAt != nil {
		lockedAt = *opts.LockedAt
	}

	lock := &models.LockRecord{
		ID:        uuid.New(),
		Subject:   ref,
		LockedAt:  lockedAt,
		ExpiresAt: opts.ExpiresAt,
		Reason:    opts.Reason,
		Meta:      opts.Meta,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.locks[lock.ID] = lock
	return copyLock(lock), nil
}

// MarkUnlocked persists the unlock mutation. Saving an already-unlocked
// record is safe and simply re-saves it.
func (s *MemoryStore) MarkUnlocked(ctx context.Context, lock *models.LockRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := requesttime.Now(ctx)
	if lock.UnlockedAt == nil {
		lock.UnlockedAt = &now
	}
	lock.UpdatedAt = now
	s.locks[lock.ID] = copyLock(lock)
	return nil
}

func (s *MemoryStore) AppendAttemptLog(ctx context.Context, entry *models.AttemptLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.AttemptedAt.IsZero() {
		entry.AttemptedAt = requesttime.Now(ctx)
	}
	s.logs = append(s.logs, entry)
	return nil
}

// AttemptLogs returns a snapshot of the log, newest last. Test helper.
func (s *MemoryStore) AttemptLogs() []*models.AttemptLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.AttemptLog, len(s.logs))
	copy(out, s.logs)
	return out
}

// Locks returns a snapshot of all lock records. Test helper.
func (s *MemoryStore) Locks() []*models.LockRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.LockRecord, 0, len(s.locks))
	for _, lock := range s.locks {
		out = append(out, copyLock(lock))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LockedAt.Before(out[j].LockedAt)
	})
	return out
}

func copyLock(lock *models.LockRecord) *models.LockRecord {
	clone := *lock
	if lock.Meta != nil {
		clone.Meta = make(map[string]any, len(lock.Meta))
		for k, v := range lock.Meta {
			clone.Meta[k] = v
		}
	}
	return &clone
}
