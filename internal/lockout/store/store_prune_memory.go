package store

import (
	"context"
	"time"

	"lockgate/internal/lockout/models"
)

// PruneAttemptLogs deletes log entries attempted before the cutoff.
// The cutoff is provided by the caller to keep retention policy out of the store.
func (s *MemoryStore) PruneAttemptLogs(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.logs[:0]
	var deleted int64
	for _, entry := range s.logs {
		if entry.AttemptedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, entry)
	}
	s.logs = kept
	return deleted, nil
}

// PruneLockRecords deletes resolved lock history older than the cutoff:
// records explicitly unlocked before it, or whose expiry passed before it.
// An active, never-expiring lock is never deleted.
func (s *MemoryStore) PruneLockRecords(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, lock := range s.locks {
		if prunable(lock, cutoff) {
			delete(s.locks, id)
			deleted++
		}
	}
	return deleted, nil
}

func prunable(lock *models.LockRecord, cutoff time.Time) bool {
	if lock.UnlockedAt != nil && lock.UnlockedAt.Before(cutoff) {
		return true
	}
	return lock.ExpiresAt != nil && lock.ExpiresAt.Before(cutoff)
}
