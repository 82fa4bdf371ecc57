package prune

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	lockoutcfg "lockgate/internal/lockout/config"
	"lockgate/internal/lockout/models"
	"lockgate/internal/lockout/store"
)

type failingStore struct{}

func (failingStore) PruneAttemptLogs(context.Context, time.Time) (int64, error) {
	return 0, errors.New("database unavailable")
}

func (failingStore) PruneLockRecords(context.Context, time.Time) (int64, error) {
	return 0, errors.New("database unavailable")
}

type PruneSuite struct {
	suite.Suite
	ctx    context.Context
	store  *store.MemoryStore
	config lockoutcfg.PruneConfig
	now    time.Time
}

func TestPruneSuite(t *testing.T) {
	suite.Run(t, new(PruneSuite))
}

func (s *PruneSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewMemory()
	s.now = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	s.config = lockoutcfg.PruneConfig{
		Enabled:             true,
		AttemptLogRetention: 90 * 24 * time.Hour,
		LockRecordRetention: 365 * 24 * time.Hour,
	}
}

func (s *PruneSuite) newPruner() *Pruner {
	return New(s.store, s.config, WithClock(func() time.Time { return s.now }))
}

func (s *PruneSuite) addAttemptLog(age time.Duration) {
	err := s.store.AppendAttemptLog(s.ctx, &models.AttemptLog{
		Identifier:  "user@example.test",
		AttemptedAt: s.now.Add(-age),
	})
	s.Require().NoError(err)
}

func (s *PruneSuite) addUnlockedLock(unlockedAge time.Duration) {
	ref := models.SubjectRef{Kind: "user", ID: uuid.New()}
	lock, err := s.store.CreateLock(s.ctx, ref, models.LockOptions{})
	s.Require().NoError(err)
	unlockedAt := s.now.Add(-unlockedAge)
	lock.UnlockedAt = &unlockedAt
	s.Require().NoError(s.store.MarkUnlocked(s.ctx, lock))
}

func (s *PruneSuite) TestRunOncePrunesBothTables() {
	s.addAttemptLog(91 * 24 * time.Hour)
	s.addAttemptLog(24 * time.Hour)
	s.addUnlockedLock(400 * 24 * time.Hour)
	s.addUnlockedLock(24 * time.Hour)

	result, err := s.newPruner().RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), result.AttemptLogsDeleted)
	s.Equal(int64(1), result.LockRecordsDeleted)
	s.Len(s.store.AttemptLogs(), 1)
	s.Len(s.store.Locks(), 1)
}

func (s *PruneSuite) TestActiveLockNeverPruned() {
	ref := models.SubjectRef{Kind: "user", ID: uuid.New()}
	_, err := s.store.CreateLock(s.ctx, ref, models.LockOptions{})
	s.Require().NoError(err)

	result, err := s.newPruner().Run(s.ctx, Selection{}, 0, 0)
	s.Require().NoError(err)
	s.Equal(int64(0), result.LockRecordsDeleted)
	s.Len(s.store.Locks(), 1)
}

func (s *PruneSuite) TestSelectionLimitsRun() {
	s.addAttemptLog(91 * 24 * time.Hour)
	s.addUnlockedLock(400 * 24 * time.Hour)

	p := s.newPruner()

	result, err := p.Run(s.ctx, Selection{OnlyAttemptLogs: true},
		s.config.AttemptLogRetention, s.config.LockRecordRetention)
	s.Require().NoError(err)
	s.Equal(int64(1), result.AttemptLogsDeleted)
	s.Equal(int64(0), result.LockRecordsDeleted)
	s.Len(s.store.Locks(), 1)

	result, err = p.Run(s.ctx, Selection{OnlyLockRecords: true},
		s.config.AttemptLogRetention, s.config.LockRecordRetention)
	s.Require().NoError(err)
	s.Equal(int64(1), result.LockRecordsDeleted)
	s.Empty(s.store.Locks())
}

func (s *PruneSuite) TestDisabledIsNoop() {
	s.config.Enabled = false
	s.addAttemptLog(365 * 24 * time.Hour)

	result, err := s.newPruner().RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(0), result.AttemptLogsDeleted)
	s.Len(s.store.AttemptLogs(), 1)
}

func (s *PruneSuite) TestStoreFailureSurfaces() {
	p := New(failingStore{}, s.config)
	_, err := p.RunOnce(s.ctx)
	s.Error(err)
}

func (s *PruneSuite) TestStartStopsOnContextCancel() {
	p := New(s.store, s.config, WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- p.Start(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(time.Second):
		s.Fail("pruner did not stop after cancel")
	}
}
