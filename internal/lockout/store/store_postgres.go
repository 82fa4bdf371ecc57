package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lockgate/internal/lockout/models"
	requesttime "lockgate/pkg/platform/middleware/requesttime"
)

// PostgresStore persists lock records and attempt logs in PostgreSQL.
// This store is pure I/O; retention cutoffs and lock-state decisions belong
// to the callers.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed lock record store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const lockRecordColumns = `id, subject_kind, subject_id, locked_at, unlocked_at, expires_at, reason, meta, created_at, updated_at`

func (s *PostgresStore) FindActiveLock(ctx context.Context, ref models.SubjectRef) (*models.LockRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM lock_records
		WHERE subject_kind = $1 AND subject_id = $2
		  AND unlocked_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY locked_at DESC
		LIMIT 1
	`, lockRecordColumns)

	lock, err := scanLockRecord(s.db.QueryRowContext(ctx, query, ref.Kind, ref.ID, requesttime.Now(ctx)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find active lock: %w", err)
	}
	return lock, nil
}

func (s *PostgresStore) HasActiveLock(ctx context.Context, ref models.SubjectRef) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM lock_records
			WHERE subject_kind = $1 AND subject_id = $2
			  AND unlocked_at IS NULL
			  AND (expires_at IS NULL OR expires_at > $3)
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, ref.Kind, ref.ID, requesttime.Now(ctx)).Scan(&exists); err != nil {
		return false, fmt.Errorf("has active lock: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) FindActiveLockByIdentifier(ctx context.Context, identifier string) (*models.LockRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM lock_records
		WHERE meta->>'identifier' = $1
		  AND unlocked_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY locked_at DESC
		LIMIT 1
	`, lockRecordColumns)

	lock, err := scanLockRecord(s.db.QueryRowContext(ctx, query, identifier, requesttime.Now(ctx)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find active lock by identifier: %w", err)
	}
	return lock, nil
}

func (s *PostgresStore) CreateLock(ctx context.Context, ref models.SubjectRef, opts models.LockOptions) (*models.LockRecord, error) {
	now := requesttime.Now(ctx)
	lockedAt := now
	if opts.LockedAt != nil {
		lockedAt = *opts.LockedAt
	}

	meta, err := marshalMeta(opts.Meta)
	if err != nil {
		return nil, fmt.Errorf("create lock: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO lock_records (id, subject_kind, subject_id, locked_at, expires_at, reason, meta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING %s
	`, lockRecordColumns)

	lock, err := scanLockRecord(s.db.QueryRowContext(ctx, query,
		uuid.New(), ref.Kind, ref.ID, lockedAt, opts.ExpiresAt, opts.Reason, meta, now,
	))
	if err != nil {
		return nil, fmt.Errorf("create lock: %w", err)
	}
	return lock, nil
}

func (s *PostgresStore) MarkUnlocked(ctx context.Context, lock *models.LockRecord) error {
	if lock == nil {
		return fmt.Errorf("lock record is required")
	}

	now := requesttime.Now(ctx)
	if lock.UnlockedAt == nil {
		lock.UnlockedAt = &now
	}
	lock.UpdatedAt = now

	meta, err := marshalMeta(lock.Meta)
	if err != nil {
		return fmt.Errorf("mark unlocked: %w", err)
	}

	query := `
		UPDATE lock_records
		SET unlocked_at = $2, reason = $3, meta = $4, updated_at = $5
		WHERE id = $1
	`
	if _, err := s.db.ExecContext(ctx, query, lock.ID, lock.UnlockedAt, lock.Reason, meta, now); err != nil {
		return fmt.Errorf("mark unlocked: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendAttemptLog(ctx context.Context, entry *models.AttemptLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.AttemptedAt.IsZero() {
		entry.AttemptedAt = requesttime.Now(ctx)
	}

	var subjectKind *string
	var subjectID *uuid.UUID
	if entry.Subject != nil {
		subjectKind = &entry.Subject.Kind
		subjectID = &entry.Subject.ID
	}

	query := `
		INSERT INTO attempt_logs (id, identifier, subject_kind, subject_id, ip_address, user_agent, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.Identifier, subjectKind, subjectID,
		nullableString(entry.IPAddress), nullableString(entry.UserAgent), entry.AttemptedAt,
	); err != nil {
		return fmt.Errorf("append attempt log: %w", err)
	}
	return nil
}

// PruneAttemptLogs deletes log entries attempted before the cutoff.
func (s *PostgresStore) PruneAttemptLogs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM attempt_logs WHERE attempted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune attempt logs: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune attempt logs: %w", err)
	}
	return deleted, nil
}

// PruneLockRecords deletes resolved lock history older than the cutoff:
// explicitly unlocked before it, or expired before it. Active never-expiring
// locks are never touched.
func (s *PostgresStore) PruneLockRecords(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM lock_records
		WHERE (unlocked_at IS NOT NULL AND unlocked_at < $1)
		   OR (expires_at IS NOT NULL AND expires_at < $1)
	`
	res, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune lock records: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune lock records: %w", err)
	}
	return deleted, nil
}

type lockRecordRow interface {
	Scan(dest ...any) error
}

func scanLockRecord(row lockRecordRow) (*models.LockRecord, error) {
	var lock models.LockRecord
	var unlockedAt, expiresAt sql.NullTime
	var reason sql.NullString
	var meta []byte

	if err := row.Scan(
		&lock.ID, &lock.Subject.Kind, &lock.Subject.ID,
		&lock.LockedAt, &unlockedAt, &expiresAt, &reason, &meta,
		&lock.CreatedAt, &lock.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if unlockedAt.Valid {
		lock.UnlockedAt = &unlockedAt.Time
	}
	if expiresAt.Valid {
		lock.ExpiresAt = &expiresAt.Time
	}
	if reason.Valid {
		lock.Reason = &reason.String
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &lock.Meta); err != nil {
			return nil, fmt.Errorf("decode lock meta: %w", err)
		}
	}
	return &lock, nil
}

func marshalMeta(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	return json.Marshal(meta)
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
