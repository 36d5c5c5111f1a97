package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marcus/brewlog/internal/models"
)

// OpKind is the kind of a pending operation.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// PendingOperation is one queued mutation awaiting delivery. OpID is
// assigned by sqlite (rowid AUTOINCREMENT) and defines FIFO order.
type PendingOperation struct {
	OpID        int64
	OwnerUserID string
	Kind        OpKind
	EntityType  models.EntityType
	EntityID    string
	Payload     json.RawMessage
	CreatedAt   time.Time
	Attempts    int
	LastError   string
	NextRetryAt *time.Time
}

// Retry backoff: base 2s doubling per attempt, capped at 5 minutes.
const (
	retryBase = 2 * time.Second
	retryCap  = 5 * time.Minute
)

// backoffDelay returns the delay before the next attempt, given the
// number of attempts already made.
func backoffDelay(attempts int) time.Duration {
	d := retryBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= retryCap {
			return retryCap
		}
	}
	if d > retryCap {
		return retryCap
	}
	return d
}

// Enqueue appends an operation to the queue with a strictly increasing
// op id. Never blocks on network. The assigned id is written back to op.
func (s *Store) Enqueue(op *PendingOperation) error {
	if op.Kind != OpCreate && op.Kind != OpUpdate && op.Kind != OpDelete {
		return fmt.Errorf("invalid operation kind: %s", op.Kind)
	}
	return s.withUserLock(op.OwnerUserID, func() error {
		op.CreatedAt = s.now().UTC()
		payload := op.Payload
		if len(payload) == 0 {
			payload = json.RawMessage("{}")
		}
		res, err := s.conn.Exec(`
			INSERT INTO pending_operations (owner_user_id, kind, entity_type, entity_id, payload, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, op.OwnerUserID, op.Kind, op.EntityType, op.EntityID, string(payload), op.CreatedAt)
		if err != nil {
			return fmt.Errorf("enqueue operation: %w", err)
		}
		op.OpID, err = res.LastInsertId()
		return err
	})
}

// PeekBatch returns up to max operations in op id order whose retry
// time (if any) has passed. Operations are not removed.
func (s *Store) PeekBatch(ownerUserID string, max int) ([]PendingOperation, error) {
	rows, err := s.conn.Query(`
		SELECT op_id, owner_user_id, kind, entity_type, entity_id, payload, created_at, attempts, COALESCE(last_error, ''), next_retry_at
		FROM pending_operations
		WHERE owner_user_id = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY op_id ASC LIMIT ?
	`, ownerUserID, s.now().UTC(), max)
	if err != nil {
		return nil, fmt.Errorf("peek batch: %w", err)
	}
	defer rows.Close()

	var ops []PendingOperation
	for rows.Next() {
		var op PendingOperation
		var payload string
		var nextRetry sql.NullTime
		if err := rows.Scan(&op.OpID, &op.OwnerUserID, &op.Kind, &op.EntityType, &op.EntityID,
			&payload, &op.CreatedAt, &op.Attempts, &op.LastError, &nextRetry); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		op.Payload = json.RawMessage(payload)
		if nextRetry.Valid {
			op.NextRetryAt = &nextRetry.Time
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// Ack removes an operation after confirmed remote success. Idempotent:
// acking an already-removed op id has no effect.
func (s *Store) Ack(ownerUserID string, opID int64) error {
	return s.withUserLock(ownerUserID, func() error {
		_, err := s.conn.Exec(`DELETE FROM pending_operations WHERE op_id = ? AND owner_user_id = ?`, opID, ownerUserID)
		return err
	})
}

// Fail records a transient failure: increments attempts, stores the
// error, and schedules the next attempt with exponential backoff.
func (s *Store) Fail(ownerUserID string, opID int64, opErr error) error {
	return s.withUserLock(ownerUserID, func() error {
		var attempts int
		err := s.conn.QueryRow(`SELECT attempts FROM pending_operations WHERE op_id = ? AND owner_user_id = ?`, opID, ownerUserID).Scan(&attempts)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		attempts++
		nextRetry := s.now().UTC().Add(backoffDelay(attempts))
		_, err = s.conn.Exec(`
			UPDATE pending_operations SET attempts = ?, last_error = ?, next_retry_at = ?
			WHERE op_id = ? AND owner_user_id = ?
		`, attempts, opErr.Error(), nextRetry, opID, ownerUserID)
		return err
	})
}

// FailPermanent removes an operation the remote rejected outright and
// records it in dead_operations so the failure stays operator-visible.
func (s *Store) FailPermanent(ownerUserID string, opID int64, opErr error) error {
	return s.withUserLock(ownerUserID, func() error {
		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		_, err = tx.Exec(`
			INSERT INTO dead_operations (op_id, owner_user_id, kind, entity_type, entity_id, payload, attempts, last_error, failed_at)
			SELECT op_id, owner_user_id, kind, entity_type, entity_id, payload, attempts, ?, ?
			FROM pending_operations WHERE op_id = ? AND owner_user_id = ?
		`, opErr.Error(), s.now().UTC(), opID, ownerUserID)
		if err != nil {
			return fmt.Errorf("record dead operation: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM pending_operations WHERE op_id = ? AND owner_user_id = ?`, opID, ownerUserID); err != nil {
			return fmt.Errorf("remove operation: %w", err)
		}
		return tx.Commit()
	})
}

// HasPendingOps reports whether any queued operation references the entity.
func (s *Store) HasPendingOps(ownerUserID, entityID string) (bool, error) {
	return s.hasPendingOpsLocked(ownerUserID, entityID)
}

func (s *Store) hasPendingOpsLocked(ownerUserID, entityID string) (bool, error) {
	var count int
	err := s.conn.QueryRow(`
		SELECT COUNT(*) FROM pending_operations WHERE owner_user_id = ? AND entity_id = ?
	`, ownerUserID, entityID).Scan(&count)
	return count > 0, err
}

// CountPending returns the number of queued operations for a user.
func (s *Store) CountPending(ownerUserID string) (int64, error) {
	var count int64
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM pending_operations WHERE owner_user_id = ?`, ownerUserID).Scan(&count)
	return count, err
}

// DeadOperation is a permanently failed operation kept for inspection.
type DeadOperation struct {
	OpID       int64
	Kind       OpKind
	EntityType models.EntityType
	EntityID   string
	Attempts   int
	LastError  string
	FailedAt   time.Time
}

// DeadOperations returns recent permanently failed operations, newest first.
func (s *Store) DeadOperations(ownerUserID string, limit int) ([]DeadOperation, error) {
	rows, err := s.conn.Query(`
		SELECT op_id, kind, entity_type, entity_id, attempts, COALESCE(last_error, ''), failed_at
		FROM dead_operations WHERE owner_user_id = ?
		ORDER BY failed_at DESC LIMIT ?
	`, ownerUserID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dead []DeadOperation
	for rows.Next() {
		var d DeadOperation
		if err := rows.Scan(&d.OpID, &d.Kind, &d.EntityType, &d.EntityID, &d.Attempts, &d.LastError, &d.FailedAt); err != nil {
			return nil, err
		}
		dead = append(dead, d)
	}
	return dead, rows.Err()
}
