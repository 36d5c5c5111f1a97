package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/marcus/brewlog/internal/models"
)

// Tombstone is a durable deletion intent. While SyncedAt is nil, any
// pull that would re-materialize the entity is discarded.
type Tombstone struct {
	OwnerUserID string
	EntityType  models.EntityType
	EntityID    string
	DeletedAt   time.Time
	SyncedAt    *time.Time
}

// PutTombstone records a deletion intent for an entity.
func (s *Store) PutTombstone(ownerUserID string, entityType models.EntityType, entityID string) error {
	return s.withUserLock(ownerUserID, func() error {
		_, err := s.conn.Exec(`
			INSERT OR REPLACE INTO tombstones (owner_user_id, entity_type, entity_id, deleted_at, synced_at)
			VALUES (?, ?, ?, ?, NULL)
		`, ownerUserID, entityType, entityID, s.now().UTC())
		if err != nil {
			return fmt.Errorf("put tombstone: %w", err)
		}
		return nil
	})
}

// HasUnconfirmedTombstone reports whether the entity has a tombstone
// the server has not yet confirmed.
func (s *Store) HasUnconfirmedTombstone(ownerUserID, entityID string) (bool, error) {
	return s.hasUnconfirmedTombstoneLocked(ownerUserID, entityID)
}

func (s *Store) hasUnconfirmedTombstoneLocked(ownerUserID, entityID string) (bool, error) {
	var count int
	err := s.conn.QueryRow(`
		SELECT COUNT(*) FROM tombstones WHERE owner_user_id = ? AND entity_id = ? AND synced_at IS NULL
	`, ownerUserID, entityID).Scan(&count)
	return count > 0, err
}

// UnconfirmedTombstones returns all tombstones awaiting server confirmation.
func (s *Store) UnconfirmedTombstones(ownerUserID string) ([]Tombstone, error) {
	rows, err := s.conn.Query(`
		SELECT owner_user_id, entity_type, entity_id, deleted_at, synced_at
		FROM tombstones WHERE owner_user_id = ? AND synced_at IS NULL
		ORDER BY deleted_at ASC
	`, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tombs []Tombstone
	for rows.Next() {
		var t Tombstone
		var syncedAt sql.NullTime
		if err := rows.Scan(&t.OwnerUserID, &t.EntityType, &t.EntityID, &t.DeletedAt, &syncedAt); err != nil {
			return nil, err
		}
		if syncedAt.Valid {
			t.SyncedAt = &syncedAt.Time
		}
		tombs = append(tombs, t)
	}
	return tombs, rows.Err()
}

// MarkTombstoneSynced records server confirmation of a deletion and
// destroys the cached entity row. The tombstone itself lingers until
// PruneTombstones so late out-of-order pulls cannot resurrect the id.
func (s *Store) MarkTombstoneSynced(ownerUserID, entityID string) error {
	return s.withUserLock(ownerUserID, func() error {
		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`
			UPDATE tombstones SET synced_at = ? WHERE owner_user_id = ? AND entity_id = ? AND synced_at IS NULL
		`, s.now().UTC(), ownerUserID, entityID); err != nil {
			return fmt.Errorf("mark tombstone synced: %w", err)
		}
		if _, err := tx.Exec(`
			DELETE FROM cached_entities WHERE owner_user_id = ? AND entity_id = ?
		`, ownerUserID, entityID); err != nil {
			return fmt.Errorf("remove cached entity: %w", err)
		}
		return tx.Commit()
	})
}

// DeleteTombstone removes a tombstone outright. Used when the server
// reports the deletion never landed and the entity is re-materialized.
func (s *Store) DeleteTombstone(ownerUserID, entityID string) error {
	return s.withUserLock(ownerUserID, func() error {
		_, err := s.conn.Exec(`DELETE FROM tombstones WHERE owner_user_id = ? AND entity_id = ?`, ownerUserID, entityID)
		return err
	})
}

// PruneTombstones garbage-collects confirmed tombstones older than the
// retention window. Unconfirmed tombstones are never pruned.
func (s *Store) PruneTombstones(ownerUserID string, retention time.Duration) (int64, error) {
	var pruned int64
	err := s.withUserLock(ownerUserID, func() error {
		cutoff := s.now().UTC().Add(-retention)
		res, err := s.conn.Exec(`
			DELETE FROM tombstones WHERE owner_user_id = ? AND synced_at IS NOT NULL AND synced_at <= ?
		`, ownerUserID, cutoff)
		if err != nil {
			return fmt.Errorf("prune tombstones: %w", err)
		}
		pruned, _ = res.RowsAffected()
		return nil
	})
	return pruned, err
}
