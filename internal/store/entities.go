package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcus/brewlog/internal/models"
)

// CachedEntity is one durable row of the entity cache. Exactly one row
// exists per (OwnerUserID, Type, ID). Dirty marks local changes not yet
// confirmed synced.
type CachedEntity struct {
	OwnerUserID string
	Type        models.EntityType
	ID          string
	Payload     json.RawMessage
	Version     int64
	UpdatedAt   time.Time
	Dirty       bool
}

// Put upserts an entity. locallyAuthored distinguishes UI mutations
// from pull reconciliation:
//
//   - locally authored writes always land, set dirty, and leave the
//     version untouched (the server assigns versions);
//   - pull writes never overwrite a dirty row unless the incoming
//     version strictly exceeds the local one AND no pending operation
//     references the entity. Overwrites of dirty rows are recorded in
//     sync_conflicts. Pulls against an unconfirmed tombstone are
//     rejected with ErrTombstoned.
//
// The payload is validated against the entity type's schema at this
// boundary. Returns the resulting stored entity.
func (s *Store) Put(e CachedEntity, locallyAuthored bool) (*CachedEntity, error) {
	if !e.Type.Valid() {
		return nil, fmt.Errorf("invalid entity type: %s", e.Type)
	}
	if err := models.ValidatePayload(e.Type, e.Payload); err != nil {
		return nil, fmt.Errorf("validate payload: %w", err)
	}

	var stored *CachedEntity
	err := s.withUserLock(e.OwnerUserID, func() error {
		existing, err := s.getLocked(e.OwnerUserID, e.Type, e.ID)
		if err != nil && err != ErrNotFound {
			return err
		}

		if !locallyAuthored {
			tomb, err := s.hasUnconfirmedTombstoneLocked(e.OwnerUserID, e.ID)
			if err != nil {
				return err
			}
			if tomb {
				stored = existing
				return ErrTombstoned
			}
			if existing != nil && existing.Dirty {
				pending, err := s.hasPendingOpsLocked(e.OwnerUserID, e.ID)
				if err != nil {
					return err
				}
				if e.Version <= existing.Version || pending {
					// Local wins: equal or lower version, or un-synced
					// local intent still queued.
					slog.Debug("pull skipped for dirty entity",
						"type", e.Type, "id", e.ID,
						"local_version", existing.Version, "remote_version", e.Version)
					stored = existing
					return nil
				}
				// Remote wins by version; leave an operator-visible trace.
				if err := s.recordConflictLocked(existing, &e); err != nil {
					return err
				}
				slog.Warn("dirty entity overwritten by newer remote version",
					"type", e.Type, "id", e.ID,
					"local_version", existing.Version, "remote_version", e.Version)
			}
		}

		now := s.now().UTC()
		result := e
		result.UpdatedAt = now
		if locallyAuthored {
			result.Dirty = true
			if existing != nil {
				result.Version = existing.Version
			}
		} else {
			result.Dirty = false
			if !e.UpdatedAt.IsZero() {
				result.UpdatedAt = e.UpdatedAt
			}
		}

		_, err = s.conn.Exec(`
			INSERT OR REPLACE INTO cached_entities (owner_user_id, entity_type, entity_id, payload, version, updated_at, dirty)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, result.OwnerUserID, result.Type, result.ID, string(result.Payload), result.Version, result.UpdatedAt, boolToInt(result.Dirty))
		if err != nil {
			return fmt.Errorf("upsert entity: %w", err)
		}
		stored = &result
		return nil
	})
	if err != nil {
		return stored, err
	}
	return stored, nil
}

// Get retrieves one cached entity, or ErrNotFound.
func (s *Store) Get(ownerUserID string, entityType models.EntityType, entityID string) (*CachedEntity, error) {
	return s.getLocked(ownerUserID, entityType, entityID)
}

func (s *Store) getLocked(ownerUserID string, entityType models.EntityType, entityID string) (*CachedEntity, error) {
	var e CachedEntity
	var payload string
	var dirty int
	err := s.conn.QueryRow(`
		SELECT owner_user_id, entity_type, entity_id, payload, version, updated_at, dirty
		FROM cached_entities WHERE owner_user_id = ? AND entity_type = ? AND entity_id = ?
	`, ownerUserID, entityType, entityID).Scan(
		&e.OwnerUserID, &e.Type, &e.ID, &payload, &e.Version, &e.UpdatedAt, &dirty)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.Payload = json.RawMessage(payload)
	e.Dirty = dirty != 0
	return &e, nil
}

// ListByType returns all entities of one type for a user, excluding any
// whose id has an unconfirmed tombstone.
func (s *Store) ListByType(ownerUserID string, entityType models.EntityType) ([]CachedEntity, error) {
	rows, err := s.conn.Query(`
		SELECT e.owner_user_id, e.entity_type, e.entity_id, e.payload, e.version, e.updated_at, e.dirty
		FROM cached_entities e
		WHERE e.owner_user_id = ? AND e.entity_type = ?
		AND NOT EXISTS (
			SELECT 1 FROM tombstones t
			WHERE t.owner_user_id = e.owner_user_id AND t.entity_id = e.entity_id AND t.synced_at IS NULL
		)
		ORDER BY e.entity_id
	`, ownerUserID, entityType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []CachedEntity
	for rows.Next() {
		var e CachedEntity
		var payload string
		var dirty int
		if err := rows.Scan(&e.OwnerUserID, &e.Type, &e.ID, &payload, &e.Version, &e.UpdatedAt, &dirty); err != nil {
			return nil, err
		}
		e.Payload = json.RawMessage(payload)
		e.Dirty = dirty != 0
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// ClearDirty clears the dirty flag and records the server-assigned
// version after a confirmed sync. No-op if the row is gone.
func (s *Store) ClearDirty(ownerUserID string, entityType models.EntityType, entityID string, version int64) error {
	return s.withUserLock(ownerUserID, func() error {
		_, err := s.conn.Exec(`
			UPDATE cached_entities SET dirty = 0, version = ?
			WHERE owner_user_id = ? AND entity_type = ? AND entity_id = ?
		`, version, ownerUserID, entityType, entityID)
		return err
	})
}

// ClearForUser irreversibly removes all entities, pending operations,
// tombstones, and the auth token scoped to one user. Used on logout.
// Callers must cancel any in-flight sync for the user first.
func (s *Store) ClearForUser(ownerUserID string) error {
	return s.withUserLock(ownerUserID, func() error {
		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		for _, table := range []string{
			"cached_entities", "pending_operations", "tombstones",
			"auth_token", "dead_operations", "sync_conflicts", "sync_history",
		} {
			if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE owner_user_id = ?", table), ownerUserID); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return tx.Commit()
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
