package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marcus/brewlog/internal/models"
)

// SyncConflict records a dirty local row overwritten by a newer remote
// version during reconciliation.
type SyncConflict struct {
	ID            int64
	EntityType    models.EntityType
	EntityID      string
	LocalVersion  int64
	RemoteVersion int64
	LocalPayload  string
	RemotePayload string
	OverwrittenAt time.Time
}

func (s *Store) recordConflictLocked(local, remote *CachedEntity) error {
	_, err := s.conn.Exec(`
		INSERT INTO sync_conflicts (owner_user_id, entity_type, entity_id, local_version, remote_version, local_payload, remote_payload, overwritten_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, local.OwnerUserID, local.Type, local.ID, local.Version, remote.Version,
		string(local.Payload), string(remote.Payload), s.now().UTC())
	if err != nil {
		return fmt.Errorf("record conflict: %w", err)
	}
	return nil
}

// RecentConflicts returns recent reconciliation conflicts, newest first.
func (s *Store) RecentConflicts(ownerUserID string, limit int) ([]SyncConflict, error) {
	rows, err := s.conn.Query(`
		SELECT id, entity_type, entity_id, local_version, remote_version,
		       COALESCE(local_payload, 'null'), COALESCE(remote_payload, 'null'), overwritten_at
		FROM sync_conflicts WHERE owner_user_id = ?
		ORDER BY overwritten_at DESC LIMIT ?
	`, ownerUserID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conflicts []SyncConflict
	for rows.Next() {
		var c SyncConflict
		if err := rows.Scan(&c.ID, &c.EntityType, &c.EntityID, &c.LocalVersion, &c.RemoteVersion,
			&c.LocalPayload, &c.RemotePayload, &c.OverwrittenAt); err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

// SyncRun summarizes one coordinator run.
type SyncRun struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Pushed     int
	Pulled     int
	Failed     int
	Status     string
	Error      string
}

// RecordSyncRun appends one row of sync history.
func (s *Store) RecordSyncRun(ownerUserID string, run SyncRun) error {
	return s.withUserLock(ownerUserID, func() error {
		_, err := s.conn.Exec(`
			INSERT INTO sync_history (owner_user_id, started_at, finished_at, pushed, pulled, failed, status, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, ownerUserID, run.StartedAt, run.FinishedAt, run.Pushed, run.Pulled, run.Failed, run.Status, run.Error)
		if err != nil {
			return fmt.Errorf("record sync run: %w", err)
		}
		return nil
	})
}

// LastSyncRun returns the most recent sync run, or nil.
func (s *Store) LastSyncRun(ownerUserID string) (*SyncRun, error) {
	var run SyncRun
	var errMsg sql.NullString
	err := s.conn.QueryRow(`
		SELECT id, started_at, finished_at, pushed, pulled, failed, status, error
		FROM sync_history WHERE owner_user_id = ?
		ORDER BY id DESC LIMIT 1
	`, ownerUserID).Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Pushed, &run.Pulled, &run.Failed, &run.Status, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.Error = errMsg.String
	return &run, nil
}

// DecodePayload unmarshals an entity payload into out.
func DecodePayload(e *CachedEntity, out any) error {
	return json.Unmarshal(e.Payload, out)
}
