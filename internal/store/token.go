package store

import (
	"database/sql"
	"fmt"
)

// SaveToken writes the single auth token slot for a user.
func (s *Store) SaveToken(ownerUserID, token string) error {
	return s.withUserLock(ownerUserID, func() error {
		_, err := s.conn.Exec(`
			INSERT OR REPLACE INTO auth_token (owner_user_id, token, saved_at)
			VALUES (?, ?, ?)
		`, ownerUserID, token, s.now().UTC())
		if err != nil {
			return fmt.Errorf("save token: %w", err)
		}
		return nil
	})
}

// LoadToken reads the stored token for a user, or ErrNotFound.
func (s *Store) LoadToken(ownerUserID string) (string, error) {
	var token string
	err := s.conn.QueryRow(`SELECT token FROM auth_token WHERE owner_user_id = ?`, ownerUserID).Scan(&token)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

// ClearToken removes the stored token for a user. Idempotent.
func (s *Store) ClearToken(ownerUserID string) error {
	return s.withUserLock(ownerUserID, func() error {
		_, err := s.conn.Exec(`DELETE FROM auth_token WHERE owner_user_id = ?`, ownerUserID)
		return err
	})
}
