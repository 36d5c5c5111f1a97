package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcus/brewlog/internal/models"
	"github.com/marcus/brewlog/internal/store"
	"github.com/marcus/brewlog/internal/syncclient"
)

// pull fetches remote state for every entity type and reconciles it
// into the cache, then settles unconfirmed tombstones against what the
// server reported.
func (c *Coordinator) pull(ctx context.Context, userID string) (int, error) {
	pulled := 0
	remote := make(map[string]syncclient.EntityResponse)

	for _, typ := range models.EntityTypes {
		list, err := c.client.ListEntities(ctx, typ)
		if err != nil {
			return pulled, fmt.Errorf("list %s: %w", typ, err)
		}
		for _, ent := range list {
			remote[ent.ID] = ent
			if c.applyRemote(userID, typ, ent) {
				pulled++
			}
		}
	}

	if err := c.reconcileTombstones(userID, remote); err != nil {
		return pulled, err
	}
	return pulled, nil
}

// applyRemote writes one pulled entity into the cache. Rejections are
// logged, never fatal: a malformed or tombstoned remote entity must not
// abort the rest of the pull.
func (c *Coordinator) applyRemote(userID string, typ models.EntityType, ent syncclient.EntityResponse) bool {
	e := store.CachedEntity{
		OwnerUserID: userID,
		Type:        typ,
		ID:          ent.ID,
		Payload:     ent.Payload,
		Version:     ent.Version,
		UpdatedAt:   parseTimestamp(ent.UpdatedAt, c.now().UTC()),
	}
	_, err := c.store.Put(e, false)
	switch {
	case errors.Is(err, store.ErrTombstoned):
		slog.Debug("pull skipped tombstoned entity", "type", typ, "id", ent.ID)
		return false
	case err != nil:
		slog.Warn("pull rejected entity", "type", typ, "id", ent.ID, "err", err)
		return false
	}
	return true
}

// reconcileTombstones settles local deletes against the pulled state.
// An entity absent from the pull was deleted server-side too, so the
// tombstone is confirmed. An entity still present with no delete left
// in the queue means the delete never reached the server; the local
// record re-materializes rather than silently diverging.
func (c *Coordinator) reconcileTombstones(userID string, remote map[string]syncclient.EntityResponse) error {
	tombs, err := c.store.UnconfirmedTombstones(userID)
	if err != nil {
		return fmt.Errorf("list tombstones: %w", err)
	}
	for _, t := range tombs {
		pending, err := c.store.HasPendingOps(userID, t.EntityID)
		if err != nil {
			return err
		}
		if pending {
			// Delete still queued; nothing to settle yet.
			continue
		}
		ent, present := remote[t.EntityID]
		if !present {
			if err := c.store.MarkTombstoneSynced(userID, t.EntityID); err != nil {
				return fmt.Errorf("confirm tombstone %s: %w", t.EntityID, err)
			}
			continue
		}
		slog.Warn("deleted entity still present remotely, restoring",
			"type", t.EntityType, "id", t.EntityID)
		if err := c.store.DeleteTombstone(userID, t.EntityID); err != nil {
			return fmt.Errorf("drop tombstone %s: %w", t.EntityID, err)
		}
		c.applyRemote(userID, t.EntityType, ent)
	}
	return nil
}

// timestampFormats covers the shapes servers hand back for updated_at.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string, fallback time.Time) time.Time {
	for _, f := range timestampFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t.UTC()
		}
	}
	return fallback
}
