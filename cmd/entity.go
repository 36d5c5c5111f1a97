package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/marcus/brewlog/internal/models"
	"github.com/marcus/brewlog/internal/output"
	"github.com/marcus/brewlog/internal/store"
)

// createEntity caches a locally authored entity and queues the create.
// The write lands locally whether or not the network is up; sync picks
// the queued operation up later.
func createEntity(a *app, userID string, typ models.EntityType, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	id := uuid.NewString()
	if _, err := a.store.Put(store.CachedEntity{
		OwnerUserID: userID,
		Type:        typ,
		ID:          id,
		Payload:     raw,
	}, true); err != nil {
		return "", err
	}

	if err := a.store.Enqueue(&store.PendingOperation{
		OwnerUserID: userID,
		Kind:        store.OpCreate,
		EntityType:  typ,
		EntityID:    id,
		Payload:     raw,
	}); err != nil {
		return "", err
	}

	maybeAutoSync(a, userID)
	return id, nil
}

// updateEntity rewrites a cached entity's payload and queues the update.
func updateEntity(a *app, userID string, typ models.EntityType, id string, raw json.RawMessage) error {
	if _, err := a.store.Put(store.CachedEntity{
		OwnerUserID: userID,
		Type:        typ,
		ID:          id,
		Payload:     raw,
	}, true); err != nil {
		return err
	}

	if err := a.store.Enqueue(&store.PendingOperation{
		OwnerUserID: userID,
		Kind:        store.OpUpdate,
		EntityType:  typ,
		EntityID:    id,
		Payload:     raw,
	}); err != nil {
		return err
	}

	maybeAutoSync(a, userID)
	return nil
}

// removeEntity tombstones a cached entity and queues the delete. The
// entity disappears from listings immediately; the row itself survives
// until the server confirms the delete.
func removeEntity(a *app, userID string, typ models.EntityType, id string) error {
	if _, err := a.store.Get(userID, typ, id); err != nil {
		return err
	}

	if err := a.store.PutTombstone(userID, typ, id); err != nil {
		return err
	}

	if err := a.store.Enqueue(&store.PendingOperation{
		OwnerUserID: userID,
		Kind:        store.OpDelete,
		EntityType:  typ,
		EntityID:    id,
	}); err != nil {
		return err
	}

	maybeAutoSync(a, userID)
	return nil
}

// listEntities prints a type's entities with the un-synced marker.
func listEntities(a *app, userID string, typ models.EntityType, name func(json.RawMessage) string) error {
	entities, err := a.store.ListByType(userID, typ)
	if err != nil {
		return err
	}
	if len(entities) == 0 {
		fmt.Printf("No %ss.\n", typ)
		return nil
	}
	for _, e := range entities {
		fmt.Printf("%s %s  %s\n", output.DirtyMarker(e.Dirty), shortID(e.ID), name(e.Payload))
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// resolveID expands an id prefix to the full entity id. Errors when the
// prefix is ambiguous or matches nothing.
func resolveID(a *app, userID string, typ models.EntityType, prefix string) (string, error) {
	entities, err := a.store.ListByType(userID, typ)
	if err != nil {
		return "", err
	}
	var match string
	for _, e := range entities {
		if e.ID == prefix {
			return e.ID, nil
		}
		if len(prefix) >= 4 && len(e.ID) >= len(prefix) && e.ID[:len(prefix)] == prefix {
			if match != "" {
				return "", fmt.Errorf("ambiguous id prefix: %s", prefix)
			}
			match = e.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no %s matching %q", typ, prefix)
	}
	return match, nil
}

// showEntity prints one entity's payload as JSON.
func showEntity(a *app, userID string, typ models.EntityType, id string) error {
	e, err := a.store.Get(userID, typ, id)
	if err != nil {
		return err
	}
	var v any
	if err := store.DecodePayload(e, &v); err != nil {
		return err
	}
	if e.Dirty {
		output.Warning("un-synced local changes")
	}
	return output.JSON(v)
}
