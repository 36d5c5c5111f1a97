package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marcus/brewlog/internal/models"
)

const testUser = "user-1"

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func recipePayload(name string) json.RawMessage {
	raw, _ := json.Marshal(models.Recipe{Name: name, Style: "ipa"})
	return raw
}

func putLocal(t *testing.T, s *Store, id, name string) *CachedEntity {
	t.Helper()
	e, err := s.Put(CachedEntity{
		OwnerUserID: testUser,
		Type:        models.TypeRecipe,
		ID:          id,
		Payload:     recipePayload(name),
	}, true)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	return e
}

func TestInitialize(t *testing.T) {
	dir := t.TempDir()

	s, err := Initialize(dir)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer s.Close()

	dbPath := filepath.Join(dir, ".brewlog", "cache.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file not created")
	}
}

func TestOpenWithoutInit(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Fatal("Open without init should fail")
	}
}

func TestPutAndGet(t *testing.T) {
	s := testStore(t)

	putLocal(t, s, "r1", "West Coast IPA")

	got, err := s.Get(testUser, models.TypeRecipe, "r1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Dirty {
		t.Error("locally authored entity should be dirty")
	}

	var r models.Recipe
	if err := json.Unmarshal(got.Payload, &r); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if r.Name != "West Coast IPA" {
		t.Errorf("Name mismatch: got %s, want West Coast IPA", r.Name)
	}
}

func TestGetNotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.Get(testUser, models.TypeRecipe, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestPutRejectsInvalidPayload(t *testing.T) {
	s := testStore(t)

	_, err := s.Put(CachedEntity{
		OwnerUserID: testUser,
		Type:        models.TypeRecipe,
		ID:          "r1",
		Payload:     json.RawMessage(`{"style":"ipa"}`), // no name
	}, true)
	if err == nil {
		t.Fatal("Put should reject payload without name")
	}
}

func TestLocalWriteKeepsVersion(t *testing.T) {
	s := testStore(t)

	// Pull establishes a server version
	if _, err := s.Put(CachedEntity{
		OwnerUserID: testUser,
		Type:        models.TypeRecipe,
		ID:          "r1",
		Payload:     recipePayload("v3"),
		Version:     3,
	}, false); err != nil {
		t.Fatalf("pull Put failed: %v", err)
	}

	// Local edit keeps the version; only the server assigns versions
	putLocal(t, s, "r1", "edited")

	got, err := s.Get(testUser, models.TypeRecipe, "r1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Version != 3 {
		t.Errorf("Version: got %d, want 3", got.Version)
	}
	if !got.Dirty {
		t.Error("local edit should set dirty")
	}
}

func TestPullSkipsDirtyEqualVersion(t *testing.T) {
	s := testStore(t)

	if _, err := s.Put(CachedEntity{
		OwnerUserID: testUser, Type: models.TypeRecipe, ID: "r1",
		Payload: recipePayload("server"), Version: 2,
	}, false); err != nil {
		t.Fatalf("pull Put failed: %v", err)
	}
	putLocal(t, s, "r1", "local edit")

	// Equal version: local wins
	if _, err := s.Put(CachedEntity{
		OwnerUserID: testUser, Type: models.TypeRecipe, ID: "r1",
		Payload: recipePayload("server again"), Version: 2,
	}, false); err != nil {
		t.Fatalf("pull Put failed: %v", err)
	}

	got, _ := s.Get(testUser, models.TypeRecipe, "r1")
	var r models.Recipe
	json.Unmarshal(got.Payload, &r)
	if r.Name != "local edit" {
		t.Errorf("dirty entity overwritten at equal version: got %s", r.Name)
	}
	if !got.Dirty {
		t.Error("dirty flag should survive a skipped pull")
	}
}

func TestPullOverwritesDirtyWithNewerVersion(t *testing.T) {
	s := testStore(t)

	if _, err := s.Put(CachedEntity{
		OwnerUserID: testUser, Type: models.TypeRecipe, ID: "r1",
		Payload: recipePayload("server"), Version: 2,
	}, false); err != nil {
		t.Fatalf("pull Put failed: %v", err)
	}
	putLocal(t, s, "r1", "local edit")

	if _, err := s.Put(CachedEntity{
		OwnerUserID: testUser, Type: models.TypeRecipe, ID: "r1",
		Payload: recipePayload("newer server"), Version: 5,
	}, false); err != nil {
		t.Fatalf("pull Put failed: %v", err)
	}

	got, _ := s.Get(testUser, models.TypeRecipe, "r1")
	var r models.Recipe
	json.Unmarshal(got.Payload, &r)
	if r.Name != "newer server" {
		t.Errorf("newer remote version should win: got %s", r.Name)
	}
	if got.Dirty {
		t.Error("overwritten entity should not stay dirty")
	}

	// The overwrite leaves a conflict record behind
	conflicts, err := s.RecentConflicts(testUser, 10)
	if err != nil {
		t.Fatalf("RecentConflicts failed: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("conflicts: got %d, want 1", len(conflicts))
	}
	if conflicts[0].LocalVersion != 2 || conflicts[0].RemoteVersion != 5 {
		t.Errorf("conflict versions: got %d/%d, want 2/5", conflicts[0].LocalVersion, conflicts[0].RemoteVersion)
	}
}

func TestPullSkipsDirtyWithPendingOps(t *testing.T) {
	s := testStore(t)

	putLocal(t, s, "r1", "local")
	if err := s.Enqueue(&PendingOperation{
		OwnerUserID: testUser, Kind: OpCreate,
		EntityType: models.TypeRecipe, EntityID: "r1", Payload: recipePayload("local"),
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Even a newer version loses while an op is queued for the entity
	if _, err := s.Put(CachedEntity{
		OwnerUserID: testUser, Type: models.TypeRecipe, ID: "r1",
		Payload: recipePayload("server"), Version: 9,
	}, false); err != nil {
		t.Fatalf("pull Put failed: %v", err)
	}

	got, _ := s.Get(testUser, models.TypeRecipe, "r1")
	var r models.Recipe
	json.Unmarshal(got.Payload, &r)
	if r.Name != "local" {
		t.Errorf("pending op should block overwrite: got %s", r.Name)
	}
}

func TestPullRejectedByTombstone(t *testing.T) {
	s := testStore(t)

	putLocal(t, s, "r1", "doomed")
	if err := s.PutTombstone(testUser, models.TypeRecipe, "r1"); err != nil {
		t.Fatalf("PutTombstone failed: %v", err)
	}

	_, err := s.Put(CachedEntity{
		OwnerUserID: testUser, Type: models.TypeRecipe, ID: "r1",
		Payload: recipePayload("resurrected"), Version: 4,
	}, false)
	if !errors.Is(err, ErrTombstoned) {
		t.Fatalf("got %v, want ErrTombstoned", err)
	}
}

func TestListByTypeExcludesTombstoned(t *testing.T) {
	s := testStore(t)

	putLocal(t, s, "r1", "keep")
	putLocal(t, s, "r2", "delete me")
	if err := s.PutTombstone(testUser, models.TypeRecipe, "r2"); err != nil {
		t.Fatalf("PutTombstone failed: %v", err)
	}

	list, err := s.ListByType(testUser, models.TypeRecipe)
	if err != nil {
		t.Fatalf("ListByType failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("list length: got %d, want 1", len(list))
	}
	if list[0].ID != "r1" {
		t.Errorf("list[0]: got %s, want r1", list[0].ID)
	}
}

func TestClearDirty(t *testing.T) {
	s := testStore(t)

	putLocal(t, s, "r1", "synced now")
	if err := s.ClearDirty(testUser, models.TypeRecipe, "r1", 7); err != nil {
		t.Fatalf("ClearDirty failed: %v", err)
	}

	got, _ := s.Get(testUser, models.TypeRecipe, "r1")
	if got.Dirty {
		t.Error("dirty should be cleared")
	}
	if got.Version != 7 {
		t.Errorf("Version: got %d, want 7", got.Version)
	}
}

func TestClearForUser(t *testing.T) {
	s := testStore(t)

	putLocal(t, s, "r1", "mine")
	s.Enqueue(&PendingOperation{OwnerUserID: testUser, Kind: OpCreate, EntityType: models.TypeRecipe, EntityID: "r1"})
	s.PutTombstone(testUser, models.TypeRecipe, "r9")
	s.SaveToken(testUser, "tok")

	// A second user's data must survive the wipe
	other := "user-2"
	if _, err := s.Put(CachedEntity{
		OwnerUserID: other, Type: models.TypeRecipe, ID: "r1", Payload: recipePayload("theirs"),
	}, true); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := s.ClearForUser(testUser); err != nil {
		t.Fatalf("ClearForUser failed: %v", err)
	}

	if _, err := s.Get(testUser, models.TypeRecipe, "r1"); !errors.Is(err, ErrNotFound) {
		t.Error("entities should be gone after ClearForUser")
	}
	if n, _ := s.CountPending(testUser); n != 0 {
		t.Errorf("pending ops: got %d, want 0", n)
	}
	if _, err := s.LoadToken(testUser); !errors.Is(err, ErrNotFound) {
		t.Error("token should be gone after ClearForUser")
	}
	if _, err := s.Get(other, models.TypeRecipe, "r1"); err != nil {
		t.Errorf("other user's entity should survive: %v", err)
	}
}

func TestLastModifiedWatermark(t *testing.T) {
	s := testStore(t)

	if !s.LastModified().IsZero() {
		t.Error("watermark should start zero")
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })

	putLocal(t, s, "r1", "tick")

	if got := s.LastModified(); !got.Equal(base) {
		t.Errorf("LastModified: got %v, want %v", got, base)
	}
}
