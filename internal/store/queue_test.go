package store

import (
	"errors"
	"testing"
	"time"

	"github.com/marcus/brewlog/internal/models"
)

func enqueueN(t *testing.T, s *Store, ids ...string) []int64 {
	t.Helper()
	var opIDs []int64
	for _, id := range ids {
		op := &PendingOperation{
			OwnerUserID: testUser,
			Kind:        OpCreate,
			EntityType:  models.TypeRecipe,
			EntityID:    id,
			Payload:     recipePayload(id),
		}
		if err := s.Enqueue(op); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		opIDs = append(opIDs, op.OpID)
	}
	return opIDs
}

func TestEnqueueAssignsIncreasingIDs(t *testing.T) {
	s := testStore(t)

	ids := enqueueN(t, s, "a", "b", "c")
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("op ids not strictly increasing: %v", ids)
		}
	}
}

func TestEnqueueRejectsUnknownKind(t *testing.T) {
	s := testStore(t)

	err := s.Enqueue(&PendingOperation{OwnerUserID: testUser, Kind: "upsert", EntityType: models.TypeRecipe, EntityID: "x"})
	if err == nil {
		t.Fatal("unknown kind should be rejected")
	}
}

func TestPeekBatchFIFO(t *testing.T) {
	s := testStore(t)

	enqueueN(t, s, "a", "b", "c")

	ops, err := s.PeekBatch(testUser, 10)
	if err != nil {
		t.Fatalf("PeekBatch failed: %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("batch size: got %d, want 3", len(ops))
	}
	want := []string{"a", "b", "c"}
	for i, op := range ops {
		if op.EntityID != want[i] {
			t.Errorf("ops[%d]: got %s, want %s", i, op.EntityID, want[i])
		}
	}

	// Peek does not remove
	if n, _ := s.CountPending(testUser); n != 3 {
		t.Errorf("CountPending after peek: got %d, want 3", n)
	}
}

func TestAckRemovesAndIsIdempotent(t *testing.T) {
	s := testStore(t)

	ids := enqueueN(t, s, "a", "b")

	if err := s.Ack(testUser, ids[0]); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}
	if n, _ := s.CountPending(testUser); n != 1 {
		t.Fatalf("CountPending: got %d, want 1", n)
	}

	// Second ack of the same id is a no-op
	if err := s.Ack(testUser, ids[0]); err != nil {
		t.Fatalf("repeat Ack failed: %v", err)
	}
	if n, _ := s.CountPending(testUser); n != 1 {
		t.Errorf("CountPending after repeat ack: got %d, want 1", n)
	}
}

func TestFailSchedulesBackoff(t *testing.T) {
	s := testStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s.SetClock(func() time.Time { return now })

	ids := enqueueN(t, s, "a")

	if err := s.Fail(testUser, ids[0], errors.New("connection refused")); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	// Not yet due
	ops, _ := s.PeekBatch(testUser, 10)
	if len(ops) != 0 {
		t.Fatalf("op should be deferred, got %d", len(ops))
	}

	// First retry is due after the 2s base delay
	now = base.Add(3 * time.Second)
	ops, _ = s.PeekBatch(testUser, 10)
	if len(ops) != 1 {
		t.Fatalf("op should be due, got %d", len(ops))
	}
	if ops[0].Attempts != 1 {
		t.Errorf("Attempts: got %d, want 1", ops[0].Attempts)
	}
	if ops[0].LastError != "connection refused" {
		t.Errorf("LastError: got %q", ops[0].LastError)
	}
}

func TestBackoffDelayCaps(t *testing.T) {
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{8, 256 * time.Second},
		{9, 5 * time.Minute},
		{50, 5 * time.Minute},
	}
	for _, c := range cases {
		if got := backoffDelay(c.attempts); got != c.want {
			t.Errorf("backoffDelay(%d): got %v, want %v", c.attempts, got, c.want)
		}
	}
}

func TestFailPermanentMovesToDead(t *testing.T) {
	s := testStore(t)

	ids := enqueueN(t, s, "a", "b")

	if err := s.FailPermanent(testUser, ids[0], errors.New("422 validation failed")); err != nil {
		t.Fatalf("FailPermanent failed: %v", err)
	}

	if n, _ := s.CountPending(testUser); n != 1 {
		t.Fatalf("CountPending: got %d, want 1", n)
	}

	dead, err := s.DeadOperations(testUser, 10)
	if err != nil {
		t.Fatalf("DeadOperations failed: %v", err)
	}
	if len(dead) != 1 {
		t.Fatalf("dead ops: got %d, want 1", len(dead))
	}
	if dead[0].EntityID != "a" {
		t.Errorf("dead op entity: got %s, want a", dead[0].EntityID)
	}
	if dead[0].LastError != "422 validation failed" {
		t.Errorf("dead op error: got %q", dead[0].LastError)
	}
}

func TestHasPendingOps(t *testing.T) {
	s := testStore(t)

	ids := enqueueN(t, s, "a")

	has, err := s.HasPendingOps(testUser, "a")
	if err != nil {
		t.Fatalf("HasPendingOps failed: %v", err)
	}
	if !has {
		t.Error("expected pending op for a")
	}

	s.Ack(testUser, ids[0])
	has, _ = s.HasPendingOps(testUser, "a")
	if has {
		t.Error("no pending op should remain after ack")
	}
}
