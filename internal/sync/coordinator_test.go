package sync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marcus/brewlog/internal/models"
	"github.com/marcus/brewlog/internal/store"
	"github.com/marcus/brewlog/internal/syncclient"
)

const testUser = "user-1"

// fakeServer is an in-memory sync server backing the coordinator tests.
type fakeServer struct {
	mu       sync.Mutex
	entities map[models.EntityType]map[string]syncclient.EntityResponse
	rejectID map[string]int // entity id -> HTTP status to return
	requests []string       // "METHOD path" in arrival order
	gate     chan struct{}  // when non-nil, handlers block until closed
	srv      *httptest.Server
}

func newFakeServer() *fakeServer {
	f := &fakeServer{
		entities: make(map[models.EntityType]map[string]syncclient.EntityResponse),
		rejectID: make(map[string]int),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeServer) Close() { f.srv.Close() }

func (f *fakeServer) put(typ models.EntityType, ent syncclient.EntityResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entities[typ] == nil {
		f.entities[typ] = make(map[string]syncclient.EntityResponse)
	}
	f.entities[typ][ent.ID] = ent
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/v1/entities/"), "/")
	typ := models.EntityType(parts[0])

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		list := []syncclient.EntityResponse{}
		for _, e := range f.entities[typ] {
			list = append(list, e)
		}
		json.NewEncoder(w).Encode(list)

	case http.MethodPost, http.MethodPut:
		var req struct {
			ID      string          `json:"id"`
			Payload json.RawMessage `json:"payload"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if r.Method == http.MethodPut {
			req.ID = parts[1]
		}
		if status, ok := f.rejectID[req.ID]; ok {
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]string{"code": "rejected", "message": "server said no"})
			return
		}
		if f.entities[typ] == nil {
			f.entities[typ] = make(map[string]syncclient.EntityResponse)
		}
		ent := syncclient.EntityResponse{
			ID:        req.ID,
			Type:      string(typ),
			Version:   f.entities[typ][req.ID].Version + 1,
			Payload:   req.Payload,
			UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		f.entities[typ][req.ID] = ent
		json.NewEncoder(w).Encode(ent)

	case http.MethodDelete:
		id := parts[1]
		if _, ok := f.entities[typ][id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"code": "not_found", "message": "gone"})
			return
		}
		delete(f.entities[typ], id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func recipePayload(name string) json.RawMessage {
	raw, _ := json.Marshal(models.Recipe{Name: name, Style: "ipa"})
	return raw
}

func testCoordinator(t *testing.T, f *fakeServer) (*Coordinator, *store.Store) {
	t.Helper()
	st, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	client := syncclient.New(f.srv.URL, "token", "dev-1")
	c := New(st, client, Options{})
	return c, st
}

// stageLocal caches an entity as locally authored and queues the op.
func stageLocal(t *testing.T, st *store.Store, kind store.OpKind, id, name string) {
	t.Helper()
	payload := recipePayload(name)
	if kind != store.OpDelete {
		if _, err := st.Put(store.CachedEntity{
			OwnerUserID: testUser, Type: models.TypeRecipe, ID: id, Payload: payload,
		}, true); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if err := st.Enqueue(&store.PendingOperation{
		OwnerUserID: testUser, Kind: kind,
		EntityType: models.TypeRecipe, EntityID: id, Payload: payload,
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
}

func TestRunPushesQueueInOrder(t *testing.T) {
	f := newFakeServer()
	defer f.Close()
	c, st := testCoordinator(t, f)

	stageLocal(t, st, store.OpCreate, "r1", "first")
	stageLocal(t, st, store.OpUpdate, "r1", "first edited")
	stageLocal(t, st, store.OpCreate, "r2", "second")

	if err := c.Run(context.Background(), testUser); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var writes []string
	for _, req := range f.requests {
		if strings.HasPrefix(req, "POST") || strings.HasPrefix(req, "PUT") {
			writes = append(writes, req)
		}
	}
	want := []string{
		"POST /v1/entities/recipe",
		"PUT /v1/entities/recipe/r1",
		"POST /v1/entities/recipe",
	}
	if len(writes) != len(want) {
		t.Fatalf("writes: got %v, want %v", writes, want)
	}
	for i := range want {
		if writes[i] != want[i] {
			t.Errorf("writes[%d]: got %s, want %s", i, writes[i], want[i])
		}
	}

	if n, _ := st.CountPending(testUser); n != 0 {
		t.Errorf("queue should be drained, %d left", n)
	}

	// Dirty cleared with the server-assigned version
	got, err := st.Get(testUser, models.TypeRecipe, "r1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Dirty {
		t.Error("entity should be clean after confirmed sync")
	}
	if got.Version != 2 {
		t.Errorf("Version: got %d, want 2", got.Version)
	}

	status := c.Status(testUser)
	if status.State != StateSuccess {
		t.Errorf("State: got %s, want success", status.State)
	}
	if status.Pushed != 3 {
		t.Errorf("Pushed: got %d, want 3", status.Pushed)
	}

	last, _ := st.LastSyncRun(testUser)
	if last == nil || last.Status != "success" {
		t.Errorf("history should record a success run, got %+v", last)
	}
}

func TestRunDirtyStaysUntilAllOpsConfirmed(t *testing.T) {
	f := newFakeServer()
	defer f.Close()
	c, st := testCoordinator(t, f)

	// Two queued ops for the same entity: dirty must survive the first ack
	stageLocal(t, st, store.OpCreate, "r1", "v1")
	stageLocal(t, st, store.OpUpdate, "r1", "v2")

	if err := c.Run(context.Background(), testUser); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got, _ := st.Get(testUser, models.TypeRecipe, "r1")
	if got.Dirty {
		t.Error("dirty should clear once every op is confirmed")
	}
}

func TestRunPartialFailure(t *testing.T) {
	f := newFakeServer()
	defer f.Close()
	c, st := testCoordinator(t, f)

	stageLocal(t, st, store.OpCreate, "r1", "fine")
	stageLocal(t, st, store.OpCreate, "bad", "rejected")
	stageLocal(t, st, store.OpCreate, "r3", "also fine")
	f.rejectID["bad"] = http.StatusUnprocessableEntity

	err := c.Run(context.Background(), testUser)
	if err == nil {
		t.Fatal("Run should report the permanent failure")
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Errorf("aggregated error should name the failed op: %v", err)
	}

	// The good ops landed despite the failure in the middle
	f.mu.Lock()
	_, ok1 := f.entities[models.TypeRecipe]["r1"]
	_, ok3 := f.entities[models.TypeRecipe]["r3"]
	f.mu.Unlock()
	if !ok1 || !ok3 {
		t.Error("unrelated ops should be delivered")
	}

	if n, _ := st.CountPending(testUser); n != 0 {
		t.Errorf("rejected op should leave the queue, %d left", n)
	}
	dead, _ := st.DeadOperations(testUser, 10)
	if len(dead) != 1 || dead[0].EntityID != "bad" {
		t.Errorf("dead ops: got %+v, want the rejected op", dead)
	}

	status := c.Status(testUser)
	if status.State != StateFailed {
		t.Errorf("State: got %s, want failed", status.State)
	}
	if status.Failed != 1 || status.Pushed != 2 {
		t.Errorf("counts: pushed %d failed %d, want 2/1", status.Pushed, status.Failed)
	}
}

func TestRunTransientFailureKeepsOp(t *testing.T) {
	f := newFakeServer()
	defer f.Close()
	c, st := testCoordinator(t, f)

	stageLocal(t, st, store.OpCreate, "flaky", "try again")
	f.rejectID["flaky"] = http.StatusServiceUnavailable

	if err := c.Run(context.Background(), testUser); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Op is rescheduled, not dead
	if n, _ := st.CountPending(testUser); n != 1 {
		t.Fatalf("pending: got %d, want 1", n)
	}
	dead, _ := st.DeadOperations(testUser, 10)
	if len(dead) != 0 {
		t.Errorf("transient failure must not kill the op: %+v", dead)
	}

	// Next run after the backoff delivers it
	f.mu.Lock()
	delete(f.rejectID, "flaky")
	f.mu.Unlock()
	st.SetClock(func() time.Time { return time.Now().Add(time.Minute) })

	if err := c.Run(context.Background(), testUser); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if n, _ := st.CountPending(testUser); n != 0 {
		t.Errorf("op should be delivered on retry, %d left", n)
	}
}

func TestRunUnauthorizedAborts(t *testing.T) {
	f := newFakeServer()
	defer f.Close()
	c, st := testCoordinator(t, f)

	stageLocal(t, st, store.OpCreate, "r1", "blocked")
	f.rejectID["r1"] = http.StatusUnauthorized

	err := c.Run(context.Background(), testUser)
	if err == nil {
		t.Fatal("Run should fail on 401")
	}
	if !errors.Is(err, syncclient.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}

	// Queue intact: the op is not the problem, the session is
	if n, _ := st.CountPending(testUser); n != 1 {
		t.Errorf("pending: got %d, want 1", n)
	}
	dead, _ := st.DeadOperations(testUser, 10)
	if len(dead) != 0 {
		t.Errorf("401 must not kill ops: %+v", dead)
	}
}

func TestRunDeleteConfirmsTombstone(t *testing.T) {
	f := newFakeServer()
	defer f.Close()
	c, st := testCoordinator(t, f)

	// Entity exists on both sides
	f.put(models.TypeRecipe, syncclient.EntityResponse{
		ID: "r1", Type: "recipe", Version: 1,
		Payload: recipePayload("doomed"), UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if _, err := st.Put(store.CachedEntity{
		OwnerUserID: testUser, Type: models.TypeRecipe, ID: "r1",
		Payload: recipePayload("doomed"), Version: 1,
	}, false); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := st.PutTombstone(testUser, models.TypeRecipe, "r1"); err != nil {
		t.Fatalf("PutTombstone failed: %v", err)
	}
	stageLocal(t, st, store.OpDelete, "r1", "")

	if err := c.Run(context.Background(), testUser); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	f.mu.Lock()
	_, stillThere := f.entities[models.TypeRecipe]["r1"]
	f.mu.Unlock()
	if stillThere {
		t.Error("entity should be deleted remotely")
	}

	has, _ := st.HasUnconfirmedTombstone(testUser, "r1")
	if has {
		t.Error("tombstone should be confirmed")
	}
	if _, err := st.Get(testUser, models.TypeRecipe, "r1"); !errors.Is(err, store.ErrNotFound) {
		t.Error("cached row should be destroyed")
	}
}

func TestPullPopulatesCache(t *testing.T) {
	f := newFakeServer()
	defer f.Close()
	c, st := testCoordinator(t, f)

	f.put(models.TypeRecipe, syncclient.EntityResponse{
		ID: "r1", Type: "recipe", Version: 4,
		Payload: recipePayload("from server"), UpdatedAt: "2026-03-01T10:00:00Z",
	})

	if err := c.Run(context.Background(), testUser); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got, err := st.Get(testUser, models.TypeRecipe, "r1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Version != 4 {
		t.Errorf("Version: got %d, want 4", got.Version)
	}
	if got.Dirty {
		t.Error("pulled entity should be clean")
	}
	if c.Status(testUser).Pulled != 1 {
		t.Errorf("Pulled: got %d, want 1", c.Status(testUser).Pulled)
	}
}

func TestPullSkipsAfterPermanentFailure(t *testing.T) {
	f := newFakeServer()
	defer f.Close()
	c, st := testCoordinator(t, f)

	f.put(models.TypeRecipe, syncclient.EntityResponse{
		ID: "remote", Type: "recipe", Version: 1,
		Payload: recipePayload("should not land"), UpdatedAt: "2026-03-01T10:00:00Z",
	})
	stageLocal(t, st, store.OpCreate, "bad", "rejected")
	f.rejectID["bad"] = http.StatusUnprocessableEntity

	c.Run(context.Background(), testUser)

	if _, err := st.Get(testUser, models.TypeRecipe, "remote"); !errors.Is(err, store.ErrNotFound) {
		t.Error("pull must be skipped when the drain had permanent failures")
	}
}

func TestTombstoneConfirmedWhenAbsentRemotely(t *testing.T) {
	f := newFakeServer()
	defer f.Close()
	c, st := testCoordinator(t, f)

	// Delete already landed in an earlier run that died before
	// confirmation: tombstone unconfirmed, queue empty, server clean.
	st.PutTombstone(testUser, models.TypeRecipe, "r1")

	if err := c.Run(context.Background(), testUser); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	has, _ := st.HasUnconfirmedTombstone(testUser, "r1")
	if has {
		t.Error("tombstone should be confirmed when the server lacks the entity")
	}
}

func TestTombstoneRematerializesWhenDeleteNeverLanded(t *testing.T) {
	f := newFakeServer()
	defer f.Close()
	c, st := testCoordinator(t, f)

	f.put(models.TypeRecipe, syncclient.EntityResponse{
		ID: "r1", Type: "recipe", Version: 3,
		Payload: recipePayload("still alive"), UpdatedAt: "2026-03-01T10:00:00Z",
	})
	// Tombstone with no queued delete: the delete op is gone (e.g.
	// rejected permanently) but the entity survived server-side.
	st.PutTombstone(testUser, models.TypeRecipe, "r1")

	if err := c.Run(context.Background(), testUser); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	has, _ := st.HasUnconfirmedTombstone(testUser, "r1")
	if has {
		t.Error("tombstone should be dropped")
	}
	got, err := st.Get(testUser, models.TypeRecipe, "r1")
	if err != nil {
		t.Fatalf("entity should be re-materialized: %v", err)
	}
	if got.Version != 3 {
		t.Errorf("Version: got %d, want 3", got.Version)
	}
}

func TestTombstoneWithPendingDeleteUntouched(t *testing.T) {
	f := newFakeServer()
	defer f.Close()
	c, st := testCoordinator(t, f)

	f.put(models.TypeRecipe, syncclient.EntityResponse{
		ID: "r1", Type: "recipe", Version: 1,
		Payload: recipePayload("queued for delete"), UpdatedAt: "2026-03-01T10:00:00Z",
	})
	st.PutTombstone(testUser, models.TypeRecipe, "r1")
	// Delete queued but deferred by backoff: reconcile must not settle it
	stageLocal(t, st, store.OpDelete, "r1", "")
	st.Fail(testUser, mustFirstOpID(t, st), errors.New("connection refused"))

	if err := c.Run(context.Background(), testUser); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	has, _ := st.HasUnconfirmedTombstone(testUser, "r1")
	if !has {
		t.Error("tombstone must stay unconfirmed while its delete is queued")
	}
}

func mustFirstOpID(t *testing.T, st *store.Store) int64 {
	t.Helper()
	ops, err := st.PeekBatch(testUser, 1)
	if err != nil || len(ops) == 0 {
		t.Fatalf("expected a queued op: %v", err)
	}
	return ops[0].OpID
}

func TestSingleFlight(t *testing.T) {
	f := newFakeServer()
	defer f.Close()
	c, st := testCoordinator(t, f)

	stageLocal(t, st, store.OpCreate, "r1", "slow")

	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), testUser) }()

	// Wait until the first run is inside the server
	deadline := time.After(2 * time.Second)
	for {
		f.mu.Lock()
		n := len(f.requests)
		f.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first run never reached the server")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Second trigger is a no-op, not queued
	if err := c.Run(context.Background(), testUser); err != nil {
		t.Fatalf("concurrent Run should no-op, got %v", err)
	}
	if st := c.Status(testUser); st.State != StateSyncing {
		t.Errorf("State during run: got %s, want syncing", st.State)
	}

	f.mu.Lock()
	f.gate = nil
	f.mu.Unlock()
	close(gate)

	if err := <-done; err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
}

func TestCancelStopsRun(t *testing.T) {
	f := newFakeServer()
	defer f.Close()
	c, st := testCoordinator(t, f)

	stageLocal(t, st, store.OpCreate, "r1", "a")
	stageLocal(t, st, store.OpCreate, "r2", "b")

	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), testUser) }()

	deadline := time.After(2 * time.Second)
	for {
		f.mu.Lock()
		n := len(f.requests)
		f.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("run never reached the server")
		case <-time.After(5 * time.Millisecond):
		}
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		f.mu.Lock()
		f.gate = nil
		f.mu.Unlock()
		close(gate)
	}()

	c.Cancel(testUser) // blocks until the run unwinds

	if err := <-done; err == nil {
		t.Error("cancelled run should report an error")
	}
	if st := c.Status(testUser); st.State != StateFailed {
		t.Errorf("State after cancel: got %s, want failed", st.State)
	}

	// ResetStatus brings it back to idle (logout path)
	c.ResetStatus(testUser)
	if st := c.Status(testUser); st.State != StateIdle {
		t.Errorf("State after reset: got %s, want idle", st.State)
	}
}

func TestSubscribeSeesTransitions(t *testing.T) {
	f := newFakeServer()
	defer f.Close()
	c, st := testCoordinator(t, f)

	stageLocal(t, st, store.OpCreate, "r1", "watched")

	var mu sync.Mutex
	var states []State
	c.Subscribe(func(userID string, s Status) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	})

	if err := c.Run(context.Background(), testUser); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 2 || states[0] != StateSyncing || states[1] != StateSuccess {
		t.Errorf("transitions: got %v, want [syncing success]", states)
	}
}

func TestOnForegroundCooldowns(t *testing.T) {
	f := newFakeServer()
	defer f.Close()

	st, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	defer st.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	clock := func() time.Time { return now }
	st.SetClock(clock)

	c := New(st, syncclient.New(f.srv.URL, "token", "dev-1"), Options{Now: clock})

	countRequests := func() int {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.requests)
	}

	// First foreground: both cooldowns are cold, the full refresh runs
	c.OnForeground(context.Background(), testUser)
	after := countRequests()
	if after == 0 {
		t.Fatal("first foreground should trigger a refresh")
	}

	// Within both cooldowns: nothing happens
	now = base.Add(time.Minute)
	c.OnForeground(context.Background(), testUser)
	if countRequests() != after {
		t.Error("foreground within cooldowns should be quiet")
	}

	// Past the cleanup cooldown but inside the refresh cooldown: still
	// no network traffic, cleanup is local
	now = base.Add(10 * time.Minute)
	c.OnForeground(context.Background(), testUser)
	if countRequests() != after {
		t.Error("cleanup pass must not hit the network")
	}

	// Past the refresh cooldown: another full run
	now = base.Add(5 * time.Hour)
	c.OnForeground(context.Background(), testUser)
	if countRequests() == after {
		t.Error("foreground past the refresh cooldown should sync")
	}
}

func TestParseTimestamp(t *testing.T) {
	fallback := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		in   string
		want string
	}{
		{"2026-03-01T10:00:00Z", "2026-03-01T10:00:00Z"},
		{"2026-03-01T10:00:00.5Z", "2026-03-01T10:00:00.5Z"},
		{"2026-03-01 10:00:00", "2026-03-01T10:00:00Z"},
		{"garbage", "2026-01-01T00:00:00Z"},
	}
	for _, c := range cases {
		got := parseTimestamp(c.in, fallback)
		want, _ := time.Parse(time.RFC3339Nano, c.want)
		if !got.Equal(want) {
			t.Errorf("parseTimestamp(%q): got %v, want %v", c.in, got, want)
		}
	}
}
