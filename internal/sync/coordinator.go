// Package sync orchestrates queue drain, remote pull, and cache
// reconciliation for one user at a time.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/marcus/brewlog/internal/store"
	"github.com/marcus/brewlog/internal/syncclient"
)

// State is the coordinator's observable run state.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateSuccess State = "success"
	StateFailed  State = "failed"
)

// Status is a snapshot of the coordinator's state for one user.
type Status struct {
	State      State
	LastError  string
	LastSyncAt time.Time
	Pushed     int
	Pulled     int
	Failed     int
}

// Options tunes a Coordinator. Zero values take defaults.
type Options struct {
	BatchSize          int
	TombstoneRetention time.Duration
	CleanupCooldown    time.Duration
	PeriodicRefresh    time.Duration
	Now                func() time.Time
}

const (
	defaultBatchSize          = 50
	defaultTombstoneRetention = 7 * 24 * time.Hour
)

// Coordinator runs the sync loop: drain the pending queue oldest-first,
// then pull remote state and reconcile it into the cache. At most one
// run per user executes at a time; a second trigger while syncing is a
// no-op, not queued.
type Coordinator struct {
	store  *store.Store
	client *syncclient.Client
	now    func() time.Time

	batchSize          int
	tombstoneRetention time.Duration
	cleanupCooldown    time.Duration
	periodicRefresh    time.Duration

	mu        sync.Mutex
	runs      map[string]*userRun
	observers []func(userID string, s Status)
}

// userRun is the per-user in-flight flag, cancellation handle, trigger
// cooldowns, and last observed status.
type userRun struct {
	inflight    bool
	cancel      context.CancelFunc
	done        chan struct{}
	status      Status
	lastCleanup time.Time
	lastRefresh time.Time
}

// New creates a Coordinator.
func New(st *store.Store, client *syncclient.Client, opts Options) *Coordinator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.TombstoneRetention <= 0 {
		opts.TombstoneRetention = defaultTombstoneRetention
	}
	if opts.CleanupCooldown <= 0 {
		opts.CleanupCooldown = 5 * time.Minute
	}
	if opts.PeriodicRefresh <= 0 {
		opts.PeriodicRefresh = 4 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		store:              st,
		client:             client,
		now:                opts.Now,
		batchSize:          opts.BatchSize,
		tombstoneRetention: opts.TombstoneRetention,
		cleanupCooldown:    opts.CleanupCooldown,
		periodicRefresh:    opts.PeriodicRefresh,
		runs:               make(map[string]*userRun),
	}
}

func (c *Coordinator) userRunLocked(userID string) *userRun {
	r, ok := c.runs[userID]
	if !ok {
		r = &userRun{status: Status{State: StateIdle}}
		c.runs[userID] = r
	}
	return r
}

// Status returns the current status snapshot for a user.
func (c *Coordinator) Status(userID string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userRunLocked(userID).status
}

// Subscribe registers an observer notified on every status transition.
func (c *Coordinator) Subscribe(fn func(userID string, s Status)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

func (c *Coordinator) setStatus(userID string, s Status) {
	c.mu.Lock()
	c.userRunLocked(userID).status = s
	observers := append([]func(string, Status){}, c.observers...)
	c.mu.Unlock()
	for _, fn := range observers {
		fn(userID, s)
	}
}

// Run executes one sync for the user. Returns nil immediately when a
// run is already in flight (single-flight guard).
func (c *Coordinator) Run(ctx context.Context, userID string) error {
	c.mu.Lock()
	r := c.userRunLocked(userID)
	if r.inflight {
		c.mu.Unlock()
		slog.Debug("sync already in flight", "user", userID)
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.inflight = true
	r.cancel = cancel
	r.done = done
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		r.inflight = false
		r.cancel = nil
		r.done = nil
		c.mu.Unlock()
		close(done)
	}()

	c.setStatus(userID, Status{State: StateSyncing})
	started := c.now().UTC()

	pushed, permErrs, err := c.drain(runCtx, userID)
	if err != nil {
		// Run aborted (cancellation or auth failure): queued operations
		// stay put for the next run.
		st := Status{State: StateFailed, LastError: err.Error(), LastSyncAt: c.now().UTC(), Pushed: pushed}
		c.setStatus(userID, st)
		c.recordRun(userID, started, st)
		return err
	}

	var pulled int
	if len(permErrs) == 0 {
		pulled, err = c.pull(runCtx, userID)
		if err != nil {
			st := Status{State: StateFailed, LastError: err.Error(), LastSyncAt: c.now().UTC(), Pushed: pushed, Pulled: pulled}
			c.setStatus(userID, st)
			c.recordRun(userID, started, st)
			return err
		}
	}

	st := Status{
		State:      StateSuccess,
		LastSyncAt: c.now().UTC(),
		Pushed:     pushed,
		Pulled:     pulled,
		Failed:     len(permErrs),
	}
	if len(permErrs) > 0 {
		st.State = StateFailed
		st.LastError = strings.Join(permErrs, "; ")
	}
	c.setStatus(userID, st)
	c.recordRun(userID, started, st)

	if st.State == StateFailed {
		return errors.New(st.LastError)
	}
	return nil
}

// drain delivers queued operations oldest-first. A transient failure
// reschedules the operation and moves on; a permanent failure removes
// it (into dead_operations) and is collected for the aggregated error.
// One bad operation never blocks unrelated ones.
func (c *Coordinator) drain(ctx context.Context, userID string) (pushed int, permErrs []string, err error) {
	for {
		ops, err := c.store.PeekBatch(userID, c.batchSize)
		if err != nil {
			return pushed, permErrs, fmt.Errorf("peek batch: %w", err)
		}
		if len(ops) == 0 {
			return pushed, permErrs, nil
		}

		for _, op := range ops {
			if ctx.Err() != nil {
				return pushed, permErrs, ctx.Err()
			}

			opErr := c.applyOp(ctx, op)
			switch {
			case opErr == nil:
				pushed++
			case errors.Is(opErr, context.Canceled), errors.Is(opErr, context.DeadlineExceeded):
				return pushed, permErrs, opErr
			case errors.Is(opErr, syncclient.ErrUnauthorized):
				// Auth failure applies to the whole run, not this
				// operation; abort and leave the queue intact.
				return pushed, permErrs, fmt.Errorf("sync unauthorized: %w", opErr)
			case syncclient.IsPermanent(opErr):
				slog.Warn("operation rejected permanently",
					"op", op.OpID, "kind", op.Kind, "type", op.EntityType, "id", op.EntityID, "err", opErr)
				if ferr := c.store.FailPermanent(userID, op.OpID, opErr); ferr != nil {
					return pushed, permErrs, fmt.Errorf("record permanent failure: %w", ferr)
				}
				permErrs = append(permErrs, fmt.Sprintf("op %d (%s %s %s): %v", op.OpID, op.Kind, op.EntityType, op.EntityID, opErr))
			default:
				slog.Debug("operation failed, will retry",
					"op", op.OpID, "attempts", op.Attempts+1, "err", opErr)
				if ferr := c.store.Fail(userID, op.OpID, opErr); ferr != nil {
					return pushed, permErrs, fmt.Errorf("record failure: %w", ferr)
				}
			}
		}
	}
}

// applyOp delivers a single operation to the remote API and settles
// local state on success.
func (c *Coordinator) applyOp(ctx context.Context, op store.PendingOperation) error {
	switch op.Kind {
	case store.OpCreate, store.OpUpdate:
		var resp *syncclient.EntityResponse
		var err error
		if op.Kind == store.OpCreate {
			resp, err = c.client.CreateEntity(ctx, op.EntityType, op.EntityID, op.Payload)
		} else {
			resp, err = c.client.UpdateEntity(ctx, op.EntityType, op.EntityID, op.Payload)
		}
		if err != nil {
			return err
		}
		if err := c.store.Ack(op.OwnerUserID, op.OpID); err != nil {
			return fmt.Errorf("ack op %d: %w", op.OpID, err)
		}
		// The dirty flag clears only once every queued operation for
		// the entity has been confirmed.
		pending, err := c.store.HasPendingOps(op.OwnerUserID, op.EntityID)
		if err != nil {
			return err
		}
		if !pending {
			if err := c.store.ClearDirty(op.OwnerUserID, op.EntityType, op.EntityID, resp.Version); err != nil {
				return fmt.Errorf("clear dirty: %w", err)
			}
		}
		return nil

	case store.OpDelete:
		if err := c.client.DeleteEntity(ctx, op.EntityType, op.EntityID); err != nil {
			return err
		}
		if err := c.store.Ack(op.OwnerUserID, op.OpID); err != nil {
			return fmt.Errorf("ack op %d: %w", op.OpID, err)
		}
		if err := c.store.MarkTombstoneSynced(op.OwnerUserID, op.EntityID); err != nil {
			return fmt.Errorf("confirm tombstone: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unknown operation kind: %s", op.Kind)
	}
}

func (c *Coordinator) recordRun(userID string, started time.Time, st Status) {
	run := store.SyncRun{
		StartedAt:  started,
		FinishedAt: c.now().UTC(),
		Pushed:     st.Pushed,
		Pulled:     st.Pulled,
		Failed:     st.Failed,
		Status:     string(st.State),
		Error:      st.LastError,
	}
	if err := c.store.RecordSyncRun(userID, run); err != nil {
		slog.Warn("record sync run", "err", err)
	}
}

// OnReconnect is the network monitor's trigger: run a sync in the
// background for the user.
func (c *Coordinator) OnReconnect(ctx context.Context, userID string) {
	go func() {
		if err := c.Run(ctx, userID); err != nil {
			slog.Debug("reconnect sync", "err", err)
		}
	}()
}

// OnForeground handles the app-foreground trigger. Two independent
// cooldowns apply: a short one for cleanup-style maintenance and a
// long one for a periodic full refresh.
func (c *Coordinator) OnForeground(ctx context.Context, userID string) {
	now := c.now()

	c.mu.Lock()
	r := c.userRunLocked(userID)
	// Cleanup only runs when the store has actually seen writes since
	// the last pass; pruning an untouched store is a no-op anyway.
	doCleanup := now.Sub(r.lastCleanup) >= c.cleanupCooldown &&
		c.store.LastModified().After(r.lastCleanup)
	if doCleanup {
		r.lastCleanup = now
	}
	doRefresh := now.Sub(r.lastRefresh) >= c.periodicRefresh
	if doRefresh {
		r.lastRefresh = now
	}
	c.mu.Unlock()

	if doCleanup {
		if pruned, err := c.store.PruneTombstones(userID, c.tombstoneRetention); err != nil {
			slog.Warn("prune tombstones", "err", err)
		} else if pruned > 0 {
			slog.Debug("pruned tombstones", "count", pruned)
		}
	}
	if doRefresh {
		if err := c.Run(ctx, userID); err != nil {
			slog.Debug("periodic refresh", "err", err)
		}
	}
}

// Cancel aborts any in-flight run for the user and waits for it to
// unwind. Called on logout before the user's state is wiped, so a
// stale reconciliation cannot re-write data afterwards.
func (c *Coordinator) Cancel(userID string) {
	c.mu.Lock()
	r := c.userRunLocked(userID)
	cancel, done := r.cancel, r.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// ResetStatus returns the user's status to idle. Called on logout.
func (c *Coordinator) ResetStatus(userID string) {
	c.setStatus(userID, Status{State: StateIdle})
}
