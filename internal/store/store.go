package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

const dbFile = ".brewlog/cache.db"

// Sentinel errors returned by store operations.
var (
	ErrNotFound   = errors.New("not found")
	ErrTombstoned = errors.New("entity has unconfirmed tombstone")
)

// Store is the durable per-user cache: typed entities, the pending
// operation queue, tombstones, and the auth token slot, all backed by
// one sqlite database. Readers go straight to sqlite (WAL); writers
// are serialized per user scope.
type Store struct {
	conn    *sql.DB
	baseDir string
	now     func() time.Time

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex

	// watermark is the unix-nano time of the last mutating call,
	// read by the network monitor's refresh heuristic.
	watermark atomic.Int64
}

// Open opens an existing database and runs pending migrations.
func Open(baseDir string) (*Store, error) {
	dbPath := filepath.Join(baseDir, dbFile)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: run 'brewlog init' first")
	}
	return open(dbPath, baseDir, false)
}

// Initialize creates the database (and its directory) and runs migrations.
func Initialize(baseDir string) (*Store, error) {
	dbPath := filepath.Join(baseDir, dbFile)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return open(dbPath, baseDir, true)
}

func open(dbPath, baseDir string, create bool) (*Store, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL allows concurrent reads while writes are serialized
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")

	s := &Store{
		conn:      conn,
		baseDir:   baseDir,
		now:       time.Now,
		userLocks: make(map[string]*sync.Mutex),
	}

	if create {
		if _, err := conn.Exec(schema); err != nil {
			conn.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	if _, err := s.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// OpenInMemory opens a fresh in-memory store. Test fixtures and the
// sync harness use this; production code opens a file-backed store.
func OpenInMemory() (*Store, error) {
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	s := &Store{conn: conn, now: time.Now, userLocks: make(map[string]*sync.Mutex)}
	if _, err := s.RunMigrations(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.conn.Close()
}

// BaseDir returns the base directory for the database.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// SetClock overrides the store's clock. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// userLock returns the mutex serializing writers for one user scope.
func (s *Store) userLock(ownerUserID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.userLocks[ownerUserID]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[ownerUserID] = l
	}
	return l
}

// withUserLock executes fn while holding the write lock for one user scope.
func (s *Store) withUserLock(ownerUserID string, fn func() error) error {
	l := s.userLock(ownerUserID)
	l.Lock()
	defer l.Unlock()
	err := fn()
	if err == nil {
		s.touch()
	}
	return err
}

// touch bumps the last-modified watermark.
func (s *Store) touch() {
	s.watermark.Store(s.now().UnixNano())
}

// LastModified returns the time of the last mutating call, or the zero
// time if nothing has been written since open.
func (s *Store) LastModified() time.Time {
	n := s.watermark.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
