package store

// SchemaVersion is the current database schema version
const SchemaVersion = 2

const schema = `
-- Cached entities: one row per (owner, type, id)
CREATE TABLE IF NOT EXISTS cached_entities (
    owner_user_id TEXT NOT NULL,
    entity_type   TEXT NOT NULL,
    entity_id     TEXT NOT NULL,
    payload       JSON NOT NULL,
    version       INTEGER NOT NULL DEFAULT 0,
    updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    dirty         INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (owner_user_id, entity_type, entity_id)
);

-- Pending operation queue: op_id is a rowid alias, strictly increasing
CREATE TABLE IF NOT EXISTS pending_operations (
    op_id         INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_user_id TEXT NOT NULL,
    kind          TEXT NOT NULL,
    entity_type   TEXT NOT NULL,
    entity_id     TEXT NOT NULL,
    payload       JSON NOT NULL DEFAULT '{}',
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    attempts      INTEGER NOT NULL DEFAULT 0,
    last_error    TEXT,
    next_retry_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_pending_owner ON pending_operations(owner_user_id, op_id);
CREATE INDEX IF NOT EXISTS idx_pending_entity ON pending_operations(owner_user_id, entity_id);

-- Tombstones: deletion intents awaiting server confirmation
CREATE TABLE IF NOT EXISTS tombstones (
    owner_user_id TEXT NOT NULL,
    entity_type   TEXT NOT NULL,
    entity_id     TEXT NOT NULL,
    deleted_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    synced_at     DATETIME,
    PRIMARY KEY (owner_user_id, entity_id)
);

-- Single auth token slot per user, cleared on logout
CREATE TABLE IF NOT EXISTS auth_token (
    owner_user_id TEXT PRIMARY KEY,
    token         TEXT NOT NULL,
    saved_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Permanently failed operations, kept for operator inspection
CREATE TABLE IF NOT EXISTS dead_operations (
    op_id         INTEGER NOT NULL,
    owner_user_id TEXT NOT NULL,
    kind          TEXT NOT NULL,
    entity_type   TEXT NOT NULL,
    entity_id     TEXT NOT NULL,
    payload       JSON NOT NULL DEFAULT '{}',
    attempts      INTEGER NOT NULL DEFAULT 0,
    last_error    TEXT,
    failed_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Reconciliation overwrites of dirty rows, kept for operator inspection
CREATE TABLE IF NOT EXISTS sync_conflicts (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_user_id  TEXT NOT NULL,
    entity_type    TEXT NOT NULL,
    entity_id      TEXT NOT NULL,
    local_version  INTEGER NOT NULL,
    remote_version INTEGER NOT NULL,
    local_payload  JSON,
    remote_payload JSON,
    overwritten_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- One row per coordinator run
CREATE TABLE IF NOT EXISTS sync_history (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_user_id TEXT NOT NULL,
    started_at    DATETIME NOT NULL,
    finished_at   DATETIME NOT NULL,
    pushed        INTEGER NOT NULL DEFAULT 0,
    pulled        INTEGER NOT NULL DEFAULT 0,
    failed        INTEGER NOT NULL DEFAULT 0,
    status        TEXT NOT NULL,
    error         TEXT
);

-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_info (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Migration represents a single schema migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations contains all schema migrations in order
var Migrations = []Migration{
	{
		Version:     2,
		Description: "add dead_operations and sync_conflicts audit tables",
		SQL: `
			CREATE TABLE IF NOT EXISTS dead_operations (
			    op_id         INTEGER NOT NULL,
			    owner_user_id TEXT NOT NULL,
			    kind          TEXT NOT NULL,
			    entity_type   TEXT NOT NULL,
			    entity_id     TEXT NOT NULL,
			    payload       JSON NOT NULL DEFAULT '{}',
			    attempts      INTEGER NOT NULL DEFAULT 0,
			    last_error    TEXT,
			    failed_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE TABLE IF NOT EXISTS sync_conflicts (
			    id             INTEGER PRIMARY KEY AUTOINCREMENT,
			    owner_user_id  TEXT NOT NULL,
			    entity_type    TEXT NOT NULL,
			    entity_id      TEXT NOT NULL,
			    local_version  INTEGER NOT NULL,
			    remote_version INTEGER NOT NULL,
			    local_payload  JSON,
			    remote_payload JSON,
			    overwritten_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`,
	},
}
