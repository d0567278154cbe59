// Package sqlc holds the hand-written query layer for the cache database:
// the row structs and parameterized database/sql methods that a sqlc
// generate pass would emit, plus the Schema constant tests apply directly to
// an in-memory database rather than running the full migration runner.
//
// The schema here must stay byte-for-byte equivalent to
// internal/store/migrations/files/0001_init.up.sql; it exists separately
// because tests want a fresh schema without exercising golang-migrate, the
// same split bt-go's own internal/database/sqlite_test.go and
// internal/testutil/database.go use against bt-go's internal/database.Schema.
package sqlc

// Schema is the full DDL for a fresh database, equivalent to running every
// migration in internal/store/migrations/files from empty.
const Schema = `PRAGMA recursive_triggers = ON;

CREATE TABLE items (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid           TEXT NOT NULL UNIQUE,
    parent         TEXT,
    name           TEXT,
    effective_name TEXT GENERATED ALWAYS AS (COALESCE(name, uuid)) STORED,
    type           INTEGER NOT NULL CHECK (type IN (0, 1, 2)),
    is_stale       INTEGER NOT NULL DEFAULT 0 CHECK (is_stale IN (0, 1)),
    is_recent      INTEGER NOT NULL DEFAULT 0 CHECK (is_recent IN (0, 1)),
    parent_path    TEXT,
    updated_at     TEXT NOT NULL
);

-- Invariant 2: siblings with the same effective name cannot coexist unless
-- one of them is stale (a refresh in progress), or they are children of the
-- trash sentinel, which the server never enforces uniqueness under.
CREATE UNIQUE INDEX idx_items_parent_name_live
    ON items (parent, effective_name, is_stale)
    WHERE parent IS NULL OR parent <> 'trash';

CREATE INDEX idx_items_parent ON items (parent);
CREATE INDEX idx_items_is_recent ON items (is_recent) WHERE is_recent = 1;
CREATE INDEX idx_items_parent_path ON items (parent_path) WHERE parent_path IS NOT NULL;

-- Cascade rules (invariant 5, §8 "deleting a non-file item removes its
-- entire non-orphan subtree"): removing or renaming a non-file item removes
-- every child whose ancestor chain is fully local (parent_path IS NULL).
-- With recursive_triggers on, deleting those children re-fires this same
-- trigger for any of them that are themselves directories, so a whole
-- subtree unwinds inside the single deleting transaction. Orphan-rooted
-- items (parent_path set, reached only via search/recents) are preserved.
CREATE TRIGGER trg_items_cascade_delete
AFTER DELETE ON items
WHEN old.type != 2
BEGIN
    DELETE FROM items WHERE parent = old.uuid AND parent_path IS NULL;
END;

CREATE TRIGGER trg_items_cascade_rename
AFTER UPDATE OF uuid ON items
WHEN old.uuid != new.uuid AND old.type != 2
BEGIN
    DELETE FROM items WHERE parent = old.uuid AND parent_path IS NULL;
END;

CREATE TABLE root (
    item_id      INTEGER PRIMARY KEY REFERENCES items(id) ON DELETE CASCADE,
    uuid         TEXT NOT NULL UNIQUE,
    storage_used INTEGER NOT NULL DEFAULT 0,
    storage_max  INTEGER NOT NULL DEFAULT 0,
    last_updated TEXT
);

CREATE TABLE dirs (
    item_id       INTEGER PRIMARY KEY REFERENCES items(id) ON DELETE CASCADE,
    uuid          TEXT NOT NULL UNIQUE,
    favorite_rank INTEGER NOT NULL DEFAULT 0,
    color         TEXT,
    last_listed   TEXT,
    local_data    TEXT
);

CREATE TABLE files (
    item_id       INTEGER PRIMARY KEY REFERENCES items(id) ON DELETE CASCADE,
    uuid          TEXT NOT NULL UNIQUE,
    size          INTEGER NOT NULL DEFAULT 0,
    chunks        INTEGER NOT NULL DEFAULT 0,
    checksum      TEXT,
    last_modified TEXT NOT NULL,
    favorite_rank INTEGER NOT NULL DEFAULT 0,
    region        TEXT,
    bucket        TEXT,
    local_data    TEXT
);

-- state: decoded=0, decrypted-raw=1, encrypted=2, rsa-encrypted=3. Invariant
-- 3: raw_metadata is present iff the row isn't fully decoded.
CREATE TABLE dir_meta (
    item_id      INTEGER PRIMARY KEY REFERENCES dirs(item_id) ON DELETE CASCADE,
    state        INTEGER NOT NULL CHECK (state IN (0, 1, 2, 3)),
    raw_metadata BLOB,
    key_version  INTEGER NOT NULL DEFAULT 1,
    decoded_name    TEXT,
    decoded_color   TEXT,
    decoded_created TEXT,
    CHECK ((state = 0 AND raw_metadata IS NULL) OR (state != 0 AND raw_metadata IS NOT NULL))
);

CREATE TABLE file_meta (
    item_id         INTEGER PRIMARY KEY REFERENCES files(item_id) ON DELETE CASCADE,
    state           INTEGER NOT NULL CHECK (state IN (0, 1, 2, 3)),
    raw_metadata    BLOB,
    key_version     INTEGER NOT NULL DEFAULT 1,
    decoded_name     TEXT,
    decoded_size     INTEGER,
    decoded_checksum TEXT,
    decoded_modified TEXT,
    decoded_mime     TEXT,
    decoded_created  TEXT,
    decoded_file_key         BLOB,
    decoded_file_key_version INTEGER,
    CHECK ((state = 0 AND raw_metadata IS NULL) OR (state != 0 AND raw_metadata IS NOT NULL))
);

-- Deleting an items row cascades to dirs/files (ON DELETE CASCADE above),
-- which in turn cascades to dir_meta/file_meta, so a dir/file never strands
-- a meta row once its owning item is removed by the sweep phase of a
-- directory refresh.

-- Bootstrap (§3): a permanent trash sentinel, never deleted, that children
-- can be moved under without the usual sibling-uniqueness rule applying.
INSERT INTO items (uuid, parent, name, type, is_stale, is_recent, parent_path, updated_at)
VALUES ('trash', NULL, 'Trash', 1, 0, 0, NULL, '1970-01-01T00:00:00Z');

INSERT INTO dirs (item_id, uuid, favorite_rank, color, last_listed, local_data)
VALUES ((SELECT id FROM items WHERE uuid = 'trash'), 'trash', 0, NULL, NULL, NULL);
`
