package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'admin' CHECK (role IN ('admin')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    id                 TEXT PRIMARY KEY,
    name               TEXT NOT NULL,
    artist_name        TEXT NOT NULL DEFAULT '',
    venue              TEXT NOT NULL DEFAULT '',
    event_date         DATETIME,
    is_active          INTEGER NOT NULL DEFAULT 1,
    registration_start DATETIME,
    registration_end   DATETIME,
    trade_start        DATETIME,
    trade_end          DATETIME,
    created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS event_areas (
    event_id  TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    slot      INTEGER NOT NULL CHECK (slot BETWEEN 1 AND 3),
    latitude  REAL,
    longitude REAL,
    radius_km REAL,
    PRIMARY KEY (event_id, slot)
);

CREATE TABLE IF NOT EXISTS goods (
    id          TEXT PRIMARY KEY,
    event_id    TEXT NOT NULL REFERENCES events(id),
    name        TEXT NOT NULL,
    category    TEXT NOT NULL DEFAULT '',
    description TEXT,
    image       BLOB,
    image_mime  TEXT,
    status      TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive')),
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS participants (
    id             TEXT PRIMARY KEY,
    event_id       TEXT REFERENCES events(id),
    nickname       TEXT NOT NULL DEFAULT '',
    latitude       REAL NOT NULL DEFAULT 0,
    longitude      REAL NOT NULL DEFAULT 0,
    is_active      INTEGER NOT NULL DEFAULT 0,
    last_active_at INTEGER NOT NULL DEFAULT 0,
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS trade_groups (
    participant_id TEXT NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
    group_idx      INTEGER NOT NULL,
    event_id       TEXT NOT NULL,
    want_quantity  INTEGER NOT NULL,
    give_count     INTEGER NOT NULL,
    PRIMARY KEY (participant_id, group_idx)
);

CREATE TABLE IF NOT EXISTS trade_group_goods (
    participant_id TEXT NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
    group_idx      INTEGER NOT NULL,
    goods_id       TEXT NOT NULL,
    type           TEXT NOT NULL,
    quantity       INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (participant_id, group_idx, goods_id, type)
);

CREATE TABLE IF NOT EXISTS matches (
    id            TEXT PRIMARY KEY,
    event_id      TEXT NOT NULL,
    user1_id      TEXT NOT NULL,
    user2_id      TEXT NOT NULL,
    status        TEXT NOT NULL DEFAULT 'pending'
                  CHECK (status IN ('pending', 'accepted', 'completed', 'cancelled')),
    color_code    TEXT,
    created_at    DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL,
    completed_at  DATETIME,
    reconciled_at DATETIME,
    CHECK (user1_id <> user2_id)
);

CREATE INDEX IF NOT EXISTS idx_matches_user1 ON matches(user1_id, status);
CREATE INDEX IF NOT EXISTS idx_matches_user2 ON matches(user2_id, status);

-- At most one open match per unordered participant pair.
CREATE UNIQUE INDEX IF NOT EXISTS idx_matches_open_pair
    ON matches(min(user1_id, user2_id), max(user1_id, user2_id))
    WHERE status IN ('pending', 'accepted');

CREATE TABLE IF NOT EXISTS match_groups (
    match_id        TEXT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
    requester_group INTEGER NOT NULL,
    recipient_group INTEGER NOT NULL,
    PRIMARY KEY (match_id, requester_group, recipient_group)
);

CREATE TABLE IF NOT EXISTS match_messages (
    id         TEXT PRIMARY KEY,
    match_id   TEXT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
    sender_id  TEXT NOT NULL,
    body       TEXT NOT NULL,
    created_at DATETIME NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
