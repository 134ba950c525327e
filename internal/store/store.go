package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mediamatic/ikdisplay/internal/logging"
)

// Store is the persistent registry of feeds, sources, things, sites and
// subscriptions backing the dispatcher and the admin surface.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// New wraps an open database connection.
func New(db *sql.DB, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

const schema = `
CREATE TABLE IF NOT EXISTS feeds (
	id          SERIAL PRIMARY KEY,
	handle      TEXT NOT NULL UNIQUE,
	title       TEXT NOT NULL DEFAULT '',
	language    TEXT NOT NULL DEFAULT 'en',
	aggregator  TEXT NOT NULL DEFAULT 'logging'
);

CREATE TABLE IF NOT EXISTS things (
	id     SERIAL PRIMARY KEY,
	title  TEXT NOT NULL DEFAULT '',
	uri    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sites (
	id     SERIAL PRIMARY KEY,
	title  TEXT NOT NULL DEFAULT '',
	uri    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id       SERIAL PRIMARY KEY,
	service  TEXT NOT NULL,
	node     TEXT NOT NULL,
	state    TEXT NOT NULL DEFAULT '',
	UNIQUE (service, node)
);

CREATE TABLE IF NOT EXISTS sources (
	id               SERIAL PRIMARY KEY,
	kind             TEXT NOT NULL,
	feed_id          INTEGER NOT NULL REFERENCES feeds (id) ON DELETE CASCADE,
	enabled          BOOLEAN NOT NULL DEFAULT TRUE,
	via              TEXT NOT NULL DEFAULT '',
	subscription_id  INTEGER REFERENCES subscriptions (id) ON DELETE SET NULL,
	question_id      INTEGER REFERENCES things (id) ON DELETE SET NULL,
	event_id         INTEGER REFERENCES things (id) ON DELETE SET NULL,
	creator_id       INTEGER REFERENCES things (id) ON DELETE SET NULL,
	race_id          INTEGER REFERENCES things (id) ON DELETE SET NULL,
	agent_id         INTEGER REFERENCES things (id) ON DELETE SET NULL,
	user_id          INTEGER REFERENCES things (id) ON DELETE SET NULL,
	site_id          INTEGER REFERENCES sites (id) ON DELETE SET NULL,
	service          TEXT NOT NULL DEFAULT '',
	node_identifier  TEXT NOT NULL DEFAULT '',
	template         TEXT NOT NULL DEFAULT '',
	terms            TEXT[] NOT NULL DEFAULT '{}',
	user_ids         TEXT[] NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS sources_feed_idx ON sources (feed_id);
CREATE INDEX IF NOT EXISTS sources_subscription_idx ON sources (subscription_id);
`

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
