// internal/db/db.go
package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Open connects to Postgres and verifies the connection.
func Open(databaseURL string) (*sqlx.DB, error) {
	conn, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return conn, nil
}

// schema carries the uniqueness constraint on (campaign_id, user_id): the
// ledger's idempotency key is enforced by the storage layer, not by a
// check-then-insert in application code.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id          BIGSERIAL PRIMARY KEY,
    name        TEXT NOT NULL,
    email       TEXT NOT NULL,
    tags        TEXT[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS campaigns (
    id           BIGSERIAL PRIMARY KEY,
    name         TEXT NOT NULL,
    template     TEXT NOT NULL,
    segment_rule TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'draft',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS messages (
    id                  BIGSERIAL PRIMARY KEY,
    campaign_id         BIGINT NOT NULL REFERENCES campaigns(id),
    user_id             BIGINT NOT NULL REFERENCES users(id),
    status              TEXT NOT NULL DEFAULT 'queued',
    attempt_count       INT NOT NULL DEFAULT 0,
    last_error          TEXT NOT NULL DEFAULT '',
    provider_message_id TEXT NOT NULL DEFAULT '',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    sent_at             TIMESTAMPTZ,
    latency_ms          BIGINT,
    CONSTRAINT uq_campaign_user UNIQUE (campaign_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_messages_campaign ON messages (campaign_id);
`

// Migrate applies the schema. Statements are idempotent so it is safe to run
// on every startup.
func Migrate(conn *sqlx.DB) error {
	if _, err := conn.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
