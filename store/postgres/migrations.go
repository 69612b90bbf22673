package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the webhook store.
// It can be registered with a grove orchestrator for managed migration
// runs (locking, version tracking, rollback support).
var Migrations = migrate.NewGroup("webhooks")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_webhook_endpoints",
			Version: "20250301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS webhook_endpoints (
    id                  TEXT PRIMARY KEY,
    name                TEXT NOT NULL DEFAULT '',
    description         TEXT NOT NULL DEFAULT '',
    event_type          TEXT NOT NULL DEFAULT '',
    url                 TEXT NOT NULL DEFAULT '',
    secret              TEXT NOT NULL DEFAULT '',
    headers             JSONB NOT NULL DEFAULT '{}',
    retry_max_attempts  INT NOT NULL DEFAULT 0,
    retry_base_delay_ms BIGINT NOT NULL DEFAULT 0,
    retry_multiplier    DOUBLE PRECISION NOT NULL DEFAULT 0,
    retry_max_delay_ms  BIGINT NOT NULL DEFAULT 0,
    active              BOOLEAN NOT NULL DEFAULT TRUE,
    rate_limit          INT NOT NULL DEFAULT 0,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_webhook_endpoints_event_type ON webhook_endpoints (event_type) WHERE active;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS webhook_endpoints`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_webhook_deliveries",
			Version: "20250301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS webhook_deliveries (
    id              TEXT PRIMARY KEY,
    endpoint_id     TEXT NOT NULL DEFAULT '',
    source_event_id TEXT NOT NULL DEFAULT '',
    idempotency_key TEXT NOT NULL,
    event_type      TEXT NOT NULL DEFAULT '',
    target_url      TEXT NOT NULL DEFAULT '',
    payload         JSONB,
    status          TEXT NOT NULL DEFAULT 'pending',
    attempts        INT NOT NULL DEFAULT 0,
    max_attempts    INT NOT NULL DEFAULT 0,
    last_attempt_at TIMESTAMPTZ,
    next_retry_at   TIMESTAMPTZ,
    completed_at    TIMESTAMPTZ,
    response_status INT NOT NULL DEFAULT 0,
    response_body   TEXT NOT NULL DEFAULT '',
    error_message   TEXT NOT NULL DEFAULT '',
    replay_of       TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_webhook_deliveries_idempotency ON webhook_deliveries (idempotency_key);
CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_due ON webhook_deliveries (next_retry_at) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_stuck ON webhook_deliveries (last_attempt_at) WHERE status = 'processing';
CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_endpoint ON webhook_deliveries (endpoint_id);
CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_replay_of ON webhook_deliveries (replay_of) WHERE replay_of != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS webhook_deliveries`)
				return err
			},
		},
	)
}
