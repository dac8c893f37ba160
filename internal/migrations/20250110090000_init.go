package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
	CREATE TABLE channels (
		id                  VARCHAR(32) PRIMARY KEY,
		organization_id     VARCHAR(32) NOT NULL,
		platform            VARCHAR(16) NOT NULL,
		name                VARCHAR(255) NOT NULL,
		platform_account_id VARCHAR(255) NOT NULL,
		access_token        TEXT NOT NULL,
		token_expires_at    TIMESTAMPTZ NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX channels_organization_idx ON channels (organization_id);

	CREATE TABLE posts (
		id              VARCHAR(32) PRIMARY KEY,
		organization_id VARCHAR(32) NOT NULL,
		name            TEXT NOT NULL DEFAULT '',
		type            VARCHAR(16) NOT NULL,
		status          VARCHAR(32) NOT NULL DEFAULT 'draft',
		scheduled_at    TIMESTAMPTZ,
		payload         JSONB NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX posts_organization_idx ON posts (organization_id, created_at DESC);

	CREATE TABLE scheduled_posts (
		id                    VARCHAR(32) PRIMARY KEY,
		organization_id       VARCHAR(32) NOT NULL,
		post_id               VARCHAR(32) NOT NULL REFERENCES posts (id) ON DELETE CASCADE,
		channel_id            VARCHAR(32) NOT NULL REFERENCES channels (id) ON DELETE CASCADE,
		status                VARCHAR(16) NOT NULL DEFAULT 'draft',
		scheduled_at          TIMESTAMPTZ,
		started_at            TIMESTAMPTZ,
		published_at          TIMESTAMPTZ,
		failed_at             TIMESTAMPTZ,
		failure_reason        TEXT NOT NULL DEFAULT '',
		external_reference_id VARCHAR(255) NOT NULL DEFAULT '',
		external_url          TEXT NOT NULL DEFAULT '',
		attempts              INTEGER NOT NULL DEFAULT 0,
		parent_post_id        VARCHAR(32),
		parent_post_settings  JSONB,
		repost_settings       JSONB,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (post_id, channel_id)
	);
	CREATE INDEX scheduled_posts_status_idx ON scheduled_posts (status, scheduled_at);
	`)
	if err != nil {
		return err
	}
	return nil
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
	DROP TABLE scheduled_posts;
	DROP TABLE posts;
	DROP TABLE channels;
	`)
	if err != nil {
		return err
	}
	return nil
}
