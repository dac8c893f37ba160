package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upPostMetrics, downPostMetrics)
}

func upPostMetrics(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
	CREATE TABLE post_metrics (
		id                VARCHAR(32) PRIMARY KEY,
		organization_id   VARCHAR(32) NOT NULL,
		scheduled_post_id VARCHAR(32) NOT NULL REFERENCES scheduled_posts (id) ON DELETE CASCADE,
		post_id           VARCHAR(32) NOT NULL,
		platform          VARCHAR(16) NOT NULL,
		likes             BIGINT NOT NULL DEFAULT 0,
		comments          BIGINT NOT NULL DEFAULT 0,
		shares            BIGINT NOT NULL DEFAULT 0,
		impressions       BIGINT NOT NULL DEFAULT 0,
		reach             BIGINT NOT NULL DEFAULT 0,
		clicks            BIGINT NOT NULL DEFAULT 0,
		collected_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX post_metrics_org_collected_idx ON post_metrics (organization_id, collected_at);
	CREATE INDEX post_metrics_scheduled_post_idx ON post_metrics (scheduled_post_id, collected_at DESC);
	`)
	if err != nil {
		return err
	}
	return nil
}

func downPostMetrics(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE post_metrics;`)
	if err != nil {
		return err
	}
	return nil
}
