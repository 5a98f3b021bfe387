package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations contains all database migrations in order.
// Each migration has a version key and SQL to execute.
var migrations = []struct {
	Version string
	SQL     string
}{
	{
		Version: "000001_create_accounts",
		SQL: `
			CREATE TABLE IF NOT EXISTS users (
				id           UUID         PRIMARY KEY,
				name         VARCHAR(255) NOT NULL,
				phone_number VARCHAR(20)  NOT NULL UNIQUE,
				user_type    VARCHAR(20)  NOT NULL CHECK (user_type IN ('admin', 'photographer', 'user')),
				created_at   TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
		`,
	},
	{
		Version: "000002_create_packages",
		SQL: `
			CREATE TABLE IF NOT EXISTS photo_packages (
				id              UUID         PRIMARY KEY,
				photographer_id UUID         NOT NULL REFERENCES users(id),
				name            VARCHAR(255) NOT NULL,
				photo_count     INTEGER      NOT NULL,
				price_cents     BIGINT       NOT NULL,
				created_at      TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
			CREATE TABLE IF NOT EXISTS storage_packages (
				id                  UUID         PRIMARY KEY,
				name                VARCHAR(255) NOT NULL,
				storage_limit_bytes BIGINT       NOT NULL,
				price_cents         BIGINT       NOT NULL,
				duration_months     INTEGER      NOT NULL,
				is_active           BOOLEAN      NOT NULL DEFAULT TRUE,
				created_at          TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
			CREATE TABLE IF NOT EXISTS purchased_packages (
				id                  UUID        PRIMARY KEY,
				user_id             UUID        NOT NULL REFERENCES users(id),
				package_id          UUID        NOT NULL REFERENCES storage_packages(id),
				storage_limit_bytes BIGINT      NOT NULL,
				used_bytes          BIGINT      NOT NULL DEFAULT 0,
				start_date          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				end_date            TIMESTAMPTZ NOT NULL,
				is_active           BOOLEAN     NOT NULL DEFAULT TRUE
			);
			CREATE INDEX IF NOT EXISTS idx_purchased_packages_user ON purchased_packages(user_id) WHERE is_active;
		`,
	},
	{
		Version: "000003_create_events",
		SQL: `
			CREATE TABLE IF NOT EXISTS events (
				id              UUID         PRIMARY KEY,
				name            VARCHAR(255) NOT NULL,
				slug            VARCHAR(255) NOT NULL,
				status          VARCHAR(20)  NOT NULL DEFAULT 'upcoming'
				                             CHECK (status IN ('upcoming', 'completed', 'canceled')),
				owner_id        UUID         NOT NULL REFERENCES users(id),
				photographer_id UUID         NOT NULL REFERENCES users(id),
				package_id      UUID         REFERENCES photo_packages(id),
				created_at      TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_events_owner ON events(owner_id);
			CREATE INDEX IF NOT EXISTS idx_events_photographer ON events(photographer_id);

			CREATE TABLE IF NOT EXISTS photo_batches (
				id          UUID         PRIMARY KEY,
				event_id    UUID         NOT NULL REFERENCES events(id) ON DELETE CASCADE,
				batch_name  VARCHAR(255) NOT NULL,
				cover_image TEXT,
				created_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
				UNIQUE (event_id, batch_name)
			);

			CREATE TABLE IF NOT EXISTS photos (
				id          UUID        PRIMARY KEY,
				batch_id    UUID        NOT NULL REFERENCES photo_batches(id) ON DELETE CASCADE,
				event_id    UUID        NOT NULL REFERENCES events(id) ON DELETE CASCADE,
				blob_key    TEXT        NOT NULL,
				size_bytes  BIGINT      NOT NULL,
				size_label  VARCHAR(32) NOT NULL,
				is_selected BOOLEAN     NOT NULL DEFAULT FALSE,
				created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (event_id, blob_key)
			);
			CREATE INDEX IF NOT EXISTS idx_photos_batch ON photos(batch_id);
			CREATE INDEX IF NOT EXISTS idx_photos_selected ON photos(event_id) WHERE is_selected;
		`,
	},
	{
		Version: "000004_create_bookkeeping",
		SQL: `
			CREATE TABLE IF NOT EXISTS transactions (
				id             UUID         PRIMARY KEY,
				actor_type     VARCHAR(20)  NOT NULL CHECK (actor_type IN ('user', 'photographer')),
				user_id        UUID         NOT NULL REFERENCES users(id),
				package_id     UUID         NOT NULL,
				amount_cents   BIGINT       NOT NULL,
				payment_status VARCHAR(20)  NOT NULL DEFAULT 'initiated',
				payment_method VARCHAR(32),
				reference      VARCHAR(255),
				created_at     TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS reviews (
				id              UUID        PRIMARY KEY,
				user_id         UUID        NOT NULL REFERENCES users(id),
				photographer_id UUID        NOT NULL REFERENCES users(id),
				stars           INTEGER     NOT NULL CHECK (stars BETWEEN 1 AND 5),
				comment         TEXT,
				image_url       TEXT,
				created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_reviews_photographer ON reviews(photographer_id);
		`,
	},
	{
		Version: "000005_create_shares_and_orphans",
		SQL: `
			CREATE TABLE IF NOT EXISTS event_shares (
				id            UUID        PRIMARY KEY,
				event_id      UUID        NOT NULL REFERENCES events(id) ON DELETE CASCADE,
				token         VARCHAR(48) NOT NULL UNIQUE,
				mobile        VARCHAR(20),
				password_hash VARCHAR(255),
				created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS orphan_blobs (
				id        UUID        PRIMARY KEY,
				blob_key  TEXT        NOT NULL,
				reason    VARCHAR(64) NOT NULL,
				logged_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				swept_at  TIMESTAMPTZ
			);
			CREATE INDEX IF NOT EXISTS idx_orphan_blobs_unswept ON orphan_blobs(logged_at) WHERE swept_at IS NULL;
		`,
	},
}

// DB wraps a pgxpool connection pool and provides health checks and migrations.
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("connected to database")
	return &DB{Pool: pool}, nil
}

// RunMigrations applies all pending database migrations in order.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists bool
		err := db.Pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			m.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration status for %s: %w", m.Version, err)
		}
		if exists {
			continue
		}

		tx, err := db.Pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}

		slog.Info("applied migration", "version", m.Version)
	}

	return nil
}

// HealthCheck verifies the database connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
