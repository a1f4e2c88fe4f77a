// Package database stores datasets, versions, assets and tasks in Postgres.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

// migrationsTable keeps the asset schema version apart from other
// services sharing the database.
const migrationsTable = "asset_schema_migrations"

// Client is the Postgres store behind the asset API and the worker.
type Client struct {
	db *sql.DB
}

// sqlDriver maps the configured driver to its database/sql name. lib/pq
// registers "postgres", pgx registers "pgx".
func sqlDriver(driver string) (string, error) {
	switch driver {
	case "", "postgres", "pq":
		return "postgres", nil
	case "pgx":
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// NewClient opens and pings a pool for databaseURL.
func NewClient(ctx context.Context, driver, databaseURL string) (*Client, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	name, err := sqlDriver(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(name, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open %s pool: %w", name, err)
	}
	// Rollups hold row locks briefly; the pool only needs to cover the
	// concurrent task callbacks and pipeline events.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Client{db: db}, nil
}

// Close releases the pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// Migrate applies the pending migrations found under migrationsPath.
func (c *Client) Migrate(migrationsPath string) error {
	driver, err := postgres.WithInstance(c.db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("load migrations from %s: %w", migrationsPath, err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
