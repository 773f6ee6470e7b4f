package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

func prepareGoose() error {
	goose.SetBaseFS(migrationsFS)
	return goose.SetDialect("postgres")
}

// migrationSchema is the first entry of the pool's search_path. Migrations use
// unqualified names, so their tables and goose's version table land there.
func migrationSchema(pool *pgxpool.Pool) string {
	path := pool.Config().ConnConfig.RuntimeParams["search_path"]
	first, _, _ := strings.Cut(path, ",")
	return strings.Trim(strings.TrimSpace(first), `"`)
}

func withDB(ctx context.Context, pool *pgxpool.Pool, fn func(db *sql.DB) error) error {
	if pool == nil {
		return errors.New("nil pool provided")
	}
	if err := prepareGoose(); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if schema := migrationSchema(pool); schema != "" && schema != "public" {
		if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
			return fmt.Errorf("create schema %s: %w", schema, err)
		}
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	return fn(db)
}

// Migrate applies every pending embedded migration.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	return withDB(ctx, pool, func(db *sql.DB) error {
		if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		return nil
	})
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(ctx context.Context, pool *pgxpool.Pool) error {
	return withDB(ctx, pool, func(db *sql.DB) error {
		if err := goose.DownContext(ctx, db, migrationsDir); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		return nil
	})
}

// MigrationStatus logs the applied state of every migration through goose's logger.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool) error {
	return withDB(ctx, pool, func(db *sql.DB) error {
		return goose.StatusContext(ctx, db, migrationsDir)
	})
}
