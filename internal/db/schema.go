package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	email         TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	CONSTRAINT users_email_key UNIQUE (email)
)`

// AUTOINCREMENT keeps deleted ids from being handed out again.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL
)`

func EnsurePostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, postgresSchema)

	if err != nil {
		return fmt.Errorf("create users table: %w", err)
	}

	return nil
}

func EnsureSQLiteSchema(ctx context.Context, sqlDB *sql.DB) error {
	_, err := sqlDB.ExecContext(ctx, sqliteSchema)

	if err != nil {
		return fmt.Errorf("create users table: %w", err)
	}

	return nil
}
