package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens the database behind a single shared connection.
// SQLite serializes writers anyway; one connection also keeps ":memory:" a single database.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" && !strings.Contains(path, "?") {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)

	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxIdleTime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = sqlDB.PingContext(ctx)

	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return sqlDB, nil
}
