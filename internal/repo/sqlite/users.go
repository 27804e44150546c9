package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/observability"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// UsersRepo stores users in SQLite through database/sql.
type UsersRepo struct {
	db   *sql.DB
	prom *observability.Prom
}

func NewUsersRepo(db *sql.DB, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{db: db, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// extended codes distinguish UNIQUE from other constraints; a bare SQLITE_CONSTRAINT
// only shows up when extended codes are off, and email is the only unique column.
func isUniqueViolation(err error) bool {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) {
		return false
	}

	code := liteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT
}

func (r *UsersRepo) Insert(ctx context.Context, email, passwordHash string) (user.Record, error) {
	u := user.Record{Email: email, PasswordHash: passwordHash}

	err := r.observe("users.insert", func() error {
		return r.db.QueryRowContext(ctx,
			`INSERT INTO users (email, password_hash) VALUES (?, ?) RETURNING id`,
			email, passwordHash,
		).Scan(&u.ID)
	})

	if err != nil {
		if isUniqueViolation(err) {
			return user.Record{}, user.ErrDuplicateEmail
		}
		return user.Record{}, fmt.Errorf("insert user: %w", err)
	}

	return u, nil
}

func (r *UsersRepo) List(ctx context.Context, filter string) ([]user.Summary, error) {
	query := `SELECT id, email FROM users`
	var args []any

	if filter != "" {
		query += ` WHERE instr(email, ?) > 0`
		args = append(args, filter)
	}

	query += ` ORDER BY id DESC`

	var rows *sql.Rows

	err := r.observe("users.list", func() (e error) {
		rows, e = r.db.QueryContext(ctx, query, args...)
		return e
	})

	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := make([]user.Summary, 0)
	for rows.Next() {
		var s user.Summary
		if err := rows.Scan(&s.ID, &s.Email); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return out, nil
}

func (r *UsersRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool

	err := r.observe("users.exists_by_email", func() error {
		return r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`,
			email,
		).Scan(&exists)
	})

	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}

	return exists, nil
}

func (r *UsersRepo) Update(ctx context.Context, id int64, email string, passwordHash *string) (user.Summary, error) {
	var s user.Summary

	err := r.observe("users.update", func() error {
		return r.db.QueryRowContext(ctx,
			`UPDATE users
			SET email = ?,
				password_hash = COALESCE(?, password_hash)
			WHERE id = ?
			RETURNING id, email`,
			email, passwordHash, id,
		).Scan(&s.ID, &s.Email)
	})

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.Summary{}, user.ErrNotFound
		}
		if isUniqueViolation(err) {
			return user.Summary{}, user.ErrDuplicateEmail
		}
		return user.Summary{}, fmt.Errorf("update user: %w", err)
	}

	return s, nil
}

func (r *UsersRepo) Delete(ctx context.Context, id int64) (bool, error) {
	var res sql.Result

	err := r.observe("users.delete", func() (e error) {
		res, e = r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		return e
	})

	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}

	return n > 0, nil
}

func (r *UsersRepo) Count(ctx context.Context) (int64, error) {
	var n int64

	err := r.observe("users.count", func() error {
		return r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	})

	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}

	return n, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.Record, error) {
	var u user.Record

	err := r.observe("users.get_by_email", func() error {
		return r.db.QueryRowContext(ctx,
			`SELECT id, email, password_hash FROM users WHERE email = ?`,
			email,
		).Scan(&u.ID, &u.Email, &u.PasswordHash)
	})

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.Record{}, user.ErrNotFound
		}
		return user.Record{}, fmt.Errorf("get user: %w", err)
	}

	return u, nil
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
