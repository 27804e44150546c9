package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Insert relies on the users_email_key constraint as the only uniqueness gate.
func (r *UsersRepo) Insert(ctx context.Context, email, passwordHash string) (u user.Record, err error) {
	err = r.observe("users.insert", func() error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING id, email, password_hash`,
			email, passwordHash,
		).Scan(&u.ID, &u.Email, &u.PasswordHash)
	})

	if err != nil {
		if isUniqueViolation(err) {
			return user.Record{}, user.ErrDuplicateEmail
		}
		return user.Record{}, fmt.Errorf("insert user: %w", err)
	}

	return u, nil
}

func (r *UsersRepo) List(ctx context.Context, filter string) (out []user.Summary, err error) {
	query := `SELECT id, email FROM users`
	var args []interface{}

	if filter != "" {
		// strpos matches the literal substring, no LIKE wildcards to escape
		query += ` WHERE strpos(email, $1) > 0`
		args = append(args, filter)
	}

	query += ` ORDER BY id DESC`

	var rows pgx.Rows

	err = r.observe("users.list", func() error {
		rows, err = r.pool.Query(ctx, query, args...)
		return err
	})

	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	defer rows.Close()

	out = make([]user.Summary, 0)

	for rows.Next() {
		var s user.Summary

		err = rows.Scan(&s.ID, &s.Email)

		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}

		out = append(out, s)
	}

	err = rows.Err()

	if err != nil {
		if r.prom != nil {
			r.prom.DbErrorsTotal.WithLabelValues("users.list", "rows_err").Inc()
		}
		return nil, fmt.Errorf("list users: %w", err)
	}

	return out, nil
}

func (r *UsersRepo) ExistsByEmail(ctx context.Context, email string) (exists bool, err error) {
	err = r.observe("users.exists_by_email", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`,
			email,
		).Scan(&exists)
	})

	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}

	return exists, nil
}

// Update replaces the email and, when passwordHash is non-nil, the hash in one statement.
func (r *UsersRepo) Update(ctx context.Context, id int64, email string, passwordHash *string) (s user.Summary, err error) {
	err = r.observe("users.update", func() error {
		return r.pool.QueryRow(ctx,
			`UPDATE users
			SET email = $2,
				password_hash = COALESCE($3, password_hash)
			WHERE id = $1
			RETURNING id, email`,
			id, email, passwordHash,
		).Scan(&s.ID, &s.Email)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.Summary{}, user.ErrNotFound
		}
		if isUniqueViolation(err) {
			return user.Summary{}, user.ErrDuplicateEmail
		}
		return user.Summary{}, fmt.Errorf("update user: %w", err)
	}

	return s, nil
}

// Delete reports whether a row was removed; a missing id is not an error.
func (r *UsersRepo) Delete(ctx context.Context, id int64) (bool, error) {
	var tag pgconn.CommandTag

	err := r.observe("users.delete", func() (e error) {
		tag, e = r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		return e
	})

	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *UsersRepo) Count(ctx context.Context) (n int64, err error) {
	err = r.observe("users.count", func() error {
		return r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	})

	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}

	return n, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.Record, error) {
	var u user.Record

	err := r.observe("users.get_by_email", func() error {
		return r.pool.QueryRow(
			ctx,
			`SELECT id, email, password_hash
			FROM users
			WHERE email = $1`,
			email,
		).Scan(&u.ID, &u.Email, &u.PasswordHash)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.Record{}, user.ErrNotFound
		}

		return user.Record{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
