package db

import (
	"context"
	"errors"
	"testing"

	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/stretchr/testify/require"
)

type fakeCreator struct {
	calls int
	err   error
}

func (f *fakeCreator) Create(ctx context.Context, email, password string) (user.Summary, error) {
	f.calls++
	if f.err != nil {
		return user.Summary{}, f.err
	}
	return user.Summary{ID: 1, Email: email}, nil
}

func TestEnsureSeedUser(t *testing.T) {
	ctx := context.Background()
	seeded := config.Config{SeedEmail: "admin@example.com", SeedPassword: "pw"}

	t.Run("not_configured", func(t *testing.T) {
		f := &fakeCreator{}
		created, err := EnsureSeedUser(ctx, f, config.Config{})
		require.NoError(t, err)
		require.False(t, created)
		require.Zero(t, f.calls)
	})

	t.Run("created", func(t *testing.T) {
		f := &fakeCreator{}
		created, err := EnsureSeedUser(ctx, f, seeded)
		require.NoError(t, err)
		require.True(t, created)
	})

	t.Run("already_present", func(t *testing.T) {
		f := &fakeCreator{err: user.ErrDuplicateEmail}
		created, err := EnsureSeedUser(ctx, f, seeded)
		require.NoError(t, err)
		require.False(t, created)
	})

	t.Run("storage_error", func(t *testing.T) {
		f := &fakeCreator{err: errors.New("db down")}
		_, err := EnsureSeedUser(ctx, f, seeded)
		require.Error(t, err)
	})
}

func TestOpenSQLite_MemoryWithSchema(t *testing.T) {
	sqlDB, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, EnsureSQLiteSchema(context.Background(), sqlDB))
	// idempotent
	require.NoError(t, EnsureSQLiteSchema(context.Background(), sqlDB))

	var n int
	require.NoError(t, sqlDB.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	require.Zero(t, n)
}
