package db

import (
	"context"
	"errors"

	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/domain/user"
)

type UserCreator interface {
	Create(ctx context.Context, email, password string) (user.Summary, error)
}

// EnsureSeedUser creates the configured seed account once. An existing account is left untouched.
func EnsureSeedUser(ctx context.Context, users UserCreator, cfg config.Config) (created bool, err error) {
	if cfg.SeedEmail == "" || cfg.SeedPassword == "" {
		return false, nil
	}

	_, err = users.Create(ctx, cfg.SeedEmail, cfg.SeedPassword)

	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}
