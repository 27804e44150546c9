package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/geocoder89/userhub/internal/domain/user"
)

// UsersRepo keeps users in process memory. One mutex makes every operation atomic,
// which is the same guarantee the SQL backends get from single statements.
type UsersRepo struct {
	mu      sync.RWMutex
	lastID  int64
	items   map[int64]user.Record
	byEmail map[string]int64
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items:   make(map[int64]user.Record),
		byEmail: make(map[string]int64),
	}
}

func (r *UsersRepo) Insert(_ context.Context, email, passwordHash string) (user.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[email]; taken {
		return user.Record{}, user.ErrDuplicateEmail
	}

	// ids only move forward, deleted ids stay retired
	r.lastID++
	u := user.Record{ID: r.lastID, Email: email, PasswordHash: passwordHash}

	r.items[u.ID] = u
	r.byEmail[email] = u.ID

	return u, nil
}

func (r *UsersRepo) List(_ context.Context, filter string) ([]user.Summary, error) {
	r.mu.RLock()
	out := make([]user.Summary, 0, len(r.items))
	for _, u := range r.items {
		if filter == "" || strings.Contains(u.Email, filter) {
			out = append(out, u.Summary())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	return out, nil
}

func (r *UsersRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	_, ok := r.byEmail[email]
	r.mu.RUnlock()

	return ok, nil
}

func (r *UsersRepo) Update(_ context.Context, id int64, email string, passwordHash *string) (user.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.Summary{}, user.ErrNotFound
	}

	if owner, taken := r.byEmail[email]; taken && owner != id {
		return user.Summary{}, user.ErrDuplicateEmail
	}

	delete(r.byEmail, u.Email)
	u.Email = email
	if passwordHash != nil {
		u.PasswordHash = *passwordHash
	}

	r.items[id] = u
	r.byEmail[email] = id

	return u.Summary(), nil
}

func (r *UsersRepo) Delete(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return false, nil
	}

	delete(r.items, id)
	delete(r.byEmail, u.Email)

	return true, nil
}

func (r *UsersRepo) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return int64(len(r.items)), nil
}

func (r *UsersRepo) GetByEmail(_ context.Context, email string) (user.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return user.Record{}, user.ErrNotFound
	}

	return r.items[id], nil
}

func (r *UsersRepo) Ping(context.Context) error {
	return nil
}
