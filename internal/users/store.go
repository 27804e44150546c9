// Package users is the single authority over user records. Every read and write
// goes through Store, which validates and normalizes input, hashes passwords and
// leaves uniqueness to the backend's atomic insert/update.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/userhub/internal/cache"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/notifications"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/geocoder89/userhub/internal/utils"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Repository is a persistence backend. Each mutating method must be a single atomic
// operation and must report a taken email as user.ErrDuplicateEmail.
type Repository interface {
	Insert(ctx context.Context, email, passwordHash string) (user.Record, error)
	List(ctx context.Context, filter string) ([]user.Summary, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Update(ctx context.Context, id int64, email string, passwordHash *string) (user.Summary, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Count(ctx context.Context) (int64, error)
	GetByEmail(ctx context.Context, email string) (user.Record, error)
	Ping(ctx context.Context) error
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Matches(hash, plain string) (bool, error)
}

type Options struct {
	Logger   *slog.Logger
	Prom     *observability.Prom
	Notifier notifications.Notifier
	// ListCacheTTL > 0 caches List results in process until the next mutation.
	ListCacheTTL time.Duration
	// NotifyTimeout bounds each background notification. Defaults to 5s.
	NotifyTimeout time.Duration
}

const defaultNotifyTimeout = 5 * time.Second

type Store struct {
	repo     Repository
	hasher   PasswordHasher
	validate *validator.Validate
	log      *slog.Logger
	prom     *observability.Prom
	notifier notifications.Notifier
	tracer   trace.Tracer

	notifyTimeout time.Duration
	notifyWG      sync.WaitGroup

	listCache *cache.Cache[[]user.Summary]
	cacheMu   sync.Mutex
	cacheGen  uint64
}

func NewStore(repo Repository, hasher PasswordHasher, opts Options) *Store {
	s := &Store{
		repo:     repo,
		hasher:   hasher,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      opts.Logger,
		prom:     opts.Prom,
		notifier: opts.Notifier,
		tracer:   observability.Tracer("userhub/users"),

		notifyTimeout: opts.NotifyTimeout,
	}

	if s.notifyTimeout <= 0 {
		s.notifyTimeout = defaultNotifyTimeout
	}

	if s.log == nil {
		s.log = slog.Default()
	}

	if opts.ListCacheTTL > 0 {
		s.listCache = cache.New[[]user.Summary](opts.ListCacheTTL)
	}

	return s
}

type createInput struct {
	Email    string `validate:"required,max=254"`
	Password string `validate:"required"`
}

type updateInput struct {
	ID       int64   `validate:"gt=0"`
	Email    string  `validate:"required,max=254"`
	Password *string
}

func (s *Store) Create(ctx context.Context, email, password string) (user.Summary, error) {
	ctx, span := s.tracer.Start(ctx, "users.Create")
	defer span.End()

	in := createInput{Email: user.NormalizeEmail(email), Password: password}

	err := s.check(in)
	if err != nil {
		s.mutation("create", err)
		return user.Summary{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.fail(span, err)
		s.mutation("create", err)
		return user.Summary{}, fmt.Errorf("hash password: %w", err)
	}

	rec, err := s.repo.Insert(ctx, in.Email, hash)
	s.mutation("create", err)

	if err != nil {
		if !errors.Is(err, user.ErrDuplicateEmail) {
			s.fail(span, err)
		}
		return user.Summary{}, err
	}

	span.SetAttributes(attribute.Int64("user.id", rec.ID))
	s.changed(ctx, notifications.UserCreated, rec.ID, rec.Email)

	return rec.Summary(), nil
}

// List returns users newest first. A non-empty filter keeps only emails containing it, ignoring case.
func (s *Store) List(ctx context.Context, filter string) ([]user.Summary, error) {
	ctx, span := s.tracer.Start(ctx, "users.List")
	defer span.End()

	filter = user.NormalizeFilter(filter)
	key := utils.BuildUsersListCacheKey(filter)

	var gen uint64
	if s.listCache != nil {
		if cached, ok := s.listCache.Get(key); ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cloneSummaries(cached), nil
		}

		s.cacheMu.Lock()
		gen = s.cacheGen
		s.cacheMu.Unlock()
	}

	out, err := s.repo.List(ctx, filter)
	if err != nil {
		s.fail(span, err)
		return nil, err
	}

	if s.listCache != nil {
		s.cacheMu.Lock()
		// a mutation finished while we were reading; don't cache what may already be stale
		if gen == s.cacheGen {
			s.listCache.Set(key, cloneSummaries(out))
		}
		s.cacheMu.Unlock()
	}

	return out, nil
}

func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "users.ExistsByEmail")
	defer span.End()

	email = user.NormalizeEmail(email)
	if email == "" {
		return false, fmt.Errorf("%w: email is required", user.ErrInvalidInput)
	}

	exists, err := s.repo.ExistsByEmail(ctx, email)
	if err != nil {
		s.fail(span, err)
		return false, err
	}

	return exists, nil
}

// Update replaces the email of user id. A nil or empty password keeps the stored hash.
func (s *Store) Update(ctx context.Context, id int64, email string, password *string) (user.Summary, error) {
	ctx, span := s.tracer.Start(ctx, "users.Update", trace.WithAttributes(attribute.Int64("user.id", id)))
	defer span.End()

	if password != nil && *password == "" {
		password = nil
	}

	in := updateInput{ID: id, Email: user.NormalizeEmail(email), Password: password}

	err := s.check(in)
	if err != nil {
		s.mutation("update", err)
		return user.Summary{}, err
	}

	var hash *string
	if in.Password != nil {
		h, err := s.hasher.Hash(*in.Password)
		if err != nil {
			s.fail(span, err)
			s.mutation("update", err)
			return user.Summary{}, fmt.Errorf("hash password: %w", err)
		}
		hash = &h
	}

	sum, err := s.repo.Update(ctx, in.ID, in.Email, hash)
	s.mutation("update", err)

	if err != nil {
		if !errors.Is(err, user.ErrNotFound) && !errors.Is(err, user.ErrDuplicateEmail) {
			s.fail(span, err)
		}
		return user.Summary{}, err
	}

	s.changed(ctx, notifications.UserUpdated, sum.ID, sum.Email)

	return sum, nil
}

// Delete is idempotent: removing an id that does not exist succeeds.
func (s *Store) Delete(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "users.Delete", trace.WithAttributes(attribute.Int64("user.id", id)))
	defer span.End()

	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		s.fail(span, err)
		s.mutation("delete", err)
		return err
	}

	if !removed {
		s.mutation("delete", nil)
		span.SetAttributes(attribute.Bool("user.absent", true))
		return nil
	}

	s.mutation("delete", nil)
	s.changed(ctx, notifications.UserDeleted, id, "")

	return nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "users.Count")
	defer span.End()

	n, err := s.repo.Count(ctx)
	if err != nil {
		s.fail(span, err)
		return 0, err
	}

	return n, nil
}

// CheckPassword reports whether password belongs to the user with email.
// An unknown email is simply false.
func (s *Store) CheckPassword(ctx context.Context, email, password string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "users.CheckPassword")
	defer span.End()

	rec, err := s.repo.GetByEmail(ctx, user.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return false, nil
		}
		s.fail(span, err)
		return false, err
	}

	return s.hasher.Matches(rec.PasswordHash, password)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Store) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", user.ErrInvalidInput, err)
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}

	return fmt.Errorf("%w: %s", user.ErrInvalidInput, strings.Join(parts, ", "))
}

func (s *Store) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (s *Store) mutation(op string, err error) {
	if s.prom == nil {
		return
	}

	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, user.ErrDuplicateEmail):
		result = "duplicate"
	case errors.Is(err, user.ErrNotFound):
		result = "not_found"
	case errors.Is(err, user.ErrInvalidInput):
		result = "invalid"
	default:
		result = "error"
	}

	s.prom.ObserveMutation(op, result)
}

// changed runs after a committed mutation: it drops cached lists and hands the
// event to the notifier in the background. The notification outlives the request
// context but not NotifyTimeout; a failure is only logged.
func (s *Store) changed(ctx context.Context, typ notifications.ChangeType, id int64, email string) {
	if s.listCache != nil {
		s.cacheMu.Lock()
		s.cacheGen++
		s.listCache.Clear()
		s.cacheMu.Unlock()
	}

	if s.notifier == nil {
		return
	}

	ev := notifications.UserChanged{
		Type:  typ,
		ID:    id,
		Email: email,
		At:    time.Now().UTC(),
	}

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)

	s.notifyWG.Add(1)
	go func() {
		defer s.notifyWG.Done()
		defer cancel()

		if err := s.notifier.UserChanged(nctx, ev); err != nil {
			s.log.WarnContext(nctx, "user change notification failed", "type", string(typ), "user_id", id, "err", err)
		}
	}()
}

// Flush waits for in-flight notifications, or until ctx is done.
func (s *Store) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.notifyWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func cloneSummaries(in []user.Summary) []user.Summary {
	out := make([]user.Summary, len(in))
	copy(out, in)
	return out
}
