package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/db"
	httpx "github.com/geocoder89/userhub/internal/http"
	"github.com/geocoder89/userhub/internal/notifications"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/geocoder89/userhub/internal/redisclient"
	"github.com/geocoder89/userhub/internal/repo/memory"
	"github.com/geocoder89/userhub/internal/repo/postgres"
	"github.com/geocoder89/userhub/internal/repo/sqlite"
	"github.com/geocoder89/userhub/internal/security"
	"github.com/geocoder89/userhub/internal/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, log)
	if err != nil {
		log.Error("server exited", "err", err)
		os.Exit(1)
	}

	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	shutdownTracer, err := observability.InitTracer(ctx, cfg.ServiceName, cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		c, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()
		_ = shutdownTracer(c)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	repo, closeRepo, err := openUsersRepo(ctx, cfg, prom)
	if err != nil {
		return err
	}
	defer closeRepo()

	notifier, closeNotifier := newNotifier(ctx, cfg, log)
	defer closeNotifier()

	store := users.NewStore(repo, security.NewBcryptHasher(cfg.BcryptCost), users.Options{
		Logger:       log,
		Prom:         prom,
		Notifier:     notifier,
		ListCacheTTL: cfg.ListCacheTTL,
	})

	created, err := db.EnsureSeedUser(ctx, store, cfg)
	if err != nil {
		return fmt.Errorf("seed user: %w", err)
	}
	if created {
		log.Info("seed user created", "email", cfg.SeedEmail)
	}

	router := httpx.NewRouter(log, cfg, httpx.Deps{
		Users:    store,
		Prom:     prom,
		Requests: observability.NewRequestMetrics(),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env, "db_driver", cfg.DBDriver)

		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("server shutting down")

		c, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}

		// let pending change notifications reach the notifier before it closes
		err = store.Flush(c)
		if err != nil {
			log.Warn("pending notifications dropped", "err", err)
		}
		return nil
	})

	return g.Wait()
}

func openUsersRepo(ctx context.Context, cfg config.Config, prom *observability.Prom) (users.Repository, func(), error) {
	switch strings.ToLower(cfg.DBDriver) {
	case config.DriverPostgres:
		pool, err := db.NewPool(cfg.DBURL(), cfg.DBMaxConns)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}

		err = db.EnsurePostgresSchema(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}

		return postgres.NewUsersRepo(pool, prom), pool.Close, nil

	case config.DriverSQLite:
		sqlDB, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}

		err = db.EnsureSQLiteSchema(ctx, sqlDB)
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}

		return sqlite.NewUsersRepo(sqlDB, prom), func() { _ = sqlDB.Close() }, nil

	default:
		return memory.NewUsersRepo(), func() {}, nil
	}
}

// newNotifier publishes change events to Redis when REDIS_ADDR is set and only logs them otherwise.
// An unreachable Redis at startup is not fatal, the circuit breaker absorbs it.
func newNotifier(ctx context.Context, cfg config.Config, log *slog.Logger) (notifications.Notifier, func()) {
	if cfg.RedisAddr == "" {
		return notifications.NewLogNotifier(log), func() {}
	}

	rdb := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	c, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err := rdb.Ping(c)
	if err != nil {
		log.Warn("redis not reachable, change events will be dropped until it is", "addr", cfg.RedisAddr, "err", err)
	}

	n := notifications.NewProtectedNotifier(
		notifications.NewRedisNotifier(rdb, cfg.RedisChannel),
		notifications.ProtectedNotifierConfig{Timeout: time.Second},
	)

	return n, func() { _ = rdb.Close() }
}
