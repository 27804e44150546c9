package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	Env         string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"userhub"`

	DBDriver   string `envconfig:"DB_DRIVER" default:"postgres"`
	DBHost     string `envconfig:"DB_HOST" default:"127.0.0.1"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"userhub"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"userhub"`
	DBName     string `envconfig:"DB_NAME" default:"userhub"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"5"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"users.db"`

	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"3s"`
	BcryptCost     int           `envconfig:"BCRYPT_COST" default:"10"`
	ListCacheTTL   time.Duration `envconfig:"LIST_CACHE_TTL" default:"0s"`
	MaxBodyBytes   int64         `envconfig:"MAX_BODY_BYTES" default:"1048576"`
	CORSOrigins    []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisChannel  string `envconfig:"REDIS_CHANNEL" default:"users.events"`

	OTELEndpoint string `envconfig:"OTEL_ENDPOINT"`

	SeedEmail    string `envconfig:"SEED_EMAIL"`
	SeedPassword string `envconfig:"SEED_PASSWORD"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	// a missing .env is fine, real deployments set the environment directly
	_ = godotenv.Load()

	var cfg Config

	err := envconfig.Process("", &cfg)

	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	err = cfg.Validate()

	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	switch strings.ToLower(c.DBDriver) {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}

	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT must be positive")
	}

	if (c.SeedEmail == "") != (c.SeedPassword == "") {
		return errors.New("SEED_EMAIL and SEED_PASSWORD must be set together")
	}

	return nil
}

// DBURL builds the Postgres connection URL with user and password escaped.
func (c Config) DBURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.DBSSLMode}}.Encode(),
	}
	return u.String()
}

func (c Config) IsDev() bool {
	return c.Env == "dev"
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}
