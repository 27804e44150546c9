package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/db"
	apphttp "github.com/geocoder89/userhub/internal/http"
	"github.com/geocoder89/userhub/internal/repo/postgres"
	"github.com/geocoder89/userhub/internal/security"
	"github.com/geocoder89/userhub/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

func testConfig() config.Config {
	return config.Config{
		Env:            "test",
		ServiceName:    "userhub-integration",
		RequestTimeout: 5 * time.Second,
		MaxBodyBytes:   1 << 20,
	}
}

type apiErrorResponse struct {
	Error struct {
		Code      string          `json:"code"`
		Message   string          `json:"message"`
		RequestID string          `json:"requestId"`
		Details   json.RawMessage `json:"details"`
	} `json:"error"`
}

func setupTestRouter(t *testing.T) (*gin.Engine, *pgxpool.Pool) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	pool, err := db.NewPool(dsn, 8)
	if err != nil {
		t.Fatalf("Failed to create pgx pool: %v", err)
	}
	t.Cleanup(pool.Close)

	err = db.EnsurePostgresSchema(context.Background(), pool)
	if err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	// Basic logger that discards outputs during tests
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := users.NewStore(postgres.NewUsersRepo(pool, nil), security.NewBcryptHasher(bcrypt.MinCost), users.Options{Logger: logger})

	router := apphttp.NewRouter(logger, testConfig(), apphttp.Deps{Users: store})

	return router, pool
}

func resetDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `TRUNCATE users`)
	if err != nil {
		t.Fatalf("failed to truncate users: %v", err)
	}
}

func postUser(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/users", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUsersIntegration_DuplicateEmail(t *testing.T) {
	router, pool := setupTestRouter(t)
	resetDB(t, pool)
	defer resetDB(t, pool)

	w1 := postUser(router, `{"email":"sam@example.com","password":"pw"}`)
	if w1.Code != http.StatusCreated {
		t.Fatalf("[first call] got status %d, want %d, body=%s", w1.Code, http.StatusCreated, w1.Body.String())
	}

	w2 := postUser(router, `{"email":"SAM@example.com","password":"other"}`)
	if w2.Code != http.StatusBadRequest {
		t.Fatalf("[second call] got status %d, want %d, body=%s", w2.Code, http.StatusBadRequest, w2.Body.String())
	}

	var response apiErrorResponse
	if err := json.Unmarshal(w2.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to unmarshal error response: %v", err)
	}
	if response.Error.Code != "email_taken" {
		t.Fatalf("got code %q, want email_taken", response.Error.Code)
	}

	var count int
	err := pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM users WHERE email = $1`, "sam@example.com").Scan(&count)
	if err != nil {
		t.Fatalf("failed to count users: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 user, got %d", count)
	}
}

func TestUsersIntegration_ConcurrentCreatesOneWinner(t *testing.T) {
	router, pool := setupTestRouter(t)
	resetDB(t, pool)
	defer resetDB(t, pool)

	const n = 10
	codes := make([]int, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = postUser(router, `{"email":"race@example.com","password":"pw"}`).Code
		}(i)
	}
	wg.Wait()

	created := 0
	for _, c := range codes {
		switch c {
		case http.StatusCreated:
			created++
		case http.StatusBadRequest:
		default:
			t.Fatalf("unexpected status %d", c)
		}
	}

	if created != 1 {
		t.Fatalf("expected exactly one 201, got %d", created)
	}
}

func TestUsersIntegration_StoredHashIsNotPlaintext(t *testing.T) {
	router, pool := setupTestRouter(t)
	resetDB(t, pool)
	defer resetDB(t, pool)

	w := postUser(router, `{"email":"hash@example.com","password":"plain-secret"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	var hash string
	err := pool.QueryRow(context.Background(), `SELECT password_hash FROM users WHERE email = $1`, "hash@example.com").Scan(&hash)
	if err != nil {
		t.Fatalf("failed to read hash: %v", err)
	}

	if hash == "plain-secret" {
		t.Fatalf("password stored in plaintext")
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte("plain-secret")) != nil {
		t.Fatalf("stored hash does not verify")
	}
}
