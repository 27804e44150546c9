package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

// Make sure Gin does not spam the console during the test
func init() {
	gin.SetMode(gin.TestMode)
}

type fakeUserStore struct {
	createFn func(ctx context.Context, email, password string) (user.Summary, error)
	listFn   func(ctx context.Context, filter string) ([]user.Summary, error)
	existsFn func(ctx context.Context, email string) (bool, error)
	updateFn func(ctx context.Context, id int64, email string, password *string) (user.Summary, error)
	deleteFn func(ctx context.Context, id int64) error
	countFn  func(ctx context.Context) (int64, error)
}

func (f *fakeUserStore) Create(ctx context.Context, email, password string) (user.Summary, error) {
	if f.createFn != nil {
		return f.createFn(ctx, email, password)
	}
	return user.Summary{}, nil
}

func (f *fakeUserStore) List(ctx context.Context, filter string) ([]user.Summary, error) {
	if f.listFn != nil {
		return f.listFn(ctx, filter)
	}
	return []user.Summary{}, nil
}

func (f *fakeUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if f.existsFn != nil {
		return f.existsFn(ctx, email)
	}
	return false, nil
}

func (f *fakeUserStore) Update(ctx context.Context, id int64, email string, password *string) (user.Summary, error) {
	if f.updateFn != nil {
		return f.updateFn(ctx, id, email, password)
	}
	return user.Summary{}, nil
}

func (f *fakeUserStore) Delete(ctx context.Context, id int64) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

func (f *fakeUserStore) Count(ctx context.Context) (int64, error) {
	if f.countFn != nil {
		return f.countFn(ctx)
	}
	return 0, nil
}

// small helper which returns a gin engine with one handler mounted
func setupRouter(method, path string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Handle(method, path, h)
	return r
}

func doJSON(r *gin.Engine, method, url, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, url, nil)
	} else {
		req = httptest.NewRequest(method, url, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type errorBody struct {
	Error handlers.APIError `json:"error"`
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal error body: %v body=%s", err, w.Body.String())
	}
	return body.Error.Code
}

func TestCreateUserHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		storeSetup     func(*fakeUserStore)
		wantStatusCode int
		wantCode       string
	}{
		{
			name: "success",
			body: `{"email":"a@x.com","password":"pw"}`,
			storeSetup: func(f *fakeUserStore) {
				f.createFn = func(ctx context.Context, email, password string) (user.Summary, error) {
					if email != "a@x.com" || password != "pw" {
						return user.Summary{}, errors.New("unexpected input")
					}
					return user.Summary{ID: 1, Email: email}, nil
				}
			},
			wantStatusCode: http.StatusCreated,
		},
		{
			name:           "missing_password",
			body:           `{"email":"a@x.com"}`,
			wantStatusCode: http.StatusBadRequest,
			wantCode:       "invalid_request",
		},
		{
			name:           "malformed_json",
			body:           `{"email":`,
			wantStatusCode: http.StatusBadRequest,
			wantCode:       "invalid_request",
		},
		{
			name: "duplicate",
			body: `{"email":"a@x.com","password":"pw"}`,
			storeSetup: func(f *fakeUserStore) {
				f.createFn = func(ctx context.Context, email, password string) (user.Summary, error) {
					return user.Summary{}, user.ErrDuplicateEmail
				}
			},
			wantStatusCode: http.StatusBadRequest,
			wantCode:       "email_taken",
		},
		{
			name: "store_rejects_email",
			body: `{"email":"nope@x.com","password":"pw"}`,
			storeSetup: func(f *fakeUserStore) {
				f.createFn = func(ctx context.Context, email, password string) (user.Summary, error) {
					return user.Summary{}, errors.Join(user.ErrInvalidInput, errors.New("email failed max"))
				}
			},
			wantStatusCode: http.StatusBadRequest,
			wantCode:       "invalid_request",
		},
		{
			name: "store_error",
			body: `{"email":"a@x.com","password":"pw"}`,
			storeSetup: func(f *fakeUserStore) {
				f.createFn = func(ctx context.Context, email, password string) (user.Summary, error) {
					return user.Summary{}, errors.New("db error")
				}
			},
			wantStatusCode: http.StatusInternalServerError,
			wantCode:       "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeUserStore{}
			if tt.storeSetup != nil {
				tt.storeSetup(store)
			}

			h := handlers.NewUsersHandler(store, 0)
			r := setupRouter(http.MethodPost, "/api/users", h.CreateUser)

			w := doJSON(r, http.MethodPost, "/api/users", tt.body)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if tt.wantCode != "" {
				if got := errorCode(t, w); got != tt.wantCode {
					t.Fatalf("got code %q, want %q", got, tt.wantCode)
				}
				return
			}

			var resp struct {
				Success bool         `json:"success"`
				User    user.Summary `json:"user"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to unmarshal: %v", err)
			}
			if !resp.Success || resp.User.ID != 1 {
				t.Fatalf("unexpected response: %s", w.Body.String())
			}
		})
	}
}

func TestListUsersHandler(t *testing.T) {
	var gotFilter string
	store := &fakeUserStore{
		listFn: func(ctx context.Context, filter string) ([]user.Summary, error) {
			gotFilter = filter
			return []user.Summary{{ID: 2, Email: "b@x.com"}, {ID: 1, Email: "a@x.com"}}, nil
		},
	}

	h := handlers.NewUsersHandler(store, 0)
	r := setupRouter(http.MethodGet, "/api/users", h.ListUsers)

	w := doJSON(r, http.MethodGet, "/api/users?search=Ali", "")

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}
	if gotFilter != "Ali" {
		t.Fatalf("filter not passed through, got %q", gotFilter)
	}

	var list []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("expected a bare array: %v body=%s", err, w.Body.String())
	}
	if len(list) != 2 || list[0]["email"] != "b@x.com" {
		t.Fatalf("unexpected list: %s", w.Body.String())
	}
	if _, leaked := list[0]["password_hash"]; leaked {
		t.Fatalf("password hash leaked: %s", w.Body.String())
	}

	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected ETag header")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/users?search=Ali", nil)
	req.Header.Set("If-None-Match", etag)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)

	if w2.Code != http.StatusNotModified {
		t.Fatalf("got status %d, want 304", w2.Code)
	}
	if w2.Body.Len() != 0 {
		t.Fatalf("304 should have no body, got %q", w2.Body.String())
	}
}

func TestListUsersHandler_EmptyIsArray(t *testing.T) {
	h := handlers.NewUsersHandler(&fakeUserStore{}, 0)
	r := setupRouter(http.MethodGet, "/api/users", h.ListUsers)

	w := doJSON(r, http.MethodGet, "/api/users", "")

	if w.Code != http.StatusOK || w.Body.String() != "[]" {
		t.Fatalf("got %d %q, want 200 []", w.Code, w.Body.String())
	}
}

func TestEmailExistsHandler(t *testing.T) {
	store := &fakeUserStore{
		existsFn: func(ctx context.Context, email string) (bool, error) {
			return email == "a@x.com", nil
		},
	}
	h := handlers.NewUsersHandler(store, 0)

	r := gin.New()
	r.POST("/api/users/exists", h.EmailExists)
	r.GET("/api/users/exists", h.EmailExists)

	tests := []struct {
		name       string
		method     string
		url        string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"post_taken", http.MethodPost, "/api/users/exists", `{"email":"a@x.com"}`, http.StatusOK, `{"exists":true}`},
		{"post_free", http.MethodPost, "/api/users/exists", `{"email":"z@x.com"}`, http.StatusOK, `{"exists":false}`},
		{"post_missing", http.MethodPost, "/api/users/exists", `{}`, http.StatusBadRequest, ""},
		{"get_taken", http.MethodGet, "/api/users/exists?email=a@x.com", "", http.StatusOK, `{"exists":true}`},
		{"get_missing", http.MethodGet, "/api/users/exists", "", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, tt.method, tt.url, tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Fatalf("got body %s, want %s", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestUpdateUserHandler(t *testing.T) {
	tests := []struct {
		name           string
		url            string
		body           string
		storeSetup     func(*fakeUserStore)
		wantStatusCode int
		wantCode       string
	}{
		{
			name: "success_without_password",
			url:  "/api/users/7",
			body: `{"email":"n@x.com"}`,
			storeSetup: func(f *fakeUserStore) {
				f.updateFn = func(ctx context.Context, id int64, email string, password *string) (user.Summary, error) {
					if id != 7 || password != nil {
						return user.Summary{}, errors.New("unexpected input")
					}
					return user.Summary{ID: id, Email: email}, nil
				}
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name: "success_with_password",
			url:  "/api/users/7",
			body: `{"email":"n@x.com","password":"new"}`,
			storeSetup: func(f *fakeUserStore) {
				f.updateFn = func(ctx context.Context, id int64, email string, password *string) (user.Summary, error) {
					if password == nil || *password != "new" {
						return user.Summary{}, errors.New("password not passed")
					}
					return user.Summary{ID: id, Email: email}, nil
				}
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "bad_id",
			url:            "/api/users/abc",
			body:           `{"email":"n@x.com"}`,
			wantStatusCode: http.StatusBadRequest,
			wantCode:       "invalid_request",
		},
		{
			name: "not_found",
			url:  "/api/users/99",
			body: `{"email":"n@x.com"}`,
			storeSetup: func(f *fakeUserStore) {
				f.updateFn = func(ctx context.Context, id int64, email string, password *string) (user.Summary, error) {
					return user.Summary{}, user.ErrNotFound
				}
			},
			wantStatusCode: http.StatusNotFound,
			wantCode:       "not_found",
		},
		{
			name: "email_taken",
			url:  "/api/users/7",
			body: `{"email":"b@x.com"}`,
			storeSetup: func(f *fakeUserStore) {
				f.updateFn = func(ctx context.Context, id int64, email string, password *string) (user.Summary, error) {
					return user.Summary{}, user.ErrDuplicateEmail
				}
			},
			wantStatusCode: http.StatusBadRequest,
			wantCode:       "email_taken",
		},
		{
			name: "timeout",
			url:  "/api/users/7",
			body: `{"email":"n@x.com"}`,
			storeSetup: func(f *fakeUserStore) {
				f.updateFn = func(ctx context.Context, id int64, email string, password *string) (user.Summary, error) {
					return user.Summary{}, context.DeadlineExceeded
				}
			},
			wantStatusCode: http.StatusServiceUnavailable,
			wantCode:       "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeUserStore{}
			if tt.storeSetup != nil {
				tt.storeSetup(store)
			}

			h := handlers.NewUsersHandler(store, 0)
			r := setupRouter(http.MethodPut, "/api/users/:id", h.UpdateUser)

			w := doJSON(r, http.MethodPut, tt.url, tt.body)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
			if tt.wantCode != "" {
				if got := errorCode(t, w); got != tt.wantCode {
					t.Fatalf("got code %q, want %q", got, tt.wantCode)
				}
			}
		})
	}
}

func TestDeleteUserHandler(t *testing.T) {
	tests := []struct {
		name           string
		url            string
		deleteErr      error
		wantStatusCode int
	}{
		{"success", "/api/users/3", nil, http.StatusOK},
		{"non_numeric_id", "/api/users/three", nil, http.StatusBadRequest},
		{"zero_id", "/api/users/0", nil, http.StatusBadRequest},
		{"store_error", "/api/users/3", errors.New("db error"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			store := &fakeUserStore{
				deleteFn: func(ctx context.Context, id int64) error {
					called = true
					return tt.deleteErr
				},
			}

			h := handlers.NewUsersHandler(store, 0)
			r := setupRouter(http.MethodDelete, "/api/users/:id", h.DeleteUser)

			w := doJSON(r, http.MethodDelete, tt.url, "")

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
			if tt.wantStatusCode == http.StatusBadRequest && called {
				t.Fatalf("store should not be called for an invalid id")
			}
			if tt.wantStatusCode == http.StatusOK && w.Body.String() != `{"success":true}` {
				t.Fatalf("unexpected body %s", w.Body.String())
			}
		})
	}
}
