package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type UserStore interface {
	Create(ctx context.Context, email, password string) (user.Summary, error)
	List(ctx context.Context, filter string) ([]user.Summary, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Update(ctx context.Context, id int64, email string, password *string) (user.Summary, error)
	Delete(ctx context.Context, id int64) error
}

type UsersHandler struct {
	store   UserStore
	timeout time.Duration
}

func NewUsersHandler(store UserStore, timeout time.Duration) *UsersHandler {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return &UsersHandler{store: store, timeout: timeout}
}

func (h *UsersHandler) storeCtx(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), h.timeout)
}

func (h *UsersHandler) CreateUser(ctx *gin.Context) {
	var req user.CreateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	c, cancel := h.storeCtx(ctx)
	defer cancel()

	u, err := h.store.Create(c, req.Email, req.Password)

	if err != nil {
		respondStoreError(ctx, err, "Could not create user")
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"success": true, "user": u})
}

// ListUsers returns a bare JSON array, newest first. ?search= filters by email substring.
func (h *UsersHandler) ListUsers(ctx *gin.Context) {
	c, cancel := h.storeCtx(ctx)
	defer cancel()

	users, err := h.store.List(c, ctx.Query("search"))

	if err != nil {
		respondStoreError(ctx, err, "Could not list users")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, users)
}

func (h *UsersHandler) EmailExists(ctx *gin.Context) {
	var req user.ExistsRequest

	if ctx.Request.Method == http.MethodGet {
		if !BindQuery(ctx, &req) {
			return
		}
	} else if !BindJSON(ctx, &req) {
		return
	}

	c, cancel := h.storeCtx(ctx)
	defer cancel()

	exists, err := h.store.ExistsByEmail(c, req.Email)

	if err != nil {
		respondStoreError(ctx, err, "Could not check email")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"exists": exists})
}

func (h *UsersHandler) UpdateUser(ctx *gin.Context) {
	id, ok := userIDParam(ctx)
	if !ok {
		return
	}

	var req user.UpdateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	c, cancel := h.storeCtx(ctx)
	defer cancel()

	u, err := h.store.Update(c, id, req.Email, req.Password)

	if err != nil {
		respondStoreError(ctx, err, "Could not update user")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "user": u})
}

// DeleteUser answers success whether or not the id existed.
func (h *UsersHandler) DeleteUser(ctx *gin.Context) {
	id, ok := userIDParam(ctx)
	if !ok {
		return
	}

	c, cancel := h.storeCtx(ctx)
	defer cancel()

	err := h.store.Delete(c, id)

	if err != nil {
		respondStoreError(ctx, err, "Could not delete user")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

func userIDParam(ctx *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)

	if err != nil || id <= 0 {
		RespondBadRequest(ctx, "Invalid user id", gin.H{"id": ctx.Param("id")})
		return 0, false
	}

	ctx.Set(middlewares.CtxUserID, id)

	return id, true
}

func respondStoreError(ctx *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, user.ErrInvalidInput):
		RespondBadRequest(ctx, "Invalid request", gin.H{"reason": err.Error()})
	case errors.Is(err, user.ErrDuplicateEmail):
		RespondEmailTaken(ctx)
	case errors.Is(err, user.ErrNotFound):
		RespondNotFound(ctx, "User not found")
	case errors.Is(err, context.DeadlineExceeded):
		_ = ctx.Error(err)
		RespondUnavailable(ctx, "Storage did not answer in time")
	default:
		_ = ctx.Error(err)
		RespondInternal(ctx, message)
	}
}
