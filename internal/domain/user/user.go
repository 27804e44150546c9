package user

import (
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Record is a persisted user row.
type Record struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"` // never expose hash in JSON
}

// Summary is the public projection of a user. List results only ever carry this shape.
type Summary struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

func (r Record) Summary() Summary {
	return Summary{ID: r.ID, Email: r.Email}
}

var (
	ErrDuplicateEmail = errors.New("email already exists")
	ErrNotFound       = errors.New("user not found")
	ErrInvalidInput   = errors.New("invalid input")
)

type CreateUserRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Email is required but not format-checked; surrounding whitespace is trimmed
// by the store. Password is optional on update, nil keeps the stored hash.
type UpdateUserRequest struct {
	Email    string  `json:"email" binding:"required"`
	Password *string `json:"password"`
}

type ExistsRequest struct {
	Email string `json:"email" form:"email" binding:"required"`
}

// NormalizeEmail folds an address into its storage form: NFC, trimmed, lowercase.
// Every comparison against the users table goes through it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(email)))
}

// NormalizeFilter applies the same folding to a search substring.
func NormalizeFilter(q string) string {
	return NormalizeEmail(q)
}
