package security

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher hashes passwords with bcrypt. The salt lives inside each hash.
// Passwords are folded through SHA-256 first so bcrypt never sees more than
// 44 bytes and every byte of a long password counts.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher clamps cost into bcrypt's accepted range; 0 means bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}

	return &BcryptHasher{cost: cost}
}

// Hash password hashes a plain text password with bcrypt.
func (h *BcryptHasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(prehash(plain), h.cost)

	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// Matches reports whether plain is the password behind hash.
// A malformed hash is an error, a wrong password is not.
func (h *BcryptHasher) Matches(hash, plain string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), prehash(plain))

	if err == nil {
		return true, nil
	}

	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}

	return false, err
}

func prehash(plain string) []byte {
	sum := sha256.Sum256([]byte(plain))
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum[:])
	return out
}
