package notifications

import (
	"context"
	"time"
)

type ChangeType string

const (
	UserCreated ChangeType = "created"
	UserUpdated ChangeType = "updated"
	UserDeleted ChangeType = "deleted"
)

// UserChanged tells the dashboard a user row changed so it can refresh instead of waiting for its next poll.
type UserChanged struct {
	Type  ChangeType `json:"type"`
	ID    int64      `json:"id"`
	Email string     `json:"email,omitempty"`
	At    time.Time  `json:"at"`
}

type Notifier interface {
	UserChanged(ctx context.Context, ev UserChanged) error
}
