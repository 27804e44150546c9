package notifications

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

type circuitState string

const (
	stateClosed   circuitState = "closed"
	stateOpen     circuitState = "open"
	stateHalfOpen circuitState = "half_open"
)

type ProtectedNotifierConfig struct {
	Timeout          time.Duration // hard timeout per send
	FailureThreshold int           // consecutive failures to open circuit
	Cooldown         time.Duration // how long to stay open before half-open
	HalfOpenMaxCalls int           // allow N trial calls in half-open
}

// ProtectedNotifier bounds each send with a timeout and stops calling a failing
// backend for a cooldown once FailureThreshold consecutive sends failed.
type ProtectedNotifier struct {
	inner Notifier
	cfg   ProtectedNotifierConfig
	mu    sync.Mutex

	state circuitState

	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int
}

func NewProtectedNotifier(inner Notifier, cfg ProtectedNotifierConfig) *ProtectedNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &ProtectedNotifier{
		inner: inner,
		cfg:   cfg,
		state: stateClosed,
	}
}

func (n *ProtectedNotifier) UserChanged(ctx context.Context, ev UserChanged) error {
	if !n.allowRequest() {
		return ErrCircuitOpen
	}
	sendCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	err := n.inner.UserChanged(sendCtx, ev)

	n.afterRequest(err)

	return err
}

func (n *ProtectedNotifier) allowRequest() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case stateClosed:
		return true
	case stateOpen:
		if time.Since(n.openedAt) < n.cfg.Cooldown {
			return false
		}
		n.state = stateHalfOpen
		n.halfOpenInFlight = 1
		return true
	case stateHalfOpen:
		if n.halfOpenInFlight >= n.cfg.HalfOpenMaxCalls {
			return false
		}
		n.halfOpenInFlight++
		return true
	}

	return true
}

func (n *ProtectedNotifier) afterRequest(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	wasHalfOpen := n.state == stateHalfOpen
	if wasHalfOpen && n.halfOpenInFlight > 0 {
		n.halfOpenInFlight--
	}

	if err == nil {
		n.consecutiveFailures = 0
		n.state = stateClosed
		return
	}

	n.consecutiveFailures++

	// a failed trial call reopens at once
	if wasHalfOpen || n.consecutiveFailures >= n.cfg.FailureThreshold {
		n.trip()
	}
}

func (n *ProtectedNotifier) trip() {
	n.state = stateOpen
	n.openedAt = time.Now()
}

func (n *ProtectedNotifier) State() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return string(n.state)
}
