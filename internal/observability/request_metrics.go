package observability

import (
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestMetrics holds process-wide request counters. They start at zero with the
// process, only the middleware writes them, everything else reads a Snapshot.
type RequestMetrics struct {
	total     atomic.Uint64
	failed    atomic.Uint64
	startedAt time.Time

	// duration stats (nanoseconds)
	durationCount atomic.Uint64
	durationTotal atomic.Int64
	durationMax   atomic.Int64
}

func NewRequestMetrics() *RequestMetrics {
	return &RequestMetrics{startedAt: time.Now()}
}

func (m *RequestMetrics) observe(status int, d time.Duration) {
	m.total.Add(1)

	if status >= 500 {
		m.failed.Add(1)
	}

	ns := d.Nanoseconds()
	m.durationCount.Add(1)
	m.durationTotal.Add(ns)

	// max update

	for {
		curr := m.durationMax.Load()

		if ns <= curr {
			return
		}

		if m.durationMax.CompareAndSwap(curr, ns) {
			return
		}
	}
}

func (m *RequestMetrics) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		m.observe(ctx.Writer.Status(), time.Since(start))
	}
}

type RequestMetricsSnapshot struct {
	Total           uint64        `json:"total"`
	Failed          uint64        `json:"failed"`
	AverageDuration time.Duration `json:"-"`
	MaxDuration     time.Duration `json:"-"`
	Uptime          time.Duration `json:"-"`
}

func (m *RequestMetrics) Snapshot() RequestMetricsSnapshot {
	count := m.durationCount.Load()
	total := m.durationTotal.Load()

	var avg time.Duration

	if count > 0 {
		avg = time.Duration(total / int64(count))
	}

	return RequestMetricsSnapshot{
		Total:           m.total.Load(),
		Failed:          m.failed.Load(),
		AverageDuration: avg,
		MaxDuration:     time.Duration(m.durationMax.Load()),
		Uptime:          time.Since(m.startedAt),
	}
}
