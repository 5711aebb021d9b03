package hub

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// window is one counting period for one connection. Expired windows are
// replaced whole, never partially decayed.
type window struct {
	startAt time.Time
	count   int
}

// RateLimiter is a per-connection window-by-reset counter. The first action
// after a window elapses starts a fresh window rather than sliding the old
// one.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[uuid.UUID]*window
	logger  *slog.Logger
}

func NewRateLimiter(logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		windows: make(map[uuid.UUID]*window),
		logger:  logger.With(slog.String("component", "rate_limiter")),
	}
}

// Allow reports whether the connection may perform one more action in the
// current window. On denial the count stays pinned at the limit and resetAt
// tells the caller when the window rolls over.
func (l *RateLimiter) Allow(connID uuid.UUID, windowDur time.Duration, maxPerWindow int) (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.windows[connID]
	if !ok || now.Sub(w.startAt) >= windowDur {
		l.windows[connID] = &window{startAt: now, count: 1}
		return true, now.Add(windowDur)
	}

	resetAt := w.startAt.Add(windowDur)
	if w.count < maxPerWindow {
		w.count++
		return true, resetAt
	}
	return false, resetAt
}

// Forget drops the connection's window on disconnect.
func (l *RateLimiter) Forget(connID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, connID)
}

// SweepExpired removes windows whose period has elapsed, bounding memory
// growth from one-time bursts.
func (l *RateLimiter) SweepExpired(windowDur time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	removed := 0
	for connID, w := range l.windows {
		if now.Sub(w.startAt) >= windowDur {
			delete(l.windows, connID)
			removed++
		}
	}
	if removed > 0 {
		l.logger.Debug("Swept expired rate windows", slog.Int("removed", removed))
	}
	return removed
}

// WindowCount reports live windows, for stats and tests.
func (l *RateLimiter) WindowCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
