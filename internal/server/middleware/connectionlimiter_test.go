package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/config"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/state"
)

// limiterRequest runs the limiter with the identity already bound, the way
// the auth middleware leaves it.
func limiterRequest(t *testing.T, cfg config.ConnectionLimitConfig, userID string, count int, cycled *bool) *httptest.ResponseRecorder {
	t.Helper()
	counter := func(string) (int, error) { return count, nil }
	cycler := func(string) {
		if cycled != nil {
			*cycled = true
		}
	}
	handler := NewConnectionLimiter(testLogger(), counter, cycler, cfg)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	reqMeta := &RequestMetadata{IP: "127.0.0.1", Identity: state.Identity{UserID: userID}}
	req = req.WithContext(context.WithValue(req.Context(), reqMetaKey, reqMeta))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestLimiterAllowsUnderLimit(t *testing.T) {
	rec := limiterRequest(t, config.ConnectionLimitConfig{MaxPerUser: 3, Mode: "reject"}, "u1", 2, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestLimiterRejectsAtLimit(t *testing.T) {
	rec := limiterRequest(t, config.ConnectionLimitConfig{MaxPerUser: 3, Mode: "reject"}, "u1", 3, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
}

func TestLimiterCyclesOldestAtLimit(t *testing.T) {
	cycled := false
	rec := limiterRequest(t, config.ConnectionLimitConfig{MaxPerUser: 3, Mode: "cycle"}, "u1", 3, &cycled)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 after cycling, got %d", rec.Code)
	}
	if !cycled {
		t.Error("expected the oldest connection to be cycled")
	}
}

func TestLimiterDisabledWhenZero(t *testing.T) {
	rec := limiterRequest(t, config.ConnectionLimitConfig{MaxPerUser: 0}, "u1", 100, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("limit 0 disables the cap, got %d", rec.Code)
	}
}

func TestLimiterBlocksMissingIdentity(t *testing.T) {
	rec := limiterRequest(t, config.ConnectionLimitConfig{MaxPerUser: 3, Mode: "reject"}, "", 0, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 without identity, got %d", rec.Code)
	}
}
