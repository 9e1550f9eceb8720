package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apierrors "github.com/dlemaire/picofeed/internal/errors"
)

func TestLimiter(t *testing.T) {
	t.Run("allows within burst", func(t *testing.T) {
		l := NewLimiter(60, time.Minute, 3)
		defer l.Close()
		for i := range 3 {
			if res := l.Allow("k"); !res.Allowed {
				t.Fatalf("Request %d should be allowed", i)
			}
		}
	})

	t.Run("denies past burst", func(t *testing.T) {
		l := NewLimiter(1, time.Hour, 2)
		defer l.Close()
		l.Allow("k")
		l.Allow("k")
		res := l.Allow("k")
		if res.Allowed {
			t.Fatal("Expected denial past burst")
		}
		if res.RetryAfter <= 0 {
			t.Error("Expected a positive RetryAfter on denial")
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		l := NewLimiter(1, time.Hour, 1)
		defer l.Close()
		l.Allow("a")
		if res := l.Allow("b"); !res.Allowed {
			t.Error("Exhausting one key must not affect another")
		}
	})
}

func TestMiddleware(t *testing.T) {
	l := NewLimiter(1, time.Hour, 1)
	defer l.Close()

	handler := Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/posts/1/like", nil)
	req.RemoteAddr = "203.0.113.9:1234"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected first request to pass, got %d", rr.Code)
	}
	if rr.Header().Get("X-RateLimit-Limit") == "" {
		t.Error("Expected rate limit headers on success")
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429 on second request, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header on 429")
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("Expected JSON error body, got %q: %v", rr.Body.String(), err)
	}
	if body.Error.Code != string(apierrors.ErrRateLimited) {
		t.Errorf("Expected RATE_LIMITED, got %q", body.Error.Code)
	}
}
