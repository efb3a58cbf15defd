package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeLimiter struct {
	counts map[string]int64
	err    error
}

func (f *fakeLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func TestRateLimitBlocksPerIP(t *testing.T) {
	limiter := &fakeLimiter{counts: map[string]int64{}}
	policy := RateLimitPolicy{Name: "lookup", Limit: 2, Window: time.Minute}
	handler := RateLimit(policy, limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?email=a@x.com", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if send("1.1.1.1") != http.StatusOK || send("1.1.1.1") != http.StatusOK {
		t.Fatalf("first two requests should pass")
	}
	if code := send("1.1.1.1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := send("2.2.2.2"); code != http.StatusOK {
		t.Fatalf("other ip should pass, got %d", code)
	}
	if _, ok := limiter.counts["lookup:ip:1.1.1.1"]; !ok {
		t.Fatalf("unexpected scopes %v", limiter.counts)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	handler := RateLimit(RateLimitPolicy{Name: "lookup", Limit: 1, Window: time.Minute}, limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected request through, got %d", rec.Code)
	}
}
