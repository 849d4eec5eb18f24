package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLoginLimiter_BurstThenRefill(t *testing.T) {
	l := newLoginLimiter(60, 2, time.Hour) // one token per second
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if ok, _ := l.allow("10.0.0.1", now); !ok {
			t.Fatalf("attempt %d should pass", i)
		}
	}
	ok, wait := l.allow("10.0.0.1", now)
	if ok {
		t.Fatalf("third attempt must be limited")
	}
	if wait <= 0 || wait > time.Second {
		t.Fatalf("retry after = %v", wait)
	}

	if ok, _ := l.allow("10.0.0.2", now); !ok {
		t.Fatalf("other keys have their own bucket")
	}
	if ok, _ := l.allow("10.0.0.1", now.Add(time.Second)); !ok {
		t.Fatalf("bucket should refill after a second")
	}
}

func TestLoginLimiter_EvictsIdle(t *testing.T) {
	l := newLoginLimiter(10, 1, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	l.allow("a", now)
	l.allow("b", now)
	if l.size() != 2 {
		t.Fatalf("size = %d", l.size())
	}

	l.allow("c", now.Add(2*time.Minute))
	if l.size() != 1 {
		t.Fatalf("idle buckets not evicted, size = %d", l.size())
	}
}

func TestWriteRateLimited(t *testing.T) {
	w := httptest.NewRecorder()
	writeRateLimited(w, 1500*time.Millisecond)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("Retry-After = %q", got)
	}
}
