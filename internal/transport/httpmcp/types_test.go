package httpmcp

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStatelessPool_RoundRobinsAcrossMembers(t *testing.T) {
	var calls []int
	factory := func() func() http.Handler {
		i := 0
		return func() http.Handler {
			idx := i
			i++
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls = append(calls, idx)
			})
		}
	}()

	pool := newStatelessPool(3, factory)
	for i := 0; i < 7; i++ {
		pool.acquire().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mcp", nil))
	}

	want := []int{0, 1, 2, 0, 1, 2, 0}
	if len(calls) != len(want) {
		t.Fatalf("got %d calls, want %d", len(calls), len(want))
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d routed to member %d, want %d", i, calls[i], want[i])
		}
	}
}

func TestStatelessPool_DefaultsSizeWhenNonPositive(t *testing.T) {
	pool := newStatelessPool(0, func() http.Handler { return http.NotFoundHandler() })
	if len(pool.handlers) != 4 {
		t.Fatalf("handlers = %d, want default 4", len(pool.handlers))
	}
}

func TestSessionStore_PutTouchRemove(t *testing.T) {
	store := newSessionStore(time.Minute)
	h := http.NotFoundHandler()
	store.put("sess-1", h)

	got, ok := store.touch("sess-1")
	if !ok || got == nil {
		t.Fatal("expected session to be found after put")
	}
	if _, ok := store.touch("missing"); ok {
		t.Error("expected unknown session id to miss")
	}
	if !store.remove("sess-1") {
		t.Error("expected remove to report the session existed")
	}
	if store.remove("sess-1") {
		t.Error("expected second remove to report it no longer exists")
	}
}

func TestSessionStore_ReapStaleRemovesExpiredOnly(t *testing.T) {
	store := newSessionStore(10 * time.Millisecond)
	store.put("old", http.NotFoundHandler())
	time.Sleep(20 * time.Millisecond)
	store.put("fresh", http.NotFoundHandler())

	n := store.reapStale()
	if n != 1 {
		t.Fatalf("reaped %d sessions, want 1", n)
	}
	if _, ok := store.touch("fresh"); !ok {
		t.Error("expected fresh session to survive the sweep")
	}
	if _, ok := store.touch("old"); ok {
		t.Error("expected stale session to have been reaped")
	}
}

func TestHeaderEquals_NormalisesCaseAndTrailingSlash(t *testing.T) {
	candidates := []string{"https://Example.com/"}
	if !headerEquals("https://example.com", candidates) {
		t.Error("expected normalised origin to match")
	}
	if headerEquals("https://other.example.com", candidates) {
		t.Error("expected non-matching origin to be rejected")
	}
}
