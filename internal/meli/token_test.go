package meli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"skuradar/internal/retry"
)

func newTestManager(t *testing.T, handler http.Handler) (*TokenManager, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient("test-id", "test-secret", "MLA")
	client.baseURL = server.URL

	manager := NewTokenManager(client, NewMemoryStore())
	manager.retryCfg = retry.Config{
		MaxRetries: 0,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
		Timeout:    time.Second,
	}
	return manager, server
}

func tokenHandler(requests *int64, token string, expiresIn int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(requests, 1)
		if r.Method != "POST" || r.URL.Path != "/oauth/token" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"` + token + `","expires_in":` + strconv.Itoa(expiresIn) + `}`))
	})
}

func TestGetValidTokenReuse(t *testing.T) {
	var requests int64
	manager, _ := newTestManager(t, tokenHandler(&requests, "tok-1", 21600))

	ctx := context.Background()

	first, err := manager.GetValidToken(ctx)
	if err != nil {
		t.Fatalf("first GetValidToken failed: %v", err)
	}
	second, err := manager.GetValidToken(ctx)
	if err != nil {
		t.Fatalf("second GetValidToken failed: %v", err)
	}

	if first.Value != "tok-1" || second.Value != "tok-1" {
		t.Errorf("expected both calls to return tok-1, got %q and %q", first.Value, second.Value)
	}
	if n := atomic.LoadInt64(&requests); n != 1 {
		t.Errorf("expected exactly 1 token request, got %d", n)
	}
}

func TestGetValidTokenRenewalAfterExpiry(t *testing.T) {
	var requests int64
	manager, _ := newTestManager(t, tokenHandler(&requests, "tok-renewed", 1000))

	now := time.Now()
	manager.now = func() time.Time { return now }

	ctx := context.Background()
	if _, err := manager.GetValidToken(ctx); err != nil {
		t.Fatalf("initial GetValidToken failed: %v", err)
	}

	// expires_in 1000s minus the 5 minute safety margin leaves 700s of
	// validity; advancing past that must trigger exactly one renewal.
	now = now.Add(800 * time.Second)

	tok, err := manager.GetValidToken(ctx)
	if err != nil {
		t.Fatalf("renewal GetValidToken failed: %v", err)
	}
	if tok.Value != "tok-renewed" {
		t.Errorf("expected renewed token, got %q", tok.Value)
	}
	if n := atomic.LoadInt64(&requests); n != 2 {
		t.Errorf("expected exactly 2 token requests, got %d", n)
	}
}

func TestGetValidTokenWithinSafetyMargin(t *testing.T) {
	var requests int64
	// 200s lifetime is inside the 5 minute safety margin, so the token is
	// expired on arrival and every call fetches a new one.
	manager, _ := newTestManager(t, tokenHandler(&requests, "tok-short", 200))

	ctx := context.Background()
	if _, err := manager.GetValidToken(ctx); err != nil {
		t.Fatalf("first GetValidToken failed: %v", err)
	}
	if _, err := manager.GetValidToken(ctx); err != nil {
		t.Fatalf("second GetValidToken failed: %v", err)
	}

	if n := atomic.LoadInt64(&requests); n != 2 {
		t.Errorf("expected 2 token requests for a token inside the safety margin, got %d", n)
	}
}

func TestGetValidTokenUsesPersistedToken(t *testing.T) {
	var requests int64
	handler := tokenHandler(&requests, "tok-fresh", 21600)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient("test-id", "test-secret", "MLA")
	client.baseURL = server.URL

	store := NewMemoryStore()
	store.Put(AccessToken{Value: "tok-persisted", ExpiresAt: time.Now().Add(time.Hour)})

	manager := NewTokenManager(client, store)

	tok, err := manager.GetValidToken(context.Background())
	if err != nil {
		t.Fatalf("GetValidToken failed: %v", err)
	}
	if tok.Value != "tok-persisted" {
		t.Errorf("expected persisted token, got %q", tok.Value)
	}
	if n := atomic.LoadInt64(&requests); n != 0 {
		t.Errorf("expected no token requests, got %d", n)
	}
}

func TestGetValidTokenFailure(t *testing.T) {
	manager, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusBadRequest)
	}))

	_, err := manager.GetValidToken(context.Background())
	if err == nil {
		t.Fatal("expected error for failing token endpoint, got nil")
	}
}

func TestForceRefreshBypassesCache(t *testing.T) {
	var requests int64
	manager, _ := newTestManager(t, tokenHandler(&requests, "tok-forced", 21600))

	ctx := context.Background()
	if _, err := manager.GetValidToken(ctx); err != nil {
		t.Fatalf("GetValidToken failed: %v", err)
	}
	if _, err := manager.ForceRefresh(ctx); err != nil {
		t.Fatalf("ForceRefresh failed: %v", err)
	}

	if n := atomic.LoadInt64(&requests); n != 2 {
		t.Errorf("expected ForceRefresh to hit the endpoint, got %d total requests", n)
	}
}

func TestFileStoreRoundTripAndCorruption(t *testing.T) {
	path := t.TempDir() + "/ml_token_cache.json"
	store := NewFileStore(path)

	if tok, err := store.Get(); err != nil || tok != nil {
		t.Fatalf("empty store Get = (%v, %v), want (nil, nil)", tok, err)
	}

	want := AccessToken{Value: "tok-persisted", ExpiresAt: time.Now().Add(time.Hour).Truncate(time.Second)}
	if err := store.Put(want); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || got.Value != want.Value {
		t.Errorf("Get returned %+v, want value %q", got, want.Value)
	}

	// A corrupt cache must read as absent, never as an error.
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("failed to corrupt cache: %v", err)
	}
	if tok, err := store.Get(); err != nil || tok != nil {
		t.Errorf("corrupt store Get = (%v, %v), want (nil, nil)", tok, err)
	}
}
