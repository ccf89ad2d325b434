package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ucalyptus/azure-oai-agent-sdk-go/internal/testutil"
)

func newTokenServer(t *testing.T, exchanges *atomic.Int64, expiresIn int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := exchanges.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if expiresIn > 0 {
			fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":%d}`, count, expiresIn)
			return
		}
		fmt.Fprintf(w, `{"access_token":"tok-%d"}`, count)
	}))
}

func newTestCache(serverURL string) *TokenCache {
	return NewTokenCache(Credentials{
		TenantID:     "tenant-x",
		ClientID:     "client-x",
		ClientSecret: "secret-x",
		Authority:    serverURL,
	}, nil)
}

func TestTokenCachedWhileFresh(t *testing.T) {
	var exchanges atomic.Int64
	server := newTokenServer(t, &exchanges, 3600)
	defer server.Close()

	cache := newTestCache(server.URL)
	first, err := cache.Token(context.Background())
	testutil.RequireNoError(t, err, "first token fetch")
	second, err := cache.Token(context.Background())
	testutil.RequireNoError(t, err, "second token fetch")

	testutil.RequireEqual(t, second, first, "cached token should be reused")
	testutil.RequireEqual(t, exchanges.Load(), int64(1), "exchange count")
}

func TestConcurrentCallersShareOneExchange(t *testing.T) {
	var exchanges atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exchanges.Add(1)
		// Hold the exchange open long enough for every caller to pile up.
		time.Sleep(50 * time.Millisecond)
		fmt.Fprint(w, `{"access_token":"tok-shared","expires_in":3600}`)
	}))
	defer server.Close()

	cache := newTestCache(server.URL)
	const callers = 20
	tokens := make([]string, callers)
	errs := make([]error, callers)
	var group sync.WaitGroup
	for i := 0; i < callers; i++ {
		group.Add(1)
		go func(slot int) {
			defer group.Done()
			tokens[slot], errs[slot] = cache.Token(context.Background())
		}(i)
	}
	group.Wait()

	for i := 0; i < callers; i++ {
		testutil.RequireNoError(t, errs[i], "concurrent token fetch")
		testutil.RequireEqual(t, tokens[i], "tok-shared", "token value")
	}
	testutil.RequireEqual(t, exchanges.Load(), int64(1), "exactly one exchange under contention")
}

func TestTokenInsideMarginIsRefreshed(t *testing.T) {
	var exchanges atomic.Int64
	// expires_in below the 300s margin leaves every minted token already
	// inside the refresh window.
	server := newTokenServer(t, &exchanges, 200)
	defer server.Close()

	cache := newTestCache(server.URL)
	first, err := cache.Token(context.Background())
	testutil.RequireNoError(t, err, "first token fetch")
	second, err := cache.Token(context.Background())
	testutil.RequireNoError(t, err, "second token fetch")

	testutil.RequireEqual(t, first, "tok-1", "first minted token")
	testutil.RequireEqual(t, second, "tok-2", "stale token must be replaced")
	testutil.RequireEqual(t, exchanges.Load(), int64(2), "exchange count")
}

func TestMissingExpiresInDefaultsToAnHour(t *testing.T) {
	var exchanges atomic.Int64
	server := newTokenServer(t, &exchanges, 0)
	defer server.Close()

	cache := newTestCache(server.URL)
	_, err := cache.Token(context.Background())
	testutil.RequireNoError(t, err, "first token fetch")
	_, err = cache.Token(context.Background())
	testutil.RequireNoError(t, err, "second token fetch")

	testutil.RequireEqual(t, exchanges.Load(), int64(1), "default expiry should keep the token cached")
}

func TestExchangeRequestShape(t *testing.T) {
	var gotPath, gotContentType string
	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = map[string]string{
			"grant_type":    r.PostFormValue("grant_type"),
			"client_id":     r.PostFormValue("client_id"),
			"client_secret": r.PostFormValue("client_secret"),
			"scope":         r.PostFormValue("scope"),
		}
		fmt.Fprint(w, `{"access_token":"tok","expires_in":3600}`)
	}))
	defer server.Close()

	cache := newTestCache(server.URL)
	_, err := cache.Token(context.Background())
	testutil.RequireNoError(t, err, "token fetch")

	testutil.RequireEqual(t, gotPath, "/tenant-x/oauth2/v2.0/token", "token endpoint path")
	testutil.RequireEqual(t, gotContentType, "application/x-www-form-urlencoded", "content type")
	testutil.RequireEqual(t, gotForm, map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     "client-x",
		"client_secret": "secret-x",
		"scope":         DefaultScope,
	}, "form fields")
}

func TestMissingAccessTokenIsInvalidResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"expires_in":3600}`)
	}))
	defer server.Close()

	cache := newTestCache(server.URL)
	_, err := cache.Token(context.Background())
	testutil.RequireError(t, err, "token fetch against empty payload")
	testutil.RequireErrorIs(t, err, ErrInvalidTokenResponse, "error class")
}

func TestUndecodableBodyIsInvalidResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not-json`)
	}))
	defer server.Close()

	cache := newTestCache(server.URL)
	_, err := cache.Token(context.Background())
	testutil.RequireErrorIs(t, err, ErrInvalidTokenResponse, "error class")
}

func TestErrorStatusIsNotInvalidResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusBadRequest)
	}))
	defer server.Close()

	cache := newTestCache(server.URL)
	_, err := cache.Token(context.Background())
	testutil.RequireError(t, err, "token fetch against 400")
	testutil.RequireTrue(t, !errors.Is(err, ErrInvalidTokenResponse),
		"status errors are connection-class, not invalid-response")
	testutil.RequireStringContains(t, err.Error(), "status 400", "error detail")
}
