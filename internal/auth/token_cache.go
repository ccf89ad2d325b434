// Package auth implements the OAuth2 client-credentials token cache used to
// authenticate against Azure AD. One cache instance may be shared by any
// number of concurrent stream sessions.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ucalyptus/azure-oai-agent-sdk-go/internal/logging"
)

const (
	// DefaultScope is the OAuth scope requested when none is configured.
	DefaultScope = "https://cognitiveservices.azure.com/.default"
	// DefaultAuthority is the Azure AD endpoint base used to mint tokens.
	DefaultAuthority = "https://login.microsoftonline.com"

	// expiryMargin is subtracted from a token's expiry when deciding
	// whether it is still safe to hand out.
	expiryMargin = 300 * time.Second
	// defaultExpiresIn applies when the token response omits expires_in.
	defaultExpiresIn = 3600

	defaultExchangeTimeout = 30 * time.Second
)

// ErrInvalidTokenResponse reports a 2xx token response whose body is not the
// expected JSON shape or is missing access_token.
var ErrInvalidTokenResponse = errors.New("invalid token response format")

// Credentials holds the client-credentials grant inputs. Immutable once
// handed to a TokenCache.
type Credentials struct {
	// TenantID is the Azure AD tenant.
	TenantID string
	// ClientID is the application (client) ID.
	ClientID string
	// ClientSecret is the client secret value. It is never logged.
	ClientSecret string
	// Scope is the OAuth scope; DefaultScope applies when empty.
	Scope string
	// Authority is the token endpoint base URL; DefaultAuthority applies
	// when empty. Sovereign clouds override this.
	Authority string
}

// cachedToken pairs a bearer token with its absolute expiry. Instances are
// replaced wholesale on refresh, never mutated.
type cachedToken struct {
	value     string
	expiresAt time.Time
}

// valid reports whether the token may still be handed out at the given
// instant, honoring the safety margin.
func (t *cachedToken) valid(now time.Time) bool {
	return t != nil && now.Before(t.expiresAt.Add(-expiryMargin))
}

// TokenCache owns the client-credentials exchange and caches the resulting
// bearer token. Concurrent callers racing a refresh are collapsed into a
// single exchange.
type TokenCache struct {
	credentials Credentials
	tokenURL    string
	httpClient  *http.Client

	mu    sync.RWMutex
	token *cachedToken

	refreshGroup singleflight.Group
}

// NewTokenCache constructs a cache for the given credentials. A nil
// httpClient gets a default with a bounded timeout.
func NewTokenCache(credentials Credentials, httpClient *http.Client) *TokenCache {
	if credentials.Scope == "" {
		credentials.Scope = DefaultScope
	}
	authority := credentials.Authority
	if authority == "" {
		authority = DefaultAuthority
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultExchangeTimeout}
	}
	return &TokenCache{
		credentials: credentials,
		tokenURL: fmt.Sprintf("%s/%s/oauth2/v2.0/token",
			strings.TrimSuffix(authority, "/"), credentials.TenantID),
		httpClient: httpClient,
	}
}

// Token returns a bearer token, refreshing it when the cached one is within
// the safety margin of its expiry. Under concurrent callers exactly one
// exchange is performed; the others wait for its result.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token.valid(time.Now()) {
		return token.value, nil
	}

	resultCh := c.refreshGroup.DoChan("token", func() (any, error) {
		// Re-check inside the flight: a concurrent caller may have
		// refreshed while this one waited to enter.
		c.mu.RLock()
		cached := c.token
		c.mu.RUnlock()
		if cached.valid(time.Now()) {
			return cached.value, nil
		}

		fresh, err := c.exchange(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.token = fresh
		c.mu.Unlock()
		return fresh.value, nil
	})

	select {
	case result := <-resultCh:
		if result.Err != nil {
			return "", result.Err
		}
		return result.Val.(string), nil
	case <-ctx.Done():
		// The flight keeps running so the shared cache is never left
		// half-updated; only this caller gives up.
		return "", ctx.Err()
	}
}

// exchange performs one client-credentials POST against the token endpoint.
func (c *TokenCache) exchange(ctx context.Context) (*cachedToken, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.credentials.ClientID)
	form.Set("client_secret", c.credentials.ClientSecret)
	form.Set("scope", c.credentials.Scope)

	// An in-flight refresh must complete even if the winning caller is
	// cancelled; the HTTP client timeout bounds it instead.
	requestCtx := context.WithoutCancel(ctx)
	request, err := http.NewRequestWithContext(requestCtx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("token exchange: unexpected status %d", response.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTokenResponse, err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access_token", ErrInvalidTokenResponse)
	}

	expiresIn := payload.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}
	logging.Debug("auth", "token refreshed, expires in %ds", expiresIn)

	return &cachedToken{
		value:     payload.AccessToken,
		expiresAt: time.Now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}
