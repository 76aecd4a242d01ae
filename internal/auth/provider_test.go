package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/Neonotso/budget-agent/internal/log"
)

// tokenServer issues access tokens "access-1", "access-2", ...
func tokenServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var issued int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token" {
			http.NotFound(w, r)
			return
		}
		n := atomic.AddInt32(&issued, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-" + string(rune('0'+n)),
			"token_type":    "Bearer",
			"refresh_token": "refresh",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &issued
}

func testConfig(srv *httptest.Server) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func TestLoadClientConfig(t *testing.T) {
	b, err := LoadClientConfig(`{"installed":{}}`, "/does/not/matter")
	require.NoError(t, err)
	assert.Equal(t, `{"installed":{}}`, string(b))

	path := filepath.Join(t.TempDir(), "client.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"web":{}}`), 0600))
	b, err = LoadClientConfig("  ", path)
	require.NoError(t, err)
	assert.Equal(t, `{"web":{}}`, string(b))

	_, err = LoadClientConfig("", "")
	assert.Error(t, err)
}

func TestNewProviderParsesClientJSON(t *testing.T) {
	clientJSON := `{"installed":{"client_id":"id","client_secret":"s",` +
		`"auth_uri":"https://accounts.example/auth","token_uri":"https://accounts.example/token",` +
		`"redirect_uris":["http://localhost"]}}`
	p, err := NewProvider([]byte(clientJSON), filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, err)
	assert.Equal(t, "id", p.config.ClientID)
	assert.Contains(t, p.config.Scopes, "https://www.googleapis.com/auth/spreadsheets")

	_, err = NewProvider([]byte(`{}`), "token.json")
	assert.Error(t, err)
}

func TestSaveAndLoadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	p := NewProviderFromConfig(&oauth2.Config{}, path, WithLogger(log.Discard()))

	_, err := p.LoadToken()
	assert.True(t, errors.Is(err, os.ErrNotExist))

	require.NoError(t, p.SaveToken(&oauth2.Token{AccessToken: "a", RefreshToken: "r"}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	tok, err := p.LoadToken()
	require.NoError(t, err)
	assert.Equal(t, "a", tok.AccessToken)
	assert.Equal(t, "r", tok.RefreshToken)
}

func TestTokenSourceRefreshesAndPersists(t *testing.T) {
	srv, issued := tokenServer(t)
	path := filepath.Join(t.TempDir(), "token.json")
	p := NewProviderFromConfig(testConfig(srv), path, WithLogger(log.Discard()))
	require.NoError(t, p.SaveToken(&oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(-time.Hour),
	}))

	ts, err := p.TokenSource(context.Background())
	require.NoError(t, err)
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.EqualValues(t, 1, atomic.LoadInt32(issued))

	saved, err := p.LoadToken()
	require.NoError(t, err)
	assert.Equal(t, "access-1", saved.AccessToken)

	// Valid token is reused without another refresh.
	_, err = ts.Token()
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(issued))
}

func TestTokenSourceRequiresAuthorization(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	p := NewProviderFromConfig(&oauth2.Config{}, path, WithLogger(log.Discard()))

	_, err := p.TokenSource(context.Background())
	assert.ErrorIs(t, err, ErrAuthorizationRequired)

	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))
	_, err = p.ValidToken(context.Background())
	assert.ErrorIs(t, err, ErrAuthorizationRequired)

	require.NoError(t, p.SaveToken(&oauth2.Token{AccessToken: "x", Expiry: time.Now().Add(-time.Minute)}))
	_, err = p.TokenSource(context.Background())
	assert.ErrorIs(t, err, ErrAuthorizationRequired)
}

// redirect follows the consent URL the way a browser would after approval.
func redirect(t *testing.T, authURL string, extra url.Values) {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	cb, err := url.Parse(q.Get("redirect_uri"))
	require.NoError(t, err)
	params := url.Values{"state": {q.Get("state")}}
	for k, v := range extra {
		params[k] = v
	}
	cb.RawQuery = params.Encode()
	go func() {
		resp, err := http.Get(cb.String())
		if err == nil {
			resp.Body.Close()
		}
	}()
}

func TestAuthorizeFlow(t *testing.T) {
	srv, _ := tokenServer(t)
	path := filepath.Join(t.TempDir(), "token.json")
	var seenURL string
	p := NewProviderFromConfig(testConfig(srv), path,
		WithLogger(log.Discard()),
		WithRedirectPort("0"),
		WithAuthTimeout(5*time.Second),
		WithPrompt(func(authURL string) {
			seenURL = authURL
			redirect(t, authURL, url.Values{"code": {"the-code"}})
		}))

	tok, err := p.Authorize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.Contains(t, seenURL, "access_type=offline")

	saved, err := p.LoadToken()
	require.NoError(t, err)
	assert.Equal(t, "refresh", saved.RefreshToken)
}

func TestInteractiveTokenSourceAuthorizes(t *testing.T) {
	srv, _ := tokenServer(t)
	path := filepath.Join(t.TempDir(), "token.json")
	p := NewProviderFromConfig(testConfig(srv), path,
		WithLogger(log.Discard()),
		WithInteractive(true),
		WithRedirectPort("0"),
		WithAuthTimeout(5*time.Second),
		WithPrompt(func(authURL string) {
			redirect(t, authURL, url.Values{"code": {"c"}})
		}))

	tok, err := p.ValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
}

func TestAuthorizeDenied(t *testing.T) {
	srv, _ := tokenServer(t)
	p := NewProviderFromConfig(testConfig(srv), filepath.Join(t.TempDir(), "token.json"),
		WithLogger(log.Discard()),
		WithRedirectPort("0"),
		WithAuthTimeout(5*time.Second),
		WithPrompt(func(authURL string) {
			redirect(t, authURL, url.Values{"error": {"access_denied"}})
		}))

	_, err := p.Authorize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_denied")
}

func TestAuthorizeTimesOut(t *testing.T) {
	p := NewProviderFromConfig(&oauth2.Config{Endpoint: oauth2.Endpoint{AuthURL: "http://example.invalid/auth"}},
		filepath.Join(t.TempDir(), "token.json"),
		WithLogger(log.Discard()),
		WithRedirectPort("0"),
		WithAuthTimeout(50*time.Millisecond),
		WithPrompt(func(string) {}))

	_, err := p.Authorize(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
