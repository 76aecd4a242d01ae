// Package auth obtains OAuth2 credentials for the Google Sheets API: it
// loads the client configuration, persists the user token to disk,
// refreshes it transparently and runs the local-redirect authorization
// flow when no usable token exists.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gsheet "google.golang.org/api/sheets/v4"

	"github.com/Neonotso/budget-agent/internal/log"
)

// ErrAuthorizationRequired is returned when no usable token exists and the
// interactive flow is disabled.
var ErrAuthorizationRequired = errors.New("authorization required, run oauth-init")

const defaultAuthTimeout = 5 * time.Minute

// Provider hands out token sources backed by a token file.
type Provider struct {
	config       *oauth2.Config
	tokenFile    string
	redirectPort string
	interactive  bool
	timeout      time.Duration
	prompt       func(url string)
	logger       *log.Logger

	mu sync.Mutex
}

type Option func(*Provider)

// WithInteractive enables the browser authorization flow as a fallback
// when the token file is missing or unusable.
func WithInteractive(enabled bool) Option {
	return func(p *Provider) { p.interactive = enabled }
}

// WithRedirectPort sets the local callback port; "0" picks a free port.
func WithRedirectPort(port string) Option {
	return func(p *Provider) {
		if port != "" {
			p.redirectPort = port
		}
	}
}

// WithPrompt replaces how the authorization URL is shown to the user.
func WithPrompt(f func(url string)) Option {
	return func(p *Provider) { p.prompt = f }
}

func WithAuthTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l.WithComponent(log.ComponentAuth)
		}
	}
}

// LoadClientConfig returns the OAuth client JSON, inline JSON first.
func LoadClientConfig(clientJSON, clientFile string) ([]byte, error) {
	switch {
	case strings.TrimSpace(clientJSON) != "":
		return []byte(clientJSON), nil
	case clientFile != "":
		b, err := os.ReadFile(clientFile)
		if err != nil {
			return nil, fmt.Errorf("read client file: %w", err)
		}
		return b, nil
	}
	return nil, errors.New("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
}

// NewProvider parses a Google OAuth client JSON for the spreadsheets scope.
func NewProvider(clientJSON []byte, tokenFile string, opts ...Option) (*Provider, error) {
	cfg, err := google.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return NewProviderFromConfig(cfg, tokenFile, opts...), nil
}

func NewProviderFromConfig(cfg *oauth2.Config, tokenFile string, opts ...Option) *Provider {
	p := &Provider{
		config:       cfg,
		tokenFile:    tokenFile,
		redirectPort: "8085",
		timeout:      defaultAuthTimeout,
		logger:       log.Default().WithComponent(log.ComponentAuth),
	}
	p.prompt = func(url string) {
		fmt.Printf("Open this URL to authorize:\n%s\n", url)
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// LoadToken reads the token file.
func (p *Provider) LoadToken() (*oauth2.Token, error) {
	f, err := os.Open(p.tokenFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", p.tokenFile, err)
	}
	return tok, nil
}

// SaveToken writes tok to the token file with owner-only permissions.
func (p *Provider) SaveToken(tok *oauth2.Token) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := os.OpenFile(p.tokenFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// TokenSource returns a source that refreshes expired tokens and writes
// every new token back to the token file. Without a usable token it runs
// the interactive flow when enabled.
func (p *Provider) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	tok, err := p.LoadToken()
	switch {
	case errors.Is(err, os.ErrNotExist):
		tok = nil
	case err != nil:
		p.logger.WarnContext(ctx, "ignoring unreadable token file", "path", p.tokenFile, log.FieldError, err)
		tok = nil
	}

	if tok == nil || (!tok.Valid() && tok.RefreshToken == "") {
		if !p.interactive {
			return nil, ErrAuthorizationRequired
		}
		if tok, err = p.Authorize(ctx); err != nil {
			return nil, err
		}
	}

	// Refreshes happen long after ctx's request has finished.
	base := p.config.TokenSource(context.WithoutCancel(ctx), tok)
	return &persistingSource{base: base, last: tok.AccessToken, save: p.SaveToken, logger: p.logger}, nil
}

// ValidToken returns a currently valid access token, refreshing or
// authorizing as needed.
func (p *Provider) ValidToken(ctx context.Context) (*oauth2.Token, error) {
	ts, err := p.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	return ts.Token()
}

// Authorize runs the local-redirect OAuth flow: it serves /callback on the
// redirect port, shows the consent URL and exchanges the returned code.
func (p *Provider) Authorize(ctx context.Context) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "localhost:"+p.redirectPort)
	if err != nil {
		return nil, fmt.Errorf("listen for oauth callback: %w", err)
	}
	cfg := *p.config
	cfg.RedirectURL = fmt.Sprintf("http://localhost:%d/callback", ln.Addr().(*net.TCPAddr).Port)

	type callback struct {
		code string
		err  error
	}
	state := uuid.NewString()
	results := make(chan callback, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		var res callback
		if errStr := q.Get("error"); errStr != "" {
			http.Error(w, "OAuth error: "+errStr, http.StatusBadRequest)
			res.err = fmt.Errorf("authorization denied: %s", errStr)
		} else {
			fmt.Fprintln(w, "You may close this window and return to the terminal.")
			res.code = q.Get("code")
		}
		select {
		case results <- res:
		default:
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.prompt(cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	select {
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		tok, err := cfg.Exchange(ctx, res.code)
		if err != nil {
			return nil, fmt.Errorf("token exchange: %w", err)
		}
		if err := p.SaveToken(tok); err != nil {
			return nil, err
		}
		p.logger.InfoContext(ctx, "authorization complete", "path", p.tokenFile)
		return tok, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("authorization: %w", ctx.Err())
	}
}

type persistingSource struct {
	mu     sync.Mutex
	base   oauth2.TokenSource
	last   string
	save   func(*oauth2.Token) error
	logger *log.Logger
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.save(tok); err != nil {
			s.logger.Warn("persist refreshed token failed", log.FieldError, err)
		}
	}
	return tok, nil
}
