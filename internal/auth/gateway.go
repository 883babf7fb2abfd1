package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/handiism/soundcloud-offline/internal/api"
	"github.com/handiism/soundcloud-offline/internal/common"
	"github.com/handiism/soundcloud-offline/internal/http"
	"github.com/handiism/soundcloud-offline/internal/logging"
	"github.com/handiism/soundcloud-offline/internal/metrics"
	"github.com/handiism/soundcloud-offline/internal/model"
)

// Config is the OAuth2 application registration.
type Config struct {
	TokenURL     string
	AuthorizeURL string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// CredentialStore persists the single credential of the logged in user.
type CredentialStore interface {
	// Load returns the stored credential, or nil and no error when there is
	// none.
	Load(ctx context.Context) (*model.Credential, error)
	Save(ctx context.Context, cred *model.Credential) error
	Delete(ctx context.Context) error
}

// State is the login state derived from the stored credential.
type State int

const (
	// StateUnauthenticated means no credential is stored.
	StateUnauthenticated State = iota

	// StateAuthenticated means the stored access token is still valid.
	StateAuthenticated

	// StateDegraded means the access token expired; the next request will
	// try a refresh.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateDegraded:
		return "degraded"
	default:
		return "unauthenticated"
	}
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// Gateway owns the credential lifecycle: code exchange, header resolution
// with single-flight refresh, and logout. It implements api.HeaderProvider.
type Gateway struct {
	cfg     Config
	store   CredentialStore
	tokens  *api.Executor
	metrics metrics.RefreshMetrics
	logger  *slog.Logger
	now     func() time.Time

	flight singleflight.Group

	// writeMu serialises credential writes so a refresh that raced a logout
	// or a new login cannot store a stale token over it.
	writeMu    sync.Mutex
	generation uint64
}

var _ api.HeaderProvider = (*Gateway)(nil)

// NewGateway creates a Gateway. Token endpoint calls go through their own
// executor, which has no header provider.
func NewGateway(cfg Config, store CredentialStore, transport http.Transport, m metrics.RefreshMetrics, logger *slog.Logger, opts ...Option) *Gateway {
	if m == nil {
		m = metrics.Noop{}
	}
	logger = logging.OrDiscard(logger)

	g := &Gateway{
		cfg:     cfg,
		store:   store,
		tokens:  api.NewExecutor(transport, "", nil, nil, logger),
		metrics: m,
		logger:  logger.With("component", "auth"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AuthHeader returns "Bearer <token>" for the stored credential.
//
// With no credential it fails with ErrAuthRequired. An expired credential is
// refreshed first; concurrent callers share one refresh. When the refresh
// fails every waiting caller gets ErrRefreshFailed and the stored credential
// is left as it was.
func (g *Gateway) AuthHeader(ctx context.Context) (string, error) {
	cred, err := g.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load credential: %w", err)
	}
	if cred == nil {
		return "", common.ErrAuthRequired
	}
	if !cred.IsExpired(g.now()) {
		return cred.AuthorizationHeader(), nil
	}

	ch := g.flight.DoChan("refresh", func() (any, error) {
		// A canceled caller must not fail the others sharing this refresh.
		return g.refresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(*model.Credential).AuthorizationHeader(), nil
	}
}

func (g *Gateway) refresh(ctx context.Context) (*model.Credential, error) {
	g.writeMu.Lock()
	gen := g.generation
	g.writeMu.Unlock()

	cred, err := g.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load credential: %w", common.ErrRefreshFailed, err)
	}
	if cred == nil {
		return nil, common.ErrAuthRequired
	}
	if !cred.IsExpired(g.now()) {
		return cred, nil
	}
	if cred.RefreshToken == "" {
		g.metrics.IncRefresh("error")
		return nil, fmt.Errorf("%w: no refresh token", common.ErrRefreshFailed)
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {cred.RefreshToken},
		"client_id":     {g.cfg.ClientID},
		"client_secret": {g.cfg.ClientSecret},
		"redirect_uri":  {g.cfg.RedirectURI},
	}
	fresh, err := g.requestToken(ctx, form)
	if err != nil {
		g.metrics.IncRefresh("error")
		g.logger.Warn("token refresh failed", "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrRefreshFailed, err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = cred.RefreshToken
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	if g.generation != gen {
		// Logged out or logged in again while the refresh was running.
		return nil, common.ErrAuthRequired
	}
	if err := g.store.Save(ctx, fresh); err != nil {
		g.metrics.IncRefresh("error")
		return nil, fmt.Errorf("%w: save credential: %w", common.ErrRefreshFailed, err)
	}

	g.metrics.IncRefresh("ok")
	g.logger.Debug("access token refreshed", "expires_at", fresh.ExpiresAt)
	return fresh, nil
}

// ExchangeAuthorizationCode trades an authorization code for a credential.
// The credential is returned, not stored; see Login.
func (g *Gateway) ExchangeAuthorizationCode(ctx context.Context, code string) (*model.Credential, error) {
	if code == "" {
		return nil, errors.New("authorization code is empty")
	}
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {g.cfg.ClientID},
		"client_secret": {g.cfg.ClientSecret},
		"redirect_uri":  {g.cfg.RedirectURI},
	}
	return g.requestToken(ctx, form)
}

// Login exchanges code and stores the resulting credential.
func (g *Gateway) Login(ctx context.Context, code string) (*model.Credential, error) {
	cred, err := g.ExchangeAuthorizationCode(ctx, code)
	if err != nil {
		return nil, err
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	g.generation++
	if err := g.store.Save(ctx, cred); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}

	g.logger.Info("logged in", "scope", cred.Scope, "expires_at", cred.ExpiresAt)
	return cred, nil
}

// Logout deletes the stored credential. Later AuthHeader calls fail with
// ErrAuthRequired.
func (g *Gateway) Logout(ctx context.Context) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	g.generation++
	if err := g.store.Delete(ctx); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	g.logger.Info("logged out")
	return nil
}

// State reports the login state without touching the network.
func (g *Gateway) State(ctx context.Context) (State, error) {
	cred, err := g.store.Load(ctx)
	if err != nil {
		return StateUnauthenticated, fmt.Errorf("load credential: %w", err)
	}
	switch {
	case cred == nil:
		return StateUnauthenticated, nil
	case cred.IsExpired(g.now()):
		return StateDegraded, nil
	default:
		return StateAuthenticated, nil
	}
}

// AuthorizationURL returns the page the user visits to grant access. state
// is echoed back on the redirect.
func (g *Gateway) AuthorizationURL(state string) (string, error) {
	u, err := url.Parse(g.cfg.AuthorizeURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: authorize url %q", common.ErrInvalidURL, g.cfg.AuthorizeURL)
	}
	q := u.Query()
	q.Set("client_id", g.cfg.ClientID)
	q.Set("redirect_uri", g.cfg.RedirectURI)
	q.Set("response_type", "code")
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (g *Gateway) requestToken(ctx context.Context, form url.Values) (*model.Credential, error) {
	resp, err := api.Execute(ctx, g.tokens, api.TokenRequest[tokenResponse](g.cfg.TokenURL, form))
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response without access_token", common.ErrDecoding)
	}
	return resp.toCredential(g.now()), nil
}
