package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/ablyth/sensi-core/internal/infrastructure/config"
)

// Logger defines the logging interface used by the session.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

const exchangeTimeout = 15 * time.Second

// tokenResponse is the OAuth endpoint's exchange reply.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	UserID       string `json:"user_id"`
}

// Session owns the OAuth credential lifecycle for one account.
//
// Token returns a valid bearer token, performing a refresh-token exchange
// when the cached one is missing, expired, or inside the renewal leeway.
// Concurrent renewals collapse into a single exchange. Rotated refresh
// tokens are written through to the optional persistent store.
//
// All public methods are thread-safe.
type Session struct {
	cfg    config.AuthConfig
	client *http.Client
	store  *Store
	logger Logger
	leeway time.Duration

	group singleflight.Group

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	userID       string
	expiresAt    time.Time
}

// NewSession creates a session from configuration. When a store is given
// and holds a persisted snapshot, the persisted refresh token takes
// precedence over the configured one: it is the newer rotation.
func NewSession(cfg config.AuthConfig, store *Store) (*Session, error) {
	s := &Session{
		cfg:          cfg,
		client:       &http.Client{Timeout: exchangeTimeout},
		store:        store,
		logger:       noopLogger{},
		leeway:       cfg.GetRenewLeeway(),
		refreshToken: cfg.RefreshToken,
	}

	if store != nil {
		persisted, found, err := store.Load()
		if err != nil {
			return nil, err
		}
		if found && persisted.RefreshToken != "" {
			s.refreshToken = persisted.RefreshToken
			s.accessToken = persisted.AccessToken
			s.userID = persisted.UserID
			s.expiresAt = persisted.ExpiresAt
		}
	}

	if s.refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	return s, nil
}

// SetLogger sets the logger for the session.
func (s *Session) SetLogger(logger Logger) {
	s.logger = logger
}

// Token returns a valid bearer token, renewing when needed.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.valid(time.Now()) {
		token := s.accessToken
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()

	// Collapse concurrent renewals into one exchange.
	v, err, _ := s.group.Do("renew", func() (any, error) {
		s.mu.Lock()
		if s.valid(time.Now()) {
			token := s.accessToken
			s.mu.Unlock()
			return token, nil
		}
		s.mu.Unlock()

		return s.exchange(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate discards the cached bearer token so the next Token call
// performs a fresh exchange. Called when the server rejects the token
// ahead of its nominal expiry.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.accessToken = ""
	s.mu.Unlock()
	s.logger.Debug("bearer token invalidated")
}

// UserID returns the account identifier from the last exchange, if known.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// valid reports whether the cached token is usable at the given time.
// Caller must hold s.mu.
func (s *Session) valid(now time.Time) bool {
	return s.accessToken != "" && now.Before(s.expiresAt.Add(-s.leeway))
}

// exchange performs the refresh-token grant and updates cached state.
func (s *Session) exchange(ctx context.Context) (string, error) {
	s.mu.Lock()
	refreshToken := s.refreshToken
	s.mu.Unlock()

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {s.cfg.ClientID},
		"client_secret": {s.cfg.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", fmt.Errorf("%w: endpoint returned %d",
				ErrAuthenticationFailed, resp.StatusCode)
		}
		return "", fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: response missing access token", ErrAuthenticationFailed)
	}

	expiresAt := tokenExpiry(tr.AccessToken, tr.ExpiresIn)

	s.mu.Lock()
	s.accessToken = tr.AccessToken
	s.expiresAt = expiresAt
	if tr.RefreshToken != "" {
		s.refreshToken = tr.RefreshToken
	}
	if tr.UserID != "" {
		s.userID = tr.UserID
	}
	snapshot := Tokens{
		UserID:       s.userID,
		AccessToken:  s.accessToken,
		RefreshToken: s.refreshToken,
		ExpiresAt:    s.expiresAt,
	}
	s.mu.Unlock()

	s.logger.Info("session renewed", "expires_at", expiresAt.Format(time.RFC3339))

	if s.store != nil {
		if err := s.store.Save(snapshot); err != nil {
			// The session still works in memory; losing persistence only
			// costs the configured token on the next restart.
			s.logger.Warn("persisting rotated tokens failed", "error", err)
		}
	}

	return tr.AccessToken, nil
}

// tokenExpiry reads the expiry from the token's own exp claim when it is a
// JWT, falling back to the advertised expires_in lifetime.
func tokenExpiry(accessToken string, expiresIn int) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}

	if expiresIn <= 0 {
		expiresIn = 60
	}
	return time.Now().Add(time.Duration(expiresIn) * time.Second)
}
