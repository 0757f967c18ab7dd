package authsession

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken and related errors describe session provider failures.
var (
	ErrNoToken        = errors.New("no session token configured")
	ErrSessionExpired = errors.New("session expired")
	ErrMalformedToken = errors.New("malformed session token")
)

// Claims holds the CRM fields read from a session token.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Session is the identity every API call is made under.
type Session struct {
	Token     string
	UserID    string
	Role      string
	Name      string
	ExpiresAt *time.Time
}

// Expired reports whether the token has an expiry at or before now.
func (s Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// Parse reads the claims of a JWT without verifying its signature; the API verifies it.
// Tokens that are not JWTs are accepted as opaque with the given fallback user id.
func Parse(token, fallbackUserID string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrNoToken
	}
	if strings.Count(token, ".") != 2 {
		return Session{Token: token, UserID: strings.TrimSpace(fallbackUserID)}, nil
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		userID = strings.TrimSpace(claims.Subject)
	}
	if userID == "" {
		userID = strings.TrimSpace(fallbackUserID)
	}
	session := Session{
		Token:  token,
		UserID: userID,
		Role:   strings.TrimSpace(claims.Role),
		Name:   strings.TrimSpace(claims.Name),
	}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.UTC()
		session.ExpiresAt = &exp
	}
	return session, nil
}

// LoadOptions selects where the token comes from. TokenFile wins over TokenEnv.
type LoadOptions struct {
	TokenFile string
	TokenEnv  string
	UserID    string
	Getenv    func(string) string
	Clock     func() time.Time
}

// Provider hands the session token to the API client.
type Provider struct {
	mu      sync.RWMutex
	session Session
	clock   func() time.Time
}

// NewProvider wraps an already parsed session.
func NewProvider(session Session, clock func() time.Time) *Provider {
	if clock == nil {
		clock = time.Now
	}
	return &Provider{session: session, clock: clock}
}

// Load reads and parses the token, failing fast when it is already expired.
func Load(opts LoadOptions) (*Provider, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	var raw string
	switch {
	case strings.TrimSpace(opts.TokenFile) != "":
		content, err := os.ReadFile(opts.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("read token file: %w", err)
		}
		raw = string(content)
	case strings.TrimSpace(opts.TokenEnv) != "":
		raw = getenv(strings.TrimSpace(opts.TokenEnv))
	}
	session, err := Parse(raw, opts.UserID)
	if err != nil {
		return nil, err
	}
	provider := NewProvider(session, opts.Clock)
	if session.Expired(provider.clock()) {
		return nil, fmt.Errorf("%w at %s", ErrSessionExpired, session.ExpiresAt.Format(time.RFC3339))
	}
	return provider, nil
}

// Token returns the bearer token, or ErrSessionExpired once it has lapsed.
func (p *Provider) Token(context.Context) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.session.Token == "" {
		return "", ErrNoToken
	}
	if p.session.Expired(p.clock()) {
		return "", ErrSessionExpired
	}
	return p.session.Token, nil
}

// Session returns the parsed session.
func (p *Provider) Session() Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session
}

// UserID returns the current user id.
func (p *Provider) UserID() string {
	return p.Session().UserID
}

// Role returns the current user role.
func (p *Provider) Role() string {
	return p.Session().Role
}

// Replace swaps in a refreshed token.
func (p *Provider) Replace(token, fallbackUserID string) error {
	session, err := Parse(token, fallbackUserID)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = session
	return nil
}
