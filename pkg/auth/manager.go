package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
)

var (
	ErrProviderNotConfigured = errors.New("provider not configured")
	ErrInvalidState          = errors.New("invalid oauth state")
	ErrNotAuthenticated      = errors.New("provider not authenticated")
)

// Credentials is the client registration for one provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TenantID     string // Outlook only; "common" for multi-tenant apps
}

func (c Credentials) configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

var gmailScopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/calendar.readonly",
}

var outlookScopes = []string{
	"offline_access",
	"https://graph.microsoft.com/User.Read",
	"https://graph.microsoft.com/Calendars.Read",
	"https://graph.microsoft.com/Mail.Read",
}

// Manager owns the OAuth authorization-code flows for all mail providers:
// it issues authorization URLs, validates callback state, exchanges codes
// and persists tokens under the credentials directory.
type Manager struct {
	lock    sync.Mutex
	configs map[Provider]*oauth2.Config
	pending map[string]Provider
	store   *TokenStore
}

func NewManager(credentialsDir string, gmail, outlook Credentials) *Manager {
	m := &Manager{
		configs: make(map[Provider]*oauth2.Config),
		pending: make(map[string]Provider),
		store:   NewTokenStore(credentialsDir),
	}

	if gmail.configured() {
		m.configs[ProviderGmail] = &oauth2.Config{
			ClientID:     gmail.ClientID,
			ClientSecret: gmail.ClientSecret,
			RedirectURL:  gmail.RedirectURL,
			Scopes:       gmailScopes,
			Endpoint:     endpoints.Google,
		}
	}
	if outlook.configured() {
		tenant := outlook.TenantID
		if tenant == "" {
			tenant = "common"
		}
		m.configs[ProviderOutlook] = &oauth2.Config{
			ClientID:     outlook.ClientID,
			ClientSecret: outlook.ClientSecret,
			RedirectURL:  outlook.RedirectURL,
			Scopes:       outlookScopes,
			Endpoint:     endpoints.AzureAD(tenant),
		}
	}

	return m
}

func (m *Manager) Enabled(p Provider) bool {
	_, ok := m.configs[p]
	return ok
}

// AuthURL starts an authorization flow and returns the provider consent URL.
// The state parameter is remembered until the callback arrives.
func (m *Manager) AuthURL(p Provider) (string, error) {
	cfg, ok := m.configs[p]
	if !ok {
		return "", ErrProviderNotConfigured
	}

	state, err := newState()
	if err != nil {
		return "", err
	}

	m.lock.Lock()
	m.pending[state] = p
	m.lock.Unlock()

	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if p == ProviderGmail {
		// Google only returns a refresh token when consent is re-prompted.
		opts = append(opts, oauth2.SetAuthURLParam("prompt", "consent"),
			oauth2.SetAuthURLParam("include_granted_scopes", "true"))
	}
	return cfg.AuthCodeURL(state, opts...), nil
}

// Exchange completes a callback: validates state, trades the code for a
// token and persists it.
func (m *Manager) Exchange(ctx context.Context, state, code string) (Provider, error) {
	m.lock.Lock()
	p, ok := m.pending[state]
	if ok {
		delete(m.pending, state)
	}
	m.lock.Unlock()

	if !ok {
		return "", ErrInvalidState
	}

	cfg := m.configs[p]
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return p, fmt.Errorf("token exchange failed: %w", err)
	}

	if err := m.store.Save(p, token); err != nil {
		return p, err
	}

	log.Infof("oauth tokens saved | provider: %s, refresh token: %t, expiry: %s",
		p, token.RefreshToken != "", token.Expiry.Format(time.RFC3339))
	return p, nil
}

func (m *Manager) Authenticated(p Provider) bool {
	token, err := m.store.Load(p)
	if err != nil {
		return false
	}
	return token.Valid() || token.RefreshToken != ""
}

// Client returns an HTTP client that authenticates requests for the
// provider, refreshing and re-persisting the token as needed.
func (m *Manager) Client(ctx context.Context, p Provider) (*http.Client, error) {
	cfg, ok := m.configs[p]
	if !ok {
		return nil, ErrProviderNotConfigured
	}
	token, err := m.store.Load(p)
	if err != nil {
		return nil, ErrNotAuthenticated
	}

	source := &persistingSource{
		provider: p,
		store:    m.store,
		last:     token,
		inner:    cfg.TokenSource(ctx, token),
	}
	return oauth2.NewClient(ctx, source), nil
}

// ProviderStatus is the /auth/status view of one provider.
type ProviderStatus struct {
	Configured      bool      `json:"configured"`
	Authenticated   bool      `json:"authenticated"`
	TokenFile       string    `json:"token_file,omitempty"`
	Expiry          time.Time `json:"expiry,omitempty"`
	HasRefreshToken bool      `json:"has_refresh_token"`
}

func (m *Manager) Status() map[string]ProviderStatus {
	status := make(map[string]ProviderStatus)
	for _, p := range []Provider{ProviderGmail, ProviderOutlook} {
		s := ProviderStatus{Configured: m.Enabled(p)}
		if token, err := m.store.Load(p); err == nil {
			s.Authenticated = token.Valid() || token.RefreshToken != ""
			s.TokenFile = m.store.Path(p)
			s.Expiry = token.Expiry
			s.HasRefreshToken = token.RefreshToken != ""
		}
		status[string(p)] = s
	}
	return status
}

// persistingSource saves refreshed tokens back to disk so a restart does
// not force re-authentication.
type persistingSource struct {
	provider Provider
	store    *TokenStore
	lock     sync.Mutex
	last     *oauth2.Token
	inner    oauth2.TokenSource
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	token, err := s.inner.Token()
	if err != nil {
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if token.AccessToken != s.last.AccessToken {
		if err := s.store.Save(s.provider, token); err != nil {
			log.Warnf("failed to persist refreshed token | provider: %s, error: %v", s.provider, err)
		}
		s.last = token
	}
	return token, nil
}

func newState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
