package rest

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/soniqlabs/meetbot/pkg/auth"
)

func TestStartAuthUnconfiguredProvider(t *testing.T) {
	manager := auth.NewManager(t.TempDir(), auth.Credentials{}, auth.Credentials{})
	ac := NewAuthController(manager)

	rec := doRequest(t, ac.StartAuth(auth.ProviderGmail), http.MethodGet, "/auth/gmail/start", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartAuthRedirects(t *testing.T) {
	manager := auth.NewManager(t.TempDir(), auth.Credentials{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8888/auth/gmail/callback",
	}, auth.Credentials{})
	ac := NewAuthController(manager)

	rec := doRequest(t, ac.StartAuth(auth.ProviderGmail), http.MethodGet, "/auth/gmail/start", "")
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	require.Contains(t, rec.Header().Get("Location"), "accounts.google.com")
}

func TestCallbackSurfacesProviderError(t *testing.T) {
	manager := auth.NewManager(t.TempDir(), auth.Credentials{}, auth.Credentials{})
	ac := NewAuthController(manager)

	rec := doRequest(t, ac.Callback, http.MethodGet, "/auth/gmail/callback?error=access_denied", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "access_denied")
}

func TestCallbackMissingParams(t *testing.T) {
	manager := auth.NewManager(t.TempDir(), auth.Credentials{}, auth.Credentials{})
	ac := NewAuthController(manager)

	rec := doRequest(t, ac.Callback, http.MethodGet, "/auth/gmail/callback", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, ac.Callback, http.MethodGet, "/auth/gmail/callback?state=abc&code=def", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
