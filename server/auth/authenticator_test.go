package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoginAndAuthenticate(t *testing.T) {
	a, err := NewAuthenticator("hunter2")
	require.NoError(t, err)
	require.True(t, a.Enabled())

	_, err = a.Login("wrong")
	require.Error(t, err)

	token, err := a.Login("hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	r := httptest.NewRequest("GET", "/api/v1/conversations", nil)
	require.Error(t, a.Authenticate(r))

	r.Header.Set("Authorization", "Bearer "+token)
	require.NoError(t, a.Authenticate(r))

	r.Header.Set("Authorization", "Bearer not-a-token")
	require.Error(t, a.Authenticate(r))
}

func TestAuthenticateViaCookie(t *testing.T) {
	a, err := NewAuthenticator("hunter2")
	require.NoError(t, err)
	token, err := a.Login("hunter2")
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	require.NoError(t, a.Authenticate(r))
}

func TestDisabledAuthenticator(t *testing.T) {
	a, err := NewAuthenticator("")
	require.NoError(t, err)
	require.False(t, a.Enabled())

	r := httptest.NewRequest("GET", "/", nil)
	require.NoError(t, a.Authenticate(r))

	_, err = a.Login("anything")
	require.Error(t, err)
}

func TestTokenFromAnotherSecretRejected(t *testing.T) {
	a, err := NewAuthenticator("secret-a")
	require.NoError(t, err)
	b, err := NewAuthenticator("secret-b")
	require.NoError(t, err)

	token, err := a.Login("secret-a")
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	require.Error(t, b.Authenticate(r))
}
