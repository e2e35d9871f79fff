// Package auth implements the access-secret login scheme: the operator
// configures one secret, clients exchange it for a signed bearer token.
package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	issuer   = "agentpad"
	tokenTTL = 30 * 24 * time.Hour

	// CookieName carries the token for browser clients.
	CookieName = "agentpad.access-token"
)

// Authenticator validates the access secret and mints/verifies tokens.
// A zero-length secret disables authentication entirely.
type Authenticator struct {
	secret     []byte
	secretHash []byte
}

// NewAuthenticator hashes the configured secret once so login compares
// against the hash, never the plaintext.
func NewAuthenticator(secret string) (*Authenticator, error) {
	a := &Authenticator{secret: []byte(secret)}
	if secret == "" {
		return a, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash access secret")
	}
	a.secretHash = hash
	return a, nil
}

// Enabled reports whether requests must authenticate.
func (a *Authenticator) Enabled() bool {
	return len(a.secret) > 0
}

// Login exchanges the access secret for a bearer token.
func (a *Authenticator) Login(accessSecret string) (string, error) {
	if !a.Enabled() {
		return "", errors.New("authentication is disabled")
	}
	if err := bcrypt.CompareHashAndPassword(a.secretHash, []byte(accessSecret)); err != nil {
		return "", errors.New("invalid access secret")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Authenticate checks the Authorization header or the token cookie.
// A disabled authenticator accepts every request.
func (a *Authenticator) Authenticate(r *http.Request) error {
	if !a.Enabled() {
		return nil
	}
	tokenString := extractToken(r)
	if tokenString == "" {
		return errors.New("missing access token")
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil || !token.Valid {
		return errors.New("invalid access token")
	}
	return nil
}

func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}
