// Package testutil provides JWKS servers and token minting for tests.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// SigningKey is a test RSA key pair with a kid
type SigningKey struct {
	KeyID   string
	Private *rsa.PrivateKey
}

// NewSigningKey generates a 2048-bit RSA key
func NewSigningKey(t testing.TB, kid string) SigningKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return SigningKey{KeyID: kid, Private: key}
}

// JWK returns the public JWK for the key
func (k SigningKey) JWK() jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       &k.Private.PublicKey,
		KeyID:     k.KeyID,
		Algorithm: "RS256",
		Use:       "sig",
	}
}

// Sign mints an RS256 token with the key's kid
func (k SigningKey) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = k.KeyID
	signed, err := token.SignedString(k.Private)
	require.NoError(t, err)
	return signed
}

// Claims returns a Cognito-shaped claim set valid for an hour
func Claims(issuer, subject string, groups ...string) jwt.MapClaims {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":              subject,
		"cognito:username": subject,
		"iss":              issuer,
		"token_use":        "access",
		"client_id":        "test-client",
		"iat":              now.Unix(),
		"exp":              now.Add(time.Hour).Unix(),
	}
	if len(groups) > 0 {
		list := make([]interface{}, 0, len(groups))
		for _, g := range groups {
			list = append(list, g)
		}
		claims["cognito:groups"] = list
	}
	return claims
}

// JWKSServer serves a mutable JWKS document and counts requests
type JWKSServer struct {
	*httptest.Server

	mu      sync.RWMutex
	keys    []jose.JSONWebKey
	failing bool
	hits    atomic.Int32
}

// NewJWKSServer starts a JWKS server publishing keys
func NewJWKSServer(t testing.TB, keys ...SigningKey) *JWKSServer {
	t.Helper()
	s := &JWKSServer{}
	s.SetKeys(keys...)
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// SetKeys replaces the published keys
func (s *JWKSServer) SetKeys(keys ...SigningKey) {
	jwks := make([]jose.JSONWebKey, 0, len(keys))
	for _, k := range keys {
		jwks = append(jwks, k.JWK())
	}
	s.mu.Lock()
	s.keys = jwks
	s.mu.Unlock()
}

// SetFailing makes the server answer 503 until reset
func (s *JWKSServer) SetFailing(failing bool) {
	s.mu.Lock()
	s.failing = failing
	s.mu.Unlock()
}

// Hits returns the number of JWKS requests served
func (s *JWKSServer) Hits() int {
	return int(s.hits.Load())
}

func (s *JWKSServer) serve(w http.ResponseWriter, _ *http.Request) {
	s.hits.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failing {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: s.keys})
}
