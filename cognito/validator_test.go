package cognito

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supplywise/auth-gateway/internal/testutil"
)

const testIssuer = "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_test"

func newTestVerifier(t *testing.T, keys ...testutil.SigningKey) (*Verifier, *testutil.JWKSServer) {
	t.Helper()
	server := testutil.NewJWKSServer(t, keys...)
	source := newTestKeySource(t, server.URL)
	return NewVerifier(source, VerifierConfig{Issuer: testIssuer}), server
}

// tamper flips one byte in the signature segment
func tamper(token string) string {
	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	parts[2] = string(sig)
	return strings.Join(parts, ".")
}

func TestVerifier_Verify(t *testing.T) {
	ctx := context.Background()
	key := testutil.NewSigningKey(t, "kid-1")

	t.Run("valid token returns claims", func(t *testing.T) {
		verifier, _ := newTestVerifier(t, key)
		claims := testutil.Claims(testIssuer, "alice", "manager")
		claims["custom:company_id"] = "c-42"

		set, err := verifier.Verify(ctx, key.Sign(t, claims))
		require.NoError(t, err)
		assert.Equal(t, "alice", set.Subject)
		assert.Equal(t, "alice", set.Username)
		assert.Equal(t, []string{"manager"}, set.Groups)
		require.NotNil(t, set.CompanyID)
		assert.Equal(t, "c-42", *set.CompanyID)
		assert.Nil(t, set.RestaurantID)
		assert.Equal(t, testIssuer, set.Issuer)
	})

	t.Run("tampered signature is rejected", func(t *testing.T) {
		verifier, _ := newTestVerifier(t, key)
		token := key.Sign(t, testutil.Claims(testIssuer, "alice", "manager"))

		_, err := verifier.Verify(ctx, tamper(token))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.Equal(t, ErrSignatureMismatch, Classify(err))
	})

	t.Run("tampered payload is rejected", func(t *testing.T) {
		verifier, _ := newTestVerifier(t, key)
		token := key.Sign(t, testutil.Claims(testIssuer, "alice", "manager"))
		forged := key.Sign(t, testutil.Claims(testIssuer, "mallory", "admin"))

		parts := strings.Split(token, ".")
		parts[1] = strings.Split(forged, ".")[1]

		_, err := verifier.Verify(ctx, strings.Join(parts, "."))
		assert.Equal(t, ErrSignatureMismatch, Classify(err))
	})

	t.Run("token signed by unknown key is rejected after one refetch", func(t *testing.T) {
		verifier, server := newTestVerifier(t, key)
		other := testutil.NewSigningKey(t, "kid-other")

		_, err := verifier.Verify(ctx, key.Sign(t, testutil.Claims(testIssuer, "alice", "manager")))
		require.NoError(t, err)
		hits := server.Hits()

		_, err = verifier.Verify(ctx, other.Sign(t, testutil.Claims(testIssuer, "alice", "manager")))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.Equal(t, ErrKeyNotFound, Classify(err))
		assert.Equal(t, hits+1, server.Hits())
	})

	t.Run("known kid with wrong key material is rejected", func(t *testing.T) {
		verifier, _ := newTestVerifier(t, key)
		impostor := testutil.NewSigningKey(t, "kid-1")

		_, err := verifier.Verify(ctx, impostor.Sign(t, testutil.Claims(testIssuer, "alice", "manager")))
		assert.Equal(t, ErrSignatureMismatch, Classify(err))
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		verifier, _ := newTestVerifier(t, key)
		claims := testutil.Claims(testIssuer, "alice", "manager")
		claims["exp"] = time.Now().Add(-time.Minute).Unix()

		_, err := verifier.Verify(ctx, key.Sign(t, claims))
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.Equal(t, ErrTokenExpired, Classify(err))
	})

	t.Run("leeway tolerates small skew", func(t *testing.T) {
		server := testutil.NewJWKSServer(t, key)
		verifier := NewVerifier(newTestKeySource(t, server.URL), VerifierConfig{Leeway: 2 * time.Minute})
		claims := testutil.Claims(testIssuer, "alice", "manager")
		claims["exp"] = time.Now().Add(-time.Minute).Unix()

		_, err := verifier.Verify(ctx, key.Sign(t, claims))
		assert.NoError(t, err)
	})

	t.Run("not yet valid token is rejected", func(t *testing.T) {
		verifier, _ := newTestVerifier(t, key)
		claims := testutil.Claims(testIssuer, "alice", "manager")
		claims["nbf"] = time.Now().Add(time.Hour).Unix()

		_, err := verifier.Verify(ctx, key.Sign(t, claims))
		assert.Equal(t, ErrTokenNotYetValid, Classify(err))
	})

	t.Run("wrong issuer is rejected", func(t *testing.T) {
		verifier, _ := newTestVerifier(t, key)
		claims := testutil.Claims("https://evil.example.com", "alice", "manager")

		_, err := verifier.Verify(ctx, key.Sign(t, claims))
		assert.Equal(t, ErrInvalidIssuer, Classify(err))
	})

	t.Run("malformed token is rejected", func(t *testing.T) {
		verifier, server := newTestVerifier(t, key)

		for _, token := range []string{"", "not-a-jwt", "a.b", "a.b.c.d", "###.###.###"} {
			_, err := verifier.Verify(ctx, token)
			assert.ErrorIs(t, err, ErrInvalidToken, token)
			assert.Equal(t, ErrMalformedToken, Classify(err), token)
		}
		assert.Equal(t, 0, server.Hits())
	})

	t.Run("missing kid is rejected without fetching", func(t *testing.T) {
		verifier, server := newTestVerifier(t, key)
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, testutil.Claims(testIssuer, "alice", "manager"))
		signed, err := token.SignedString(key.Private)
		require.NoError(t, err)

		_, err = verifier.Verify(ctx, signed)
		assert.Equal(t, ErrMalformedToken, Classify(err))
		assert.Equal(t, 0, server.Hits())
	})

	t.Run("none and HMAC algorithms are rejected", func(t *testing.T) {
		verifier, _ := newTestVerifier(t, key)
		claims := testutil.Claims(testIssuer, "alice", "admin")

		none := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
		none.Header["kid"] = "kid-1"
		noneToken, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		hmac := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		hmac.Header["kid"] = "kid-1"
		hmacToken, err := hmac.SignedString([]byte("secret"))
		require.NoError(t, err)

		for _, token := range []string{noneToken, hmacToken} {
			_, err := verifier.Verify(ctx, token)
			assert.Equal(t, ErrSignatureMismatch, Classify(err))
		}
	})

	t.Run("key fetch failure is reported as infrastructure failure", func(t *testing.T) {
		verifier, server := newTestVerifier(t, key)
		server.SetFailing(true)

		_, err := verifier.Verify(ctx, key.Sign(t, testutil.Claims(testIssuer, "alice", "manager")))
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.True(t, IsInfrastructureFailure(err))
	})
}

func TestVerifier_AudienceAndTokenUse(t *testing.T) {
	ctx := context.Background()
	key := testutil.NewSigningKey(t, "kid-1")
	server := testutil.NewJWKSServer(t, key)
	verifier := NewVerifier(newTestKeySource(t, server.URL), VerifierConfig{
		Issuer:    testIssuer,
		ClientIDs: []string{"test-client", "web-client"},
		TokenUse:  []string{"access"},
	})

	t.Run("access token with matching client_id", func(t *testing.T) {
		_, err := verifier.Verify(ctx, key.Sign(t, testutil.Claims(testIssuer, "alice", "manager")))
		assert.NoError(t, err)
	})

	t.Run("id token audience is accepted by client list", func(t *testing.T) {
		server := testutil.NewJWKSServer(t, key)
		idVerifier := NewVerifier(newTestKeySource(t, server.URL), VerifierConfig{
			ClientIDs: []string{"web-client"},
		})
		claims := testutil.Claims(testIssuer, "alice", "manager")
		delete(claims, "client_id")
		claims["aud"] = "web-client"
		claims["token_use"] = "id"

		_, err := idVerifier.Verify(ctx, key.Sign(t, claims))
		assert.NoError(t, err)
	})

	t.Run("unknown client is rejected", func(t *testing.T) {
		claims := testutil.Claims(testIssuer, "alice", "manager")
		claims["client_id"] = "someone-else"

		_, err := verifier.Verify(ctx, key.Sign(t, claims))
		assert.Equal(t, ErrInvalidAudience, Classify(err))
	})

	t.Run("wrong token_use is rejected", func(t *testing.T) {
		claims := testutil.Claims(testIssuer, "alice", "manager")
		claims["token_use"] = "id"

		_, err := verifier.Verify(ctx, key.Sign(t, claims))
		assert.Equal(t, ErrInvalidTokenUse, Classify(err))
	})
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))
	assert.Equal(t, ErrKeyFetchFailure, Classify(ErrKeyFetchFailure))
	assert.Equal(t, ErrInvalidToken, Classify(ErrInvalidToken))
}
