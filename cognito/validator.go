package cognito

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is wrapped by every verification failure
	ErrInvalidToken = errors.New("invalid token")

	// ErrMalformedToken is returned when the token cannot be parsed
	ErrMalformedToken = errors.New("malformed token")

	// ErrSignatureMismatch is returned when the signature or algorithm does not verify
	ErrSignatureMismatch = errors.New("signature mismatch")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenNotYetValid is returned when nbf or iat lie in the future
	ErrTokenNotYetValid = errors.New("token not yet valid")

	// ErrInvalidIssuer is returned when the token issuer is invalid
	ErrInvalidIssuer = errors.New("invalid issuer")

	// ErrInvalidAudience is returned when neither aud nor client_id is accepted
	ErrInvalidAudience = errors.New("invalid audience")

	// ErrInvalidTokenUse is returned when token_use is not accepted
	ErrInvalidTokenUse = errors.New("invalid token_use")
)

// DefaultAllowedAlgs are the signing algorithms Cognito uses
var DefaultAllowedAlgs = []string{"RS256"}

// VerifierConfig holds configuration for Verifier
type VerifierConfig struct {
	Issuer      string
	ClientIDs   []string
	TokenUse    []string
	AllowedAlgs []string
	Leeway      time.Duration
}

// Verifier verifies Cognito-issued JWTs against a KeySource
type Verifier struct {
	keys      KeySource
	parser    *jwt.Parser
	clientIDs []string
	tokenUse  []string
}

// NewVerifier creates a new token verifier
func NewVerifier(keys KeySource, cfg VerifierConfig) *Verifier {
	algs := cfg.AllowedAlgs
	if len(algs) == 0 {
		algs = DefaultAllowedAlgs
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(algs),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithIssuedAt(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &Verifier{
		keys:      keys,
		parser:    jwt.NewParser(opts...),
		clientIDs: cfg.ClientIDs,
		tokenUse:  cfg.TokenUse,
	}
}

// Verify checks the token signature and time claims and returns its claims.
// Every failure wraps ErrInvalidToken plus one failure class.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*ClaimSet, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("%w: kid header not found", ErrMalformedToken)
		}

		key, err := v.keys.Key(ctx, kid)
		if err != nil {
			return nil, err
		}

		// A key that declares its algorithm only verifies that algorithm
		if key.Algorithm != "" && key.Algorithm != token.Method.Alg() {
			return nil, fmt.Errorf("%w: key %s is for %s, token uses %s",
				ErrSignatureMismatch, kid, key.Algorithm, token.Method.Alg())
		}

		return key.Public, nil
	})
	if err != nil {
		return nil, invalid(classifyParseError(err), err)
	}

	set := NewClaimSet(claims)

	if len(v.clientIDs) > 0 && !v.acceptsAudience(set) {
		return nil, invalid(ErrInvalidAudience, fmt.Errorf("aud %v, client_id %q", set.Audience, set.ClientID))
	}

	if len(v.tokenUse) > 0 && !contains(v.tokenUse, set.TokenUse) {
		return nil, invalid(ErrInvalidTokenUse, fmt.Errorf("token_use %q", set.TokenUse))
	}

	return set, nil
}

// Classify returns the failure class wrapped in a verification error
func Classify(err error) error {
	for _, class := range []error{
		ErrKeyFetchFailure,
		ErrKeyNotFound,
		ErrMalformedToken,
		ErrSignatureMismatch,
		ErrTokenExpired,
		ErrTokenNotYetValid,
		ErrInvalidIssuer,
		ErrInvalidAudience,
		ErrInvalidTokenUse,
	} {
		if errors.Is(err, class) {
			return class
		}
	}
	if err != nil {
		return ErrInvalidToken
	}
	return nil
}

// IsInfrastructureFailure reports whether err came from reaching the key endpoint
func IsInfrastructureFailure(err error) bool {
	return errors.Is(err, ErrKeyFetchFailure)
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, ErrKeyFetchFailure):
		return ErrKeyFetchFailure
	case errors.Is(err, ErrKeyNotFound):
		return ErrKeyNotFound
	case errors.Is(err, ErrMalformedToken), errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformedToken
	case errors.Is(err, ErrSignatureMismatch),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrSignatureMismatch
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ErrTokenNotYetValid
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrInvalidIssuer
	default:
		return ErrMalformedToken
	}
}

func invalid(class, cause error) error {
	if errors.Is(cause, class) {
		return fmt.Errorf("%w: %w", ErrInvalidToken, cause)
	}
	return fmt.Errorf("%w: %w: %v", ErrInvalidToken, class, cause)
}

func (v *Verifier) acceptsAudience(set *ClaimSet) bool {
	if set.ClientID != "" && contains(v.clientIDs, set.ClientID) {
		return true
	}
	for _, aud := range set.Audience {
		if contains(v.clientIDs, aud) {
			return true
		}
	}
	return false
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
