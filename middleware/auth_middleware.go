package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/supplywise/auth-gateway/cognito"
	"go.uber.org/zap"
)

// TokenVerifier defines the interface for verifying bearer tokens
type TokenVerifier interface {
	// Verify checks a token and returns its claims
	Verify(ctx context.Context, token string) (*cognito.ClaimSet, error)
}

// AuthMiddleware attaches a Principal to requests that carry a valid token.
// It never rejects a request; AuthorizationMiddleware decides access.
type AuthMiddleware struct {
	verifier  TokenVerifier
	extractor *ClaimsExtractor
	logger    *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(verifier TokenVerifier, extractor *ClaimsExtractor, logger *zap.Logger) *AuthMiddleware {
	if extractor == nil {
		extractor = NewClaimsExtractor()
	}
	return &AuthMiddleware{
		verifier:  verifier,
		extractor: extractor,
		logger:    logger,
	}
}

// Authenticate verifies the bearer token, if any, and continues either way
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		// Authentication runs once per request
		if _, ok := GetPrincipalFromContext(ctx); ok || authAttempted(ctx) {
			next.ServeHTTP(w, r)
			return
		}
		ctx = withAuthAttempted(ctx)

		if principal := m.authenticate(ctx, r); principal != nil {
			ctx = WithPrincipal(ctx, principal)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) authenticate(ctx context.Context, r *http.Request) *Principal {
	requestID := GetRequestIDFromContext(ctx)

	token := extractBearerToken(r)
	if token == "" {
		return nil
	}

	claims, err := m.verifier.Verify(ctx, token)
	if err != nil {
		if cognito.IsInfrastructureFailure(err) {
			m.logger.Error("token verification unavailable",
				zap.String("request_id", requestID),
				zap.Error(err))
		} else {
			m.logger.Warn("token verification failed",
				zap.String("request_id", requestID),
				zap.String("reason", cognito.Classify(err).Error()),
				zap.Error(err))
		}
		return nil
	}

	principal, err := m.extractor.Extract(claims)
	if err != nil {
		m.logger.Warn("token claims incomplete",
			zap.String("request_id", requestID),
			zap.String("sub", claims.Subject),
			zap.Error(err))
		return nil
	}

	m.logger.Debug("authentication successful",
		zap.String("request_id", requestID),
		zap.String("username", principal.Username()),
		zap.Strings("roles", principal.Roles()))

	return principal
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	// Check if it starts with "Bearer "
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
