package middleware

import (
	"context"
	"net/http"

	"github.com/supplywise/auth-gateway/internal/policy"
	"github.com/supplywise/auth-gateway/models"
	"github.com/supplywise/auth-gateway/utils"
	"go.uber.org/zap"
)

// AccessDeniedMessage is the message returned for every denied request
const AccessDeniedMessage = "Access denied"

// Authorizer decides whether a caller may access a path
type Authorizer interface {
	Authorize(path, method string, principal policy.Principal) policy.Decision
}

// DecisionRecorder receives every authorization decision
type DecisionRecorder interface {
	Record(ctx context.Context, decision *models.AccessDecision) error
}

// AuthorizationMiddleware enforces the rule table ahead of routing
type AuthorizationMiddleware struct {
	authorizer Authorizer
	recorder   DecisionRecorder
	logger     *zap.Logger
}

// NewAuthorizationMiddleware creates a new AuthorizationMiddleware.
// recorder may be nil.
func NewAuthorizationMiddleware(authorizer Authorizer, recorder DecisionRecorder, logger *zap.Logger) *AuthorizationMiddleware {
	return &AuthorizationMiddleware{
		authorizer: authorizer,
		recorder:   recorder,
		logger:     logger,
	}
}

// Enforce answers 403 for any request the rule table denies
func (m *AuthorizationMiddleware) Enforce(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		// A nil *Principal must not reach the engine as a non-nil interface
		var caller policy.Principal
		principal, authenticated := GetPrincipalFromContext(ctx)
		if authenticated {
			caller = principal
		}

		// The router matches the escaped path; anything the engine would
		// read differently is refused before it can reach a broader rule
		var decision policy.Decision
		if policy.IsCanonicalPath(r.URL.EscapedPath()) {
			decision = m.authorizer.Authorize(r.URL.Path, r.Method, caller)
		} else {
			decision = policy.Decision{Allowed: false, Reason: policy.ReasonNonCanonicalPath}
		}
		m.record(ctx, r, principal, decision)

		if !decision.Allowed {
			fields := []zap.Field{
				zap.String("request_id", GetRequestIDFromContext(ctx)),
				zap.String("method", r.Method),
				zap.String("path", r.URL.EscapedPath()),
				zap.String("rule", decision.Rule),
				zap.String("reason", string(decision.Reason)),
			}
			if authenticated {
				fields = append(fields,
					zap.String("username", principal.Username()),
					zap.Strings("roles", principal.Roles()))
			}
			m.logger.Info("access denied", fields...)

			utils.WriteForbidden(w, AccessDeniedMessage)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *AuthorizationMiddleware) record(ctx context.Context, r *http.Request, principal *Principal, decision policy.Decision) {
	if m.recorder == nil {
		return
	}

	entry := models.NewAccessDecision(r.Method, r.URL.Path, decision.Allowed, decision.Rule, string(decision.Reason)).
		WithRequest(GetRequestIDFromContext(ctx), r.RemoteAddr, r.UserAgent())
	if principal != nil {
		entry.WithPrincipal(principal.Subject(), principal.Username(), principal.Roles())
	}

	if err := m.recorder.Record(ctx, entry); err != nil {
		m.logger.Warn("failed to record access decision",
			zap.String("request_id", entry.RequestID),
			zap.Error(err))
	}
}
