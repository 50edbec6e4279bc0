package middleware

import (
	"context"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/supplywise/auth-gateway/cognito"
	"github.com/supplywise/auth-gateway/internal/policy"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// PrincipalKey is the context key for the authenticated principal
	PrincipalKey contextKey = "principal"

	// authAttemptedKey marks a request that already went through authentication
	authAttemptedKey contextKey = "auth_attempted"
)

// Principal is the authenticated caller attached to a request.
// It is immutable once built.
type Principal struct {
	username     string
	subject      string
	roles        []string
	roleSet      map[string]struct{}
	companyID    *string
	restaurantID *string
}

// NewPrincipal builds a principal. Roles are always normalized and deduplicated
// here, so callers may pass raw group names or roles that are already normalized.
func NewPrincipal(username, subject string, roles []string, companyID, restaurantID *string) *Principal {
	normalized := policy.NormalizeRoles(roles)
	set := make(map[string]struct{}, len(normalized))
	for _, r := range normalized {
		set[r] = struct{}{}
	}
	return &Principal{
		username:     username,
		subject:      subject,
		roles:        normalized,
		roleSet:      set,
		companyID:    copyString(companyID),
		restaurantID: copyString(restaurantID),
	}
}

// Username returns the caller's username
func (p *Principal) Username() string {
	return p.username
}

// Subject returns the token subject
func (p *Principal) Subject() string {
	return p.subject
}

// Roles returns a copy of the normalized role set
func (p *Principal) Roles() []string {
	return append([]string(nil), p.roles...)
}

// HasRole reports whether the principal holds role
func (p *Principal) HasRole(role string) bool {
	_, ok := p.roleSet[policy.NormalizeRole(role)]
	return ok
}

// HasAnyRole reports whether the principal holds at least one of roles
func (p *Principal) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if p.HasRole(r) {
			return true
		}
	}
	return false
}

// CompanyID returns the company the caller belongs to, if any
func (p *Principal) CompanyID() (string, bool) {
	return deref(p.companyID)
}

// RestaurantID returns the restaurant the caller belongs to, if any
func (p *Principal) RestaurantID() (string, bool) {
	return deref(p.restaurantID)
}

// TenantAttribute returns a named tenant attribute ("company_id" or "restaurant_id")
func (p *Principal) TenantAttribute(name string) (string, bool) {
	switch name {
	case cognito.TenantCompanyID, cognito.ClaimCompanyID:
		return p.CompanyID()
	case cognito.TenantRestaurantID, cognito.ClaimRestaurantID:
		return p.RestaurantID()
	default:
		return "", false
	}
}

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return chimiddleware.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetPrincipalFromContext retrieves the authenticated principal from context
func GetPrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if val := ctx.Value(PrincipalKey); val != nil {
		if p, ok := val.(*Principal); ok && p != nil {
			return p, true
		}
	}
	return nil, false
}

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

func withAuthAttempted(ctx context.Context) context.Context {
	return context.WithValue(ctx, authAttemptedKey, true)
}

func authAttempted(ctx context.Context) bool {
	done, _ := ctx.Value(authAttemptedKey).(bool)
	return done
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func deref(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	return *s, true
}
