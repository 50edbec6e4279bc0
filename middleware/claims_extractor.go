package middleware

import (
	"errors"
	"fmt"

	"github.com/supplywise/auth-gateway/cognito"
	"github.com/supplywise/auth-gateway/internal/policy"
)

// ErrIncompleteClaims is returned when a verified token lacks required identity claims
var ErrIncompleteClaims = errors.New("incomplete claims")

// ClaimsExtractor turns a verified claim set into a Principal
type ClaimsExtractor struct{}

// NewClaimsExtractor creates a new ClaimsExtractor
func NewClaimsExtractor() *ClaimsExtractor {
	return &ClaimsExtractor{}
}

// Extract requires a subject and at least one usable group. Tenant claims are optional.
func (e *ClaimsExtractor) Extract(claims *cognito.ClaimSet) (*Principal, error) {
	if claims == nil {
		return nil, fmt.Errorf("%w: no claims", ErrIncompleteClaims)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: %s", ErrIncompleteClaims, cognito.ClaimSubject)
	}

	roles := policy.NormalizeRoles(claims.Groups)
	if len(roles) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrIncompleteClaims, cognito.ClaimGroups)
	}

	username := claims.Username
	if username == "" {
		username = claims.Subject
	}

	return NewPrincipal(username, claims.Subject, roles, claims.CompanyID, claims.RestaurantID), nil
}
