package cognito

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claim names issued by Cognito
const (
	ClaimSubject      = "sub"
	ClaimUsername     = "cognito:username"
	ClaimUsernameAlt  = "username"
	ClaimGroups       = "cognito:groups"
	ClaimCompanyID    = "custom:company_id"
	ClaimRestaurantID = "custom:restaurant_id"
	ClaimTokenUse     = "token_use"
	ClaimClientID     = "client_id"
)

// Tenant attribute names exposed to downstream handlers
const (
	TenantCompanyID    = "company_id"
	TenantRestaurantID = "restaurant_id"
)

// ClaimSet is the typed view of a verified token payload
type ClaimSet struct {
	Subject       string
	Username      string
	Groups        []string
	GroupsPresent bool
	CompanyID     *string
	RestaurantID  *string
	TokenUse      string
	ClientID      string
	Issuer        string
	Audience      []string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// TenantAttribute returns the named optional tenant claim
func (c *ClaimSet) TenantAttribute(name string) (string, bool) {
	var value *string
	switch strings.TrimPrefix(name, "custom:") {
	case TenantCompanyID:
		value = c.CompanyID
	case TenantRestaurantID:
		value = c.RestaurantID
	}
	if value == nil {
		return "", false
	}
	return *value, true
}

// NewClaimSet builds a ClaimSet from verified map claims.
// Optional claims with an unexpected type are left absent.
func NewClaimSet(claims jwt.MapClaims) *ClaimSet {
	set := &ClaimSet{
		Subject:  stringClaim(claims, ClaimSubject),
		TokenUse: stringClaim(claims, ClaimTokenUse),
		ClientID: stringClaim(claims, ClaimClientID),
	}

	set.Username = stringClaim(claims, ClaimUsername)
	if set.Username == "" {
		set.Username = stringClaim(claims, ClaimUsernameAlt)
	}

	set.Groups, set.GroupsPresent = groupsClaim(claims)
	set.CompanyID = optionalClaim(claims, ClaimCompanyID)
	set.RestaurantID = optionalClaim(claims, ClaimRestaurantID)

	if iss, err := claims.GetIssuer(); err == nil {
		set.Issuer = iss
	}
	if aud, err := claims.GetAudience(); err == nil {
		set.Audience = aud
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		set.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		set.ExpiresAt = exp.Time
	}

	return set
}

func stringClaim(claims jwt.MapClaims, name string) string {
	value, ok := claims[name].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

// groupsClaim accepts a JSON array of strings or a single string
func groupsClaim(claims jwt.MapClaims) ([]string, bool) {
	raw, ok := claims[ClaimGroups]
	if !ok || raw == nil {
		return nil, false
	}

	switch v := raw.(type) {
	case string:
		return []string{v}, true
	case []string:
		return append([]string(nil), v...), true
	case []interface{}:
		groups := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				groups = append(groups, s)
			}
		}
		return groups, true
	default:
		return nil, false
	}
}

func optionalClaim(claims jwt.MapClaims, name string) *string {
	var value string
	switch v := claims[name].(type) {
	case string:
		value = strings.TrimSpace(v)
	case float64:
		value = strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		value = v.String()
	default:
		return nil
	}
	if value == "" {
		return nil
	}
	return &value
}
