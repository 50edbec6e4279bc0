package policy

import "strings"

// Access is the level of access a rule grants
type Access string

const (
	AccessPublic        Access = "public"
	AccessAuthenticated Access = "authenticated"
	AccessRoles         Access = "roles"
)

// RolePrefix is prepended to every normalized role
const RolePrefix = "ROLE_"

// Rule maps a path pattern to the access it requires
type Rule struct {
	Pattern string   `yaml:"pattern" json:"pattern" validate:"required,startswith=/"`
	Methods []string `yaml:"methods,omitempty" json:"methods,omitempty" validate:"omitempty,dive,oneof=GET HEAD POST PUT PATCH DELETE OPTIONS"`
	Access  Access   `yaml:"access" json:"access" validate:"required,oneof=public authenticated roles"`
	Roles   []string `yaml:"roles,omitempty" json:"roles,omitempty" validate:"required_if=Access roles,dive,required"`
}

// String renders the rule for logs and audit records
func (r Rule) String() string {
	if len(r.Methods) == 0 {
		return r.Pattern
	}
	return strings.Join(r.Methods, ",") + " " + r.Pattern
}

// Principal is the view of an authenticated caller the engine needs
type Principal interface {
	HasAnyRole(roles ...string) bool
}

// Decision is the outcome of an authorization check
type Decision struct {
	Allowed bool
	Rule    string
	Reason  Reason
}

// Reason explains a decision
type Reason string

const (
	ReasonPublic           Reason = "public"
	ReasonAuthenticated    Reason = "authenticated"
	ReasonRoleGranted      Reason = "role_granted"
	ReasonUnauthenticated  Reason = "unauthenticated"
	ReasonInsufficientRole Reason = "insufficient_role"
	ReasonNonCanonicalPath Reason = "non_canonical_path"
)

// NormalizeRole upper-cases a role name and adds RolePrefix.
// Returns an empty string for blank input.
func NormalizeRole(role string) string {
	role = strings.TrimSpace(role)
	if role == "" {
		return ""
	}
	role = strings.ToUpper(role)
	role = strings.NewReplacer(" ", "_", "-", "_").Replace(role)
	if !strings.HasPrefix(role, RolePrefix) {
		role = RolePrefix + role
	}
	return role
}

// NormalizeRoles normalizes and deduplicates roles, keeping first-seen order
func NormalizeRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		n := NormalizeRole(r)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
