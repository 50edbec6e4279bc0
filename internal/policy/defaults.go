package policy

// Roles recognized by the Supplywise API
const (
	RoleAdmin          = "ADMIN"
	RoleFranchiseOwner = "FRANCHISE_OWNER"
	RoleManagerMaster  = "MANAGER_MASTER"
	RoleManager        = "MANAGER"
	RoleDisassociated  = "DISASSOCIATED"
)

// DefaultRules is the rule table used when no policy file is configured
func DefaultRules() []Rule {
	staff := []string{RoleAdmin, RoleFranchiseOwner, RoleManager, RoleManagerMaster}

	return []Rule{
		{Pattern: "/healthz", Access: AccessPublic},
		{Pattern: "/readyz", Access: AccessPublic},
		{Pattern: "/swagger-ui.html", Access: AccessPublic},
		{Pattern: "/swagger-ui/**", Access: AccessPublic},
		{Pattern: "/api-docs/**", Access: AccessPublic},
		{Pattern: "/api/auth/**", Access: AccessPublic},

		{Pattern: "/api/admin/**", Access: AccessRoles, Roles: []string{RoleAdmin}},
		{Pattern: "/api/user/**", Access: AccessRoles, Roles: []string{
			RoleAdmin, RoleFranchiseOwner, RoleManagerMaster, RoleManager, RoleDisassociated,
		}},

		{Pattern: "/api/notifications/**", Access: AccessRoles, Roles: staff},
		{Pattern: "/api/inventory/**", Access: AccessRoles, Roles: staff},

		{Pattern: "/api/companies", Methods: []string{"POST"}, Access: AccessRoles, Roles: []string{RoleAdmin, RoleDisassociated}},
		{Pattern: "/api/companies/{id}", Methods: []string{"PUT"}, Access: AccessRoles, Roles: []string{RoleAdmin, RoleFranchiseOwner}},
	}
}
