package handlers

import (
	"net/http"

	"github.com/supplywise/auth-gateway/middleware"
	"github.com/supplywise/auth-gateway/utils"
)

// AuthStatusResponse is returned by GET /api/auth/status
type AuthStatusResponse struct {
	Authenticated bool     `json:"authenticated"`
	Username      string   `json:"username,omitempty"`
	Roles         []string `json:"roles,omitempty"`
}

// MeResponse describes the authenticated caller
type MeResponse struct {
	Username     string   `json:"username"`
	Subject      string   `json:"subject"`
	Roles        []string `json:"roles"`
	CompanyID    *string  `json:"company_id"`
	RestaurantID *string  `json:"restaurant_id"`
}

// IdentityHandler exposes the principal attached by the auth middleware
type IdentityHandler struct{}

// NewIdentityHandler creates a new IdentityHandler
func NewIdentityHandler() *IdentityHandler {
	return &IdentityHandler{}
}

// HandleStatus handles GET /api/auth/status
func (h *IdentityHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		_ = utils.WriteOK(w, AuthStatusResponse{Authenticated: false})
		return
	}

	_ = utils.WriteOK(w, AuthStatusResponse{
		Authenticated: true,
		Username:      principal.Username(),
		Roles:         principal.Roles(),
	})
}

// HandleMe handles GET /api/user/me
func (h *IdentityHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		_ = utils.WriteForbidden(w, middleware.AccessDeniedMessage)
		return
	}

	response := MeResponse{
		Username: principal.Username(),
		Subject:  principal.Subject(),
		Roles:    principal.Roles(),
	}
	if v, ok := principal.CompanyID(); ok {
		response.CompanyID = &v
	}
	if v, ok := principal.RestaurantID(); ok {
		response.RestaurantID = &v
	}

	_ = utils.WriteOK(w, response)
}
