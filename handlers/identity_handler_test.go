package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supplywise/auth-gateway/middleware"
)

func withPrincipal(r *http.Request, p *middleware.Principal) *http.Request {
	return r.WithContext(middleware.WithPrincipal(r.Context(), p))
}

func TestIdentityHandler_HandleStatus(t *testing.T) {
	handler := NewIdentityHandler()

	t.Run("anonymous", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.HandleStatus(w, httptest.NewRequest(http.MethodGet, "/api/auth/status", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"data":{"authenticated":false}}`, w.Body.String())
	})

	t.Run("authenticated", func(t *testing.T) {
		p := middleware.NewPrincipal("alice", "sub-1", []string{"manager"}, nil, nil)
		req := withPrincipal(httptest.NewRequest(http.MethodGet, "/api/auth/status", nil), p)
		w := httptest.NewRecorder()

		handler.HandleStatus(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"data":{"authenticated":true,"username":"alice","roles":["ROLE_MANAGER"]}}`, w.Body.String())
	})
}

func TestIdentityHandler_HandleMe(t *testing.T) {
	handler := NewIdentityHandler()

	t.Run("returns principal and tenant attributes", func(t *testing.T) {
		company := "42"
		p := middleware.NewPrincipal("alice", "sub-1", []string{"franchise_owner"}, &company, nil)
		req := withPrincipal(httptest.NewRequest(http.MethodGet, "/api/user/me", nil), p)
		w := httptest.NewRecorder()

		handler.HandleMe(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Data MeResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "alice", response.Data.Username)
		assert.Equal(t, "sub-1", response.Data.Subject)
		assert.Equal(t, []string{"ROLE_FRANCHISE_OWNER"}, response.Data.Roles)
		require.NotNil(t, response.Data.CompanyID)
		assert.Equal(t, "42", *response.Data.CompanyID)
		assert.Nil(t, response.Data.RestaurantID)
	})

	t.Run("no principal is forbidden", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.HandleMe(w, httptest.NewRequest(http.MethodGet, "/api/user/me", nil))

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.JSONEq(t, `{"error":"forbidden","message":"Access denied"}`, w.Body.String())
	})
}
