package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccessDecision(t *testing.T) {
	t.Run("denied anonymous request", func(t *testing.T) {
		d := NewAccessDecision("GET", "/api/admin/keys", false, "/api/admin/**", "unauthenticated")

		assert.NotEqual(t, uuid.Nil, d.ID)
		assert.Equal(t, DecisionDeny, d.Outcome)
		assert.False(t, d.Allowed())
		assert.Nil(t, d.Subject)
		assert.Nil(t, d.Username)
		assert.False(t, d.Timestamp.IsZero())
	})

	t.Run("allowed request with principal", func(t *testing.T) {
		roles := []string{"ROLE_ADMIN"}
		d := NewAccessDecision("GET", "/api/user/me", true, "/api/user/**", "role_granted").
			WithPrincipal("sub-1", "alice", roles).
			WithRequest("req-1", "10.0.0.1", "curl/8")

		assert.True(t, d.Allowed())
		require.NotNil(t, d.Subject)
		assert.Equal(t, "sub-1", *d.Subject)
		assert.Equal(t, "alice", *d.Username)
		assert.Equal(t, "req-1", d.RequestID)
		assert.Equal(t, "10.0.0.1", d.RemoteAddr)

		roles[0] = "ROLE_CHANGED"
		assert.Equal(t, []string{"ROLE_ADMIN"}, d.Roles)
	})
}

func TestAccessDecision_TableName(t *testing.T) {
	assert.Equal(t, "access_decisions", AccessDecision{}.TableName())
}
