package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sitesafe/hsetrack/internal/errors"
)

func TestAuthorize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleAdmin, ActionVerify, true},
		{RoleHSE, ActionVerify, false},
		{RoleManagement, ActionVerify, false},
		{RoleAdmin, ActionSetStatus, true},
		{RoleHSE, ActionSetStatus, true},
		{RoleManagement, ActionSetStatus, false},
		{RoleManagement, ActionRead, true},
		{RoleHSE, ActionCreate, true},
		{RoleHSE, ActionAttach, true},
		{Role("guest"), ActionRead, false},
		{RoleAdmin, Action("finding:delete"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.action), func(t *testing.T) {
			actor := Actor{ID: "u1", Role: tt.role}
			assert.Equal(t, tt.want, Allowed(actor, tt.action))

			err := Authorize(actor, tt.action)
			if tt.want {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.IsAuthorization(err))
		})
	}
}

func TestRoleValid(t *testing.T) {
	t.Parallel()
	assert.True(t, RoleAdmin.Valid())
	assert.True(t, RoleHSE.Valid())
	assert.True(t, RoleManagement.Valid())
	assert.False(t, Role("Admin").Valid())
	assert.False(t, Role("").Valid())
}
