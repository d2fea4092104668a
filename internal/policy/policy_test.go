package policy

import (
	"testing"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

var projectActions = []Action{
	ActionRead, ActionCreate, ActionUpdate, ActionManageMembers, ActionDeleteProject,
}

func TestRoleTable(t *testing.T) {
	owner := uuid.New()
	caller := uuid.New()
	project := uuid.New()

	for _, role := range []Role{RoleViewer, RoleMember, RoleAdmin} {
		for _, action := range projectActions {
			target := &Target{Found: true, ProjectID: project, OwnerID: owner, MemberRole: role, MemberTargetUserID: uuid.New()}
			d := Authorize(identity.User(caller, "user"), action, target)

			want := role >= MinimumRole[action]
			assert.Equal(t, want, d.Allowed, "%s %s", role, action)
			if !want {
				assert.Equal(t, ReasonForbidden, d.Reason, "%s %s", role, action)
			}
		}
	}
}

func TestOwnerIsImplicit(t *testing.T) {
	owner := uuid.New()
	target := &Target{Found: true, ProjectID: uuid.New(), OwnerID: owner, MemberTargetUserID: uuid.New()}

	for _, action := range projectActions {
		d := Authorize(identity.User(owner, "user"), action, target)
		assert.True(t, d.Allowed, action)
	}
}

func TestNonMemberGetsNotFound(t *testing.T) {
	target := &Target{Found: true, ProjectID: uuid.New(), OwnerID: uuid.New()}

	for _, action := range projectActions {
		d := Authorize(identity.User(uuid.New(), "admin"), action, target)
		assert.Equal(t, ReasonNotFound, d.Reason, action)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(d.Err()))
	}
}

func TestMissingTargetIsNotFoundBeforeRole(t *testing.T) {
	user := identity.User(uuid.New(), "user")
	key := identity.ProjectKey(uuid.New())

	assert.Equal(t, ReasonNotFound, Authorize(user, ActionRead, nil).Reason)
	assert.Equal(t, ReasonNotFound, Authorize(user, ActionDeleteProject, &Target{}).Reason)
	assert.Equal(t, ReasonNotFound, Authorize(key, ActionIngest, &Target{}).Reason)
}

func TestKindMismatchIsForbiddenBeforeLookup(t *testing.T) {
	assert.Equal(t, ReasonForbidden, Authorize(identity.User(uuid.New(), "user"), ActionIngest, nil).Reason)
	assert.Equal(t, ReasonForbidden, Authorize(identity.ProjectKey(uuid.New()), ActionRead, nil).Reason)
	assert.Equal(t, ReasonForbidden, Authorize(identity.Identity{}, ActionRead, &Target{Found: true}).Reason)
}

func TestOwnerCannotBeManaged(t *testing.T) {
	owner := uuid.New()
	admin := uuid.New()
	target := &Target{Found: true, ProjectID: uuid.New(), OwnerID: owner, MemberRole: RoleAdmin, MemberTargetUserID: owner}

	d := Authorize(identity.User(admin, "user"), ActionManageMembers, target)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonForbidden, d.Reason)

	d = Authorize(identity.User(owner, "user"), ActionManageMembers, target)
	assert.False(t, d.Allowed)
}

func TestIngest(t *testing.T) {
	project := uuid.New()
	owner := uuid.New()
	target := &Target{Found: true, ProjectID: project, OwnerID: owner}

	assert.True(t, Authorize(identity.ProjectKey(project), ActionIngest, target).Allowed)

	other := Authorize(identity.ProjectKey(uuid.New()), ActionIngest, target)
	assert.Equal(t, ReasonForbidden, other.Reason)

	asOwner := Authorize(identity.User(owner, "user"), ActionIngest, target)
	assert.Equal(t, ReasonForbidden, asOwner.Reason)
}

func TestProjectKeyCannotManage(t *testing.T) {
	project := uuid.New()
	target := &Target{Found: true, ProjectID: project, OwnerID: uuid.New()}

	for _, action := range projectActions {
		d := Authorize(identity.ProjectKey(project), action, target)
		assert.Equal(t, ReasonForbidden, d.Reason, action)
		assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(d.Err()))
	}
	assert.False(t, Authorize(identity.ProjectKey(project), ActionCreateProject, nil).Allowed)
	assert.False(t, Authorize(identity.ProjectKey(project), ActionSelf, nil).Allowed)
}

func TestGlobalActions(t *testing.T) {
	user := identity.User(uuid.New(), "user")
	admin := identity.User(uuid.New(), GlobalRoleAdmin)

	assert.True(t, Authorize(user, ActionCreateProject, nil).Allowed)
	assert.True(t, Authorize(user, ActionSelf, nil).Allowed)
	assert.False(t, Authorize(user, ActionManageUsers, nil).Allowed)
	assert.True(t, Authorize(admin, ActionManageUsers, nil).Allowed)
}

func TestDeterministic(t *testing.T) {
	target := &Target{Found: true, ProjectID: uuid.New(), OwnerID: uuid.New(), MemberRole: RoleMember}
	id := identity.User(uuid.New(), "user")

	first := Authorize(id, ActionCreate, target)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Authorize(id, ActionCreate, target))
	}
	assert.NoError(t, first.Err())
}

func TestRoles(t *testing.T) {
	assert.Equal(t, RoleOwner, ParseRole("owner"))
	assert.Equal(t, RoleNone, ParseRole("superuser"))
	assert.True(t, AssignableRole("viewer"))
	assert.False(t, AssignableRole("owner"))
	assert.False(t, AssignableRole(""))
	assert.True(t, RoleViewer < RoleMember && RoleMember < RoleAdmin && RoleAdmin < RoleOwner)
}
