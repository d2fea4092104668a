// Package policy decides whether an identity may perform an action on a
// project. It never touches storage; callers load the facts first.
package policy

import (
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/identity"
	"github.com/google/uuid"
)

type Role int

const (
	RoleNone Role = iota
	RoleViewer
	RoleMember
	RoleAdmin
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleViewer:
		return "viewer"
	case RoleMember:
		return "member"
	case RoleAdmin:
		return "admin"
	case RoleOwner:
		return "owner"
	default:
		return "none"
	}
}

// ParseRole maps a stored role name to a Role. Unknown names are RoleNone.
func ParseRole(s string) Role {
	switch s {
	case "viewer":
		return RoleViewer
	case "member":
		return RoleMember
	case "admin":
		return RoleAdmin
	case "owner":
		return RoleOwner
	default:
		return RoleNone
	}
}

// AssignableRole reports whether s may be written to a membership row.
func AssignableRole(s string) bool {
	r := ParseRole(s)
	return r == RoleViewer || r == RoleMember || r == RoleAdmin
}

type Action string

const (
	ActionRead          Action = "read"
	ActionCreate        Action = "create"
	ActionUpdate        Action = "update"
	ActionManageMembers Action = "manage-members"
	ActionDeleteProject Action = "delete-project"
	ActionIngest        Action = "ingest"

	ActionCreateProject Action = "create-project"
	ActionSelf          Action = "self"
	ActionManageUsers   Action = "manage-users"
)

// MinimumRole is the least project role that may perform a project-scoped
// action. ActionIngest has none: only API keys ingest.
var MinimumRole = map[Action]Role{
	ActionRead:          RoleViewer,
	ActionCreate:        RoleMember,
	ActionUpdate:        RoleAdmin,
	ActionManageMembers: RoleAdmin,
	ActionDeleteProject: RoleOwner,
}

func (a Action) projectScoped() bool {
	switch a {
	case ActionCreateProject, ActionSelf, ActionManageUsers:
		return false
	}
	return true
}

// GlobalRoleAdmin is the users.role value for platform administrators.
const GlobalRoleAdmin = "admin"

// Target holds the persisted facts about the project an action touches.
type Target struct {
	Found     bool
	ProjectID uuid.UUID
	OwnerID   uuid.UUID
	// MemberRole is the caller's membership role, RoleNone without one.
	MemberRole Role
	// MemberTargetUserID is the user whose membership is being changed.
	MemberTargetUserID uuid.UUID
}

type Reason int

const (
	ReasonNone Reason = iota
	ReasonForbidden
	ReasonNotFound
)

type Decision struct {
	Allowed bool
	Reason  Reason
}

func allow() Decision { return Decision{Allowed: true} }

func deny(r Reason) Decision { return Decision{Reason: r} }

// Err converts a denial into a tagged error, nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Reason == ReasonNotFound {
		return apperr.NotFound("Resource not found")
	}
	return apperr.Forbidden("Insufficient permissions")
}

// EffectiveRole is owner when the user owns the project, otherwise the
// membership role.
func EffectiveRole(userID uuid.UUID, t *Target) Role {
	if t == nil || !t.Found {
		return RoleNone
	}
	if userID == t.OwnerID {
		return RoleOwner
	}
	return t.MemberRole
}

// Authorize applies the rules in order: identity kind against the
// endpoint class, then target existence, then the caller's role.
func Authorize(id identity.Identity, action Action, t *Target) Decision {
	switch id.Kind {
	case identity.KindProjectKey:
		if action != ActionIngest {
			return deny(ReasonForbidden)
		}
		if t == nil || !t.Found {
			return deny(ReasonNotFound)
		}
		if id.ProjectID != t.ProjectID {
			return deny(ReasonForbidden)
		}
		return allow()
	case identity.KindUser:
		if action == ActionIngest {
			return deny(ReasonForbidden)
		}
		if !action.projectScoped() {
			return authorizeGlobal(id, action)
		}
		if t == nil || !t.Found {
			return deny(ReasonNotFound)
		}
		role := EffectiveRole(id.UserID, t)
		if role == RoleNone {
			return deny(ReasonNotFound)
		}
		required, ok := MinimumRole[action]
		if !ok || role < required {
			return deny(ReasonForbidden)
		}
		if action == ActionManageMembers && t.MemberTargetUserID == t.OwnerID {
			return deny(ReasonForbidden)
		}
		return allow()
	default:
		return deny(ReasonForbidden)
	}
}

func authorizeGlobal(id identity.Identity, action Action) Decision {
	switch action {
	case ActionCreateProject, ActionSelf:
		return allow()
	case ActionManageUsers:
		if id.GlobalRole == GlobalRoleAdmin {
			return allow()
		}
	}
	return deny(ReasonForbidden)
}
