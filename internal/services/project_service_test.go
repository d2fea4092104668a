package services

import (
	"context"
	"testing"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/identity"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProjectMakesCallerOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com")

	p, err := f.projects.Create(ctx, owner, &dto.CreateProjectRequest{Name: "  Weather  "})
	require.NoError(t, err)
	assert.Equal(t, "Weather", p.Name)
	assert.Equal(t, "owner", p.Role)
	assert.Len(t, p.APIKey, 43)
	assert.Equal(t, owner.UserID, p.OwnerID)

	found, err := f.projects.FindProjectIDByAPIKey(ctx, p.APIKey)
	require.NoError(t, err)
	assert.Equal(t, p.ID, found)

	_, err = f.projects.FindProjectIDByAPIKey(ctx, "nope")
	assert.ErrorIs(t, err, identity.ErrProjectNotFound)

	_, err = f.projects.Create(ctx, owner, &dto.CreateProjectRequest{Name: " "})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.projects.Create(ctx, identity.ProjectKey(p.ID), &dto.CreateProjectRequest{Name: "x"})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
}

func TestListProjectsIncludesMemberships(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice@example.com")
	bob := f.user(t, "bob@example.com")
	mine := f.project(t, alice, "Mine")
	shared := f.project(t, bob, "Shared")
	f.project(t, bob, "Private")
	f.member(t, shared, alice, "viewer")

	list, err := f.projects.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 2)

	byID := map[uuid.UUID]dto.ProjectResponse{}
	for _, p := range list {
		byID[p.ID] = p
	}
	assert.Equal(t, "owner", byID[mine].Role)
	assert.NotEmpty(t, byID[mine].APIKey)
	assert.Equal(t, "viewer", byID[shared].Role)
	assert.Empty(t, byID[shared].APIKey)
}

func TestProjectRoleGates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com")
	admin := f.user(t, "admin@example.com")
	viewer := f.user(t, "viewer@example.com")
	outsider := f.user(t, "outsider@example.com")
	projectID := f.project(t, owner, "App")
	f.member(t, projectID, admin, "admin")
	f.member(t, projectID, viewer, "viewer")

	_, err := f.projects.Get(ctx, outsider, projectID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.projects.Get(ctx, viewer, projectID)
	assert.NoError(t, err)

	_, err = f.projects.Update(ctx, viewer, projectID, &dto.UpdateProjectRequest{Name: "x"})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	updated, err := f.projects.Update(ctx, admin, projectID, &dto.UpdateProjectRequest{Name: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	err = f.projects.Delete(ctx, admin, projectID)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = f.projects.Get(ctx, owner, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestGlobalAdminHasNoProjectAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com")
	projectID := f.project(t, owner, "App")

	root := identity.User(f.user(t, "root@example.com").UserID, "admin")
	_, err := f.projects.Get(ctx, root, projectID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDeleteProjectCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com")
	viewer := f.user(t, "viewer@example.com")
	projectID := f.project(t, owner, "App")
	other := f.project(t, owner, "Other")
	f.member(t, projectID, viewer, "viewer")

	req := event("tap", "2026-05-04T09:00:00Z", "a")
	_, err := f.events.Create(ctx, identity.ProjectKey(projectID), &req)
	require.NoError(t, err)
	_, err = f.events.Create(ctx, identity.ProjectKey(other), &req)
	require.NoError(t, err)

	require.NoError(t, f.projects.Delete(ctx, owner, projectID))

	assert.Equal(t, int64(1), f.count(t, &models.Project{}))
	assert.Equal(t, int64(1), f.count(t, &models.Event{}))
	assert.Equal(t, int64(1), f.count(t, &models.Device{}))
	assert.Equal(t, int64(2), f.count(t, &models.Metric{}))
	assert.Zero(t, f.count(t, &models.ProjectMembership{}))
}

func TestRegenerateAPIKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com")
	p, err := f.projects.Create(ctx, owner, &dto.CreateProjectRequest{Name: "App"})
	require.NoError(t, err)

	rotated, err := f.projects.RegenerateAPIKey(ctx, owner, p.ID)
	require.NoError(t, err)
	assert.NotEqual(t, p.APIKey, rotated.APIKey)

	_, err = f.projects.FindProjectIDByAPIKey(ctx, p.APIKey)
	assert.ErrorIs(t, err, identity.ErrProjectNotFound)
	found, err := f.projects.FindProjectIDByAPIKey(ctx, rotated.APIKey)
	require.NoError(t, err)
	assert.Equal(t, p.ID, found)
}

func TestAPIKeyTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com")
	p, err := f.projects.Create(ctx, owner, &dto.CreateProjectRequest{Name: "App"})
	require.NoError(t, err)

	issued, err := f.projects.IssueKeyToken(ctx, owner, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "api_key", issued.Scope)
	claims, err := f.codec.Verify(issued.Token)
	require.NoError(t, err)
	require.NotNil(t, claims.ProjectID)
	assert.Equal(t, p.ID.String(), *claims.ProjectID)

	exchanged, err := f.projects.ExchangeAPIKey(ctx, &dto.APIKeyAuthRequest{ProjectID: p.ID.String(), APIKey: p.APIKey})
	require.NoError(t, err)
	id, err := identity.NewResolver(f.codec, f.projects).Resolve(ctx, identity.Credentials{Authorization: "Bearer " + exchanged.Token})
	require.NoError(t, err)
	assert.Equal(t, identity.ProjectKey(p.ID), id)

	_, err = f.projects.ExchangeAPIKey(ctx, &dto.APIKeyAuthRequest{ProjectID: uuid.NewString(), APIKey: p.APIKey})
	assert.ErrorIs(t, err, identity.ErrUnknownKey)

	_, err = f.projects.ExchangeAPIKey(ctx, &dto.APIKeyAuthRequest{ProjectID: "bad", APIKey: p.APIKey})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestMembershipLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com")
	newcomer := f.user(t, "new@example.com")
	projectID := f.project(t, owner, "App")

	added, err := f.projects.AddMember(ctx, owner, projectID, &dto.AddMemberRequest{Email: "NEW@example.com", Role: "member"})
	require.NoError(t, err)
	assert.Equal(t, newcomer.UserID, added.UserID)

	_, err = f.projects.AddMember(ctx, owner, projectID, &dto.AddMemberRequest{UserID: newcomer.UserID.String(), Role: "viewer"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = f.projects.AddMember(ctx, owner, projectID, &dto.AddMemberRequest{Email: "new@example.com", Role: "owner"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.projects.AddMember(ctx, owner, projectID, &dto.AddMemberRequest{Email: "ghost@example.com", Role: "viewer"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	members, err := f.projects.ListMembers(ctx, newcomer, projectID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "owner", members[0].Role)
	assert.Equal(t, "member", members[1].Role)

	promoted, err := f.projects.UpdateMember(ctx, owner, projectID, newcomer.UserID, &dto.UpdateMemberRequest{Role: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "admin", promoted.Role)

	require.NoError(t, f.projects.RemoveMember(ctx, owner, projectID, newcomer.UserID))
	err = f.projects.RemoveMember(ctx, owner, projectID, newcomer.UserID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestOwnerCannotBeManaged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com")
	admin := f.user(t, "admin@example.com")
	projectID := f.project(t, owner, "App")
	f.member(t, projectID, admin, "admin")

	err := f.projects.RemoveMember(ctx, admin, projectID, owner.UserID)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = f.projects.UpdateMember(ctx, admin, projectID, owner.UserID, &dto.UpdateMemberRequest{Role: "viewer"})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = f.projects.AddMember(ctx, admin, projectID, &dto.AddMemberRequest{UserID: owner.UserID.String(), Role: "viewer"})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	err = f.projects.RemoveMember(ctx, owner, projectID, owner.UserID)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	p, err := f.projects.Get(ctx, owner, projectID)
	require.NoError(t, err)
	assert.Equal(t, "owner", p.Role)
}
