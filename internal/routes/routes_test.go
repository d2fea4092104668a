package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/clock"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/credential"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/geo"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/identity"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type server struct {
	app      *fiber.App
	db       *gorm.DB
	auth     *services.AuthService
	projects *services.ProjectService
}

func newServer(t *testing.T) *server {
	t.Helper()
	db := testutil.NewDB(t)
	clk := clock.Real()
	codec := credential.NewCodec("test-secret", time.Hour, clk)
	registry := metrics.NewRegistry()

	projectService := services.NewProjectService(db, codec)
	authService := services.NewAuthService(db, codec, clk, "")
	deviceService := services.NewDeviceService(db, geo.Default())
	metricService := services.NewMetricService(db, registry, clk)
	eventService := services.NewEventService(db, deviceService, metricService, clk, 5)

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	app.Use(requestid.New())
	Setup(app, codec, identity.NewResolver(codec, projectService),
		handlers.NewHealthHandler(db, registry, clk),
		handlers.NewAuthHandler(authService, projectService),
		handlers.NewUserHandler(services.NewUserService(db)),
		handlers.NewProjectHandler(projectService),
		handlers.NewEventHandler(eventService),
		handlers.NewDeviceHandler(deviceService),
		handlers.NewMetricHandler(metricService),
	)
	return &server{app: app, db: db, auth: authService, projects: projectService}
}

// owner registers an account with one project and returns its session
// token and the project.
func (s *server) owner(t *testing.T) (string, dto.ProjectResponse) {
	t.Helper()
	ctx := context.Background()
	reg, err := s.auth.Register(ctx, &dto.RegisterRequest{Email: "owner@example.com", Password: "password1"})
	require.NoError(t, err)
	p, err := s.projects.Create(ctx, identity.User(reg.User.ID, reg.User.Role), &dto.CreateProjectRequest{Name: "App"})
	require.NoError(t, err)
	return reg.Token, *p
}

func (s *server) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func sample(ts string) map[string]interface{} {
	return map[string]interface{}{
		"event_type": "tap",
		"timestamp":  ts,
		"device_id":  "device-1",
		"platform":   "android",
	}
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	status, body := s.do(t, http.MethodGet, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["db"])
}

func TestIngestWithAPIKeyHeader(t *testing.T) {
	s := newServer(t)
	token, p := s.owner(t)

	status, body := s.do(t, http.MethodPost, "/api/v1/events", sample("2026-05-04T09:00:00Z"),
		map[string]string{"X-API-Key": p.APIKey})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, p.ID.String(), body["project_id"])
	assert.Equal(t, "2026-05-04T09:00:00.000Z", body["timestamp"])

	status, body = s.do(t, http.MethodGet, "/api/v1/events?project_id="+p.ID.String(), nil,
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 1, body["total"])
}

func TestIngestWithExchangedToken(t *testing.T) {
	s := newServer(t)
	_, p := s.owner(t)

	status, body := s.do(t, http.MethodPost, "/api/v1/auth/token",
		map[string]string{"project_id": p.ID.String(), "api_key": p.APIKey}, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "api_key", body["scope"])

	status, body = s.do(t, http.MethodPost, "/api/v1/events/session/start",
		map[string]interface{}{"device_id": "device-1", "platform": "ios"},
		map[string]string{"Authorization": "Bearer " + body["token"].(string)})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, services.EventSessionStart, body["event_type"])
}

func TestIngestCredentialErrors(t *testing.T) {
	s := newServer(t)
	token, _ := s.owner(t)

	status, body := s.do(t, http.MethodPost, "/api/v1/events", sample("2026-05-04T09:00:00Z"), nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "missing_credential", body["code"])

	status, body = s.do(t, http.MethodPost, "/api/v1/events", sample("2026-05-04T09:00:00Z"),
		map[string]string{"X-API-Key": "not-a-key"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unknown_key", body["code"])

	status, _ = s.do(t, http.MethodPost, "/api/v1/events", sample("2026-05-04T09:00:00Z"),
		map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusForbidden, status)

	var n int64
	require.NoError(t, s.db.Model(&models.Event{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestBearerRoutesRejectBadTokens(t *testing.T) {
	s := newServer(t)
	_, p := s.owner(t)

	status, body := s.do(t, http.MethodGet, "/api/v1/projects", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "missing_credential", body["code"])

	status, _ = s.do(t, http.MethodGet, "/api/v1/projects", nil,
		map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodGet, "/api/v1/projects", nil,
		map[string]string{"X-API-Key": p.APIKey})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestBatchRejectsBadTimestamp(t *testing.T) {
	s := newServer(t)
	_, p := s.owner(t)

	status, body := s.do(t, http.MethodPost, "/api/v1/events/batch", map[string]interface{}{
		"events": []interface{}{sample("2026-05-04T09:00:00Z"), sample("last tuesday")},
	}, map[string]string{"X-API-Key": p.APIKey})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["message"], "events[1]")

	var n int64
	require.NoError(t, s.db.Model(&models.Event{}).Count(&n).Error)
	assert.Zero(t, n)

	status, body = s.do(t, http.MethodPost, "/api/v1/events/batch", map[string]interface{}{
		"events": []interface{}{sample("2026-05-04T09:00:00Z"), sample("2026-05-04T09:01:00Z")},
	}, map[string]string{"X-API-Key": p.APIKey})
	require.Equal(t, http.StatusCreated, status, body)
	assert.EqualValues(t, 2, body["accepted"])
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	s := newServer(t)
	token, _ := s.owner(t)
	bearer := map[string]string{"Authorization": "Bearer " + token}

	status, body := s.do(t, http.MethodPost, "/api/v1/projects", map[string]string{"name": "Second"}, bearer)
	require.Equal(t, http.StatusCreated, status, body)
	id := body["id"].(string)

	status, body = s.do(t, http.MethodGet, "/api/v1/projects", nil, bearer)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["projects"], 2)

	status, _ = s.do(t, http.MethodGet, "/api/v1/projects/not-a-uuid", nil, bearer)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodDelete, "/api/v1/projects/"+id, nil, bearer)
	assert.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, http.MethodGet, "/api/v1/projects/"+id, nil, bearer)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestIngestLimitIsPerCredential(t *testing.T) {
	s := newServer(t)
	_, p := s.owner(t)
	other, err := s.projects.Create(context.Background(), identity.User(p.OwnerID, "user"), &dto.CreateProjectRequest{Name: "Other"})
	require.NoError(t, err)

	post := func(apiKey string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader([]byte("{")))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", apiKey)
		resp, err := s.app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	// Well past the 60/min per-IP budget of the management routes.
	for i := 0; i < IngestRateLimit; i++ {
		require.Equal(t, http.StatusBadRequest, post(p.APIKey), "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, post(p.APIKey))
	assert.Equal(t, http.StatusBadRequest, post(other.APIKey))

	status, _ := s.do(t, http.MethodGet, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, status)
}
