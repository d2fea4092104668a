package services

import (
	"context"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/clock"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/credential"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/geo"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/identity"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	db       *gorm.DB
	clock    *clock.Fake
	codec    *credential.Codec
	registry *metrics.Registry
	devices  *DeviceService
	metrics  *MetricService
	events   *EventService
	projects *ProjectService
	auth     *AuthService
	users    *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	clk := clock.NewFake(t0)
	codec := credential.NewCodec("test-secret", time.Hour, clk)
	registry := metrics.NewRegistry()
	devices := NewDeviceService(db, geo.Default())
	metricService := NewMetricService(db, registry, clk)
	return &fixture{
		db:       db,
		clock:    clk,
		codec:    codec,
		registry: registry,
		devices:  devices,
		metrics:  metricService,
		events:   NewEventService(db, devices, metricService, clk, 10),
		projects: NewProjectService(db, codec),
		auth:     NewAuthService(db, codec, clk, "root@example.com"),
		users:    NewUserService(db),
	}
}

// user inserts an account directly and returns its identity.
func (f *fixture) user(t *testing.T, email string) identity.Identity {
	t.Helper()
	u := models.User{Email: email, Password: "unused", Name: email, Role: "user"}
	require.NoError(t, f.db.Create(&u).Error)
	return identity.User(u.ID, u.Role)
}

func (f *fixture) project(t *testing.T, owner identity.Identity, name string) uuid.UUID {
	t.Helper()
	p, err := f.projects.Create(context.Background(), owner, &dto.CreateProjectRequest{Name: name})
	require.NoError(t, err)
	return p.ID
}

func (f *fixture) member(t *testing.T, projectID uuid.UUID, id identity.Identity, role string) {
	t.Helper()
	m := models.ProjectMembership{ProjectID: projectID, UserID: id.UserID, Role: role}
	require.NoError(t, f.db.Omit("User").Create(&m).Error)
}

func (f *fixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func event(eventType, ts, deviceID string) dto.EventRequest {
	return dto.EventRequest{
		EventType: eventType,
		Timestamp: ts,
		DeviceID:  deviceID,
		Platform:  "ios",
	}
}

func strPtr(s string) *string { return &s }
