package database_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMigrateAndPing(t *testing.T) {
	db := testutil.NewDB(t)

	require.NoError(t, database.Ping(db))
	for _, table := range []string{"users", "projects", "project_memberships", "devices", "events", "metrics", "metric_definitions", "auth_tokens", "system_logs"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestUniqueViolationIsTranslated(t *testing.T) {
	db := testutil.NewDB(t)

	require.NoError(t, db.Create(&models.User{Email: "dup@example.com", Password: "x"}).Error)
	err := db.Create(&models.User{ID: uuid.New(), Email: "dup@example.com", Password: "x"}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestLoggerSkipsRecordNotFound(t *testing.T) {
	var out bytes.Buffer
	l := database.NewLogger(&out)
	sql := func() (string, int64) { return "SELECT * FROM devices", 0 }

	l.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	assert.Empty(t, out.String())

	l.Trace(context.Background(), time.Now(), sql, errors.New("connection reset"))
	assert.Contains(t, out.String(), "connection reset")
}
