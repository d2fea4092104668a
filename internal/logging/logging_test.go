package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGHandlerPersistsErrorsOnly(t *testing.T) {
	db := testutil.NewDB(t)
	h := NewPGHandler(db, time.Hour)
	defer h.Stop()

	logger := slog.New(h).With("project_id", "p-1")
	logger.Info("ignored")
	logger.Error("event batch failed", "error", errors.New("disk full"), "action", "ingest", "batch_size", 3)
	h.Flush()

	var logs []models.SystemLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "event batch failed", logs[0].Message)
	assert.Equal(t, "p-1", logs[0].ProjectID)
	assert.Equal(t, "disk full", logs[0].Error)
	assert.Equal(t, "ingest", logs[0].Action)
	assert.Contains(t, string(logs[0].Extra), "batch_size")
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	m := NewMultiHandler(
		slog.NewJSONHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	logger := slog.New(m)

	logger.Info("hello")
	logger.Error("boom")

	assert.Contains(t, a.String(), "hello")
	assert.Contains(t, a.String(), "boom")
	assert.NotContains(t, b.String(), "hello")
	assert.Contains(t, b.String(), "boom")
	assert.False(t, NewMultiHandler().Enabled(context.Background(), slog.LevelError))
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("sink down") }

func TestMultiHandlerKeepsDeliveringAfterSinkFailure(t *testing.T) {
	var out bytes.Buffer
	m := NewMultiHandler(
		failingHandler{slog.NewJSONHandler(&bytes.Buffer{}, nil)},
		slog.NewJSONHandler(&out, nil),
	)

	record := slog.NewRecord(time.Now(), slog.LevelError, "boom", 0)
	record.AddAttrs(slog.String("project_id", "p-1"))
	err := m.Handle(context.Background(), record)
	assert.EqualError(t, err, "sink down")
	assert.Contains(t, out.String(), "boom")
	assert.Contains(t, out.String(), "p-1")
}

func TestPurgeBefore(t *testing.T) {
	db := testutil.NewDB(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&[]models.SystemLog{
		{Timestamp: now.AddDate(0, 0, -40), Level: "ERROR", Message: "old"},
		{Timestamp: now.AddDate(0, 0, -1), Level: "ERROR", Message: "fresh"},
	}).Error)

	deleted := PurgeBefore(db, now.AddDate(0, 0, -30))
	assert.Equal(t, int64(1), deleted)

	var count int64
	db.Model(&models.SystemLog{}).Count(&count)
	assert.Equal(t, int64(1), count)
}
