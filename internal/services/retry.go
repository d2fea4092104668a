package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/apperr"
	"gorm.io/gorm"
)

// inTransaction runs fn in one transaction. Losing an insert race on a
// unique key rolls everything back and runs fn once more, by which time
// the competing row is visible.
func inTransaction(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	err := db.WithContext(ctx).Transaction(fn)
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	slog.Info("retrying transaction after unique key conflict")
	err = db.WithContext(ctx).Transaction(fn)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &apperr.Error{Kind: apperr.KindConflict, Code: "conflict", Message: "Concurrent write conflict, retry the request", Err: err}
	}
	return err
}

// internalOr passes tagged errors through and wraps everything else.
func internalOr(err error, message string) error {
	if err == nil {
		return nil
	}
	var tagged *apperr.Error
	if errors.As(err, &tagged) {
		return err
	}
	return apperr.Internal(err, message)
}
