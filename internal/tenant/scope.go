package tenant

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ForProject returns a GORM scope that filters by project_id.
func ForProject(projectID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("project_id = ?", projectID)
	}
}

// Paginate applies a 1-based page/limit window.
func Paginate(page, limit int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset((page - 1) * limit).Limit(limit)
	}
}
