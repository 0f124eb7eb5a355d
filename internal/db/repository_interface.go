// Package db provides repository interfaces for glimm data models.
package db

import (
	"github.com/kimhsiao/glimm/backend/internal/models"
)

// MemoryReader is the read-only slice of the memory store that export
// needs. Implementations return a snapshot; callers never hold on to the
// live store.
type MemoryReader interface {
	// ListMemories returns memories newest capture first; limit <= 0 means all.
	ListMemories(limit, offset int) ([]*models.Memory, error)
}

// MemoryRepository defines operations for memory persistence.
type MemoryRepository interface {
	MemoryReader

	// CreateMemory stores a new memory.
	CreateMemory(m *models.Memory) error

	// GetMemory retrieves a memory by ID.
	GetMemory(id string) (*models.Memory, error)

	// DeleteMemory removes a memory.
	DeleteMemory(id string) error
}

// SettingsRepository defines operations for the settings record.
type SettingsRepository interface {
	GetSettings() (*models.Settings, error)
	SaveSettings(s *models.Settings) error
}

// ExportArchiveRepository records produced backup archives.
type ExportArchiveRepository interface {
	CreateExportArchive(a *models.ExportArchive) error
	ListExportArchives(limit int) ([]*models.ExportArchive, error)
}

// Ensure *Repository implements the interfaces at compile time.
var (
	_ MemoryRepository        = (*Repository)(nil)
	_ SettingsRepository      = (*Repository)(nil)
	_ ExportArchiveRepository = (*Repository)(nil)
)
