package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kimhsiao/glimm/backend/internal/db"
	apperrors "github.com/kimhsiao/glimm/backend/internal/errors"
	"github.com/kimhsiao/glimm/backend/internal/export"
)

// recentArchives bounds the history returned by ExportStatus.
const recentArchives = 10

// ExportHandler handles backup and restore requests.
type ExportHandler struct {
	export    export.ExportServiceInterface
	archives  db.ExportArchiveRepository
	exportDir string
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(svc export.ExportServiceInterface, archives db.ExportArchiveRepository, exportDir string) *ExportHandler {
	return &ExportHandler{
		export:    svc,
		archives:  archives,
		exportDir: exportDir,
	}
}

// ExportRequest represents the export request body.
type ExportRequest struct {
	OutputDir string `json:"output_dir"` // Optional; defaults to the configured export dir
	Format    string `json:"format"`     // Optional: "zip" or "tar.gz"
	Password  string `json:"password"`   // Optional; encrypts the archive
}

// ImportRequest represents the import request body.
type ImportRequest struct {
	ArchivePath string `json:"archive_path"` // Path to the archive file
	Checksum    string `json:"checksum"`     // Optional SHA-256 to verify first
	Password    string `json:"password"`     // Required for encrypted archives
}

// ExportResponse is returned by a successful export.
type ExportResponse struct {
	FilePath   string `json:"file_path"`
	SizeBytes  int64  `json:"size_bytes"`
	ItemCount  int    `json:"item_count"`
	Checksum   string `json:"checksum"`
	Format     string `json:"format"`
	Encrypted  bool   `json:"encrypted"`
	DurationMS int64  `json:"duration_ms"`
}

// ImportResponse is returned by a successful import.
type ImportResponse struct {
	ImportedCount int   `json:"imported_count"`
	SkippedCount  int   `json:"skipped_count"`
	DurationMS    int64 `json:"duration_ms"`
}

// ArchiveResponse describes one recorded backup.
type ArchiveResponse struct {
	FilePath  string `json:"file_path"`
	Checksum  string `json:"checksum"`
	SizeBytes int64  `json:"size_bytes"`
	ItemCount int    `json:"item_count"`
	Format    string `json:"format"`
	Encrypted bool   `json:"encrypted"`
	CreatedAt string `json:"created_at"`
}

// Export handles POST /api/export
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req ExportRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "invalid request body", err))
			return
		}
	}

	config := &export.ExportConfig{OutputDir: req.OutputDir, Password: req.Password}
	if config.OutputDir == "" {
		config.OutputDir = h.exportDir
	}
	if req.Format != "" {
		format, err := export.ParseFormat(req.Format)
		if err != nil {
			writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "invalid format", err))
			return
		}
		config.Format = format
	}

	result, err := h.export.Export(config)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ExportResponse{
		FilePath:   result.FilePath,
		SizeBytes:  result.SizeBytes,
		ItemCount:  result.ItemCount,
		Checksum:   result.Checksum,
		Format:     string(result.Format),
		Encrypted:  result.Encrypted,
		DurationMS: result.Duration.Milliseconds(),
	})
}

// Import handles POST /api/import
func (h *ExportHandler) Import(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "invalid request body", err))
		return
	}
	if req.ArchivePath == "" {
		writeError(w, apperrors.New(apperrors.ErrInvalid, "archive_path is required"))
		return
	}

	result, err := h.export.Import(&export.ImportConfig{
		ArchivePath: req.ArchivePath,
		Checksum:    req.Checksum,
		Password:    req.Password,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ImportResponse{
		ImportedCount: result.ImportedCount,
		SkippedCount:  result.SkippedCount,
		DurationMS:    result.Duration.Milliseconds(),
	})
}

// ExportStatus handles GET /api/export/status
// Returns the export directory and the most recent recorded backups.
func (h *ExportHandler) ExportStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	archives, err := h.archives.ListExportArchives(recentArchives)
	if err != nil {
		writeError(w, err)
		return
	}

	recent := make([]ArchiveResponse, 0, len(archives))
	for _, a := range archives {
		recent = append(recent, ArchiveResponse{
			FilePath:  a.FilePath,
			Checksum:  a.Checksum,
			SizeBytes: a.SizeBytes,
			ItemCount: a.ItemCount,
			Format:    a.Format,
			Encrypted: a.IsEncrypted,
			CreatedAt: a.CreatedAtTime().UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"exports_dir": h.exportDir,
		"recent":      recent,
	})
}
