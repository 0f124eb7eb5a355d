// Package export builds portable backups of memories and restores them.
package export

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/kimhsiao/glimm/backend/internal/db"
	apperrors "github.com/kimhsiao/glimm/backend/internal/errors"
	archivecrypto "github.com/kimhsiao/glimm/backend/internal/export/crypto"
	"github.com/kimhsiao/glimm/backend/internal/logging"
	"github.com/kimhsiao/glimm/backend/internal/models"
	"github.com/kimhsiao/glimm/backend/internal/telemetry"
	"github.com/kimhsiao/glimm/backend/internal/uuid"
)

// ExportService exports the memory store to backup archives and restores
// archives into it. Calls are serialized.
type ExportService struct {
	mu       sync.Mutex
	memories db.MemoryRepository
	archives db.ExportArchiveRepository
	builder  *Builder
	metrics  *telemetry.Metrics
}

// NewExportService creates a new ExportService. archives and metrics may
// be nil.
func NewExportService(memories db.MemoryRepository, archives db.ExportArchiveRepository, builder *Builder, metrics *telemetry.Metrics) *ExportService {
	return &ExportService{
		memories: memories,
		archives: archives,
		builder:  builder,
		metrics:  metrics,
	}
}

// ExportConfig holds per-call export overrides.
type ExportConfig struct {
	OutputDir string // empty keeps the builder's output directory
	Format    Format // empty keeps the builder's format
	Password  string // encrypts the archive when set
}

// ImportConfig holds import configuration.
type ImportConfig struct {
	ArchivePath string
	Checksum    string // optional expected SHA-256 of the archive
	Password    string // required for encrypted archives
}

// ExportResult represents the result of an export operation.
type ExportResult struct {
	FilePath  string
	SizeBytes int64
	ItemCount int
	Checksum  string
	Format    Format
	Encrypted bool
	Duration  time.Duration
}

// ImportResult represents the result of an import operation.
type ImportResult struct {
	ImportedCount int
	SkippedCount  int
	Duration      time.Duration
}

// Export builds a backup of every stored memory.
func (s *ExportService) Export(config *ExportConfig) (*ExportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if config == nil {
		config = &ExportConfig{}
	}
	if config.Password != "" {
		if err := archivecrypto.ValidatePassword(config.Password); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, "invalid backup password", err)
		}
	}
	builder := s.builder.WithOutput(config.OutputDir, config.Format)
	start := builder.clock.Now()

	result, err := s.export(builder, config.Password)
	duration := builder.clock.Since(start)

	if err != nil {
		s.metrics.ObserveExport(err, 0, duration)
		logging.Error("export failed", err, logging.Fields{"code": string(apperrors.CodeOf(err))})
		return nil, err
	}

	result.Duration = duration
	s.metrics.ObserveExport(nil, result.ItemCount, duration)
	logging.Info("export completed", logging.Fields{
		"file":       result.FilePath,
		"size_bytes": result.SizeBytes,
		"item_count": result.ItemCount,
		"encrypted":  result.Encrypted,
		"duration":   duration.String(),
	})
	return result, nil
}

func (s *ExportService) export(builder *Builder, password string) (*ExportResult, error) {
	memories, err := s.memories.ListMemories(0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load memories: %w", err)
	}

	archive, err := builder.Build(memories)
	if err != nil {
		return nil, err
	}

	encrypted := password != ""
	if encrypted {
		if err := encryptInPlace(builder.fs, archive, password); err != nil {
			return nil, err
		}
	}

	checksum, err := fileChecksum(builder.fs, archive.Path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrFilesystem, "failed to checksum archive", err)
	}

	if s.archives != nil {
		record := &models.ExportArchive{
			FilePath:    archive.Path,
			Checksum:    checksum,
			SizeBytes:   archive.SizeBytes,
			ItemCount:   archive.ItemCount,
			Format:      string(archive.Format),
			IsEncrypted: encrypted,
			CreatedAt:   archive.ExportedAt.Unix(),
		}
		// the archive is already in place; a missing history row is not fatal
		if err := s.archives.CreateExportArchive(record); err != nil {
			logging.Warn("failed to record export archive", logging.Fields{"file": archive.Path, "error": err.Error()})
		}
	}

	return &ExportResult{
		FilePath:  archive.Path,
		SizeBytes: archive.SizeBytes,
		ItemCount: archive.ItemCount,
		Checksum:  checksum,
		Format:    archive.Format,
		Encrypted: encrypted,
	}, nil
}

// encryptInPlace replaces the plaintext archive with its encrypted form
// at Path+EncryptedExt and updates archive to describe the new file.
func encryptInPlace(fs afero.Fs, archive *Archive, password string) error {
	data, err := afero.ReadFile(fs, archive.Path)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrFilesystem, "failed to read archive for encryption", err)
	}
	sealed, err := archivecrypto.EncryptArchive(data, password)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrArchiveCreation, "failed to encrypt archive", err)
	}

	target := archive.Path + EncryptedExt
	if err := afero.WriteFile(fs, target, sealed, 0600); err != nil {
		fs.Remove(target)
		return apperrors.Wrap(apperrors.ErrFilesystem, "failed to write encrypted archive", err)
	}
	if err := fs.Remove(archive.Path); err != nil {
		return apperrors.Wrap(apperrors.ErrFilesystem, "failed to remove plaintext archive", err)
	}

	archive.Path = target
	archive.SizeBytes = int64(len(sealed))
	return nil
}

// Import restores memories from a backup archive. Memories whose ID is
// already stored are skipped, so importing the same archive twice is safe.
func (s *ExportService) Import(config *ImportConfig) (*ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if config == nil || config.ArchivePath == "" {
		return nil, apperrors.New(apperrors.ErrInvalid, "archive path is required")
	}

	start := s.builder.clock.Now()
	imported, skipped, err := s.importArchive(config)
	s.metrics.ObserveImport(imported, skipped, err)
	if err != nil {
		logging.Error("import failed", err, logging.Fields{
			"archive":  config.ArchivePath,
			"imported": imported,
		})
		return nil, err
	}

	result := &ImportResult{
		ImportedCount: imported,
		SkippedCount:  skipped,
		Duration:      s.builder.clock.Since(start),
	}
	logging.Info("import completed", logging.Fields{
		"archive":  config.ArchivePath,
		"imported": imported,
		"skipped":  skipped,
	})
	return result, nil
}

func (s *ExportService) importArchive(config *ImportConfig) (int, int, error) {
	fs := s.builder.fs

	if config.Checksum != "" {
		if err := verifyChecksum(fs, config.ArchivePath, config.Checksum); err != nil {
			return 0, 0, apperrors.Wrap(apperrors.ErrCorruptedArchive, "archive checksum does not match", err)
		}
	}

	tempDir := filepath.Join(s.builder.cfg.WorkRoot, "glimm-restore-"+uuid.New())
	defer func() {
		if err := fs.RemoveAll(tempDir); err != nil {
			logging.Warn("failed to remove restore directory", logging.Fields{"dir": tempDir, "error": err.Error()})
		}
	}()

	archivePath, err := s.plaintextArchive(config, tempDir)
	if err != nil {
		return 0, 0, err
	}

	contentDir := filepath.Join(tempDir, "content")
	if err := extractArchive(fs, archivePath, contentDir); err != nil {
		return 0, 0, apperrors.Wrap(apperrors.ErrCorruptedArchive, "failed to extract archive", err)
	}

	data, err := afero.ReadFile(fs, filepath.Join(contentDir, ManifestFileName))
	if err != nil {
		return 0, 0, apperrors.Wrap(apperrors.ErrCorruptedArchive, "archive has no "+ManifestFileName, err)
	}
	manifest, err := DecodeManifest(data)
	if err != nil {
		return 0, 0, apperrors.Wrap(apperrors.ErrCorruptedArchive, "invalid manifest", err)
	}

	// Every entry is validated before the first write so a corrupt
	// archive leaves the store untouched.
	memories := make([]*models.Memory, 0, len(manifest.Memories))
	for _, entry := range manifest.Memories {
		m, err := s.memoryFromEntry(contentDir, entry)
		if err != nil {
			return 0, 0, err
		}
		memories = append(memories, m)
	}

	imported, skipped := 0, 0
	for _, m := range memories {
		id := string(m.ID)
		if _, err := s.memories.GetMemory(id); err == nil {
			skipped++
			continue
		} else if !apperrors.Is(err, apperrors.ErrNotFound) {
			return imported, skipped, apperrors.Wrap(apperrors.ErrImportFailed, "failed to look up memory "+id, err)
		}

		if err := s.memories.CreateMemory(m); err != nil {
			return imported, skipped, apperrors.Wrap(apperrors.ErrImportFailed, "failed to restore memory "+id, err)
		}
		imported++
	}

	return imported, skipped, nil
}

// plaintextArchive returns a path to the unencrypted archive, decrypting
// into workDir when the source is password protected.
func (s *ExportService) plaintextArchive(config *ImportConfig, workDir string) (string, error) {
	fs := s.builder.fs

	encrypted, err := isEncryptedFile(fs, config.ArchivePath)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCorruptedArchive, "failed to read archive", err)
	}
	if !encrypted {
		return config.ArchivePath, nil
	}
	if config.Password == "" {
		return "", apperrors.New(apperrors.ErrInvalid, "archive is encrypted; a password is required")
	}

	sealed, err := afero.ReadFile(fs, config.ArchivePath)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCorruptedArchive, "failed to read archive", err)
	}
	data, err := archivecrypto.DecryptArchive(sealed, config.Password)
	switch {
	case errors.Is(err, archivecrypto.ErrInvalidPassword):
		return "", apperrors.Wrap(apperrors.ErrDecryption, "wrong password or damaged archive", err)
	case err != nil:
		return "", apperrors.Wrap(apperrors.ErrCorruptedArchive, "invalid encrypted archive", err)
	}

	target := filepath.Join(workDir, "archive"+formatOf(config.ArchivePath).Ext())
	if err := fs.MkdirAll(workDir, 0700); err != nil {
		return "", apperrors.Wrap(apperrors.ErrFilesystem, "failed to create restore directory", err)
	}
	if err := afero.WriteFile(fs, target, data, 0600); err != nil {
		return "", apperrors.Wrap(apperrors.ErrFilesystem, "failed to stage decrypted archive", err)
	}
	return target, nil
}

// isEncryptedFile checks the header rather than the name, so renamed
// archives are still recognized.
func isEncryptedFile(fs afero.Fs, path string) (bool, error) {
	f, err := fs.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, 16)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	return archivecrypto.IsEncrypted(head[:n]), nil
}

func (s *ExportService) memoryFromEntry(root string, entry ManifestEntry) (*models.Memory, error) {
	corrupted := func(msg string, err error) error {
		return apperrors.Wrap(apperrors.ErrCorruptedArchive, fmt.Sprintf("entry %s: %s", entry.ID, msg), err)
	}

	id, err := uuid.Normalize(entry.ID)
	if err != nil {
		return nil, corrupted("invalid id", err)
	}
	capturedAt, err := time.Parse(time.RFC3339, entry.CapturedAt)
	if err != nil {
		return nil, corrupted("invalid capturedAt", err)
	}
	createdAt, err := time.Parse(time.RFC3339, entry.CreatedAt)
	if err != nil {
		return nil, corrupted("invalid createdAt", err)
	}

	imagePath, err := safeJoin(root, entry.File)
	if err != nil {
		return nil, corrupted("invalid file path", err)
	}
	image, err := afero.ReadFile(s.builder.fs, imagePath)
	if err != nil {
		return nil, corrupted("missing image "+entry.File, err)
	}

	m := &models.Memory{
		ID:           models.UUID(id),
		ImageData:    image,
		Note:         entry.Note,
		CapturedAt:   capturedAt,
		CreatedAt:    createdAt,
		LocationName: entry.LocationName,
	}
	if entry.Latitude != nil && entry.Longitude != nil {
		m.Latitude = entry.Latitude
		m.Longitude = entry.Longitude
	}
	return m, nil
}
