package export

import (
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	apperrors "github.com/kimhsiao/glimm/backend/internal/errors"
	"github.com/kimhsiao/glimm/backend/internal/logging"
	"github.com/kimhsiao/glimm/backend/internal/models"
)

// DefaultAppVersion is written to manifests when none is configured.
const DefaultAppVersion = "1.0.0"

// BuilderConfig configures where and how backups are assembled.
type BuilderConfig struct {
	WorkRoot   string         // parent of the transient working directory
	OutputDir  string         // where finished archives are placed; defaults to WorkRoot
	AppVersion string         // recorded in the manifest
	Format     Format         // archive container; defaults to zip
	Location   *time.Location // zone for month buckets and file names; defaults to time.Local
}

// Archive describes a finished backup.
type Archive struct {
	Path       string
	Name       string
	Format     Format
	ItemCount  int
	SizeBytes  int64
	ExportedAt time.Time
}

// Builder turns a slice of memories into a portable backup archive.
//
// The working directory name is derived from the export date, so callers
// must not run two builds with the same WorkRoot concurrently.
type Builder struct {
	fs    afero.Fs
	clock clockwork.Clock
	cfg   BuilderConfig
}

// NewBuilder creates a Builder. A nil fs means the OS filesystem and a nil
// clock means the wall clock.
func NewBuilder(fs afero.Fs, clock clockwork.Clock, cfg BuilderConfig) *Builder {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = os.TempDir()
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = cfg.WorkRoot
	}
	if cfg.AppVersion == "" {
		cfg.AppVersion = DefaultAppVersion
	}
	if cfg.Format == "" {
		cfg.Format = FormatZip
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Builder{fs: fs, clock: clock, cfg: cfg}
}

// Config returns the effective configuration.
func (b *Builder) Config() BuilderConfig {
	return b.cfg
}

// WithOutput returns a copy of the builder writing to outputDir in the
// given format. Empty arguments keep the current values.
func (b *Builder) WithOutput(outputDir string, format Format) *Builder {
	cp := *b
	if outputDir != "" {
		cp.cfg.OutputDir = outputDir
	}
	if format != "" {
		cp.cfg.Format = format
	}
	return &cp
}

// BuildArchive builds a backup of records and returns the archive path.
func (b *Builder) BuildArchive(records []*models.Memory) (string, error) {
	archive, err := b.Build(records)
	if err != nil {
		return "", err
	}
	return archive.Path, nil
}

// Build writes every record that has image bytes into a month-bucketed
// tree with a metadata.json manifest, compresses the tree and removes it.
// Records are processed in input order and are not modified.
func (b *Builder) Build(records []*models.Memory) (*Archive, error) {
	if countWithImages(records) == 0 {
		return nil, apperrors.New(apperrors.ErrEmptyInput, "no memories with images to export")
	}

	now := b.clock.Now()
	name := BackupName(now.In(b.cfg.Location))
	workDir := filepath.Join(b.cfg.WorkRoot, name)

	if within(b.cfg.OutputDir, workDir) {
		return nil, apperrors.New(apperrors.ErrInvalid, "output directory must be outside the working directory")
	}

	// registered before setup so a half-created tree is removed too
	defer b.removeWorkDir(workDir)

	if err := b.fs.RemoveAll(workDir); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrFilesystem, "failed to clear stale working directory", err)
	}
	if err := b.fs.MkdirAll(workDir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrFilesystem, "failed to create working directory", err)
	}

	entries, err := b.writeMemories(workDir, records)
	if err != nil {
		return nil, err
	}

	manifest := NewManifest(now, b.cfg.AppVersion, entries)
	if err := b.writeManifest(workDir, manifest); err != nil {
		return nil, err
	}

	archivePath, size, err := b.compress(workDir, name)
	if err != nil {
		return nil, err
	}

	return &Archive{
		Path:       archivePath,
		Name:       name,
		Format:     b.cfg.Format,
		ItemCount:  len(entries),
		SizeBytes:  size,
		ExportedAt: now,
	}, nil
}

func (b *Builder) writeMemories(workDir string, records []*models.Memory) ([]ManifestEntry, error) {
	entries := make([]ManifestEntry, 0, len(records))

	for _, m := range records {
		if !m.HasImage() {
			continue
		}

		bucket := MonthBucket(m.CapturedAt, b.cfg.Location)
		bucketDir := filepath.Join(workDir, bucket)
		if err := b.fs.MkdirAll(bucketDir, 0755); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrFilesystem, "failed to create month folder "+bucket, err)
		}

		fileName := FileName(m, b.cfg.Location)
		if err := afero.WriteFile(b.fs, filepath.Join(bucketDir, fileName), m.ImageData, 0644); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrFilesystem, "failed to write image "+fileName, err)
		}

		entries = append(entries, NewManifestEntry(m, path.Join(bucket, fileName)))
	}

	return entries, nil
}

func (b *Builder) writeManifest(workDir string, manifest *Manifest) error {
	data, err := manifest.Encode()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to encode manifest", err)
	}
	if err := afero.WriteFile(b.fs, filepath.Join(workDir, ManifestFileName), data, 0644); err != nil {
		return apperrors.Wrap(apperrors.ErrFilesystem, "failed to write manifest", err)
	}
	return nil
}

// compress writes the archive next to its final path and renames it into
// place, so a failed build never leaves a partial archive visible.
func (b *Builder) compress(workDir, name string) (string, int64, error) {
	if err := b.fs.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return "", 0, apperrors.Wrap(apperrors.ErrFilesystem, "failed to create output directory", err)
	}

	finalPath := filepath.Join(b.cfg.OutputDir, name+b.cfg.Format.Ext())
	tmpPath := finalPath + ".tmp"

	if err := writeArchive(b.fs, workDir, tmpPath, b.cfg.Format); err != nil {
		b.fs.Remove(tmpPath)
		return "", 0, apperrors.Wrap(apperrors.ErrArchiveCreation, "failed to compress backup", err)
	}

	if err := b.fs.Rename(tmpPath, finalPath); err != nil {
		b.fs.Remove(tmpPath)
		return "", 0, apperrors.Wrap(apperrors.ErrArchiveCreation, "failed to move archive into place", err)
	}

	info, err := b.fs.Stat(finalPath)
	if err != nil {
		b.fs.Remove(finalPath)
		return "", 0, apperrors.Wrap(apperrors.ErrArchiveCreation, "failed to confirm archive", err)
	}

	return finalPath, info.Size(), nil
}

func (b *Builder) removeWorkDir(workDir string) {
	if err := b.fs.RemoveAll(workDir); err != nil {
		logging.Warn("failed to remove backup working directory", logging.Fields{
			"dir":   workDir,
			"error": err.Error(),
		})
	}
}

func countWithImages(records []*models.Memory) int {
	n := 0
	for _, m := range records {
		if m.HasImage() {
			n++
		}
	}
	return n
}

// within reports whether p is dir or lies below it.
func within(p, dir string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
