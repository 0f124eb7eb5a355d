package export

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kimhsiao/glimm/backend/internal/errors"
	"github.com/kimhsiao/glimm/backend/internal/models"
	"github.com/kimhsiao/glimm/backend/internal/telemetry"
)

// =====================================================
// Fakes
// =====================================================

type fakeMemoryRepo struct {
	mu      sync.Mutex
	items   map[string]*models.Memory
	listErr error
}

func newFakeMemoryRepo(ms ...*models.Memory) *fakeMemoryRepo {
	r := &fakeMemoryRepo{items: make(map[string]*models.Memory)}
	for _, m := range ms {
		r.items[string(m.ID)] = m
	}
	return r
}

func (r *fakeMemoryRepo) ListMemories(limit, offset int) ([]*models.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]*models.Memory, 0, len(r.items))
	for _, m := range r.items {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CapturedAt.After(out[j].CapturedAt) })
	return out, nil
}

func (r *fakeMemoryRepo) CreateMemory(m *models.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := m.Validate(); err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, "invalid memory", err)
	}
	r.items[string(m.ID)] = m
	return nil
}

func (r *fakeMemoryRepo) GetMemory(id string) (*models.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrNotFound, "memory not found")
	}
	return m, nil
}

func (r *fakeMemoryRepo) DeleteMemory(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

type fakeArchiveRepo struct {
	records []*models.ExportArchive
	err     error
}

func (r *fakeArchiveRepo) CreateExportArchive(a *models.ExportArchive) error {
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, a)
	return nil
}

func (r *fakeArchiveRepo) ListExportArchives(limit int) ([]*models.ExportArchive, error) {
	return r.records, nil
}

func sampleMemories() []*models.Memory {
	withPlace := testMemory("11111111-1111-4111-8111-111111111111", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), "Sunrise", []byte("img-1"))
	withPlace.Latitude = models.Float64Ptr(35.68)
	withPlace.Longitude = models.Float64Ptr(139.69)
	withPlace.LocationName = models.StringPtr("Tokyo")

	return []*models.Memory{
		withPlace,
		testMemory("22222222-2222-4222-8222-222222222222", time.Date(2024, 2, 10, 21, 15, 0, 0, time.UTC), "", []byte("img-2")),
	}
}

func newTestService(t *testing.T, fs afero.Fs, repo *fakeMemoryRepo, archives *fakeArchiveRepo, metrics *telemetry.Metrics) *ExportService {
	t.Helper()
	b := newTestBuilder(t, fs)
	if archives == nil {
		return NewExportService(repo, nil, b, metrics)
	}
	return NewExportService(repo, archives, b, metrics)
}

// =====================================================
// Export
// =====================================================

func TestExportService_Export(t *testing.T) {
	fs := afero.NewMemMapFs()
	archives := &fakeArchiveRepo{}
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	svc := newTestService(t, fs, newFakeMemoryRepo(sampleMemories()...), archives, metrics)

	result, err := svc.Export(nil)
	require.NoError(t, err)

	assert.Equal(t, "/out/glimm-backup-2024-03-15.zip", result.FilePath)
	assert.Equal(t, 2, result.ItemCount)
	assert.Len(t, result.Checksum, 64)
	assert.Equal(t, FormatZip, result.Format)

	require.Len(t, archives.records, 1)
	assert.Equal(t, result.FilePath, archives.records[0].FilePath)
	assert.Equal(t, result.Checksum, archives.records[0].Checksum)
	assert.Equal(t, exportDay.Unix(), archives.records[0].CreatedAt)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ExportsTotal.WithLabelValues(telemetry.StatusSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ExportItems))
}

func TestExportService_Export_overrides(t *testing.T) {
	fs := afero.NewMemMapFs()
	svc := newTestService(t, fs, newFakeMemoryRepo(sampleMemories()...), nil, nil)

	result, err := svc.Export(&ExportConfig{OutputDir: "/elsewhere", Format: FormatTarGz})
	require.NoError(t, err)
	assert.Equal(t, "/elsewhere/glimm-backup-2024-03-15.tar.gz", result.FilePath)

	// the service's own builder is unchanged
	assert.Equal(t, "/out", svc.builder.Config().OutputDir)
}

func TestExportService_Export_emptyStore(t *testing.T) {
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	svc := newTestService(t, afero.NewMemMapFs(), newFakeMemoryRepo(), nil, metrics)

	_, err := svc.Export(nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrEmptyInput))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ExportsTotal.WithLabelValues(telemetry.StatusFailure)))
}

func TestExportService_Export_listFailure(t *testing.T) {
	repo := newFakeMemoryRepo()
	repo.listErr = errors.New("db gone")
	svc := newTestService(t, afero.NewMemMapFs(), repo, nil, nil)

	_, err := svc.Export(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db gone")
}

func TestExportService_Export_recordFailureIsNotFatal(t *testing.T) {
	archives := &fakeArchiveRepo{err: errors.New("locked")}
	svc := newTestService(t, afero.NewMemMapFs(), newFakeMemoryRepo(sampleMemories()...), archives, nil)

	result, err := svc.Export(nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.FilePath)
}

// =====================================================
// Import
// =====================================================

func TestExportService_ImportRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatZip, FormatTarGz} {
		t.Run(string(format), func(t *testing.T) {
			fs := afero.NewMemMapFs()
			source := sampleMemories()
			exporter := newTestService(t, fs, newFakeMemoryRepo(source...), nil, nil)

			exported, err := exporter.Export(&ExportConfig{Format: format})
			require.NoError(t, err)

			target := newFakeMemoryRepo()
			importer := newTestService(t, fs, target, nil, nil)

			result, err := importer.Import(&ImportConfig{ArchivePath: exported.FilePath, Checksum: exported.Checksum})
			require.NoError(t, err)
			assert.Equal(t, 2, result.ImportedCount)
			assert.Equal(t, 0, result.SkippedCount)

			for _, want := range source {
				got, err := target.GetMemory(string(want.ID))
				require.NoError(t, err)
				assert.Equal(t, want.ImageData, got.ImageData)
				assert.Equal(t, want.NoteText(), got.NoteText())
				assert.True(t, want.CapturedAt.Equal(got.CapturedAt))
				assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
				assert.Equal(t, want.HasCoordinates(), got.HasCoordinates())
			}

			restored, _ := target.GetMemory("11111111-1111-4111-8111-111111111111")
			assert.Equal(t, 35.68, *restored.Latitude)
			assert.Equal(t, "Tokyo", *restored.LocationName)

			// the restore directory is cleaned up
			entries, err := afero.ReadDir(fs, "/work")
			require.NoError(t, err)
			for _, e := range entries {
				assert.False(t, strings.HasPrefix(e.Name(), "glimm-restore-"), "left behind %s", e.Name())
			}
		})
	}
}

func TestExportService_Import_skipsExisting(t *testing.T) {
	fs := afero.NewMemMapFs()
	source := sampleMemories()
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	svc := newTestService(t, fs, newFakeMemoryRepo(source...), nil, metrics)

	exported, err := svc.Export(nil)
	require.NoError(t, err)

	result, err := svc.Import(&ImportConfig{ArchivePath: exported.FilePath})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ImportedCount)
	assert.Equal(t, 2, result.SkippedCount)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ImportsTotal.WithLabelValues(telemetry.StatusSkipped)))
}

func TestExportService_Import_checksumMismatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	svc := newTestService(t, fs, newFakeMemoryRepo(sampleMemories()...), nil, nil)

	exported, err := svc.Export(nil)
	require.NoError(t, err)

	_, err = svc.Import(&ImportConfig{ArchivePath: exported.FilePath, Checksum: strings.Repeat("0", 64)})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCorruptedArchive))
}

func TestExportService_Import_corruptedArchives(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, fs afero.Fs) string
	}{
		{
			name: "not an archive",
			setup: func(t *testing.T, fs afero.Fs) string {
				require.NoError(t, afero.WriteFile(fs, "/in/junk.zip", []byte("junk"), 0644))
				return "/in/junk.zip"
			},
		},
		{
			name: "missing manifest",
			setup: func(t *testing.T, fs afero.Fs) string {
				require.NoError(t, afero.WriteFile(fs, "/src/2024-01/a.jpg", []byte("x"), 0644))
				require.NoError(t, fs.MkdirAll("/in", 0755))
				require.NoError(t, writeArchive(fs, "/src", "/in/nomanifest.zip", FormatZip))
				return "/in/nomanifest.zip"
			},
		},
		{
			name: "missing image",
			setup: func(t *testing.T, fs afero.Fs) string {
				manifest := `{"appVersion":"1.0.0","exportedAt":"2024-01-01T00:00:00Z","memoriesCount":1,"memories":[` +
					`{"id":"33333333-3333-4333-8333-333333333333","file":"2024-01/gone.jpg",` +
					`"capturedAt":"2024-01-01T00:00:00Z","createdAt":"2024-01-01T00:00:00Z"}]}`
				require.NoError(t, afero.WriteFile(fs, "/src/metadata.json", []byte(manifest), 0644))
				require.NoError(t, fs.MkdirAll("/in", 0755))
				require.NoError(t, writeArchive(fs, "/src", "/in/noimage.zip", FormatZip))
				return "/in/noimage.zip"
			},
		},
		{
			name: "bad id",
			setup: func(t *testing.T, fs afero.Fs) string {
				manifest := `{"memoriesCount":1,"memories":[{"id":"nope","file":"a.jpg",` +
					`"capturedAt":"2024-01-01T00:00:00Z","createdAt":"2024-01-01T00:00:00Z"}]}`
				require.NoError(t, afero.WriteFile(fs, "/src/metadata.json", []byte(manifest), 0644))
				require.NoError(t, afero.WriteFile(fs, "/src/a.jpg", []byte("x"), 0644))
				require.NoError(t, fs.MkdirAll("/in", 0755))
				require.NoError(t, writeArchive(fs, "/src", "/in/badid.zip", FormatZip))
				return "/in/badid.zip"
			},
		},
		{
			name: "later entry corrupt",
			setup: func(t *testing.T, fs afero.Fs) string {
				manifest := `{"memoriesCount":2,"memories":[` +
					`{"id":"44444444-4444-4444-8444-444444444444","file":"2024-01/ok.jpg",` +
					`"capturedAt":"2024-01-01T00:00:00Z","createdAt":"2024-01-01T00:00:00Z"},` +
					`{"id":"55555555-5555-4555-8555-555555555555","file":"2024-01/gone.jpg",` +
					`"capturedAt":"2024-01-02T00:00:00Z","createdAt":"2024-01-02T00:00:00Z"}]}`
				require.NoError(t, afero.WriteFile(fs, "/src/metadata.json", []byte(manifest), 0644))
				require.NoError(t, afero.WriteFile(fs, "/src/2024-01/ok.jpg", []byte("x"), 0644))
				require.NoError(t, fs.MkdirAll("/in", 0755))
				require.NoError(t, writeArchive(fs, "/src", "/in/partial.zip", FormatZip))
				return "/in/partial.zip"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			path := tt.setup(t, fs)
			repo := newFakeMemoryRepo()
			svc := NewExportService(repo, nil, NewBuilder(fs, clockwork.NewFakeClockAt(exportDay), BuilderConfig{WorkRoot: "/work"}), nil)

			_, err := svc.Import(&ImportConfig{ArchivePath: path})
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrCorruptedArchive), "got %v", err)
			assert.Empty(t, repo.items)
		})
	}
}

func TestExportService_Import_requiresPath(t *testing.T) {
	svc := newTestService(t, afero.NewMemMapFs(), newFakeMemoryRepo(), nil, nil)

	_, err := svc.Import(&ImportConfig{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalid))

	_, err = svc.Import(nil)
	assert.Error(t, err)
}

// =====================================================
// Encrypted archives
// =====================================================

const backupPassword = "hunter2hunter2"

func TestExportService_Export_encrypted(t *testing.T) {
	fs := afero.NewMemMapFs()
	archives := &fakeArchiveRepo{}
	svc := newTestService(t, fs, newFakeMemoryRepo(sampleMemories()...), archives, nil)

	result, err := svc.Export(&ExportConfig{Password: backupPassword})
	require.NoError(t, err)

	assert.Equal(t, "/out/glimm-backup-2024-03-15.zip.enc", result.FilePath)
	assert.True(t, result.Encrypted)

	// only the encrypted file remains
	exists, err := afero.Exists(fs, "/out/glimm-backup-2024-03-15.zip")
	require.NoError(t, err)
	assert.False(t, exists)

	info, err := fs.Stat(result.FilePath)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), result.SizeBytes)

	sum, err := fileChecksum(fs, result.FilePath)
	require.NoError(t, err)
	assert.Equal(t, sum, result.Checksum)

	require.Len(t, archives.records, 1)
	assert.True(t, archives.records[0].IsEncrypted)
	assert.Equal(t, result.FilePath, archives.records[0].FilePath)
}

func TestExportService_Export_shortPassword(t *testing.T) {
	fs := afero.NewMemMapFs()
	svc := newTestService(t, fs, newFakeMemoryRepo(sampleMemories()...), nil, nil)

	_, err := svc.Export(&ExportConfig{Password: "short"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalid), "got %v", err)

	exists, _ := afero.DirExists(fs, "/out")
	assert.False(t, exists)
}

func TestExportService_Import_encryptedRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatZip, FormatTarGz} {
		t.Run(string(format), func(t *testing.T) {
			fs := afero.NewMemMapFs()
			exporter := newTestService(t, fs, newFakeMemoryRepo(sampleMemories()...), nil, nil)

			exported, err := exporter.Export(&ExportConfig{Format: format, Password: backupPassword})
			require.NoError(t, err)

			target := newFakeMemoryRepo()
			importer := newTestService(t, fs, target, nil, nil)

			result, err := importer.Import(&ImportConfig{
				ArchivePath: exported.FilePath,
				Checksum:    exported.Checksum,
				Password:    backupPassword,
			})
			require.NoError(t, err)
			assert.Equal(t, 2, result.ImportedCount)

			got, err := target.GetMemory("22222222-2222-4222-8222-222222222222")
			require.NoError(t, err)
			assert.Equal(t, []byte("img-2"), got.ImageData)
		})
	}
}

func TestExportService_Import_encryptedRenamed(t *testing.T) {
	fs := afero.NewMemMapFs()
	exporter := newTestService(t, fs, newFakeMemoryRepo(sampleMemories()...), nil, nil)

	exported, err := exporter.Export(&ExportConfig{Password: backupPassword})
	require.NoError(t, err)
	require.NoError(t, fs.Rename(exported.FilePath, "/out/renamed.zip"))

	target := newFakeMemoryRepo()
	result, err := newTestService(t, fs, target, nil, nil).Import(&ImportConfig{ArchivePath: "/out/renamed.zip", Password: backupPassword})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ImportedCount)
}

func TestExportService_Import_encryptedPasswordErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	exporter := newTestService(t, fs, newFakeMemoryRepo(sampleMemories()...), nil, nil)

	exported, err := exporter.Export(&ExportConfig{Password: backupPassword})
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		code     apperrors.ErrorCode
	}{
		{"missing", "", apperrors.ErrInvalid},
		{"wrong", "not-the-password", apperrors.ErrDecryption},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := newFakeMemoryRepo()
			svc := newTestService(t, fs, target, nil, nil)

			_, err := svc.Import(&ImportConfig{ArchivePath: exported.FilePath, Password: tt.password})
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, tt.code), "got %v", err)
			assert.Empty(t, target.items)
		})
	}
}

func TestExportService_Import_plainArchiveIgnoresPassword(t *testing.T) {
	fs := afero.NewMemMapFs()
	exporter := newTestService(t, fs, newFakeMemoryRepo(sampleMemories()...), nil, nil)

	exported, err := exporter.Export(nil)
	require.NoError(t, err)

	result, err := newTestService(t, fs, newFakeMemoryRepo(), nil, nil).Import(&ImportConfig{
		ArchivePath: exported.FilePath,
		Password:    backupPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ImportedCount)
}
