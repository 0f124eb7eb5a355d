// Package export provides mock implementations for testing.
package export

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// MockExportService is a mock implementation of ExportServiceInterface for testing.
type MockExportService struct {
	mu            sync.Mutex
	fs            afero.Fs
	shouldSucceed bool
	exportDelay   time.Duration // Simulate export delay
	exportCalled  bool
	lastConfig    *ExportConfig
	lastImport    *ImportConfig
	exportPath    string
	callCount     int
	importCount   int
}

// NewMockExportService creates a new mock export service writing its
// placeholder archives to fs. A nil fs means an in-memory filesystem.
func NewMockExportService(fs afero.Fs) *MockExportService {
	if fs == nil {
		fs = afero.NewMemMapFs()
	}
	return &MockExportService{
		fs:            fs,
		shouldSucceed: true,
	}
}

// Export performs a mock export operation.
func (m *MockExportService) Export(config *ExportConfig) (*ExportResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.exportCalled = true
	m.callCount++
	m.lastConfig = config

	// Simulate delay if configured
	if m.exportDelay > 0 {
		time.Sleep(m.exportDelay)
	}

	if !m.shouldSucceed {
		return nil, fmt.Errorf("mock export failed")
	}

	format := FormatZip
	outputDir := "."
	encrypted := false
	if config != nil {
		encrypted = config.Password != ""
		if config.Format != "" {
			format = config.Format
		}
		if config.OutputDir != "" {
			outputDir = config.OutputDir
		}
	}

	// distinct names per call so retention logic has something to prune
	name := fmt.Sprintf("%smock-%03d%s", BackupPrefix, m.callCount, format.Ext())
	if encrypted {
		name += EncryptedExt
	}
	outputPath := filepath.Join(outputDir, name)
	m.exportPath = outputPath

	if err := m.fs.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create mock output dir: %w", err)
	}
	if err := afero.WriteFile(m.fs, outputPath, []byte("mock export data"), 0644); err != nil {
		return nil, fmt.Errorf("failed to create mock export file: %w", err)
	}

	return &ExportResult{
		FilePath:  outputPath,
		SizeBytes: 16,
		ItemCount: 0,
		Checksum:  "mock-checksum-12345",
		Format:    format,
		Encrypted: encrypted,
		Duration:  time.Millisecond * 10,
	}, nil
}

// Import records the call and reports an empty restore.
func (m *MockExportService) Import(config *ImportConfig) (*ImportResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.importCount++
	m.lastImport = config

	if !m.shouldSucceed {
		return nil, fmt.Errorf("mock import failed")
	}
	return &ImportResult{}, nil
}

// SetShouldSucceed controls whether the mock operations will succeed.
func (m *MockExportService) SetShouldSucceed(shouldSucceed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldSucceed = shouldSucceed
}

// SetExportDelay sets a delay for export operations (useful for testing cancellation).
func (m *MockExportService) SetExportDelay(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exportDelay = delay
}

// WasExportCalled returns true if Export was called.
func (m *MockExportService) WasExportCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exportCalled
}

// GetCallCount returns the number of times Export was called.
func (m *MockExportService) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// GetImportCount returns the number of times Import was called.
func (m *MockExportService) GetImportCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.importCount
}

// GetLastConfig returns the config passed to the last Export call.
func (m *MockExportService) GetLastConfig() *ExportConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastConfig
}

// GetLastImport returns the config passed to the last Import call.
func (m *MockExportService) GetLastImport() *ImportConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastImport
}

// GetExportPath returns the path of the last export.
func (m *MockExportService) GetExportPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exportPath
}

// Reset resets the mock state.
func (m *MockExportService) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exportCalled = false
	m.callCount = 0
	m.importCount = 0
	m.lastConfig = nil
	m.lastImport = nil
}

// Ensure *MockExportService implements the interface at compile time.
var _ ExportServiceInterface = (*MockExportService)(nil)
