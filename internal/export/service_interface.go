package export

// ExportServiceInterface defines the contract for export services.
// This interface allows mocking for testing.
type ExportServiceInterface interface {
	// Export builds a backup archive with the given configuration.
	Export(config *ExportConfig) (*ExportResult, error)

	// Import restores memories from a backup archive.
	Import(config *ImportConfig) (*ImportResult, error)
}

// Ensure *ExportService implements the interface at compile time.
var _ ExportServiceInterface = (*ExportService)(nil)
