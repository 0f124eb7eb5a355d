// Package db provides CRUD repository operations for glimm data models.
package db

import (
	"database/sql"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/kimhsiao/glimm/backend/internal/errors"
	"github.com/kimhsiao/glimm/backend/internal/models"
	"github.com/kimhsiao/glimm/backend/internal/uuid"
)

// Repository provides CRUD operations for all models.
type Repository struct {
	db *sql.DB

	// Statements are prepared on first use and cached for reuse.
	stmtCache sync.Map // map[string]*sql.Stmt

	// now is replaced in tests.
	now func() time.Time
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	// Another goroutine may have prepared the same query meanwhile.
	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.stmtCache.Delete(key)
		return true
	})
	return firstErr
}

// =====================================================
// Memory Operations
// =====================================================

const memoryColumns = `id, image_data, note, captured_at, created_at, latitude, longitude, location_name`

// CreateMemory stores a new memory. An empty ID is replaced by a fresh
// one and a zero CreatedAt by the current time; both are kept otherwise
// so restored backups retain their identity.
func (r *Repository) CreateMemory(m *models.Memory) error {
	if err := m.Validate(); err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, "invalid memory", err)
	}

	if m.ID == "" {
		m.ID = models.UUID(uuid.New())
	} else {
		id, err := uuid.Normalize(string(m.ID))
		if err != nil {
			return apperrors.Wrap(apperrors.ErrValidation, "invalid memory id", err)
		}
		m.ID = models.UUID(id)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.now()
	}

	query := `INSERT INTO memories (` + memoryColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.Exec(query,
		m.ID, nullBytes(m.ImageData), nullString(m.Note), m.CapturedAt.Unix(), m.CreatedAt.Unix(),
		nullFloat(m.Latitude), nullFloat(m.Longitude), nullString(m.LocationName))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to insert memory", err)
	}
	return nil
}

// GetMemory retrieves a memory by ID.
func (r *Repository) GetMemory(id string) (*models.Memory, error) {
	stmt, err := r.PrepareStmt(`SELECT ` + memoryColumns + ` FROM memories WHERE id = ?`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to load memory", err)
	}

	m, err := scanMemory(stmt.QueryRow(id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "memory not found: "+id, err)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to load memory", err)
	}
	return m, nil
}

// ListMemories returns memories newest capture first. A limit of zero or
// less returns every memory.
func (r *Repository) ListMemories(limit, offset int) ([]*models.Memory, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}

	stmt, err := r.PrepareStmt(`SELECT ` + memoryColumns + ` FROM memories
		ORDER BY captured_at DESC, created_at DESC, id LIMIT ? OFFSET ?`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list memories", err)
	}

	rows, err := stmt.Query(limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list memories", err)
	}
	defer rows.Close()

	var memories []*models.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan memory", err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list memories", err)
	}
	return memories, nil
}

// CountMemories returns the number of stored memories.
func (r *Repository) CountMemories() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to count memories", err)
	}
	return n, nil
}

// DeleteMemory permanently removes a memory.
func (r *Repository) DeleteMemory(id string) error {
	result, err := r.db.Exec(`DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete memory", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.New(apperrors.ErrNotFound, "memory not found: "+id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (*models.Memory, error) {
	var (
		m                   models.Memory
		image               []byte
		note, locationName  sql.NullString
		latitude, longitude sql.NullFloat64
		capturedAt          int64
		createdAt           int64
	)
	if err := row.Scan(&m.ID, &image, &note, &capturedAt, &createdAt, &latitude, &longitude, &locationName); err != nil {
		return nil, err
	}

	m.ImageData = image
	m.CapturedAt = time.Unix(capturedAt, 0)
	m.CreatedAt = time.Unix(createdAt, 0)
	if note.Valid {
		m.Note = models.StringPtr(note.String)
	}
	if locationName.Valid {
		m.LocationName = models.StringPtr(locationName.String)
	}
	if latitude.Valid && longitude.Valid {
		m.Latitude = models.Float64Ptr(latitude.Float64)
		m.Longitude = models.Float64Ptr(longitude.Float64)
	}
	return &m, nil
}

// =====================================================
// Settings Operations
// =====================================================

// GetSettings returns the stored settings, or the defaults when nothing
// has been saved yet.
func (r *Repository) GetSettings() (*models.Settings, error) {
	var (
		s                                models.Settings
		start, end, frequency, updatedAt int64
		enabled                          bool
	)
	err := r.db.QueryRow(`SELECT id, notify_start, notify_end, notify_frequency, notify_enabled, updated_at
		FROM settings WHERE singleton = 1`).Scan(&s.ID, &start, &end, &frequency, &enabled, &updatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return &models.Settings{Reminders: models.DefaultReminderWindow()}, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to load settings", err)
	}

	s.Reminders = models.ReminderWindow{
		DayStart:  models.ClockTimeFromMinutes(int(start)),
		DayEnd:    models.ClockTimeFromMinutes(int(end)),
		Frequency: int(frequency),
		Enabled:   enabled,
	}
	s.UpdatedAt = time.Unix(updatedAt, 0)
	return &s, nil
}

// SaveSettings inserts or replaces the settings record.
func (r *Repository) SaveSettings(s *models.Settings) error {
	if err := s.Reminders.Validate(); err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, "invalid reminder settings", err)
	}
	if s.ID == "" {
		s.ID = models.UUID(uuid.New())
	}
	s.UpdatedAt = r.now()

	w := s.Reminders
	_, err := r.db.Exec(`
	INSERT INTO settings (singleton, id, notify_start, notify_end, notify_frequency, notify_enabled, updated_at)
	VALUES (1, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(singleton) DO UPDATE SET
		id = excluded.id,
		notify_start = excluded.notify_start,
		notify_end = excluded.notify_end,
		notify_frequency = excluded.notify_frequency,
		notify_enabled = excluded.notify_enabled,
		updated_at = excluded.updated_at
	`, s.ID, w.DayStart.Minutes(), w.DayEnd.Minutes(), w.Frequency, w.Enabled, s.UpdatedAt.Unix())
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to save settings", err)
	}
	return nil
}

// =====================================================
// ExportArchive Operations
// =====================================================

// CreateExportArchive records a produced backup archive.
func (r *Repository) CreateExportArchive(a *models.ExportArchive) error {
	if a.ID == "" {
		a.ID = models.UUID(uuid.New())
	}
	if a.CreatedAt == 0 {
		a.CreatedAt = r.now().Unix()
	}

	_, err := r.db.Exec(`
	INSERT INTO export_archives (id, file_path, checksum, size_bytes, item_count, format, is_encrypted, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.FilePath, a.Checksum, a.SizeBytes, a.ItemCount, a.Format, a.IsEncrypted, a.CreatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to record export archive", err)
	}
	return nil
}

// ListExportArchives returns recorded archives, newest first.
func (r *Repository) ListExportArchives(limit int) ([]*models.ExportArchive, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(`SELECT id, file_path, checksum, size_bytes, item_count, format, is_encrypted, created_at
		FROM export_archives ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list export archives", err)
	}
	defer rows.Close()

	var archives []*models.ExportArchive
	for rows.Next() {
		var a models.ExportArchive
		if err := rows.Scan(&a.ID, &a.FilePath, &a.Checksum, &a.SizeBytes, &a.ItemCount, &a.Format, &a.IsEncrypted, &a.CreatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan export archive", err)
		}
		archives = append(archives, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list export archives", err)
	}
	return archives, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullBytes keeps an absent image as SQL NULL rather than an empty blob.
func nullBytes(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return b
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
