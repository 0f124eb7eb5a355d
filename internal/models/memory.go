// Package models provides data model definitions for glimm.
package models

import (
	"database/sql/driver"
	"fmt"
	"time"
	"unicode/utf8"
)

// NoteMaxLength is the maximum number of characters in a memory note.
const NoteMaxLength = 280

// UUID is a wrapper around string for identifier type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*u = ""
	case string:
		*u = UUID(v)
	case []byte:
		*u = UUID(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", value)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// Memory is a single captured moment: a photo plus optional note and
// location. ImageData is nil when the image is absent.
type Memory struct {
	ID           UUID
	ImageData    []byte
	Note         *string
	CapturedAt   time.Time
	CreatedAt    time.Time
	Latitude     *float64
	Longitude    *float64
	LocationName *string
}

// TableName returns the table name for Memory.
func (Memory) TableName() string {
	return "memories"
}

// HasImage reports whether the memory carries image bytes.
func (m *Memory) HasImage() bool {
	return m != nil && m.ImageData != nil
}

// HasCoordinates reports whether both latitude and longitude are set.
func (m *Memory) HasCoordinates() bool {
	return m.Latitude != nil && m.Longitude != nil
}

// NoteText returns the note or "" when absent.
func (m *Memory) NoteText() string {
	if m.Note == nil {
		return ""
	}
	return *m.Note
}

// Validate checks the rules enforced before a memory is stored.
func (m *Memory) Validate() error {
	if m.Note != nil && utf8.RuneCountInString(*m.Note) > NoteMaxLength {
		return fmt.Errorf("note exceeds %d characters", NoteMaxLength)
	}
	if (m.Latitude == nil) != (m.Longitude == nil) {
		return fmt.Errorf("latitude and longitude must be set together")
	}
	if m.Latitude != nil && (*m.Latitude < -90 || *m.Latitude > 90) {
		return fmt.Errorf("latitude %v out of range", *m.Latitude)
	}
	if m.Longitude != nil && (*m.Longitude < -180 || *m.Longitude > 180) {
		return fmt.Errorf("longitude %v out of range", *m.Longitude)
	}
	if m.CapturedAt.IsZero() {
		return fmt.Errorf("captured time is required")
	}
	return nil
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// Float64Ptr returns a pointer to f.
func Float64Ptr(f float64) *float64 {
	return &f
}
