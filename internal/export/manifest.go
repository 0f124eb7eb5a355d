package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kimhsiao/glimm/backend/internal/models"
)

const (
	// BackupPrefix starts every working directory and archive name.
	BackupPrefix = "glimm-backup-"

	// ManifestFileName is written at the root of every backup.
	ManifestFileName = "metadata.json"

	// ImageExtension is appended to every exported image.
	ImageExtension = ".jpg"

	// noteFragmentLength bounds the note suffix used in file names.
	noteFragmentLength = 30
)

// Manifest is the JSON sidecar describing a backup. Fields are declared
// in key order so the encoded object has sorted keys.
type Manifest struct {
	AppVersion    string          `json:"appVersion"`
	ExportedAt    string          `json:"exportedAt"`
	Memories      []ManifestEntry `json:"memories"`
	MemoriesCount int             `json:"memoriesCount"`
}

// ManifestEntry describes one exported memory. Fields are declared in key
// order so the encoded object has sorted keys.
type ManifestEntry struct {
	CapturedAt   string   `json:"capturedAt"`
	CreatedAt    string   `json:"createdAt"`
	File         string   `json:"file"`
	ID           string   `json:"id"`
	Latitude     *float64 `json:"latitude,omitempty"`
	LocationName *string  `json:"locationName,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Note         *string  `json:"note,omitempty"`
}

// NewManifest assembles a manifest for the given entries.
func NewManifest(exportedAt time.Time, appVersion string, entries []ManifestEntry) *Manifest {
	if entries == nil {
		entries = []ManifestEntry{}
	}
	return &Manifest{
		AppVersion:    appVersion,
		ExportedAt:    FormatTimestamp(exportedAt),
		Memories:      entries,
		MemoriesCount: len(entries),
	}
}

// NewManifestEntry describes m stored at the archive-relative path file.
// Coordinates are only emitted as a pair.
func NewManifestEntry(m *models.Memory, file string) ManifestEntry {
	entry := ManifestEntry{
		CapturedAt:   FormatTimestamp(m.CapturedAt),
		CreatedAt:    FormatTimestamp(m.CreatedAt),
		File:         file,
		ID:           string(m.ID),
		Note:         m.Note,
		LocationName: m.LocationName,
	}
	if m.HasCoordinates() {
		entry.Latitude = m.Latitude
		entry.Longitude = m.Longitude
	}
	return entry
}

// Encode renders the manifest as indented JSON. HTML characters in notes
// are kept verbatim.
func (m *Manifest) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeManifest parses and sanity-checks a manifest.
func DecodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if m.MemoriesCount != len(m.Memories) {
		return nil, fmt.Errorf("manifest lists %d memories but declares %d", len(m.Memories), m.MemoriesCount)
	}
	return &m, nil
}

// FormatTimestamp renders t as ISO-8601 in UTC at second precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// BackupName derives the working directory and archive base name from
// the export date.
func BackupName(t time.Time) string {
	return BackupPrefix + t.Format("2006-01-02")
}

// MonthBucket returns the YYYY-MM folder a capture time belongs to.
func MonthBucket(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01")
}

// FileName returns the image file name for m: day and minute of capture,
// then an optional note fragment. Two memories captured in the same
// minute with the same note prefix map to the same name.
func FileName(m *models.Memory, loc *time.Location) string {
	name := m.CapturedAt.In(loc).Format("02_15-04")
	if note := m.NoteText(); note != "" {
		name += "_" + sanitizeNote(note)
	}
	return name + ImageExtension
}

// sanitizeNote replaces path separators and colons and keeps the first
// noteFragmentLength characters.
func sanitizeNote(note string) string {
	note = strings.NewReplacer("/", "-", ":", "-").Replace(note)
	if utf8.RuneCountInString(note) <= noteFragmentLength {
		return note
	}
	return string([]rune(note)[:noteFragmentLength])
}
