package export

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/glimm/backend/internal/models"
)

func TestManifest_Encode_sortedKeysAndIndent(t *testing.T) {
	m := &models.Memory{
		ID:           "00000000-0000-0000-0000-00000000000a",
		ImageData:    []byte("x"),
		Note:         models.StringPtr("<b>&</b>"),
		CapturedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		CreatedAt:    time.Date(2024, 1, 2, 3, 4, 6, 0, time.UTC),
		Latitude:     models.Float64Ptr(1.5),
		Longitude:    models.Float64Ptr(2.5),
		LocationName: models.StringPtr("Home"),
	}
	manifest := NewManifest(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), "2.0.0",
		[]ManifestEntry{NewManifestEntry(m, "2024-01/02_03-04.jpg")})

	data, err := manifest.Encode()
	require.NoError(t, err)
	out := string(data)

	order := []string{`"appVersion"`, `"exportedAt"`, `"memories"`, `"capturedAt"`, `"createdAt"`, `"file"`,
		`"id"`, `"latitude"`, `"locationName"`, `"longitude"`, `"note"`, `"memoriesCount"`}
	last := -1
	for _, key := range order {
		idx := strings.Index(out, key)
		require.GreaterOrEqual(t, idx, 0, "missing %s", key)
		assert.Greater(t, idx, last, "%s out of order", key)
		last = idx
	}

	assert.Contains(t, out, "\n  \"appVersion\": \"2.0.0\"")
	assert.Contains(t, out, `"note": "<b>&</b>"`)
	assert.Contains(t, out, `"exportedAt": "2024-02-01T00:00:00Z"`)
}

func TestManifest_Encode_omitsAbsentFields(t *testing.T) {
	m := &models.Memory{
		ID:         "00000000-0000-0000-0000-00000000000b",
		ImageData:  []byte("x"),
		CapturedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		CreatedAt:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	data, err := NewManifest(time.Now(), "1.0.0", []ManifestEntry{NewManifestEntry(m, "f.jpg")}).Encode()
	require.NoError(t, err)

	for _, key := range []string{"note", "latitude", "longitude", "locationName"} {
		assert.NotContains(t, string(data), `"`+key+`"`)
	}
}

func TestNewManifest_emptyEntriesEncodeAsArray(t *testing.T) {
	data, err := NewManifest(time.Now(), "1.0.0", nil).Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"memories": []`)
	assert.Contains(t, string(data), `"memoriesCount": 0`)
}

func TestDecodeManifest(t *testing.T) {
	_, err := DecodeManifest([]byte(`{"memories":[],"memoriesCount":2}`))
	assert.Error(t, err, "count mismatch should be rejected")

	_, err = DecodeManifest([]byte(`not json`))
	assert.Error(t, err)

	m, err := DecodeManifest([]byte(`{"appVersion":"1.0.0","exportedAt":"2024-01-01T00:00:00Z","memories":[{"id":"x","file":"a.jpg","capturedAt":"2024-01-01T00:00:00Z","createdAt":"2024-01-01T00:00:00Z"}],"memoriesCount":1}`))
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", m.Memories[0].File)
}

func TestFormatTimestamp_utcSeconds(t *testing.T) {
	zone := time.FixedZone("UTC-5", -5*60*60)
	got := FormatTimestamp(time.Date(2024, 6, 1, 20, 15, 30, 999, zone))
	assert.Equal(t, "2024-06-02T01:15:30Z", got)
}

func TestBackupName(t *testing.T) {
	assert.Equal(t, "glimm-backup-2025-01-09", BackupName(time.Date(2025, 1, 9, 23, 0, 0, 0, time.UTC)))
}

func TestFileName(t *testing.T) {
	at := time.Date(2024, 7, 4, 8, 9, 59, 0, time.UTC)

	tests := []struct {
		name string
		note *string
		want string
	}{
		{"no note", nil, "04_08-09.jpg"},
		{"empty note", models.StringPtr(""), "04_08-09.jpg"},
		{"plain", models.StringPtr("Beach"), "04_08-09_Beach.jpg"},
		{"separators", models.StringPtr("a/b:c"), "04_08-09_a-b-c.jpg"},
		{"exactly 30", models.StringPtr(strings.Repeat("x", 30)), "04_08-09_" + strings.Repeat("x", 30) + ".jpg"},
		{"multibyte truncated by rune", models.StringPtr(strings.Repeat("海", 31)), "04_08-09_" + strings.Repeat("海", 30) + ".jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &models.Memory{CapturedAt: at, Note: tt.note}
			assert.Equal(t, tt.want, FileName(m, time.UTC))
		})
	}
}

func TestMonthBucket(t *testing.T) {
	at := time.Date(2023, 12, 31, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2023-12", MonthBucket(at, time.UTC))
	assert.Equal(t, "2024-01", MonthBucket(at, time.FixedZone("UTC+1", 3600)))
}
