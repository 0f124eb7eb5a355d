// Package uuid generates and normalizes memory identifiers.
//
// New identifiers are random (v4). Identifiers read back from a backup may
// come from another device and are only required to be well-formed
// hyphenated UUIDs of any version; Normalize maps them to the lowercase
// canonical form used as the primary key.
package uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// New generates a new UUID v4.
func New() string {
	return uuid.New().String()
}

// Normalize validates s and returns its canonical lowercase form.
// Only the 36-character hyphenated form is accepted.
func Normalize(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) != 36 {
		return "", fmt.Errorf("invalid UUID %q: expected 36 characters", s)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return id.String(), nil
}

// IsValid checks if s is a well-formed hyphenated UUID.
func IsValid(s string) bool {
	_, err := Normalize(s)
	return err == nil
}
