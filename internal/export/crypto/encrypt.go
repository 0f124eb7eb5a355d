// Package crypto provides password encryption for backup archives using
// AES-256-GCM. Passwords are never stored with the archive; the same
// password must be given again to restore it.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrInvalidPassword is returned when the provided password is incorrect.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidArchive is returned when the data is not an encrypted archive.
	ErrInvalidArchive = errors.New("invalid encrypted archive")
)

const (
	// PasswordMinLength is the minimum required password length.
	PasswordMinLength = 8
	// SaltLength is the length of the random salt for key derivation.
	SaltLength        = 32
	// Iterations is the PBKDF2-SHA256 work factor.
	Iterations        = 100_000

	magic     = "GLIMMENC"
	version   = 1
	keyLength = 32
	nonceSize = 12
)

// headerSize is magic + version + salt + nonce.
const headerSize = len(magic) + 1 + SaltLength + nonceSize

// ValidatePassword checks if a password meets minimum requirements.
func ValidatePassword(password string) error {
	if len(password) < PasswordMinLength {
		return fmt.Errorf("password must be at least %d characters", PasswordMinLength)
	}
	return nil
}

// IsEncrypted reports whether data starts with the encrypted archive header.
func IsEncrypted(data []byte) bool {
	return bytes.HasPrefix(data, []byte(magic))
}

// EncryptArchive encrypts archive bytes with a key derived from password.
// The output is the header (magic, version, salt, nonce) followed by the
// sealed payload.
func EncryptArchive(data []byte, password string) ([]byte, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	header := make([]byte, 0, headerSize)
	header = append(header, magic...)
	header = append(header, version)
	header = append(header, salt...)
	header = append(header, nonce...)

	// the header is authenticated along with the payload
	sealed := gcm.Seal(nil, nonce, data, header)
	return append(header, sealed...), nil
}

// DecryptArchive reverses EncryptArchive. A wrong password or tampered
// payload yields ErrInvalidPassword; a malformed header ErrInvalidArchive.
func DecryptArchive(data []byte, password string) ([]byte, error) {
	if len(data) < headerSize || !IsEncrypted(data) {
		return nil, ErrInvalidArchive
	}
	header := data[:headerSize]
	if v := header[len(magic)]; v != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidArchive, v)
	}

	saltStart := len(magic) + 1
	salt := header[saltStart : saltStart+SaltLength]
	nonce := header[saltStart+SaltLength:]

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, data[headerSize:], header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}
	return plaintext, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, Iterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
