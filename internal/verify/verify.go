package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrIntegrity is returned when content does not hash to the expected digest.
var ErrIntegrity = errors.New("integrity check failed")

// Digest returns the lowercase hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify compares the digest of data with expected after trimming
// surrounding whitespace from expected. Comparison is exact.
func Verify(data []byte, expected string) error {
	want := strings.TrimSpace(expected)
	got := Digest(data)
	if got != want {
		return fmt.Errorf("%w: expected %q, got %q", ErrIntegrity, want, got)
	}
	return nil
}
