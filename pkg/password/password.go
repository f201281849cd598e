package password

import (
	"crypto/rand"
	"fmt"
)

// tempAlphabet excludes visually ambiguous characters (I, O, l, 0, 1).
const tempAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789!@#$%"

// DefaultTempLength is the temporary password length used by account
// provisioning when no override is configured.
const DefaultTempLength = 12

// Temporary generates a temporary password of the given length from a fixed
// alphabet using a cryptographically secure random source.
func Temporary(length int) (string, error) {
	if length <= 0 {
		length = DefaultTempLength
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate temp password: %w", err)
	}

	out := make([]byte, length)
	for i, b := range buf {
		out[i] = tempAlphabet[int(b)%len(tempAlphabet)]
	}
	return string(out), nil
}
