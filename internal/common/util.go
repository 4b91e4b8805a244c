package common

import (
	"crypto/rand"
	"fmt"
)

// GenerateRandBytes returns size cryptographically random bytes.
func GenerateRandBytes(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("rand: %w", err)
	}
	return b, nil
}

// WipeBytes overwrites the slice with zeros. Used to remove passphrases and
// derived keys from memory after use.
func WipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
