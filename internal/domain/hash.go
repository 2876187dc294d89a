package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash is the hex SHA-256 of the concatenated parts. It keys caches
// and detects changed text.
func ContentHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
