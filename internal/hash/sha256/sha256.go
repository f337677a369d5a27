// Package sha256 derives storage keys from source URLs.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex SHA-256 digest of s.
func Sum(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Key joins prefix and the digest of sourceURL. Raw stores use it so keys
// stay bounded no matter how long the URL is.
func Key(prefix, sourceURL string) string {
	return prefix + Sum(sourceURL)
}
