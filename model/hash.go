package model

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashContent returns the hex-encoded sha256 of file contents; the value
// keys both cache tiers and the signature-engine dependency closure.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
