package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// DeriveID creates the SHA-256 identifier for a client-supplied job
// identifier. The same value names the job's container directory, so
// every id is an opaque, filesystem-safe 64-character hex string that
// never leaks the raw identifier.
func DeriveID(clientID string) string {
	h := sha256.Sum256([]byte(clientID))
	return hex.EncodeToString(h[:])
}
