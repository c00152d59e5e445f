package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"wellnest/internal/domain"
)

const fingerprintChars = 16

// FingerprintKey returns a short digest of key both parties can compare out
// of band.
//
// It hashes the exported key with SHA-256 and keeps the first 16 hex chars.
func FingerprintKey(key domain.SymmetricKey) domain.Fingerprint {
	sum := sha256.Sum256([]byte(ExportKey(key)))
	return domain.Fingerprint(hex.EncodeToString(sum[:])[:fingerprintChars])
}
