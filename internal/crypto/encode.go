package crypto

import (
	"encoding/base64"
	"fmt"

	"wellnest/internal/domain"
)

// B64 returns standard base64 encoding without newlines.
func B64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// ExportKey serialises key for transport or cache persistence.
func ExportKey(key domain.SymmetricKey) string { return B64(key[:]) }

// ImportKey parses a key produced by ExportKey.
func ImportKey(s string) (domain.SymmetricKey, error) {
	var key domain.SymmetricKey
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return key, domain.NewError(domain.KindInvalid, "import key", err)
	}
	defer Wipe(raw)
	if len(raw) != KeyBytes {
		return key, domain.Errorf(domain.KindInvalid, "import key", "want %d bytes, got %d", KeyBytes, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

func unb64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	return b, nil
}
