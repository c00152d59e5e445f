package types

// SymmetricKey is 256-bit AEAD key material. It is a value type, so every
// assignment or return hands out an independent copy.
type SymmetricKey [32]byte

// Slice returns the key as a []byte.
func (k SymmetricKey) Slice() []byte { return k[:] }

// IsZero reports whether the key is unset.
func (k SymmetricKey) IsZero() bool { return k == SymmetricKey{} }

// EncryptedFile is an attachment sealed with a session key. Name, type and
// size are not secret and travel in the clear.
type EncryptedFile struct {
	Ciphertext   string `json:"ciphertext"`
	IV           string `json:"iv"`
	OriginalName string `json:"originalName"`
	OriginalType string `json:"originalType"`
	OriginalSize int64  `json:"originalSize"`
}
