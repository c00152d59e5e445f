package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/chacha20poly1305"

	"wellnest/internal/domain"
)

const (
	KeyBytes   = chacha20poly1305.KeySize
	NonceBytes = chacha20poly1305.NonceSize
	TagBytes   = chacha20poly1305.Overhead
)

// errDecrypt is the only error any decrypt path returns.
var errDecrypt = &domain.Error{Kind: domain.KindDecryption, Op: "decrypt"}

// GenerateKey returns a fresh random 256-bit key.
func GenerateKey() (domain.SymmetricKey, error) {
	var key domain.SymmetricKey
	if _, err := rand.Read(key[:]); err != nil {
		return domain.SymmetricKey{}, err
	}
	return key, nil
}

// Encrypt seals plaintext under key with a fresh random nonce and returns
// both ciphertext and nonce as base64.
func Encrypt(plaintext string, key domain.SymmetricKey) (ciphertext, iv string, err error) {
	ct, nonce, err := seal([]byte(plaintext), key)
	if err != nil {
		return "", "", err
	}
	return B64(ct), B64(nonce), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func Decrypt(ciphertext, iv string, key domain.SymmetricKey) (string, error) {
	pt, err := open(ciphertext, iv, key)
	if err != nil {
		return "", err
	}
	defer Wipe(pt)
	return string(pt), nil
}

// EncryptFile seals a binary attachment. The metadata stays in the clear.
func EncryptFile(data []byte, name, mimeType string, key domain.SymmetricKey) (domain.EncryptedFile, error) {
	ct, nonce, err := seal(data, key)
	if err != nil {
		return domain.EncryptedFile{}, err
	}
	return domain.EncryptedFile{
		Ciphertext:   B64(ct),
		IV:           B64(nonce),
		OriginalName: name,
		OriginalType: mimeType,
		OriginalSize: int64(len(data)),
	}, nil
}

// DecryptFile opens an attachment sealed by EncryptFile.
func DecryptFile(f domain.EncryptedFile, key domain.SymmetricKey) ([]byte, error) {
	pt, err := open(f.Ciphertext, f.IV, key)
	if err != nil {
		return nil, err
	}
	if int64(len(pt)) != f.OriginalSize {
		Wipe(pt)
		return nil, errDecrypt
	}
	return pt, nil
}

// ValidateParams checks that ciphertext and iv look like something Encrypt
// could have produced. It does no cryptography; it lets callers render
// malformed records as unreadable without attempting a decrypt.
func ValidateParams(ciphertext, iv string) bool {
	if ciphertext == "" || iv == "" {
		return false
	}
	nonce, err := base64.StdEncoding.DecodeString(iv)
	if err != nil || len(nonce) != NonceBytes {
		return false
	}
	n, err := base64.StdEncoding.DecodeString(ciphertext)
	return err == nil && len(n) >= TagBytes
}

func seal(plaintext []byte, key domain.SymmetricKey) (ct, nonce []byte, err error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, NonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	return aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func open(ciphertext, iv string, key domain.SymmetricKey) ([]byte, error) {
	if !ValidateParams(ciphertext, iv) {
		return nil, errDecrypt
	}
	ct, err := unb64(ciphertext)
	if err != nil {
		return nil, errDecrypt
	}
	nonce, err := unb64(iv)
	if err != nil {
		return nil, errDecrypt
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, errDecrypt
	}
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, errDecrypt
	}
	return pt, nil
}

func newAEAD(key domain.SymmetricKey) (cipher.AEAD, error) {
	k := key.Slice()
	defer Wipe(k)
	return chacha20poly1305.New(k)
}
