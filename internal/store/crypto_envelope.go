package store

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"wellnest/internal/domain"
)

const (
	// envelopeFormatVersion is written by sealEnvelope. Version 1 files
	// (salt-only associated data, zero nonce) are still readable.
	envelopeFormatVersion = 2

	// keyringPurpose binds a sealed keyring to this file format. A blob
	// sealed for any other purpose fails authentication here.
	keyringPurpose = "wellnest/keyring"

	// maxScryptN caps the cost read back from disk.
	maxScryptN = 1 << 20
)

var (
	// Returned when the passphrase is incorrect or the ciphertext has been modified / corrupted.
	errWrongPassphrase = domain.NewError(domain.KindAuthentication, "open keyring",
		fmt.Errorf("wrong passphrase or corrupted keyring"))
)

// envelope is the on-disk JSON structure holding the ciphertext and KDF parameters.
type envelope struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	Nonce  []byte `json:"nonce,omitempty"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Cipher []byte `json:"cipher"`
}

// associatedData is what the AEAD authenticates besides the ciphertext.
func (e envelope) associatedData(purpose string) []byte {
	if e.V < 2 {
		return e.Salt
	}
	ad := make([]byte, 0, len(purpose)+1+len(e.Salt))
	ad = append(ad, purpose...)
	ad = append(ad, 0)
	return append(ad, e.Salt...)
}

// sealEnvelope derives a key from passphrase and seals raw into a JSON
// envelope bound to purpose.
func sealEnvelope(purpose, passphrase string, raw []byte, N, r, p int) ([]byte, error) {
	env := envelope{
		V:     envelopeFormatVersion,
		Salt:  make([]byte, 16),
		Nonce: make([]byte, chacha20poly1305.NonceSize),
		N:     N,
		R:     r,
		P:     p,
	}
	if _, err := rand.Read(env.Salt); err != nil {
		return nil, err
	}
	if _, err := rand.Read(env.Nonce); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(passphrase), env.Salt, N, r, p, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	env.Cipher = aead.Seal(nil, env.Nonce, raw, env.associatedData(purpose))
	return json.Marshal(env)
}

// openEnvelope opens a JSON envelope sealed for purpose using a key derived
// from passphrase.
func openEnvelope(purpose, passphrase string, b []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, domain.NewError(domain.KindInvalid, "open keyring", err)
	}
	if env.V < 1 || env.V > envelopeFormatVersion {
		return nil, domain.Errorf(domain.KindInvalid, "open keyring", "unsupported keyring version %d", env.V)
	}
	if env.N > maxScryptN {
		return nil, domain.Errorf(domain.KindInvalid, "open keyring", "scrypt cost %d exceeds %d", env.N, maxScryptN)
	}

	nonce := env.Nonce
	switch {
	case env.V == 1:
		nonce = make([]byte, chacha20poly1305.NonceSize)
	case len(nonce) != chacha20poly1305.NonceSize:
		return nil, domain.Errorf(domain.KindInvalid, "open keyring", "nonce is %d bytes", len(nonce))
	}

	key, err := scrypt.Key([]byte(passphrase), env.Salt, env.N, env.R, env.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, domain.NewError(domain.KindInvalid, "open keyring", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce, env.Cipher, env.associatedData(purpose))
	if err != nil {
		return nil, errWrongPassphrase
	}
	return pt, nil
}

// Tunables for scrypt key derivation.
func scryptParamsDefault() (N, r, p int) { return 1 << 15, 8, 1 }
