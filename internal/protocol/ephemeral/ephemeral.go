package ephemeral

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"wellnest/internal/crypto"
	"wellnest/internal/domain"
)

const hkdfInfo = "wellnest-forward-secrecy-v1"

// ErrBadPublicKey is returned when the peer public key cannot be parsed.
var ErrBadPublicKey = errors.New("invalid ephemeral public key")

// KeyPair is an ephemeral ECDH P-256 key pair.
type KeyPair struct {
	Private *ecdh.PrivateKey
}

// PublicKey returns the uncompressed public point for publishing.
func (kp KeyPair) PublicKey() []byte { return kp.Private.PublicKey().Bytes() }

// GenerateKeyPair returns a fresh ephemeral key pair.
func GenerateKeyPair() (KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Private: priv}, nil
}

// DeriveKey combines our private key with the peer's public key and expands
// the shared secret into a session key bound to sessionID.
func DeriveKey(ours KeyPair, peerPublic []byte, sessionID domain.SessionID) (domain.SymmetricKey, error) {
	var key domain.SymmetricKey

	peer, err := ecdh.P256().NewPublicKey(peerPublic)
	if err != nil {
		return key, fmt.Errorf("%w: %v", ErrBadPublicKey, err)
	}
	secret, err := ours.Private.ECDH(peer)
	if err != nil {
		return key, fmt.Errorf("ecdh: %w", err)
	}
	defer crypto.Wipe(secret)

	r := hkdf.New(sha256.New, secret, []byte(sessionID), []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return domain.SymmetricKey{}, fmt.Errorf("hkdf: %w", err)
	}
	return key, nil
}
