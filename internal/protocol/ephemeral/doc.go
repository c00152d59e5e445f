// Package ephemeral implements the optional forward-secret key path.
//
// # Overview
//
// Each party generates an ephemeral ECDH P-256 key pair and publishes only
// the public half. Combining one's private key with the peer's public key
// yields the same shared secret on both sides; HKDF-SHA256 over that secret,
// bound to the session id, produces the session key.
//
// # Flow
//
//  1. GenerateKeyPair on both sides.
//  2. Exchange PublicKey bytes through any channel (the store, here).
//  3. DeriveKey(ours, theirs, sessionID) on both sides.
//  4. Discard the private keys. Past traffic stays sealed even if the
//     identities later leak.
//
// # Errors
//
// ErrBadPublicKey is returned for peer keys that are not valid uncompressed
// P-256 points.
package ephemeral
