// Package keys owns every session key held by the process.
//
// KeyStore derives pair and group keys on first use, caches them for the
// life of the process, and hands out copies. Evict and EvictAll are the only
// ways to drop entries (key rotation, sign-out). The KeyStrategy
// implementations choose between the deterministic keys and the
// forward-secret keys negotiated through the ephemeral package.
package keys
