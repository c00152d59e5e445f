// Package kdf derives session identifiers and session keys from identities.
//
// # Direct sessions
//
// ChatID sorts the two identities and joins them, so both parties compute
// the same id regardless of argument order. DirectKey runs PBKDF2-SHA256
// over that id with an application salt; any two clients holding the same
// pair of identities therefore agree on a key without exchanging a single
// message.
//
// # Group sessions
//
// Group ids are random (membership changes, so they cannot be derived from
// members). GroupKey mixes the group id, the key epoch and the sorted member
// list, with a higher iteration count. A membership change must bump the
// epoch; the previous epoch's key stays derivable for old messages.
//
// # Security notes
//
// Keys derived here are only as secret as the identities and the salt. The
// ephemeral package provides the forward-secret alternative.
package kdf
