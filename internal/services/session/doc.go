// Package session creates and maintains the shared session documents.
//
// Direct sessions are keyed by the deterministic chat id of their two
// participants and created with an atomic create-if-absent, so concurrent
// first contact from both sides yields one document. Group sessions carry a
// key epoch that membership changes advance.
package session
