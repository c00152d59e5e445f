// Package store provides the document stores WellNest chat runs on.
//
// Every backend implements domain.DocumentStore with the same semantics:
// documents are JSON-compatible maps addressed by slash-separated paths,
// writes resolve the ServerTimestamp and Increment sentinels against the
// store's own clock and current values, Create is an atomic
// create-if-absent, and Subscribe delivers the current snapshot followed by
// one snapshot per change, in order, to each subscriber.
//
// Backends:
//   - MemoryStore, in-process, used by tests and the demo backend
//   - SQLiteStore, a single-file database (modernc.org/sqlite)
//   - RedisStore, shared between processes via keys and pub/sub (go-redis)
//
// KeyringFileStore persists exported session keys under a passphrase, using
// the same scrypt and ChaCha20-Poly1305 envelope as the rest of the on-disk
// state.
package store
