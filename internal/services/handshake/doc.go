// Package handshake negotiates a forward-secret session key through the
// shared document store.
//
// Each party publishes an ephemeral public key at its handshake document
// and watches the peer's. On reading a peer key it derives a candidate key
// and records, in its own document, which peer key it used. A party is done
// once the peer has acknowledged its current public key and it has derived
// from the peer's current public key. Documents left behind by an earlier,
// abandoned run are never acknowledged, so they cannot complete an
// exchange.
package handshake
