package types

import "strings"

// UserID is an identity string issued by the authentication layer.
type UserID string

// String returns the string form of the user id.
func (u UserID) String() string { return string(u) }

// SessionID identifies a conversation. Direct sessions are derived from the
// two participants; group sessions are random.
type SessionID string

// String returns the string form of the session id.
func (id SessionID) String() string { return string(id) }

// IsGroup reports whether the id names a group session.
func (id SessionID) IsGroup() bool { return strings.HasPrefix(string(id), GroupPrefix) }

// Session id prefixes.
const (
	DirectPrefix = "dm_"
	GroupPrefix  = "group_"
)

// MessageID identifies a message inside a session.
type MessageID string

// String returns the string form of the message id.
func (id MessageID) String() string { return string(id) }

// Fingerprint is a short key digest shown to users for out-of-band checks.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// MessageKind classifies a message payload.
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindImage  MessageKind = "image"
	KindSystem MessageKind = "system"
)

// Valid reports whether k is one of the known kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindSystem:
		return true
	}
	return false
}
