package domain

import (
	interfaces "wellnest/internal/domain/interfaces"
	types "wellnest/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	UserID           = types.UserID
	SessionID        = types.SessionID
	MessageID        = types.MessageID
	Fingerprint      = types.Fingerprint
	MessageKind      = types.MessageKind
	SymmetricKey     = types.SymmetricKey
	EncryptedFile    = types.EncryptedFile
	Session          = types.Session
	ParticipantState = types.ParticipantState
	LastMessage      = types.LastMessage
	Profile          = types.Profile
	EncryptedMessage = types.EncryptedMessage
	DecryptedMessage = types.DecryptedMessage
	Attachment       = types.Attachment
	SendOptions      = types.SendOptions
	ConnectionStatus = types.ConnectionStatus
	ListenerState    = types.ListenerState
	Data             = types.Data
	Document         = types.Document
	SetOptions       = types.SetOptions
	Query            = types.Query
	WatchTarget      = types.WatchTarget
	Snapshot         = types.Snapshot
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	DocumentStore  = interfaces.DocumentStore
	KeyringStore   = interfaces.KeyringStore
	ProfileLookup  = interfaces.ProfileLookup
	KeyStrategy    = interfaces.KeyStrategy
	SessionService = interfaces.SessionService
	MessageService = interfaces.MessageService
	MessageStream  = interfaces.MessageStream
)

// Message kinds.
const (
	KindText   = types.KindText
	KindImage  = types.KindImage
	KindSystem = types.KindSystem
)

// Listener states.
const (
	StateConnecting   = types.StateConnecting
	StateConnected    = types.StateConnected
	StateError        = types.StateError
	StateReconnecting = types.StateReconnecting
	StateDestroyed    = types.StateDestroyed
)

// Session id prefixes.
const (
	DirectPrefix = types.DirectPrefix
	GroupPrefix  = types.GroupPrefix
)

// Store helpers re-exported for callers that only import domain.
var (
	DocumentTarget  = types.DocumentTarget
	QueryTarget     = types.QueryTarget
	ServerTimestamp = types.ServerTimestamp
	Increment       = types.Increment
	JoinPath        = types.JoinPath
	ParentPath      = types.ParentPath
)
