package interfaces

import (
	"context"

	domaintypes "wellnest/internal/domain/types"
)

// ProfileLookup is the social-graph collaborator. Sessions only use it to
// decorate participant records.
type ProfileLookup interface {
	LookupProfile(ctx context.Context, id domaintypes.UserID) (domaintypes.Profile, error)
}

// KeyStrategy resolves the symmetric key that seals a session's messages at
// a given key epoch.
type KeyStrategy interface {
	SessionKey(
		ctx context.Context,
		session domaintypes.Session,
		epoch int,
	) (domaintypes.SymmetricKey, error)
}

// SessionService creates and maintains session documents.
type SessionService interface {
	CreateOrGetSession(
		ctx context.Context,
		a domaintypes.UserID,
		b domaintypes.UserID,
	) (domaintypes.SessionID, error)
	GetSession(ctx context.Context, id domaintypes.SessionID) (domaintypes.Session, error)
	RecordSentMessage(
		ctx context.Context,
		id domaintypes.SessionID,
		preview string,
		sender domaintypes.UserID,
	) error
	CreateGroupSession(
		ctx context.Context,
		creator domaintypes.UserID,
		name string,
		members []domaintypes.UserID,
	) (domaintypes.SessionID, error)
	AddParticipant(ctx context.Context, id domaintypes.SessionID, user domaintypes.UserID) error
	RemoveParticipant(ctx context.Context, id domaintypes.SessionID, user domaintypes.UserID) error
}

// MessageStream is a live, chronologically ordered view of a session.
type MessageStream interface {
	Batches() <-chan []domaintypes.DecryptedMessage
	Err() error
	Close()
}

// MessageService encrypts, sends, streams and annotates messages.
type MessageService interface {
	Send(
		ctx context.Context,
		session domaintypes.SessionID,
		sender domaintypes.UserID,
		plaintext string,
		opts domaintypes.SendOptions,
	) (domaintypes.MessageID, error)
	ReceiveStream(
		ctx context.Context,
		session domaintypes.SessionID,
		viewer domaintypes.UserID,
	) (MessageStream, error)
	MarkRead(
		ctx context.Context,
		session domaintypes.SessionID,
		message domaintypes.MessageID,
		viewer domaintypes.UserID,
	) error
	SetTyping(
		ctx context.Context,
		session domaintypes.SessionID,
		user domaintypes.UserID,
		isTyping bool,
	) error
}
