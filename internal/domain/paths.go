package domain

// Store layout.
const (
	ChatsCollection       = "chats"
	MessagesCollection    = "messages"
	AttachmentsCollection = "attachments"
	HandshakeCollection   = "handshake"
	UsersCollection       = "users"
)

// SessionPath is the session document.
func SessionPath(id SessionID) string { return JoinPath(ChatsCollection, id.String()) }

// MessagesPath is the collection holding a session's messages.
func MessagesPath(id SessionID) string { return JoinPath(SessionPath(id), MessagesCollection) }

// MessagePath is a single message document.
func MessagePath(id SessionID, msg MessageID) string {
	return JoinPath(MessagesPath(id), msg.String())
}

// AttachmentPath is a single attachment document.
func AttachmentPath(id SessionID, attachmentID string) string {
	return JoinPath(SessionPath(id), AttachmentsCollection, attachmentID)
}

// HandshakePath holds one party's ephemeral public key for a session.
func HandshakePath(id SessionID, user UserID) string {
	return JoinPath(SessionPath(id), HandshakeCollection, user.String())
}

// ProfilePath is a user's profile document.
func ProfilePath(user UserID) string { return JoinPath(UsersCollection, user.String()) }
