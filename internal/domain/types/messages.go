package types

// EncryptedMessage is the stored form of a message. Only ReadBy and EditedAt
// change after the first write.
type EncryptedMessage struct {
	ID         MessageID        `json:"id"`
	SessionID  SessionID        `json:"sessionId"`
	SenderID   UserID           `json:"senderId"`
	Ciphertext string           `json:"ciphertext"`
	IV         string           `json:"iv,omitempty"`
	Encrypted  bool             `json:"encrypted"`
	KeyEpoch   int              `json:"keyEpoch,omitempty"`
	Kind       MessageKind      `json:"kind"`
	Timestamp  int64            `json:"timestamp"`
	ReadBy     map[UserID]int64 `json:"readBy"`
	ReplyTo    MessageID        `json:"replyTo,omitempty"`
	MediaRef   string           `json:"mediaRef,omitempty"`
	EditedAt   int64            `json:"editedAt,omitempty"`
}

// DecryptedMessage is what the receive stream hands to viewers.
type DecryptedMessage struct {
	ID            MessageID        `json:"id"`
	SessionID     SessionID        `json:"sessionId"`
	SenderID      UserID           `json:"senderId"`
	Body          string           `json:"body"`
	Kind          MessageKind      `json:"kind"`
	Timestamp     int64            `json:"timestamp"`
	ReadBy        map[UserID]int64 `json:"readBy"`
	ReplyTo       MessageID        `json:"replyTo,omitempty"`
	MediaRef      string           `json:"mediaRef,omitempty"`
	EditedAt      int64            `json:"editedAt,omitempty"`
	Undecryptable bool             `json:"undecryptable,omitempty"`
}

// ReadByViewer reports whether viewer has a read receipt on the message.
func (m DecryptedMessage) ReadByViewer(viewer UserID) bool {
	_, ok := m.ReadBy[viewer]
	return ok
}

// Attachment is an encrypted file stored next to the session's messages.
type Attachment struct {
	ID        string        `json:"id"`
	SessionID SessionID     `json:"sessionId"`
	SenderID  UserID        `json:"senderId"`
	File      EncryptedFile `json:"file"`
	KeyEpoch  int           `json:"keyEpoch,omitempty"`
	CreatedAt int64         `json:"createdAt"`
}

// SendOptions carries the optional fields of a send.
type SendOptions struct {
	Kind     MessageKind
	ReplyTo  MessageID
	MediaRef string
}
