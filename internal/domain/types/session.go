package types

import (
	"sort"
	"strconv"
)

// Session is the conversation document shared by its participants.
type Session struct {
	ID                SessionID                   `json:"id"`
	Participants      map[UserID]ParticipantState `json:"participants"`
	CreatedAt         int64                       `json:"createdAt"`
	LastMessage       *LastMessage                `json:"lastMessage,omitempty"`
	EncryptionEnabled bool                        `json:"encryptionEnabled"`
	MessageCount      int64                       `json:"messageCount"`

	IsGroup   bool                `json:"isGroup,omitempty"`
	Name      string              `json:"name,omitempty"`
	KeyEpoch  int                 `json:"keyEpoch,omitempty"`
	KeyEpochs map[string][]UserID `json:"keyEpochs,omitempty"`
}

// Members returns the participant ids in sorted order.
func (s Session) Members() []UserID {
	out := make([]UserID, 0, len(s.Participants))
	for id := range s.Participants {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EpochMembers returns the member list that seeded the group key of epoch.
// Sessions written before any rotation fall back to the current members.
func (s Session) EpochMembers(epoch int) []UserID {
	if m, ok := s.KeyEpochs[strconv.Itoa(epoch)]; ok {
		return m
	}
	return s.Members()
}

// HasParticipant reports whether id belongs to the session.
func (s Session) HasParticipant(id UserID) bool {
	_, ok := s.Participants[id]
	return ok
}

// ParticipantState is the per-member sub-record of a session.
type ParticipantState struct {
	Identity      UserID   `json:"identity"`
	CachedProfile *Profile `json:"cachedProfile,omitempty"`
	LastSeen      int64    `json:"lastSeen,omitempty"`
	IsTyping      bool     `json:"isTyping"`
	JoinedAt      int64    `json:"joinedAt"`
}

// LastMessage summarises the latest message for session listings.
type LastMessage struct {
	Content   string `json:"content"`
	SenderID  UserID `json:"senderId"`
	Timestamp int64  `json:"timestamp"`
}

// Profile is the social-graph decoration attached to participants.
type Profile struct {
	Identity    UserID `json:"identity"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarRef   string `json:"avatarRef,omitempty"`
	IsOnline    bool   `json:"isOnline"`
}
