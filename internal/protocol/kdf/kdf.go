package kdf

import (
	"crypto/sha256"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"

	"wellnest/internal/domain"
)

const (
	DirectIterations = 100_000
	GroupIterations  = 150_000

	separator = "_"
)

// ValidIdentity reports whether id can take part in a chat id. The id must
// be non-empty and free of the id separator, or two different pairs could
// join to the same chat id. Path separators are rejected as well.
func ValidIdentity(id domain.UserID) bool {
	return id != "" && !strings.ContainsAny(string(id), separator+"/")
}

// ChatID returns the direct session id for a pair of identities.
func ChatID(a, b domain.UserID) domain.SessionID {
	return domain.SessionID(domain.DirectPrefix + SortedJoin([]domain.UserID{a, b}))
}

// GroupChatID returns a fresh random group session id.
func GroupChatID() domain.SessionID {
	return domain.SessionID(domain.GroupPrefix + uuid.NewString())
}

// SortedJoin sorts ids lexicographically and joins them with "_". The input
// slice is not modified.
func SortedJoin(ids []domain.UserID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	sort.Strings(parts)
	return strings.Join(parts, separator)
}

// DirectKey derives the pair key for a direct session id.
func DirectKey(id domain.SessionID, salt []byte) domain.SymmetricKey {
	return derive([]byte(id), salt, DirectIterations)
}

// GroupKey derives the group key for members at epoch.
func GroupKey(groupID domain.SessionID, members []domain.UserID, epoch int, salt []byte) domain.SymmetricKey {
	s := make([]byte, 0, len(salt)+len(groupID)+8)
	s = append(s, salt...)
	s = append(s, ':')
	s = append(s, groupID.String()...)
	if epoch > 0 {
		s = append(s, '@')
		s = strconv.AppendInt(s, int64(epoch), 10)
	}
	return derive([]byte(SortedJoin(members)), s, GroupIterations)
}

func derive(password, salt []byte, iterations int) domain.SymmetricKey {
	var key domain.SymmetricKey
	raw := pbkdf2.Key(password, salt, iterations, len(key), sha256.New)
	copy(key[:], raw)
	clear(raw)
	return key
}
