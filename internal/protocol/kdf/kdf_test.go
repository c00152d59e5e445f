package kdf_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"wellnest/internal/crypto"
	"wellnest/internal/domain"
	"wellnest/internal/protocol/kdf"
)

var salt = []byte("test-salt")

func TestChatID_Symmetric(t *testing.T) {
	pairs := [][2]domain.UserID{
		{"u1", "u2"},
		{"zed", "amy"},
		{"same", "same"},
		{"", "x"},
	}
	for _, p := range pairs {
		require.Equal(t, kdf.ChatID(p[0], p[1]), kdf.ChatID(p[1], p[0]))
	}
	require.Equal(t, domain.SessionID("dm_u1_u2"), kdf.ChatID("u2", "u1"))
}

func TestSortedJoin_DoesNotMutateInput(t *testing.T) {
	ids := []domain.UserID{"c", "a", "b"}
	require.Equal(t, "a_b_c", kdf.SortedJoin(ids))
	require.Equal(t, []domain.UserID{"c", "a", "b"}, ids)
}

func TestGroupChatID_Random(t *testing.T) {
	a, b := kdf.GroupChatID(), kdf.GroupChatID()
	require.NotEqual(t, a, b)
	require.True(t, strings.HasPrefix(a.String(), domain.GroupPrefix))
	require.True(t, a.IsGroup())
}

func TestDirectKey_ZeroTrafficAgreement(t *testing.T) {
	sender := kdf.DirectKey(kdf.ChatID("u1", "u2"), salt)
	receiver := kdf.DirectKey(kdf.ChatID("u2", "u1"), salt)
	require.Equal(t, sender, receiver)

	ct, iv, err := crypto.Encrypt("hello", sender)
	require.NoError(t, err)
	got, err := crypto.Decrypt(ct, iv, receiver)
	require.NoError(t, err)
	require.Equal(t, "hello", got)
}

func TestDirectKey_DependsOnPairAndSalt(t *testing.T) {
	base := kdf.DirectKey(kdf.ChatID("u1", "u2"), salt)
	require.NotEqual(t, base, kdf.DirectKey(kdf.ChatID("u1", "u3"), salt))
	require.NotEqual(t, base, kdf.DirectKey(kdf.ChatID("u1", "u2"), []byte("other")))
}

func TestGroupKey_OrderIndependentButEpochAndMembersMatter(t *testing.T) {
	g := domain.SessionID("group_fixed")
	k := kdf.GroupKey(g, []domain.UserID{"a", "b", "c"}, 0, salt)

	require.Equal(t, k, kdf.GroupKey(g, []domain.UserID{"c", "a", "b"}, 0, salt))
	require.NotEqual(t, k, kdf.GroupKey(g, []domain.UserID{"a", "b"}, 0, salt))
	require.NotEqual(t, k, kdf.GroupKey(g, []domain.UserID{"a", "b", "c"}, 1, salt))
	require.NotEqual(t, k, kdf.GroupKey("group_other", []domain.UserID{"a", "b", "c"}, 0, salt))
}

func TestValidIdentity(t *testing.T) {
	for _, id := range []domain.UserID{"u1", "alice", "bob.smith", "x-y"} {
		require.True(t, kdf.ValidIdentity(id), id)
	}
	for _, id := range []domain.UserID{"", "a_b", "_", "a/b"} {
		require.False(t, kdf.ValidIdentity(id), id)
	}
	// The ambiguity ValidIdentity rules out.
	require.Equal(t, kdf.ChatID("a_b", "c"), kdf.ChatID("a", "b_c"))
}
