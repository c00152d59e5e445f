package keys_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellnest/internal/domain"
	"wellnest/internal/protocol/kdf"
	"wellnest/internal/services/keys"
)

var salt = []byte("test-app-salt")

func newStore() *keys.KeyStore { return keys.NewKeyStore(salt, zerolog.Nop()) }

func TestDeriveSharedKey_SymmetricAndCached(t *testing.T) {
	ks := newStore()
	ctx := context.Background()

	k1, err := ks.DeriveSharedKey(ctx, "u1", "u2")
	require.NoError(t, err)
	k2, err := ks.DeriveSharedKey(ctx, "u2", "u1")
	require.NoError(t, err)
	require.Equal(t, k1, k2)
	require.Equal(t, kdf.DirectKey("dm_u1_u2", salt), k1)
	require.Equal(t, 1, ks.Len())
}

func TestDeriveSharedKey_IndependentStoresAgree(t *testing.T) {
	a, err := newStore().DeriveSharedKey(context.Background(), "alice", "bob")
	require.NoError(t, err)
	b, err := newStore().DeriveSharedKey(context.Background(), "bob", "alice")
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestDeriveSharedKey_ConcurrentCallersShareOneKey(t *testing.T) {
	ks := newStore()
	var wg sync.WaitGroup
	results := make([]domain.SymmetricKey, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k, err := ks.DeriveSharedKey(context.Background(), "u1", "u2")
			assert.NoError(t, err)
			results[i] = k
		}(i)
	}
	wg.Wait()
	for _, k := range results {
		require.Equal(t, results[0], k)
	}
	require.Equal(t, 1, ks.Len())
}

func TestDeriveGroupKey_EpochsAreDistinct(t *testing.T) {
	ks := newStore()
	ctx := context.Background()
	id := domain.SessionID("group_x")
	members := []domain.UserID{"c", "a", "b"}

	e0, err := ks.DeriveGroupKey(ctx, id, members, 0)
	require.NoError(t, err)
	e1, err := ks.DeriveGroupKey(ctx, id, members, 1)
	require.NoError(t, err)
	require.NotEqual(t, e0, e1)
	require.Equal(t, []domain.UserID{"c", "a", "b"}, members)

	_, err = ks.DeriveGroupKey(ctx, id, nil, 0)
	require.ErrorIs(t, err, domain.ErrInvalid)
}

func TestEvict(t *testing.T) {
	ks := newStore()
	ctx := context.Background()
	g := domain.SessionID("group_x")

	_, err := ks.DeriveSharedKey(ctx, "u1", "u2")
	require.NoError(t, err)
	_, err = ks.DeriveSharedKey(ctx, "u1", "u3")
	require.NoError(t, err)
	_, err = ks.DeriveGroupKey(ctx, g, []domain.UserID{"a", "b"}, 0)
	require.NoError(t, err)
	_, err = ks.DeriveGroupKey(ctx, g, []domain.UserID{"a", "b", "c"}, 1)
	require.NoError(t, err)
	require.Equal(t, 4, ks.Len())

	ks.Evict("dm_u1_u2", false)
	require.Equal(t, 3, ks.Len())
	ks.Evict(g, true)
	require.Equal(t, 1, ks.Len())
	ks.EvictAll()
	require.Equal(t, 0, ks.Len())

	// Derivation after eviction reproduces the same key.
	k, err := ks.DeriveSharedKey(ctx, "u1", "u2")
	require.NoError(t, err)
	require.Equal(t, kdf.DirectKey("dm_u1_u2", salt), k)
}

func TestDerive_ContextCancelled(t *testing.T) {
	ks := newStore()
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := ks.DeriveGroupKey(ctx, "group_slow", []domain.UserID{"a", "b"}, 0)
	require.ErrorIs(t, err, domain.ErrTimeout)
	require.Equal(t, 0, ks.Len())
}

func TestEphemeral_BothSidesAgreeAndSnapshotRoundTrips(t *testing.T) {
	alice, bob := newStore(), newStore()
	id := domain.SessionID("dm_alice_bob")

	ap, err := alice.GenerateEphemeralKeyPair()
	require.NoError(t, err)
	bp, err := bob.GenerateEphemeralKeyPair()
	require.NoError(t, err)

	ka, err := alice.DeriveFromEphemeral(id, ap, bp.PublicKey())
	require.NoError(t, err)
	kb, err := bob.DeriveFromEphemeral(id, bp, ap.PublicKey())
	require.NoError(t, err)
	require.Equal(t, ka, kb)

	snap := alice.Snapshot()
	require.Len(t, snap, 1)

	restored := newStore()
	require.NoError(t, restored.Restore(snap))
	got, ok := restored.ForwardSecretKey(id)
	require.True(t, ok)
	require.Equal(t, ka, got)

	require.Error(t, restored.Restore(map[string]string{"fs:x": "garbage"}))
}
