package handshake_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"wellnest/internal/crypto"
	"wellnest/internal/domain"
	"wellnest/internal/protocol/ephemeral"
	"wellnest/internal/services/handshake"
	"wellnest/internal/services/keys"
	"wellnest/internal/store"
	"wellnest/internal/subscription"
)

const sid = domain.SessionID("dm_alice_bob")

type party struct {
	keys *keys.KeyStore
	svc  *handshake.Service
}

func newParty(t *testing.T, st domain.DocumentStore) party {
	t.Helper()
	ks := keys.NewKeyStore([]byte("salt"), zerolog.Nop())
	subs := subscription.NewManager(st, subscription.DefaultOptions())
	t.Cleanup(subs.Destroy)
	return party{keys: ks, svc: handshake.New(st, subs, ks, zerolog.Nop())}
}

func newMemory(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore(nil, zerolog.Nop())
	t.Cleanup(func() { _ = st.Close() })
	return st
}

type result struct {
	key domain.SymmetricKey
	err error
}

func negotiate(ctx context.Context, p party, user, peer domain.UserID) <-chan result {
	out := make(chan result, 1)
	go func() {
		k, err := p.svc.Negotiate(ctx, sid, user, peer)
		out <- result{k, err}
	}()
	return out
}

func await(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("negotiation did not finish")
		return result{}
	}
}

func TestNegotiate_BothSidesAgree(t *testing.T) {
	st := newMemory(t)
	alice, bob := newParty(t, st), newParty(t, st)
	ctx := context.Background()

	a := negotiate(ctx, alice, "alice", "bob")
	b := negotiate(ctx, bob, "bob", "alice")
	ra, rb := await(t, a), await(t, b)
	require.NoError(t, ra.err)
	require.NoError(t, rb.err)
	require.Equal(t, ra.key, rb.key)

	cached, ok := alice.keys.ForwardSecretKey(sid)
	require.True(t, ok)
	require.Equal(t, ra.key, cached)
}

func TestNegotiate_IgnoresAbandonedPeerDocument(t *testing.T) {
	st := newMemory(t)
	ctx := context.Background()

	// Alice's document from an earlier run whose private key is gone.
	old, err := ephemeral.GenerateKeyPair()
	require.NoError(t, err)
	stale := crypto.B64(old.PublicKey())
	require.NoError(t, st.Set(ctx, domain.HandshakePath(sid, "alice"), domain.Data{
		"publicKey": stale,
		"peerKey":   "some-earlier-bob-key",
	}, domain.SetOptions{}))

	alice, bob := newParty(t, st), newParty(t, st)
	b := negotiate(ctx, bob, "bob", "alice")

	// Bob acknowledges the stale key before Alice shows up.
	require.Eventually(t, func() bool {
		doc, err := st.Get(ctx, domain.HandshakePath(sid, "bob"))
		return err == nil && doc.Data["peerKey"] == stale
	}, 2*time.Second, 5*time.Millisecond)

	select {
	case r := <-b:
		t.Fatalf("finished against an abandoned key: %v", r.err)
	default:
	}

	a := negotiate(ctx, alice, "alice", "bob")
	ra, rb := await(t, a), await(t, b)
	require.NoError(t, ra.err)
	require.NoError(t, rb.err)
	require.Equal(t, ra.key, rb.key)
}

func TestNegotiate_TimesOutWithoutPeer(t *testing.T) {
	st := newMemory(t)
	bob := newParty(t, st)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := bob.svc.Negotiate(ctx, sid, "bob", "alice")
	require.ErrorIs(t, err, domain.ErrTimeout)
	_, ok := bob.keys.ForwardSecretKey(sid)
	require.False(t, ok)
}

func TestNegotiate_RejectsMalformedPeerKey(t *testing.T) {
	st := newMemory(t)
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, domain.HandshakePath(sid, "alice"), domain.Data{
		"publicKey": crypto.B64([]byte("not a curve point")),
	}, domain.SetOptions{}))

	bob := newParty(t, st)
	_, err := bob.svc.Negotiate(ctx, sid, "bob", "alice")
	require.ErrorIs(t, err, handshake.ErrPeerKey)
	require.ErrorIs(t, err, domain.ErrInvalid)
}
