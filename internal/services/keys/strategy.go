package keys

import (
	"context"

	"wellnest/internal/domain"
)

// ErrNoForwardSecretKey is returned when a session has not completed an
// ephemeral handshake.
var ErrNoForwardSecretKey = &domain.Error{Kind: domain.KindNotFound, Op: "forward-secret key"}

var (
	_ domain.KeyStrategy = Deterministic{}
	_ domain.KeyStrategy = ForwardSecret{}
)

// Deterministic derives keys from the participant ids. Any member can compute
// the key with no prior exchange.
type Deterministic struct {
	Keys *KeyStore
}

// SessionKey implements domain.KeyStrategy.
func (d Deterministic) SessionKey(ctx context.Context, s domain.Session, epoch int) (domain.SymmetricKey, error) {
	if s.IsGroup || s.ID.IsGroup() {
		return d.Keys.DeriveGroupKey(ctx, s.ID, s.EpochMembers(epoch), epoch)
	}
	members := s.Members()
	switch len(members) {
	case 1:
		return d.Keys.DeriveSharedKey(ctx, members[0], members[0])
	case 2:
		return d.Keys.DeriveSharedKey(ctx, members[0], members[1])
	}
	return domain.SymmetricKey{}, domain.Errorf(domain.KindInvalid, "session key",
		"direct session %s has %d participants", s.ID, len(members))
}

// ForwardSecret uses only keys negotiated through an ephemeral handshake.
type ForwardSecret struct {
	Keys *KeyStore
}

// SessionKey implements domain.KeyStrategy. The epoch is ignored; a new
// handshake replaces the key.
func (f ForwardSecret) SessionKey(_ context.Context, s domain.Session, _ int) (domain.SymmetricKey, error) {
	k, ok := f.Keys.ForwardSecretKey(s.ID)
	if !ok {
		return domain.SymmetricKey{}, ErrNoForwardSecretKey
	}
	return k, nil
}
