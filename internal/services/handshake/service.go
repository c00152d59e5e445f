package handshake

import (
	"context"
	"encoding/base64"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wellnest/internal/crypto"
	"wellnest/internal/domain"
	"wellnest/internal/protocol/ephemeral"
	"wellnest/internal/services/keys"
	"wellnest/internal/subscription"
)

// Document fields.
const (
	fieldPublicKey = "publicKey"
	fieldPeerKey   = "peerKey"
	fieldCreatedAt = "createdAt"
)

// ErrPeerKey indicates the peer published a key that cannot be used.
var ErrPeerKey = &domain.Error{Kind: domain.KindInvalid, Op: "handshake: malformed peer key"}

// Service runs ephemeral key exchanges.
type Service struct {
	store domain.DocumentStore
	subs  *subscription.Manager
	keys  *keys.KeyStore
	log   zerolog.Logger
}

// New constructs a handshake Service.
func New(store domain.DocumentStore, subs *subscription.Manager, ks *keys.KeyStore, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		subs:  subs,
		keys:  ks,
		log:   log.With().Str("component", "handshake").Logger(),
	}
}

// Negotiate establishes a forward-secret key for the direct session between
// user and peer. It blocks until the peer completes its side or ctx ends.
// On success the key is cached in the key store.
//
// Steps:
//  1. Generate an ephemeral key pair and replace our handshake document.
//  2. Watch the peer's document. Each new peer public key yields a fresh
//     candidate key, acknowledged by writing that key into our document.
//  3. Finish when the peer acknowledges our public key.
func (s *Service) Negotiate(
	ctx context.Context,
	sessionID domain.SessionID,
	user, peer domain.UserID,
) (domain.SymmetricKey, error) {
	kp, err := s.keys.GenerateEphemeralKeyPair()
	if err != nil {
		return domain.SymmetricKey{}, err
	}
	ours := crypto.B64(kp.PublicKey())
	ownPath := domain.HandshakePath(sessionID, user)

	err = s.store.Set(ctx, ownPath, domain.Data{
		fieldPublicKey: ours,
		fieldCreatedAt: domain.ServerTimestamp(),
	}, domain.SetOptions{})
	if err != nil {
		return domain.SymmetricKey{}, err
	}

	peerPath := domain.HandshakePath(sessionID, peer)
	stream := s.subs.Watch(ctx, "handshake/"+peerPath+"/"+uuid.NewString(), subscription.Document(s.store, peerPath))
	defer stream.Close()

	var (
		used    string
		usedRaw []byte
	)
	for {
		var ev subscription.Event
		select {
		case <-ctx.Done():
			return domain.SymmetricKey{}, domain.WithTimeout("handshake", ctx.Err())
		case e, ok := <-stream.Events():
			if !ok {
				return domain.SymmetricKey{}, domain.WithTimeout("handshake", ctx.Err())
			}
			ev = e
		}
		switch ev.Kind {
		case subscription.EventError:
			return domain.SymmetricKey{}, ev.Err
		case subscription.EventClosed:
			return domain.SymmetricKey{}, domain.Errorf(domain.KindConnection, "handshake", "listener closed")
		}
		if !ev.Snapshot.Exists {
			continue
		}

		theirs, _ := ev.Snapshot.Document.Data[fieldPublicKey].(string)
		acked, _ := ev.Snapshot.Document.Data[fieldPeerKey].(string)
		if theirs == "" {
			continue
		}
		if theirs != used {
			raw, err := base64.StdEncoding.DecodeString(theirs)
			if err != nil {
				return domain.SymmetricKey{}, ErrPeerKey
			}
			// Validate before acknowledging; the result is discarded.
			if _, err := ephemeral.DeriveKey(kp, raw, sessionID); err != nil {
				return domain.SymmetricKey{}, ErrPeerKey
			}
			err = s.store.Set(ctx, ownPath, domain.Data{fieldPeerKey: theirs}, domain.SetOptions{Merge: true})
			if err != nil {
				return domain.SymmetricKey{}, err
			}
			used, usedRaw = theirs, raw
			s.log.Debug().Str("session", sessionID.String()).Msg("acknowledged peer key")
		}
		if acked != ours {
			continue
		}

		key, err := s.keys.DeriveFromEphemeral(sessionID, kp, usedRaw)
		if err != nil {
			return domain.SymmetricKey{}, err
		}
		s.log.Info().Str("session", sessionID.String()).Str("peer", peer.String()).Msg("forward-secret key negotiated")
		return key, nil
	}
}
