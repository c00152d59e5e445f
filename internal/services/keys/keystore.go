package keys

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"wellnest/internal/crypto"
	"wellnest/internal/domain"
	"wellnest/internal/protocol/ephemeral"
	"wellnest/internal/protocol/kdf"
)

// Cache key prefixes.
const (
	directPrefix        = "dm:"
	groupPrefix         = "group:"
	forwardSecretPrefix = "fs:"
)

// DirectCacheKey is the cache key of a direct session's derived key.
func DirectCacheKey(id domain.SessionID) string { return directPrefix + id.String() }

// GroupCacheKey is the cache key of a group key at epoch.
func GroupCacheKey(id domain.SessionID, epoch int) string {
	if epoch == 0 {
		return groupPrefix + id.String()
	}
	return groupPrefix + id.String() + "@" + strconv.Itoa(epoch)
}

// ForwardSecretCacheKey is the cache key of an ephemeral-derived key.
func ForwardSecretCacheKey(id domain.SessionID) string { return forwardSecretPrefix + id.String() }

// KeyStore caches session keys. It is safe for concurrent use; concurrent
// derivations of the same key run once.
type KeyStore struct {
	salt []byte
	log  zerolog.Logger

	mu   sync.RWMutex
	keys map[string]domain.SymmetricKey
	gen  uint64

	flight singleflight.Group
}

// NewKeyStore returns an empty store deriving with the application salt.
func NewKeyStore(salt []byte, log zerolog.Logger) *KeyStore {
	return &KeyStore{
		salt: append([]byte(nil), salt...),
		log:  log.With().Str("component", "keystore").Logger(),
		keys: make(map[string]domain.SymmetricKey),
	}
}

// DeriveSharedKey returns the direct session key for a and b.
func (s *KeyStore) DeriveSharedKey(ctx context.Context, a, b domain.UserID) (domain.SymmetricKey, error) {
	id := kdf.ChatID(a, b)
	return s.getOrDerive(ctx, DirectCacheKey(id), func() domain.SymmetricKey {
		return kdf.DirectKey(id, s.salt)
	})
}

// DeriveGroupKey returns the group key for members at epoch.
func (s *KeyStore) DeriveGroupKey(
	ctx context.Context,
	groupID domain.SessionID,
	members []domain.UserID,
	epoch int,
) (domain.SymmetricKey, error) {
	if len(members) == 0 {
		return domain.SymmetricKey{}, domain.Errorf(domain.KindInvalid, "derive group key", "group %s has no members", groupID)
	}
	members = append([]domain.UserID(nil), members...)
	return s.getOrDerive(ctx, GroupCacheKey(groupID, epoch), func() domain.SymmetricKey {
		return kdf.GroupKey(groupID, members, epoch, s.salt)
	})
}

// GenerateEphemeralKeyPair starts a forward-secret negotiation.
func (s *KeyStore) GenerateEphemeralKeyPair() (ephemeral.KeyPair, error) {
	return ephemeral.GenerateKeyPair()
}

// DeriveFromEphemeral completes a forward-secret negotiation and caches the
// resulting key for the session.
func (s *KeyStore) DeriveFromEphemeral(
	id domain.SessionID,
	ours ephemeral.KeyPair,
	peerPublic []byte,
) (domain.SymmetricKey, error) {
	key, err := ephemeral.DeriveKey(ours, peerPublic, id)
	if err != nil {
		return domain.SymmetricKey{}, err
	}
	s.put(ForwardSecretCacheKey(id), key)
	s.log.Debug().Str("session", id.String()).Msg("forward-secret key established")
	return key, nil
}

// ForwardSecretKey returns the negotiated key for a session, if any.
func (s *KeyStore) ForwardSecretKey(id domain.SessionID) (domain.SymmetricKey, bool) {
	return s.get(ForwardSecretCacheKey(id))
}

// Evict drops the cached keys of one session. For groups every epoch goes.
func (s *KeyStore) Evict(id domain.SessionID, isGroup bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	if !isGroup {
		delete(s.keys, DirectCacheKey(id))
		delete(s.keys, ForwardSecretCacheKey(id))
		return
	}
	base := GroupCacheKey(id, 0)
	for k := range s.keys {
		if k == base || strings.HasPrefix(k, base+"@") {
			delete(s.keys, k)
		}
	}
	delete(s.keys, ForwardSecretCacheKey(id))
}

// EvictAll drops every cached key.
func (s *KeyStore) EvictAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.keys = make(map[string]domain.SymmetricKey)
}

// Len returns the number of cached keys.
func (s *KeyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Snapshot exports the forward-secret keys, which cannot be re-derived, for
// persistence in a keyring.
func (s *KeyStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string)
	for k, v := range s.keys {
		if strings.HasPrefix(k, forwardSecretPrefix) {
			out[k] = crypto.ExportKey(v)
		}
	}
	return out
}

// Restore imports keys produced by Snapshot.
func (s *KeyStore) Restore(exported map[string]string) error {
	parsed := make(map[string]domain.SymmetricKey, len(exported))
	for k, v := range exported {
		key, err := crypto.ImportKey(v)
		if err != nil {
			return err
		}
		parsed[k] = key
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range parsed {
		s.keys[k] = v
	}
	return nil
}

func (s *KeyStore) get(cacheKey string) (domain.SymmetricKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[cacheKey]
	return k, ok
}

func (s *KeyStore) put(cacheKey string, key domain.SymmetricKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[cacheKey] = key
}

func (s *KeyStore) getOrDerive(
	ctx context.Context,
	cacheKey string,
	derive func() domain.SymmetricKey,
) (domain.SymmetricKey, error) {
	if k, ok := s.get(cacheKey); ok {
		return k, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.SymmetricKey{}, domain.WithTimeout("derive key", err)
	}

	ch := s.flight.DoChan(cacheKey, func() (any, error) {
		s.mu.RLock()
		gen := s.gen
		s.mu.RUnlock()

		key := derive()

		// An eviction raced with the derivation; hand the key to the
		// waiting callers but do not resurrect the cache entry.
		s.mu.Lock()
		if s.gen == gen {
			s.keys[cacheKey] = key
		}
		s.mu.Unlock()

		s.log.Debug().Str("key", cacheKey).Msg("derived session key")
		return key, nil
	})

	select {
	case res := <-ch:
		return res.Val.(domain.SymmetricKey), nil
	case <-ctx.Done():
		return domain.SymmetricKey{}, domain.WithTimeout("derive key", ctx.Err())
	}
}
