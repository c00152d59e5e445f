package session

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"wellnest/internal/domain"
	"wellnest/internal/protocol/kdf"
)

// ErrNotParticipant is returned when a user acts on a session they do not
// belong to.
var ErrNotParticipant = &domain.Error{Kind: domain.KindPermission, Op: "session"}

// KeyEvicter drops cached session keys after membership changes.
type KeyEvicter interface {
	Evict(id domain.SessionID, isGroup bool)
}

// Service is the session registry.
type Service struct {
	store    domain.DocumentStore
	profiles domain.ProfileLookup
	keys     KeyEvicter
	log      zerolog.Logger
}

// New constructs a session Service. profiles and keys may be nil.
func New(
	store domain.DocumentStore,
	profiles domain.ProfileLookup,
	keys KeyEvicter,
	log zerolog.Logger,
) *Service {
	return &Service{
		store:    store,
		profiles: profiles,
		keys:     keys,
		log:      log.With().Str("component", "session").Logger(),
	}
}

// CreateOrGetSession returns the direct session between a and b, creating
// it on first contact.
//
// Steps:
//  1. Compute the chat id; it is the same from either side.
//  2. Return early if the session document already exists.
//  3. Build the participant records, decorated with profiles when the
//     lookup succeeds.
//  4. Create the document; losing a creation race to the peer is success.
func (s *Service) CreateOrGetSession(ctx context.Context, a, b domain.UserID) (domain.SessionID, error) {
	for _, u := range []domain.UserID{a, b} {
		if !kdf.ValidIdentity(u) {
			return "", domain.Errorf(domain.KindInvalid, "create session", "invalid participant id %q", u)
		}
	}
	id := kdf.ChatID(a, b)
	path := domain.SessionPath(id)

	_, err := s.store.Get(ctx, path)
	switch {
	case err == nil:
		return id, nil
	case !errors.Is(err, domain.ErrNotFound):
		return "", err
	}

	participants, err := s.participantRecords(ctx, []domain.UserID{a, b})
	if err != nil {
		return "", err
	}
	data := domain.Data{
		"id":                id.String(),
		"participants":      participants,
		"createdAt":         domain.ServerTimestamp(),
		"encryptionEnabled": true,
		"messageCount":      0,
	}

	if err := s.store.Create(ctx, path, data); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			s.log.Debug().Str("session", id.String()).Msg("session created concurrently")
			return id, nil
		}
		return "", err
	}
	s.log.Info().Str("session", id.String()).Msg("session created")
	return id, nil
}

// CreateGroupSession creates a group session. The creator is always a
// member; the initial member list seeds key epoch 0.
func (s *Service) CreateGroupSession(
	ctx context.Context,
	creator domain.UserID,
	name string,
	members []domain.UserID,
) (domain.SessionID, error) {
	if !kdf.ValidIdentity(creator) {
		return "", domain.Errorf(domain.KindInvalid, "create group", "invalid creator id %q", creator)
	}
	all := uniqueSorted(append([]domain.UserID{creator}, members...))
	for _, u := range all {
		if !kdf.ValidIdentity(u) {
			return "", domain.Errorf(domain.KindInvalid, "create group", "invalid member id %q", u)
		}
	}
	if len(all) < 2 {
		return "", domain.Errorf(domain.KindInvalid, "create group", "a group needs at least two members")
	}

	id := kdf.GroupChatID()
	participants, err := s.participantRecords(ctx, all)
	if err != nil {
		return "", err
	}
	data := domain.Data{
		"id":                id.String(),
		"participants":      participants,
		"createdAt":         domain.ServerTimestamp(),
		"encryptionEnabled": true,
		"messageCount":      0,
		"isGroup":           true,
		"name":              name,
		"keyEpoch":          0,
		"keyEpochs":         map[string]any{"0": userStrings(all)},
	}
	if err := s.store.Create(ctx, domain.SessionPath(id), data); err != nil {
		return "", err
	}
	s.log.Info().Str("session", id.String()).Int("members", len(all)).Msg("group created")
	return id, nil
}

// GetSession loads a session.
func (s *Service) GetSession(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	doc, err := s.store.Get(ctx, domain.SessionPath(id))
	if err != nil {
		return domain.Session{}, err
	}
	return DecodeSession(doc)
}

// DecodeSession converts a session document into a Session.
func DecodeSession(doc domain.Document) (domain.Session, error) {
	var sess domain.Session
	if err := domain.DecodeData(doc.Data, &sess); err != nil {
		return domain.Session{}, err
	}
	if sess.ID == "" {
		sess.ID = domain.SessionID(doc.ID())
	}
	return sess, nil
}

// RecordSentMessage updates the session summary after a message write.
// The counter uses the store's increment so concurrent senders never lose
// counts.
func (s *Service) RecordSentMessage(
	ctx context.Context,
	id domain.SessionID,
	preview string,
	sender domain.UserID,
) error {
	return s.store.Set(ctx, domain.SessionPath(id), domain.Data{
		"lastMessage": map[string]any{
			"content":   preview,
			"senderId":  sender.String(),
			"timestamp": domain.ServerTimestamp(),
		},
		"messageCount": domain.Increment(1),
	}, domain.SetOptions{Merge: true})
}

// AddParticipant adds user to a group and advances its key epoch.
func (s *Service) AddParticipant(ctx context.Context, id domain.SessionID, user domain.UserID) error {
	if !kdf.ValidIdentity(user) {
		return domain.Errorf(domain.KindInvalid, "add participant", "invalid member id %q", user)
	}
	sess, err := s.groupSession(ctx, id)
	if err != nil {
		return err
	}
	if sess.HasParticipant(user) {
		return nil
	}

	records, err := s.participantRecords(ctx, []domain.UserID{user})
	if err != nil {
		return err
	}
	epoch := sess.KeyEpoch + 1
	members := uniqueSorted(append(sess.Members(), user))

	err = s.store.Set(ctx, domain.SessionPath(id), domain.Data{
		"participants": records,
		"keyEpoch":     epoch,
		"keyEpochs":    map[string]any{strconv.Itoa(epoch): userStrings(members)},
	}, domain.SetOptions{Merge: true})
	if err != nil {
		return err
	}
	s.evict(id)
	s.log.Info().Str("session", id.String()).Str("user", user.String()).Int("epoch", epoch).Msg("participant added")
	return nil
}

// RemoveParticipant removes user from a group and advances its key epoch.
// Earlier epochs stay readable to anyone who holds their member list.
func (s *Service) RemoveParticipant(ctx context.Context, id domain.SessionID, user domain.UserID) error {
	sess, err := s.groupSession(ctx, id)
	if err != nil {
		return err
	}
	if !sess.HasParticipant(user) {
		return nil
	}

	delete(sess.Participants, user)
	sess.KeyEpoch++
	if sess.KeyEpochs == nil {
		sess.KeyEpochs = map[string][]domain.UserID{}
	}
	sess.KeyEpochs[strconv.Itoa(sess.KeyEpoch)] = sess.Members()

	// Merges cannot delete map entries, so the document is rewritten.
	data, err := domain.EncodeData(sess)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, domain.SessionPath(id), data, domain.SetOptions{}); err != nil {
		return err
	}
	s.evict(id)
	s.log.Info().Str("session", id.String()).Str("user", user.String()).Int("epoch", sess.KeyEpoch).Msg("participant removed")
	return nil
}

// UpdatePresence stamps lastSeen on user's participant record.
func (s *Service) UpdatePresence(ctx context.Context, id domain.SessionID, user domain.UserID) error {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if !sess.HasParticipant(user) {
		return ErrNotParticipant
	}
	return s.store.Set(ctx, domain.SessionPath(id), domain.Data{
		"participants": map[string]any{
			user.String(): map[string]any{"lastSeen": domain.ServerTimestamp()},
		},
	}, domain.SetOptions{Merge: true})
}

func (s *Service) groupSession(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	if !sess.IsGroup {
		return domain.Session{}, domain.Errorf(domain.KindInvalid, "group membership", "%s is not a group", id)
	}
	return sess, nil
}

func (s *Service) evict(id domain.SessionID) {
	if s.keys != nil {
		s.keys.Evict(id, true)
	}
}

// participantRecords builds the participant sub-documents for users. A
// failed profile lookup leaves the record undecorated.
func (s *Service) participantRecords(ctx context.Context, users []domain.UserID) (map[string]any, error) {
	out := make(map[string]any, len(users))
	for _, u := range users {
		state := domain.ParticipantState{Identity: u}
		if s.profiles != nil {
			p, err := s.profiles.LookupProfile(ctx, u)
			if err != nil {
				s.log.Warn().Err(err).Str("user", u.String()).Msg("profile lookup failed")
			} else {
				state.CachedProfile = &p
			}
		}
		rec, err := domain.EncodeData(state)
		if err != nil {
			return nil, err
		}
		rec["joinedAt"] = domain.ServerTimestamp()
		out[u.String()] = rec
	}
	return out, nil
}

func uniqueSorted(ids []domain.UserID) []domain.UserID {
	seen := make(map[domain.UserID]struct{}, len(ids))
	out := make([]domain.UserID, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func userStrings(ids []domain.UserID) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// Compile-time assertion that Service implements domain.SessionService.
var _ domain.SessionService = (*Service)(nil)
