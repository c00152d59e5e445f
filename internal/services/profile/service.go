package profile

import (
	"context"

	"wellnest/internal/domain"
)

// Service stores profiles at users/{id}.
type Service struct {
	store domain.DocumentStore
}

// New constructs a profile Service.
func New(store domain.DocumentStore) *Service { return &Service{store: store} }

// LookupProfile returns the profile of id, or a NotFound error.
func (s *Service) LookupProfile(ctx context.Context, id domain.UserID) (domain.Profile, error) {
	doc, err := s.store.Get(ctx, domain.ProfilePath(id))
	if err != nil {
		return domain.Profile{}, err
	}
	var p domain.Profile
	if err := domain.DecodeData(doc.Data, &p); err != nil {
		return domain.Profile{}, err
	}
	if p.Identity == "" {
		p.Identity = id
	}
	return p, nil
}

// SaveProfile writes p, merging over any existing profile.
func (s *Service) SaveProfile(ctx context.Context, p domain.Profile) error {
	if p.Identity == "" {
		return domain.Errorf(domain.KindInvalid, "save profile", "empty identity")
	}
	data, err := domain.EncodeData(p)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, domain.ProfilePath(p.Identity), data, domain.SetOptions{Merge: true})
}

// SetOnline flips the online flag of id.
func (s *Service) SetOnline(ctx context.Context, id domain.UserID, online bool) error {
	return s.store.Set(ctx, domain.ProfilePath(id), domain.Data{
		"identity": id.String(),
		"isOnline": online,
	}, domain.SetOptions{Merge: true})
}

// Compile-time assertion that Service implements domain.ProfileLookup.
var _ domain.ProfileLookup = (*Service)(nil)
