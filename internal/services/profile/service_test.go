package profile_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"wellnest/internal/domain"
	"wellnest/internal/services/profile"
	"wellnest/internal/store"
)

func TestSaveAndLookup(t *testing.T) {
	svc := profile.New(store.NewMemoryStore(nil, zerolog.Nop()))
	ctx := context.Background()

	_, err := svc.LookupProfile(ctx, "alice")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, svc.SaveProfile(ctx, domain.Profile{Identity: "alice", DisplayName: "Alice"}))
	require.NoError(t, svc.SetOnline(ctx, "alice", true))

	p, err := svc.LookupProfile(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", p.DisplayName)
	require.True(t, p.IsOnline)

	require.ErrorIs(t, svc.SaveProfile(ctx, domain.Profile{}), domain.ErrInvalid)
}
