package domain_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"wellnest/internal/domain"
)

func TestWithTimeout_ClassifiesDeadline(t *testing.T) {
	err := domain.WithTimeout("derive key", context.DeadlineExceeded)
	require.ErrorIs(t, err, domain.ErrTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, domain.KindTimeout, domain.KindOf(err))
	require.True(t, domain.IsRetryable(err))

	wrapped := domain.WithTimeout("get", fmt.Errorf("query: %w", context.DeadlineExceeded))
	require.ErrorIs(t, wrapped, domain.ErrTimeout)
}

func TestWithTimeout_LeavesOtherErrorsAlone(t *testing.T) {
	require.NoError(t, domain.WithTimeout("op", nil))

	plain := errors.New("boom")
	require.Same(t, plain, domain.WithTimeout("op", plain))

	already := domain.NewError(domain.KindTimeout, "first", context.DeadlineExceeded)
	require.Same(t, already, domain.WithTimeout("second", already))

	cancelled := domain.WithTimeout("op", context.Canceled)
	require.NotErrorIs(t, cancelled, domain.ErrTimeout)
}

func TestErrorIs_MatchesByKind(t *testing.T) {
	err := domain.Errorf(domain.KindNotFound, "get", "no document at %s", "chats/x")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NotErrorIs(t, err, domain.ErrAlreadyExists)
	require.False(t, domain.IsRetryable(err))
	require.True(t, domain.IsRetryable(domain.NewError(domain.KindConnection, "ping", errors.New("refused"))))
}
