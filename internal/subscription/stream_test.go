package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wellnest/internal/domain"
	"wellnest/internal/subscription"
)

func nextEvent(t *testing.T, s *subscription.Stream) (subscription.Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		return ev, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return subscription.Event{}, false
}

func TestWatch_DeliversUpdatesAndErrors(t *testing.T) {
	m, clk := newManager(t, nil, func(o *subscription.Options) { o.EnableReconnection = false })
	src := &fakeSource{clk: clk}

	s := m.Watch(context.Background(), "w", src.factory())
	defer s.Close()

	src.deliver(domain.Snapshot{Exists: true, Document: domain.Document{Path: "chats/x"}})
	ev, ok := nextEvent(t, s)
	require.True(t, ok)
	require.Equal(t, subscription.EventUpdate, ev.Kind)
	require.Equal(t, "chats/x", ev.Snapshot.Document.Path)

	src.raise(errConn)
	ev, ok = nextEvent(t, s)
	require.True(t, ok)
	require.Equal(t, subscription.EventError, ev.Kind)
	require.ErrorIs(t, ev.Err, domain.ErrConnection)
}

func TestWatch_CoalescesToLatest(t *testing.T) {
	m, clk := newManager(t, nil)
	src := &fakeSource{clk: clk}

	s := m.Watch(context.Background(), "w", src.factory())
	defer s.Close()

	for i := 0; i < 50; i++ {
		src.deliver(domain.Snapshot{Documents: make([]domain.Document, i)})
	}

	// Whatever was skipped, the reader ends on the newest snapshot.
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-s.Events():
			require.Equal(t, subscription.EventUpdate, ev.Kind)
			if len(ev.Snapshot.Documents) == 49 {
				return
			}
		case <-deadline:
			t.Fatal("latest snapshot never arrived")
		}
	}
}

func TestWatch_DestroyEmitsClosed(t *testing.T) {
	m, clk := newManager(t, nil)
	src := &fakeSource{clk: clk}
	s := m.Watch(context.Background(), "w", src.factory())

	m.Destroy()
	ev, ok := nextEvent(t, s)
	require.True(t, ok)
	require.Equal(t, subscription.EventClosed, ev.Kind)
	_, ok = nextEvent(t, s)
	require.False(t, ok)
	require.Equal(t, 1, src.unsubCount())
}

func TestWatch_ContextCancelDetaches(t *testing.T) {
	m, clk := newManager(t, nil)
	src := &fakeSource{clk: clk}
	ctx, cancel := context.WithCancel(context.Background())

	s := m.Watch(ctx, "w", src.factory())
	cancel()

	require.Eventually(t, func() bool {
		_, attached := m.ListenerState("w")
		return !attached
	}, time.Second, time.Millisecond)
	require.Equal(t, 1, src.unsubCount())

	_, ok := nextEvent(t, s)
	require.False(t, ok)
}

func TestWatch_AfterDestroyEndsImmediately(t *testing.T) {
	m, clk := newManager(t, nil)
	m.Destroy()

	s := m.Watch(context.Background(), "w", (&fakeSource{clk: clk}).factory())
	ev, ok := nextEvent(t, s)
	require.True(t, ok)
	require.Equal(t, subscription.EventClosed, ev.Kind)
}
