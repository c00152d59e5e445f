package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"wellnest/internal/domain"
	"wellnest/internal/store"
)

func TestMemoryStore_OfflineFailsOperationsAndNotifiesSubscribers(t *testing.T) {
	s := store.NewMemoryStore(nil, zerolog.Nop())
	defer s.Close()

	errs := make(chan error, 4)
	snaps := make(chan domain.Snapshot, 4)
	unsub, err := s.Subscribe(domain.DocumentTarget("chats/x"), func(snap domain.Snapshot) {
		snaps <- snap
	}, func(err error) { errs <- err })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()
	<-snaps

	s.SetOffline(true)
	select {
	case err := <-errs:
		if !errors.Is(err, domain.ErrConnection) {
			t.Fatalf("want connection error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber not told about outage")
	}

	if err := s.Ping(context.Background()); !domain.IsRetryable(err) {
		t.Fatalf("ping while offline: %v", err)
	}
	if _, err := s.Subscribe(domain.DocumentTarget("chats/y"), func(domain.Snapshot) {}, nil); err == nil {
		t.Fatal("subscribe while offline succeeded")
	}

	s.SetOffline(false)
	select {
	case <-snaps:
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after coming back online")
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := store.NewMemoryStore(nil, zerolog.Nop())
	ctx := context.Background()
	_ = s.Set(ctx, "users/a", domain.Data{"nested": map[string]any{"k": "v"}}, domain.SetOptions{})

	doc, _ := s.Get(ctx, "users/a")
	doc.Data["nested"].(map[string]any)["k"] = "mutated"

	again, _ := s.Get(ctx, "users/a")
	if again.Data["nested"].(map[string]any)["k"] != "v" {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestMemoryStore_CloseStopsSubscribers(t *testing.T) {
	s := store.NewMemoryStore(nil, zerolog.Nop())
	snaps := make(chan domain.Snapshot, 1)
	if _, err := s.Subscribe(domain.DocumentTarget("chats/x"), func(snap domain.Snapshot) { snaps <- snap }, nil); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	<-snaps
	if s.Subscribers() != 1 {
		t.Fatalf("subscribers = %d", s.Subscribers())
	}
	_ = s.Close()
	if s.Subscribers() != 0 {
		t.Fatalf("subscribers after close = %d", s.Subscribers())
	}
	if err := s.Set(context.Background(), "chats/x", domain.Data{}, domain.SetOptions{}); err == nil {
		t.Fatal("set after close succeeded")
	}
}
