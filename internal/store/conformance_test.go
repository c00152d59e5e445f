package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"wellnest/internal/domain"
	"wellnest/internal/store"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// testClock is a mock clock that also drives backends keeping their own
// time, such as a miniredis server.
type testClock struct {
	*clock.Mock
	onSet []func(time.Time)
}

func (c *testClock) Add(d time.Duration) {
	c.Mock.Add(d)
	for _, fn := range c.onSet {
		fn(c.Now())
	}
}

type factory func(t *testing.T, clk *testClock) domain.DocumentStore

func backends() map[string]factory {
	return map[string]factory{
		"memory": func(t *testing.T, clk *testClock) domain.DocumentStore {
			s := store.NewMemoryStore(clk.Mock, zerolog.Nop())
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"sqlite": func(t *testing.T, clk *testClock) domain.DocumentStore {
			s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "docs.db"), clk.Mock, zerolog.Nop())
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"redis": func(t *testing.T, clk *testClock) domain.DocumentStore {
			mr := miniredis.RunT(t)
			mr.SetTime(clk.Now())
			clk.onSet = append(clk.onSet, mr.SetTime)
			return newRedisStore(t, "redis://"+mr.Addr())
		},
	}
}

func newRedisStore(t *testing.T, url string) *store.RedisStore {
	t.Helper()
	s, err := store.NewRedisStore(context.Background(), url, "test", zerolog.Nop())
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s domain.DocumentStore, clk *testClock)) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			clk := &testClock{Mock: clock.NewMock()}
			clk.Set(epoch)
			fn(t, newStore(t, clk), clk)
		})
	}
}

func TestGet_MissingIsNotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s domain.DocumentStore, _ *testClock) {
		_, err := s.Get(context.Background(), "chats/nope")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("want not found, got %v", err)
		}
	})
}

func TestSet_ReplaceAndMerge(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s domain.DocumentStore, _ *testClock) {
		ctx := context.Background()
		path := "chats/dm_a_b"

		err := s.Set(ctx, path, domain.Data{
			"name": "x",
			"participants": map[string]any{
				"a": map[string]any{"isTyping": false, "joinedAt": 1},
			},
		}, domain.SetOptions{})
		if err != nil {
			t.Fatalf("set: %v", err)
		}

		err = s.Set(ctx, path, domain.Data{
			"participants": map[string]any{
				"a": map[string]any{"isTyping": true},
			},
		}, domain.SetOptions{Merge: true})
		if err != nil {
			t.Fatalf("merge: %v", err)
		}

		doc, err := s.Get(ctx, path)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		a := doc.Data["participants"].(map[string]any)["a"].(map[string]any)
		if a["isTyping"] != true || a["joinedAt"] != float64(1) || doc.Data["name"] != "x" {
			t.Fatalf("merge lost fields: %#v", doc.Data)
		}

		if err := s.Set(ctx, path, domain.Data{"only": "this"}, domain.SetOptions{}); err != nil {
			t.Fatalf("replace: %v", err)
		}
		doc, err = s.Get(ctx, path)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if len(doc.Data) != 1 || doc.Data["only"] != "this" {
			t.Fatalf("replace kept old fields: %#v", doc.Data)
		}
	})
}

func TestSet_ResolvesSentinels(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s domain.DocumentStore, clk *testClock) {
		ctx := context.Background()
		path := "chats/dm_a_b"

		err := s.Set(ctx, path, domain.Data{
			"createdAt":    domain.ServerTimestamp(),
			"messageCount": domain.Increment(1),
		}, domain.SetOptions{Merge: true})
		if err != nil {
			t.Fatalf("set: %v", err)
		}
		clk.Add(time.Second)
		err = s.Set(ctx, path, domain.Data{
			"messageCount": domain.Increment(2),
			"lastMessage":  map[string]any{"timestamp": domain.ServerTimestamp()},
		}, domain.SetOptions{Merge: true})
		if err != nil {
			t.Fatalf("set: %v", err)
		}

		doc, err := s.Get(ctx, path)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got := doc.Data["messageCount"]; got != float64(3) {
			t.Fatalf("messageCount = %v, want 3", got)
		}
		created := int64(doc.Data["createdAt"].(float64))
		if created != epoch.UnixMilli() {
			t.Fatalf("createdAt = %d, want %d", created, epoch.UnixMilli())
		}
		last := int64(doc.Data["lastMessage"].(map[string]any)["timestamp"].(float64))
		if last != epoch.Add(time.Second).UnixMilli() {
			t.Fatalf("lastMessage.timestamp = %d", last)
		}
		if doc.UpdateTime != last {
			t.Fatalf("update time %d != %d", doc.UpdateTime, last)
		}
	})
}

func TestServerTimestamp_StrictlyIncreasing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s domain.DocumentStore, _ *testClock) {
		ctx := context.Background()
		var prev int64
		for i := 0; i < 5; i++ {
			path := domain.JoinPath("chats/x/messages", string(rune('a'+i)))
			if err := s.Set(ctx, path, domain.Data{"timestamp": domain.ServerTimestamp()}, domain.SetOptions{}); err != nil {
				t.Fatalf("set: %v", err)
			}
			doc, err := s.Get(ctx, path)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			ts := int64(doc.Data["timestamp"].(float64))
			if ts <= prev {
				t.Fatalf("timestamp %d not after %d", ts, prev)
			}
			prev = ts
		}
	})
}

func TestCreate_IsCreateIfAbsent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s domain.DocumentStore, _ *testClock) {
		ctx := context.Background()
		path := "chats/dm_a_b"

		if err := s.Create(ctx, path, domain.Data{"v": 1}); err != nil {
			t.Fatalf("create: %v", err)
		}
		err := s.Create(ctx, path, domain.Data{"v": 2})
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("want already exists, got %v", err)
		}
		doc, err := s.Get(ctx, path)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if doc.Data["v"] != float64(1) {
			t.Fatalf("second create overwrote: %#v", doc.Data)
		}
	})
}

func TestCreate_ConcurrentCallersOneWinner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s domain.DocumentStore, _ *testClock) {
		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.Create(context.Background(), "chats/dm_u1_u2", domain.Data{"x": 1}); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		if wins.Load() != 1 {
			t.Fatalf("%d creates succeeded, want 1", wins.Load())
		}
	})
}

func TestQuery_OrderLimitAndDirectChildrenOnly(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s domain.DocumentStore, _ *testClock) {
		ctx := context.Background()
		col := "chats/s/messages"
		for i, ts := range []int{30, 10, 20, 40} {
			p := domain.JoinPath(col, string(rune('a'+i)))
			if err := s.Set(ctx, p, domain.Data{"timestamp": ts}, domain.SetOptions{}); err != nil {
				t.Fatalf("set: %v", err)
			}
		}
		_ = s.Set(ctx, col+"/a/nested/z", domain.Data{"timestamp": 99}, domain.SetOptions{})
		_ = s.Set(ctx, col+"/untimed", domain.Data{"body": "no timestamp"}, domain.SetOptions{})

		docs, err := s.Query(ctx, domain.Query{Collection: col, OrderBy: "timestamp", Desc: true, Limit: 3})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		var got []float64
		for _, d := range docs {
			got = append(got, d.Data["timestamp"].(float64))
		}
		want := []float64{40, 30, 20}
		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("got %v, want %v", got, want)
			}
		}
	})
}

func TestSubscribe_DocumentSnapshots(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s domain.DocumentStore, _ *testClock) {
		snaps := make(chan domain.Snapshot, 16)
		unsub, err := s.Subscribe(domain.DocumentTarget("chats/x"), func(snap domain.Snapshot) {
			snaps <- snap
		}, nil)
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		defer unsub()

		first := next(t, snaps)
		if first.Exists {
			t.Fatal("initial snapshot of a missing document reports Exists")
		}

		if err := s.Set(context.Background(), "chats/x", domain.Data{"n": 1}, domain.SetOptions{}); err != nil {
			t.Fatalf("set: %v", err)
		}
		got := waitFor(t, snaps, func(s domain.Snapshot) bool { return s.Exists })
		if got.Document.Data["n"] != float64(1) {
			t.Fatalf("snapshot data = %#v", got.Document.Data)
		}

		// Writes elsewhere are not delivered.
		_ = s.Set(context.Background(), "chats/y", domain.Data{"n": 2}, domain.SetOptions{})
		select {
		case snap := <-snaps:
			if snap.Document.Path != "chats/x" {
				t.Fatalf("unrelated snapshot %v", snap.Document.Path)
			}
		case <-time.After(50 * time.Millisecond):
		}
	})
}

func TestSubscribe_QuerySeesLatestStateInOrder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s domain.DocumentStore, _ *testClock) {
		snaps := make(chan domain.Snapshot, 64)
		q := domain.Query{Collection: "chats/s/messages", OrderBy: "timestamp"}
		unsub, err := s.Subscribe(domain.QueryTarget(q), func(snap domain.Snapshot) { snaps <- snap }, nil)
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		defer unsub()
		_ = next(t, snaps)

		for i := 0; i < 5; i++ {
			p := domain.JoinPath(q.Collection, string(rune('a'+i)))
			if err := s.Set(context.Background(), p, domain.Data{"timestamp": i}, domain.SetOptions{}); err != nil {
				t.Fatalf("set: %v", err)
			}
		}

		prev := -1
		last := waitFor(t, snaps, func(snap domain.Snapshot) bool {
			if len(snap.Documents) < prev {
				t.Fatalf("snapshot went backwards: %d after %d docs", len(snap.Documents), prev)
			}
			prev = len(snap.Documents)
			return len(snap.Documents) == 5
		})
		for i, d := range last.Documents {
			if d.Data["timestamp"] != float64(i) {
				t.Fatalf("documents out of order: %v", last.Documents)
			}
		}
	})
}

func TestSubscribe_UnsubscribeStopsDelivery(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s domain.DocumentStore, _ *testClock) {
		var calls atomic.Int32
		first := make(chan struct{}, 1)
		unsub, err := s.Subscribe(domain.DocumentTarget("chats/x"), func(domain.Snapshot) {
			calls.Add(1)
			select {
			case first <- struct{}{}:
			default:
			}
		}, nil)
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		<-first
		unsub()
		before := calls.Load()

		_ = s.Set(context.Background(), "chats/x", domain.Data{"n": 1}, domain.SetOptions{})
		time.Sleep(50 * time.Millisecond)
		if calls.Load() != before {
			t.Fatal("snapshot delivered after unsubscribe")
		}
	})
}

func TestInvalidPaths(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s domain.DocumentStore, _ *testClock) {
		for _, p := range []string{"", "/chats", "chats/", "chats//x"} {
			if err := s.Set(context.Background(), p, domain.Data{}, domain.SetOptions{}); !errors.Is(err, domain.ErrInvalid) {
				t.Fatalf("path %q: want invalid, got %v", p, err)
			}
		}
	})
}

func next(t *testing.T, ch <-chan domain.Snapshot) domain.Snapshot {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return domain.Snapshot{}
}

func waitFor(t *testing.T, ch <-chan domain.Snapshot, ok func(domain.Snapshot) bool) domain.Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if ok(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}
