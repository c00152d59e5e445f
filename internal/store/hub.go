package store

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"wellnest/internal/domain"
)

// loader reads the current state of a watch target.
type loader func(ctx context.Context, target domain.WatchTarget) (domain.Snapshot, error)

// hub fans change notifications out to subscribers. Each subscriber has its
// own delivery goroutine; a change only marks it dirty, and the goroutine
// re-reads the target, so snapshots reach a subscriber in order and a slow
// subscriber sees the latest state rather than a backlog.
type hub struct {
	load loader
	log  zerolog.Logger

	mu     sync.Mutex
	subs   map[uint64]*subscriber
	next   uint64
	closed bool
}

type subscriber struct {
	target     domain.WatchTarget
	onSnapshot func(domain.Snapshot)
	onError    func(error)

	kick chan struct{}
	errc chan error
	done chan struct{}
	once sync.Once
}

func newHub(load loader, log zerolog.Logger) *hub {
	return &hub{load: load, log: log, subs: make(map[uint64]*subscriber)}
}

func (h *hub) subscribe(
	target domain.WatchTarget,
	onSnapshot func(domain.Snapshot),
	onError func(error),
) (func(), error) {
	if onSnapshot == nil {
		return nil, domain.Errorf(domain.KindInvalid, "subscribe", "nil snapshot callback")
	}
	sub := &subscriber{
		target:     target,
		onSnapshot: onSnapshot,
		onError:    onError,
		kick:       make(chan struct{}, 1),
		errc:       make(chan error, 1),
		done:       make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, errStoreClosed
	}
	id := h.next
	h.next++
	h.subs[id] = sub
	h.mu.Unlock()

	sub.kick <- struct{}{}
	go h.run(sub)

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		sub.stop()
	}, nil
}

func (h *hub) run(sub *subscriber) {
	for {
		select {
		case <-sub.done:
			return
		case err := <-sub.errc:
			if sub.active() && sub.onError != nil {
				sub.onError(err)
			}
		case <-sub.kick:
			snap, err := h.load(context.Background(), sub.target)
			if !sub.active() {
				return
			}
			if err != nil {
				h.log.Debug().Err(err).Str("target", sub.target.String()).Msg("snapshot load failed")
				if sub.onError != nil {
					sub.onError(err)
				}
				continue
			}
			sub.onSnapshot(snap)
		}
	}
}

// notify marks every subscriber that can see docPath as dirty.
func (h *hub) notify(docPath string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.target.Matches(docPath) {
			select {
			case sub.kick <- struct{}{}:
			default:
			}
		}
	}
}

// notifyAll marks every subscriber dirty.
func (h *hub) notifyAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		select {
		case sub.kick <- struct{}{}:
		default:
		}
	}
}

// fail reports err to every subscriber. Subscriptions stay registered; the
// owner decides whether to unsubscribe.
func (h *hub) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		select {
		case sub.errc <- err:
		default:
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *hub) close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[uint64]*subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

func (s *subscriber) stop() { s.once.Do(func() { close(s.done) }) }

func (s *subscriber) active() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

var errStoreClosed = domain.NewError(domain.KindConnection, "store", errors.New("store closed"))

// readSnapshot builds a snapshot from a backend's Get and Query.
func readSnapshot(
	ctx context.Context,
	target domain.WatchTarget,
	get func(context.Context, string) (domain.Document, error),
	query func(context.Context, domain.Query) ([]domain.Document, error),
) (domain.Snapshot, error) {
	snap := domain.Snapshot{Target: target}
	if target.IsQuery() {
		docs, err := query(ctx, *target.Query)
		if err != nil {
			return domain.Snapshot{}, err
		}
		snap.Exists = true
		snap.Documents = docs
		return snap, nil
	}
	doc, err := get(ctx, target.Path)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		snap.Document = domain.Document{Path: target.Path}
		return snap, nil
	case err != nil:
		return domain.Snapshot{}, err
	}
	snap.Exists = true
	snap.Document = doc
	return snap, nil
}

// validPath rejects empty paths and paths with empty segments.
func validPath(op, p string) error {
	if p == "" || p[0] == '/' || p[len(p)-1] == '/' {
		return domain.Errorf(domain.KindInvalid, op, "invalid path %q", p)
	}
	for i := 1; i < len(p); i++ {
		if p[i] == '/' && p[i-1] == '/' {
			return domain.Errorf(domain.KindInvalid, op, "invalid path %q", p)
		}
	}
	return nil
}
