package store

import (
	"context"
	"errors"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"wellnest/internal/domain"
)

// MemoryStore is an in-process DocumentStore.
type MemoryStore struct {
	clock clock.Clock
	hub   *hub

	mu      sync.RWMutex
	docs    map[string]domain.Document
	lastTS  int64
	offline bool
	closed  bool
}

var _ domain.DocumentStore = (*MemoryStore)(nil)

// ErrOffline is returned by a MemoryStore taken offline with SetOffline.
var ErrOffline = domain.NewError(domain.KindConnection, "memory store", errors.New("offline"))

// NewMemoryStore returns an empty store. A nil clock uses the wall clock.
func NewMemoryStore(clk clock.Clock, log zerolog.Logger) *MemoryStore {
	if clk == nil {
		clk = clock.New()
	}
	s := &MemoryStore{clock: clk, docs: make(map[string]domain.Document)}
	s.hub = newHub(s.snapshot, log.With().Str("store", "memory").Logger())
	return s
}

// Get implements domain.DocumentStore.
func (s *MemoryStore) Get(ctx context.Context, path string) (domain.Document, error) {
	if err := s.check(ctx, "get", path); err != nil {
		return domain.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[path]
	if !ok {
		return domain.Document{}, domain.Errorf(domain.KindNotFound, "get", "%s", path)
	}
	return cloneDoc(doc), nil
}

// Set implements domain.DocumentStore.
func (s *MemoryStore) Set(ctx context.Context, path string, data domain.Data, opts domain.SetOptions) error {
	if err := s.check(ctx, "set", path); err != nil {
		return err
	}
	s.mu.Lock()
	var existing domain.Data
	if cur, ok := s.docs[path]; ok {
		existing = cur.Data
	}
	now := s.nextTimestamp()
	body, err := resolveWrite(existing, data, opts.Merge, now)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.docs[path] = domain.Document{Path: path, Data: body, UpdateTime: now}
	s.mu.Unlock()

	s.hub.notify(path)
	return nil
}

// Create implements domain.DocumentStore.
func (s *MemoryStore) Create(ctx context.Context, path string, data domain.Data) error {
	if err := s.check(ctx, "create", path); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.docs[path]; ok {
		s.mu.Unlock()
		return domain.Errorf(domain.KindAlreadyExists, "create", "%s", path)
	}
	now := s.nextTimestamp()
	body, err := resolveWrite(nil, data, false, now)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.docs[path] = domain.Document{Path: path, Data: body, UpdateTime: now}
	s.mu.Unlock()

	s.hub.notify(path)
	return nil
}

// Query implements domain.DocumentStore.
func (s *MemoryStore) Query(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	if err := s.check(ctx, "query", q.Collection); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var docs []domain.Document
	for p, d := range s.docs {
		if isChild(q.Collection, p) {
			docs = append(docs, cloneDoc(d))
		}
	}
	s.mu.RUnlock()
	return applyQuery(docs, q), nil
}

// Subscribe implements domain.DocumentStore.
func (s *MemoryStore) Subscribe(
	target domain.WatchTarget,
	onSnapshot func(domain.Snapshot),
	onError func(error),
) (func(), error) {
	s.mu.RLock()
	offline := s.offline
	s.mu.RUnlock()
	if offline {
		return nil, ErrOffline
	}
	return s.hub.subscribe(target, onSnapshot, onError)
}

// Ping implements domain.DocumentStore.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return s.check(ctx, "ping", "ping")
}

// Close implements domain.DocumentStore.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.close()
	return nil
}

// SetOffline simulates losing the backend. Going offline fails every
// operation with ErrOffline and reports it to live subscribers; coming back
// online re-delivers the current state to them.
func (s *MemoryStore) SetOffline(offline bool) {
	s.mu.Lock()
	was := s.offline
	s.offline = offline
	s.mu.Unlock()

	switch {
	case offline && !was:
		s.hub.fail(ErrOffline)
	case !offline && was:
		s.hub.notifyAll()
	}
}

// Subscribers returns the number of live subscriptions.
func (s *MemoryStore) Subscribers() int { return s.hub.count() }

func (s *MemoryStore) snapshot(ctx context.Context, target domain.WatchTarget) (domain.Snapshot, error) {
	return readSnapshot(ctx, target, s.Get, s.Query)
}

func (s *MemoryStore) check(ctx context.Context, op, path string) error {
	if err := ctx.Err(); err != nil {
		return domain.WithTimeout(op, err)
	}
	if err := validPath(op, path); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.closed:
		return errStoreClosed
	case s.offline:
		return ErrOffline
	}
	return nil
}

// nextTimestamp returns the store clock in Unix milliseconds, strictly
// increasing across calls. Callers hold s.mu.
func (s *MemoryStore) nextTimestamp() int64 {
	ms := s.clock.Now().UnixMilli()
	if ms <= s.lastTS {
		ms = s.lastTS + 1
	}
	s.lastTS = ms
	return ms
}

func cloneDoc(d domain.Document) domain.Document {
	d.Data = copyData(d.Data)
	return d
}
