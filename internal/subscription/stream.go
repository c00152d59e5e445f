package subscription

import (
	"context"
	"sync"

	"wellnest/internal/domain"
)

// EventKind distinguishes stream events.
type EventKind int

const (
	EventUpdate EventKind = iota
	EventError
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventUpdate:
		return "update"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	}
	return "unknown"
}

// Event is one item of a Stream.
type Event struct {
	Kind     EventKind
	Snapshot domain.Snapshot
	Err      error
}

// Stream is the channel form of a listener. Updates coalesce: a slow reader
// skips intermediate snapshots and receives the latest one, which is always
// complete. Terminal errors are never dropped.
type Stream struct {
	out  chan Event
	wake chan struct{}
	done chan struct{}

	mu      sync.Mutex
	pending *domain.Snapshot
	errs    []error
	ended   bool

	detach    func()
	closeOnce sync.Once
}

// Watch attaches a listener under id and returns its events as a Stream.
// The stream ends when ctx is cancelled, Close is called, or the listener
// is detached, replaced or destroyed.
func (m *Manager) Watch(ctx context.Context, id string, factory Factory) *Stream {
	s := &Stream{
		out:  make(chan Event),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.run(ctx)

	detach := m.Attach(id, factory, Handlers{
		OnData:  s.push,
		OnError: s.fail,
		OnClose: s.end,
	})

	s.mu.Lock()
	s.detach = detach
	s.mu.Unlock()
	select {
	case <-s.done:
		// Closed before Attach returned.
		detach()
	default:
	}

	m.mu.Lock()
	destroyed := m.destroyed
	m.mu.Unlock()
	if destroyed {
		s.end()
	}
	return s
}

// Events returns the event channel. It is closed when the stream ends.
func (s *Stream) Events() <-chan Event { return s.out }

// Close detaches the listener and ends the stream without a Closed event.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		detach := s.detach
		s.mu.Unlock()
		if detach != nil {
			detach()
		}
		close(s.done)
	})
}

func (s *Stream) push(snap domain.Snapshot) {
	s.mu.Lock()
	s.pending = &snap
	s.mu.Unlock()
	s.kick()
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
	s.kick()
}

func (s *Stream) end() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	s.kick()
}

func (s *Stream) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Stream) run(ctx context.Context) {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			s.Close()
			return
		case <-s.wake:
		}

		s.mu.Lock()
		snap := s.pending
		s.pending = nil
		errs := s.errs
		s.errs = nil
		ended := s.ended
		s.mu.Unlock()

		if snap != nil && !s.send(ctx, Event{Kind: EventUpdate, Snapshot: *snap}) {
			return
		}
		for _, err := range errs {
			if !s.send(ctx, Event{Kind: EventError, Err: err}) {
				return
			}
		}
		if ended {
			s.send(ctx, Event{Kind: EventClosed})
			return
		}
	}
}

func (s *Stream) send(ctx context.Context, ev Event) bool {
	select {
	case s.out <- ev:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		s.Close()
		return false
	}
}
