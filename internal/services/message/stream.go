package message

import (
	"sort"
	"sync"

	"wellnest/internal/domain"
	"wellnest/internal/subscription"
)

// Stream is a live message window. Batches coalesce: a slow reader gets the
// newest window, never a backlog of stale ones.
type Stream struct {
	watch   *subscription.Stream
	batches chan []domain.DecryptedMessage
	done    chan struct{}
	once    sync.Once

	mu  sync.Mutex
	err error
}

var _ domain.MessageStream = (*Stream)(nil)

func newStream(w *subscription.Stream) *Stream {
	return &Stream{
		watch:   w,
		batches: make(chan []domain.DecryptedMessage, 1),
		done:    make(chan struct{}),
	}
}

// Batches returns the channel of message windows. It is closed when the
// stream ends.
func (s *Stream) Batches() <-chan []domain.DecryptedMessage { return s.batches }

// Err returns the last terminal listener error, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close detaches the underlying listener.
func (s *Stream) Close() {
	s.once.Do(func() {
		close(s.done)
		s.watch.Close()
	})
}

func (s *Stream) run(decrypt func([]domain.Document) []domain.DecryptedMessage) {
	defer close(s.batches)
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watch.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case subscription.EventUpdate:
				s.publish(decrypt(ev.Snapshot.Documents))
			case subscription.EventError:
				s.mu.Lock()
				s.err = ev.Err
				s.mu.Unlock()
			case subscription.EventClosed:
				return
			}
		}
	}
}

// publish replaces any unread batch with b. run is the only sender, so the
// send after draining never blocks.
func (s *Stream) publish(b []domain.DecryptedMessage) {
	select {
	case s.batches <- b:
		return
	default:
	}
	select {
	case <-s.batches:
	default:
	}
	s.batches <- b
}

// SortChronological orders messages oldest first, breaking timestamp ties
// by id.
func SortChronological(msgs []domain.DecryptedMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp != msgs[j].Timestamp {
			return msgs[i].Timestamp < msgs[j].Timestamp
		}
		return msgs[i].ID < msgs[j].ID
	})
}
