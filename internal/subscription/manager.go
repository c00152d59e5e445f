package subscription

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"wellnest/internal/domain"
	"wellnest/internal/metrics"
)

// Handlers receive a listener's output. OnError only sees terminal errors;
// retried errors are recorded in the manager status instead. OnClose runs
// once when the listener is detached, replaced or destroyed.
type Handlers struct {
	OnData  func(domain.Snapshot)
	OnError func(error)
	OnClose func()
}

// Manager supervises listeners. It is safe for concurrent use.
type Manager struct {
	opts    Options
	clock   clock.Clock
	log     zerolog.Logger
	metrics *metrics.Metrics
	health  domain.DocumentStore

	mu             sync.Mutex
	listeners      map[string]*listener
	status         domain.ConnectionStatus
	destroyed      bool
	reconnectTimer *clock.Timer
	reconnectGen   uint64
}

type listener struct {
	id       string
	factory  Factory
	handlers Handlers

	// Guarded by Manager.mu.
	state       domain.ListenerState
	retries     int
	gen         uint64
	unsubscribe func()
	timer       *clock.Timer
	backoff     *backoff.ExponentialBackOff
	removed     bool
}

// NewManager returns a Manager. health is the store CheckHealth reads from;
// it may be nil, in which case CheckHealth always reports false.
func NewManager(health domain.DocumentStore, opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		opts:      opts,
		clock:     opts.Clock,
		log:       opts.Logger.With().Str("component", "subscription").Logger(),
		metrics:   opts.Metrics,
		health:    health,
		listeners: make(map[string]*listener),
	}
}

// Attach starts a listener under id. Attaching an id that is already in use
// replaces the existing listener. After Destroy, Attach does nothing. The
// returned function detaches this listener; it is safe to call more than
// once and does not affect a listener that later replaced it.
func (m *Manager) Attach(id string, factory Factory, h Handlers) (detach func()) {
	l := &listener{
		id:       id,
		factory:  factory,
		handlers: h,
		state:    domain.StateConnecting,
		backoff:  m.newBackoff(),
	}

	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		m.log.Debug().Str("listener", id).Msg("attach after destroy ignored")
		return func() {}
	}
	prev := m.listeners[id]
	var prevUnsub func()
	if prev != nil {
		prevUnsub = m.removeLocked(prev)
	}
	m.listeners[id] = l
	m.metrics.SetListeners(len(m.listeners))
	m.mu.Unlock()

	if prev != nil {
		m.log.Debug().Str("listener", id).Msg("listener replaced")
		finish(prev, prevUnsub)
	}

	m.connect(l)
	return func() { m.detach(l) }
}

// Detach removes the listener registered under id, if any.
func (m *Manager) Detach(id string) {
	m.mu.Lock()
	l := m.listeners[id]
	m.mu.Unlock()
	if l != nil {
		m.detach(l)
	}
}

func (m *Manager) detach(l *listener) {
	m.mu.Lock()
	if l.removed {
		m.mu.Unlock()
		return
	}
	unsub := m.removeLocked(l)
	if m.listeners[l.id] == l {
		delete(m.listeners, l.id)
	}
	m.metrics.SetListeners(len(m.listeners))
	m.mu.Unlock()

	finish(l, unsub)
}

// removeLocked marks l removed and returns its pending unsubscribe.
func (m *Manager) removeLocked(l *listener) func() {
	l.removed = true
	l.gen++
	l.state = domain.StateDestroyed
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	unsub := l.unsubscribe
	l.unsubscribe = nil
	return unsub
}

func finish(l *listener, unsub func()) {
	if unsub != nil {
		unsub()
	}
	if l.handlers.OnClose != nil {
		l.handlers.OnClose()
	}
}

// connect runs the factory for l. The factory is called without holding the
// lock; callbacks carry the generation they were issued under and are
// dropped once it is stale.
func (m *Manager) connect(l *listener) {
	m.mu.Lock()
	if l.removed || m.destroyed {
		m.mu.Unlock()
		return
	}
	l.gen++
	gen := l.gen
	l.state = domain.StateConnecting
	m.mu.Unlock()

	unsub, err := l.factory(
		func(s domain.Snapshot) { m.onData(l, gen, s) },
		func(err error) { m.onError(l, gen, err) },
	)

	m.mu.Lock()
	if l.gen != gen || l.removed {
		m.mu.Unlock()
		if unsub != nil {
			unsub()
		}
		return
	}
	if err != nil {
		m.mu.Unlock()
		m.onError(l, gen, err)
		return
	}
	l.unsubscribe = unsub
	m.mu.Unlock()
}

func (m *Manager) onData(l *listener, gen uint64, snap domain.Snapshot) {
	m.mu.Lock()
	if l.gen != gen || l.removed {
		m.mu.Unlock()
		return
	}
	l.state = domain.StateConnected
	l.retries = 0
	l.backoff.Reset()
	m.status.IsConnected = true
	m.status.LastConnectedAt = m.clock.Now()
	m.status.RecentErrors = nil
	m.status.RetryCount = m.maxRetriesLocked()
	onData := l.handlers.OnData
	m.mu.Unlock()

	m.metrics.Delivered()
	if onData != nil {
		onData(snap)
	}
}

func (m *Manager) onError(l *listener, gen uint64, err error) {
	if err == nil {
		err = domain.NewError(domain.KindConnection, "subscription", errors.New("listener failed"))
	}

	m.mu.Lock()
	if l.gen != gen || l.removed {
		m.mu.Unlock()
		return
	}
	m.recordErrorLocked(err)
	m.status.IsConnected = false

	// Tear down the broken subscription and invalidate its callbacks.
	l.gen++
	unsub := l.unsubscribe
	l.unsubscribe = nil

	if m.opts.EnableReconnection && shouldRetry(err) && l.retries < m.opts.MaxRetries {
		delay := l.backoff.NextBackOff()
		l.retries++
		l.state = domain.StateReconnecting
		m.status.RetryCount = m.maxRetriesLocked()
		retryGen := l.gen
		l.timer = m.clock.AfterFunc(delay, func() { m.retry(l, retryGen) })
		attempt := l.retries
		m.mu.Unlock()

		if unsub != nil {
			unsub()
		}
		m.metrics.Retried()
		m.log.Warn().Err(err).
			Str("listener", l.id).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("listener error; retry scheduled")
		return
	}

	l.state = domain.StateError
	m.status.RetryCount = m.maxRetriesLocked()
	onError := l.handlers.OnError
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	m.metrics.Failed()
	m.log.Error().Err(err).Str("listener", l.id).Msg("listener failed")
	if onError != nil {
		onError(err)
	}
}

func (m *Manager) retry(l *listener, gen uint64) {
	m.mu.Lock()
	if l.gen != gen || l.removed || m.destroyed {
		m.mu.Unlock()
		return
	}
	l.timer = nil
	m.mu.Unlock()
	m.connect(l)
}

// shouldRetry retries connection and timeout errors, and errors nobody
// classified, which are most often transport failures.
func shouldRetry(err error) bool {
	return domain.IsRetryable(err) || domain.KindOf(err) == domain.KindUnknown
}

func (m *Manager) recordErrorLocked(err error) {
	m.status.RecentErrors = append(m.status.RecentErrors, err.Error())
	if n := len(m.status.RecentErrors); n > maxRecentErrors {
		m.status.RecentErrors = append([]string(nil), m.status.RecentErrors[n-maxRecentErrors:]...)
	}
}

func (m *Manager) maxRetriesLocked() int {
	n := 0
	for _, l := range m.listeners {
		if l.retries > n {
			n = l.retries
		}
	}
	return n
}

func (m *Manager) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.RetryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.MaxElapsedTime = 0
	b.Clock = m.clock
	b.Reset()
	return b
}

// CheckHealth reads the health path. A missing document still proves the
// store answered.
func (m *Manager) CheckHealth(ctx context.Context) bool {
	if m.health == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, m.opts.HealthTimeout)
	defer cancel()

	_, err := m.health.Get(ctx, m.opts.HealthPath)
	ok := err == nil || errors.Is(err, domain.ErrNotFound)
	m.metrics.HealthChecked(ok)
	if !ok {
		err = domain.WithTimeout("health check", err)
		m.mu.Lock()
		m.recordErrorLocked(err)
		m.status.IsConnected = false
		m.mu.Unlock()
		m.log.Warn().Err(err).Msg("health check failed")
	}
	return ok
}

// ForceReconnect tears every listener down and, after ReconnectPause,
// resubscribes each through its factory with a fresh retry budget.
func (m *Manager) ForceReconnect() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	var unsubs []func()
	for _, l := range m.listeners {
		l.gen++
		if l.timer != nil {
			l.timer.Stop()
			l.timer = nil
		}
		if l.unsubscribe != nil {
			unsubs = append(unsubs, l.unsubscribe)
			l.unsubscribe = nil
		}
		l.state = domain.StateReconnecting
		l.retries = 0
		l.backoff.Reset()
	}
	m.status.IsConnected = false
	m.status.RetryCount = 0
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
	}
	m.reconnectGen++
	gen := m.reconnectGen
	m.reconnectTimer = m.clock.AfterFunc(m.opts.ReconnectPause, func() { m.resubscribeAll(gen) })
	n := len(m.listeners)
	m.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	m.metrics.Reconnected()
	m.log.Info().Int("listeners", n).Dur("pause", m.opts.ReconnectPause).Msg("forcing reconnect")
}

func (m *Manager) resubscribeAll(gen uint64) {
	m.mu.Lock()
	if m.destroyed || gen != m.reconnectGen {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	ls := make([]*listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		ls = append(ls, l)
	}
	hook := m.opts.OnReconnect
	m.mu.Unlock()

	sort.Slice(ls, func(i, j int) bool { return ls[i].id < ls[j].id })
	for _, l := range ls {
		m.connect(l)
	}
	if hook != nil {
		hook()
	}
}

// Destroy detaches every listener and cancels all timers. It is idempotent.
func (m *Manager) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	type closing struct {
		l     *listener
		unsub func()
	}
	var all []closing
	for _, l := range m.listeners {
		all = append(all, closing{l: l, unsub: m.removeLocked(l)})
	}
	m.listeners = make(map[string]*listener)
	m.status.IsConnected = false
	m.metrics.SetListeners(0)
	m.mu.Unlock()

	for _, c := range all {
		finish(c.l, c.unsub)
	}
	m.log.Debug().Int("listeners", len(all)).Msg("subscription manager destroyed")
}

// Status returns a copy of the connection status.
func (m *Manager) Status() domain.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.status
	s.RecentErrors = append([]string(nil), m.status.RecentErrors...)
	return s
}

// ListenerState reports the state of the listener under id.
func (m *Manager) ListenerState(id string) (domain.ListenerState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return domain.StateDestroyed, false
	}
	l, ok := m.listeners[id]
	if !ok {
		return 0, false
	}
	return l.state, true
}

// Listeners returns the ids of attached listeners in sorted order.
func (m *Manager) Listeners() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RetryDelay returns the delay before retry attempt n (1-based) under opts.
func RetryDelay(opts Options, attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return opts.RetryDelay << uint(attempt-1)
}
