// Package stream multiplexes upstream tick streams across subscribers.
// One upstream socket is held per instrument regardless of how many
// subscribers are attached to it; the socket is opened when the first
// subscriber arrives and closed when the last one leaves.
package stream

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GPC-MC/GBNX-Gold-Trader/internal/domain"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/ports"

	"github.com/jpillora/backoff"
)

const (
	defaultBackoffMin  = 1 * time.Second
	defaultBackoffMax  = 30 * time.Second
	defaultMaxAttempts = 5
)

// Handler consumes ticks for one subscription. Handlers run on the
// stream's read goroutine, so a slow handler delays every subscriber on
// the same instrument; hand off to a channel for anything non-trivial.
type Handler func(domain.Tick)

// Subscription identifies one attached handler. It is the token passed
// back to Unsubscribe; handlers themselves are not comparable.
type Subscription struct {
	instrument domain.Instrument
	id         uint64
}

// Instrument reports which tick stream the subscription is attached to.
func (s *Subscription) Instrument() domain.Instrument {
	return s.instrument
}

// Config holds the manager settings.
type Config struct {
	// Dialer creates upstream streams. Required.
	Dialer ports.StreamDialer
	// Logger is required.
	Logger ports.Logger
	// BackoffMin is the first reconnect delay. Defaults to 1s.
	BackoffMin time.Duration
	// BackoffMax caps the reconnect delay. Defaults to 30s.
	BackoffMax time.Duration
	// MaxReconnectAttempts bounds one outage's reconnect attempts.
	// After the last failed attempt the stream goes silent; its
	// subscribers stay registered until a fresh Subscribe revives it.
	// Defaults to 5.
	MaxReconnectAttempts int
}

// Manager owns every upstream tick stream and fans ticks out to
// subscribers. All methods are safe for concurrent use.
type Manager struct {
	dialer      ports.StreamDialer
	logger      ports.Logger
	backoffMin  time.Duration
	backoffMax  time.Duration
	maxAttempts int

	mu      sync.Mutex
	entries map[domain.Instrument]*entry
	nextID  uint64
	closed  bool
}

// entry is the per-instrument state: one upstream stream, its read loop,
// and the handlers currently attached. Mutation happens under Manager.mu.
// live turns false when an outage outlives the reconnect budget; the
// subscribers stay registered on the dead entry until a fresh Subscribe
// re-establishes the stream or they unsubscribe.
type entry struct {
	instrument  domain.Instrument
	stream      ports.TickStream
	cancel      context.CancelFunc
	done        chan struct{}
	subscribers map[uint64]Handler
	live        bool
}

// NewManager validates the config and applies defaults for unset fields.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dialer == nil {
		return nil, fmt.Errorf("%w: stream dialer is required", ports.ErrConfiguration)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfiguration)
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = defaultBackoffMin
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = defaultBackoffMax
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxAttempts
	}
	return &Manager{
		dialer:      cfg.Dialer,
		logger:      cfg.Logger,
		backoffMin:  cfg.BackoffMin,
		backoffMax:  cfg.BackoffMax,
		maxAttempts: cfg.MaxReconnectAttempts,
		entries:     make(map[domain.Instrument]*entry),
	}, nil
}

// Subscribe attaches handler to the instrument's tick stream, opening the
// upstream connection if this is the first subscriber or the previous
// stream was abandoned after an exhausted reconnect budget. ctx bounds
// the initial connect only; delivery continues until Unsubscribe. A
// failed connect adds nothing, so the next Subscribe retries fresh.
func (m *Manager) Subscribe(ctx context.Context, instrument domain.Instrument, handler Handler) (*Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("%w: nil tick handler", ports.ErrInvalidRequest)
	}
	if !instrument.Valid() {
		return nil, fmt.Errorf("%w: unknown instrument %q", ports.ErrInvalidRequest, string(instrument))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("%w: stream manager", ports.ErrShutdown)
	}

	e, ok := m.entries[instrument]
	if !ok || !e.live {
		s := m.dialer.DialTickStream(instrument)
		if err := s.Connect(ctx); err != nil {
			return nil, fmt.Errorf("subscribing to %s: %w", instrument, err)
		}
		subscribers := make(map[uint64]Handler)
		if ok {
			// Revival: the parked subscribers come along.
			subscribers = e.subscribers
		}
		loopCtx, cancel := context.WithCancel(context.Background())
		e = &entry{
			instrument:  instrument,
			stream:      s,
			cancel:      cancel,
			done:        make(chan struct{}),
			subscribers: subscribers,
			live:        true,
		}
		m.entries[instrument] = e
		go m.run(loopCtx, e)
		m.logger.Info(ctx, "tick stream opened", map[string]any{
			"instrument":  instrument.String(),
			"subscribers": len(subscribers),
		})
	}

	m.nextID++
	id := m.nextID
	e.subscribers[id] = handler
	m.logger.Debug(ctx, "subscriber attached", map[string]any{
		"instrument":  instrument.String(),
		"subscribers": len(e.subscribers),
	})
	return &Subscription{instrument: instrument, id: id}, nil
}

// Unsubscribe detaches a subscription. The last subscriber leaving an
// instrument closes its upstream stream. Unknown or already-removed
// subscriptions are ignored. A tick already in flight may still reach
// the handler while Unsubscribe runs, never after both return.
func (m *Manager) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	m.mu.Lock()
	e, ok := m.entries[sub.instrument]
	if !ok {
		m.mu.Unlock()
		return
	}
	if _, ok := e.subscribers[sub.id]; !ok {
		m.mu.Unlock()
		return
	}
	delete(e.subscribers, sub.id)
	remaining := len(e.subscribers)
	if remaining > 0 {
		m.mu.Unlock()
		m.logger.Debug(context.Background(), "subscriber detached", map[string]any{
			"instrument":  sub.instrument.String(),
			"subscribers": remaining,
		})
		return
	}
	delete(m.entries, sub.instrument)
	live := e.live
	m.mu.Unlock()

	if !live {
		// The socket died with the reconnect budget; only the
		// registration was left.
		m.logger.Debug(context.Background(), "last subscriber left an abandoned stream", map[string]any{
			"instrument": sub.instrument.String(),
		})
		return
	}
	e.cancel()
	_ = e.stream.Disconnect()
	m.logger.Info(context.Background(), "tick stream closed", map[string]any{
		"instrument": sub.instrument.String(),
	})
}

// ActiveStreams lists the instruments with a live upstream stream,
// sorted for stable output. Abandoned streams with parked subscribers
// are not listed.
func (m *Manager) ActiveStreams() []domain.Instrument {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Instrument, 0, len(m.entries))
	for instrument, e := range m.entries {
		if e.live {
			out = append(out, instrument)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SubscriberCounts reports the number of attached handlers per
// registered instrument, including subscribers parked on an abandoned
// stream. An instrument counted here but absent from ActiveStreams has
// subscribers waiting on a dead connection.
func (m *Manager) SubscriberCounts() map[domain.Instrument]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.Instrument]int, len(m.entries))
	for instrument, e := range m.entries {
		out[instrument] = len(e.subscribers)
	}
	return out
}

// StopAll tears down every stream and marks the manager stopped; further
// Subscribe calls fail with ErrShutdown. It blocks until all read loops
// have exited, so it must not be called from a tick handler.
func (m *Manager) StopAll() {
	m.mu.Lock()
	m.closed = true
	stopped := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		stopped = append(stopped, e)
	}
	m.entries = make(map[domain.Instrument]*entry)
	m.mu.Unlock()

	for _, e := range stopped {
		e.cancel()
		_ = e.stream.Disconnect()
	}
	for _, e := range stopped {
		<-e.done
	}
	m.logger.Info(context.Background(), "all tick streams stopped", map[string]any{
		"streams": len(stopped),
	})
}

// run is the per-instrument read loop. It re-dials a lost connection with
// exponential backoff and abandons the stream once an outage outlives the
// attempt budget.
func (m *Manager) run(ctx context.Context, e *entry) {
	defer close(e.done)

	for {
		err := e.stream.Listen(ctx, func(tick domain.Tick) {
			m.fanOut(ctx, e, tick)
		})
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn(ctx, "tick stream lost", map[string]any{
			"instrument": e.instrument.String(),
			"error":      err.Error(),
		})

		if !m.reconnect(ctx, e) {
			if ctx.Err() == nil {
				m.abandon(ctx, e)
			}
			return
		}
	}
}

// backoffSchedule returns the delay policy for one outage. Each outage
// gets a fresh schedule so a recovered stream's next outage starts over
// at the minimum delay.
func (m *Manager) backoffSchedule() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    m.backoffMin,
		Max:    m.backoffMax,
		Factor: 2,
	}
}

// reconnect re-dials with exponential backoff. It reports whether the
// stream is connected again; false means the attempt budget is exhausted
// or ctx was canceled.
func (m *Manager) reconnect(ctx context.Context, e *entry) bool {
	b := m.backoffSchedule()
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		wait := b.Duration()
		m.logger.Info(ctx, "reconnecting tick stream", map[string]any{
			"instrument":  e.instrument.String(),
			"attempt":     attempt,
			"maxAttempts": m.maxAttempts,
			"wait":        wait.String(),
		})
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
		if err := e.stream.Connect(ctx); err != nil {
			m.logger.Warn(ctx, "reconnect attempt failed", map[string]any{
				"instrument": e.instrument.String(),
				"attempt":    attempt,
				"error":      err.Error(),
			})
			continue
		}
		return true
	}
	return false
}

// abandon marks a stream whose outage outlived the reconnect budget.
// Subscribers stay registered but receive nothing until a fresh
// Subscribe re-dials the instrument with a new attempt budget.
func (m *Manager) abandon(ctx context.Context, e *entry) {
	waiting := 0
	m.mu.Lock()
	if current, ok := m.entries[e.instrument]; ok && current == e {
		e.live = false
		waiting = len(e.subscribers)
	}
	m.mu.Unlock()

	e.cancel()
	_ = e.stream.Disconnect()
	m.logger.Error(ctx, ports.ErrConnectionFailed, "abandoning tick stream after repeated reconnect failures", map[string]any{
		"instrument":         e.instrument.String(),
		"waitingSubscribers": waiting,
	})
}

// fanOut delivers one tick to every subscriber attached at delivery time.
// The handler snapshot is taken under the lock; invocation happens outside
// it so handlers may call back into the manager.
func (m *Manager) fanOut(ctx context.Context, e *entry, tick domain.Tick) {
	m.mu.Lock()
	handlers := make([]Handler, 0, len(e.subscribers))
	for _, h := range e.subscribers {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		m.invoke(ctx, e.instrument, h, tick)
	}
}

// invoke shields the read loop and the other subscribers from a
// panicking handler.
func (m *Manager) invoke(ctx context.Context, instrument domain.Instrument, h Handler, tick domain.Tick) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error(ctx, fmt.Errorf("panic: %v", r), "tick handler panicked", map[string]any{
				"instrument": instrument.String(),
			})
		}
	}()
	h(tick)
}
