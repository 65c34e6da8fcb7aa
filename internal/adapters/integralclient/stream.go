package integralclient

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/GPC-MC/GBNX-Gold-Trader/internal/domain"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/ports"

	"github.com/gorilla/websocket"
)

const (
	defaultStreamBaseURL    = "wss://gpcintegral.southeastasia.cloudapp.azure.com"
	tickStreamPath          = "/ws/ticks/"
	defaultMaxMessageSize   = 10 * 1024 * 1024
	defaultPingInterval     = 20 * time.Second
	defaultPongWait         = 10 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	writeControlWait        = 10 * time.Second
)

// StreamConfig holds the tick stream settings shared by all streams a
// Dialer creates.
type StreamConfig struct {
	// BaseURL is the provider's websocket root. Defaults to production.
	BaseURL string
	// Logger is required.
	Logger ports.Logger
	// MaxMessageSize caps a single inbound frame. Defaults to 10 MiB.
	MaxMessageSize int64
	// PingInterval is the keepalive ping cadence. Defaults to 20s.
	PingInterval time.Duration
	// PongWait is how long after a ping a pong may take. A socket that
	// stays silent past PingInterval+PongWait is treated as dead.
	PongWait time.Duration
	// HandshakeTimeout bounds the websocket upgrade. Defaults to 10s.
	HandshakeTimeout time.Duration
}

// Dialer creates tick streams for individual instruments.
// It implements ports.StreamDialer.
type Dialer struct {
	cfg StreamConfig
}

// NewDialer validates the config and applies defaults for unset fields.
func NewDialer(cfg StreamConfig) (*Dialer, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultStreamBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: invalid stream base URL %q: %w", ports.ErrConfiguration, cfg.BaseURL, err)
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &Dialer{cfg: cfg}, nil
}

// DialTickStream returns an unconnected stream for the instrument.
// Callers own the stream's lifecycle; Connect must be called before
// the first read.
func (d *Dialer) DialTickStream(instrument domain.Instrument) ports.TickStream {
	params := url.Values{}
	params.Set("symbol", instrument.StreamSymbol())
	return &TickStream{
		instrument: instrument,
		url:        d.cfg.BaseURL + tickStreamPath + "?" + params.Encode(),
		logger:     d.cfg.Logger,
		cfg:        d.cfg,
		now:        time.Now,
	}
}

// TickStream is one websocket subscription to the provider's tick feed.
// It implements ports.TickStream. All methods are safe for concurrent use,
// but only one goroutine should read from the stream at a time.
type TickStream struct {
	instrument domain.Instrument
	url        string
	logger     ports.Logger
	cfg        StreamConfig
	now        func() time.Time

	mu       sync.Mutex
	conn     *websocket.Conn
	pingStop chan struct{}
}

// Connect dials the provider. An already-open socket is closed first, so
// Connect doubles as the reconnect primitive.
func (s *TickStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.closeLocked()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout:  s.cfg.HandshakeTimeout,
		EnableCompression: true,
	}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("%w: dialing %s: %w", ports.ErrConnectionFailed, s.url, err)
	}

	conn.SetReadLimit(s.cfg.MaxMessageSize)
	deadline := s.cfg.PingInterval + s.cfg.PongWait
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	s.conn = conn
	s.pingStop = make(chan struct{})
	go s.pingLoop(conn, s.pingStop)

	s.logger.Info(ctx, "tick stream connected", map[string]any{
		"instrument": s.instrument.String(),
		"url":        s.url,
	})
	return nil
}

// pingLoop keeps the socket alive. A failed ping write is left for the
// reader to notice through the expiring read deadline.
func (s *TickStream) pingLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeControlWait)); err != nil {
				return
			}
		}
	}
}

// ReceiveTick blocks until the next well-formed tick arrives. Malformed
// frames are logged and skipped without closing the socket; socket-level
// failures are terminal and leave reconnection to the caller. A blocked
// read is released by Disconnect, not by ctx alone.
func (s *TickStream) ReceiveTick(ctx context.Context) (domain.Tick, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.Tick{}, fmt.Errorf("%w: %w", ports.ErrContextCanceled, err)
		}

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return domain.Tick{}, fmt.Errorf("%w: stream for %s", ports.ErrNotConnected, s.instrument)
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return domain.Tick{}, fmt.Errorf("%w: %w", ports.ErrContextCanceled, ctx.Err())
			}
			return domain.Tick{}, fmt.Errorf("%w: reading %s: %w", ports.ErrConnectionClosed, s.instrument, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PingInterval + s.cfg.PongWait))

		tick, err := parseTickFrame(raw, s.instrument, s.now)
		if err != nil {
			s.logger.Warn(ctx, "dropping malformed tick frame", map[string]any{
				"instrument": s.instrument.String(),
				"size":       len(raw),
				"error":      err.Error(),
			})
			continue
		}
		return tick, nil
	}
}

// Listen reads ticks until the stream fails or ctx is canceled, invoking
// handler for each tick in arrival order.
func (s *TickStream) Listen(ctx context.Context, handler func(domain.Tick)) error {
	s.logger.Info(ctx, "listening for ticks", map[string]any{
		"instrument": s.instrument.String(),
	})
	for {
		tick, err := s.ReceiveTick(ctx)
		if err != nil {
			return err
		}
		handler(tick)
	}
}

// Disconnect closes the socket and releases any blocked reader. It is
// idempotent; closing a never-connected or already-closed stream is a no-op.
func (s *TickStream) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.closeLocked()
	if err != nil {
		return fmt.Errorf("closing stream for %s: %w", s.instrument, err)
	}
	return nil
}

// closeLocked sends a best-effort close frame and tears the socket down.
// Callers must hold s.mu.
func (s *TickStream) closeLocked() error {
	if s.pingStop != nil {
		close(s.pingStop)
		s.pingStop = nil
	}
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeControlWait),
	)
	err := s.conn.Close()
	s.conn = nil
	return err
}
