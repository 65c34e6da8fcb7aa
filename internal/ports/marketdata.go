package ports

import (
	"context"

	"github.com/GPC-MC/GBNX-Gold-Trader/internal/domain"
)

// OHLCQuery is the full shape of one polling request. It doubles as the
// poll-cache key, so every field is an exact-comparable value type:
// equal queries must hash and compare equal.
type OHLCQuery struct {
	Instrument domain.Instrument
	Interval   int // aggregation interval in seconds
	Limit      int
	Offset     int
	Sort       domain.SortOrder
}

// OHLCFetcher fetches a bounded window of candles from the upstream REST
// endpoint. Implementations are stateless and safe for concurrent use
// across instruments.
type OHLCFetcher interface {
	// GetOHLC issues one upstream query, retrying any failed attempt
	// internally, undecodable payloads included. The terminal error
	// after the retry budget matches ErrUpstream. A successful empty
	// window is ([], nil), not an error.
	GetOHLC(ctx context.Context, q OHLCQuery) ([]domain.Candle, error)
}

// TickStream is one streaming connection scoped to exactly one instrument.
// It knows nothing about subscribers or reconnection; a connection-level
// failure is terminal for the current Listen/ReceiveTick call and recovery
// is the caller's concern.
type TickStream interface {
	// Connect establishes the underlying socket. Calling Connect on an
	// already-connected stream replaces the previous socket.
	Connect(ctx context.Context) error
	// ReceiveTick blocks until the next tick arrives or the connection
	// fails. Malformed frames are skipped internally, never surfaced.
	ReceiveTick(ctx context.Context) (domain.Tick, error)
	// Listen drives ReceiveTick in a loop, invoking handler for each tick.
	// It returns when the connection fails or ctx is canceled.
	Listen(ctx context.Context, handler func(domain.Tick)) error
	// Disconnect releases the socket. Idempotent; safe from any state and
	// from a goroutine other than the one blocked in ReceiveTick.
	Disconnect() error
}

// StreamDialer creates tick streams. The indirection lets the stream
// manager own connection lifecycle while tests substitute scripted streams.
type StreamDialer interface {
	DialTickStream(instrument domain.Instrument) TickStream
}
