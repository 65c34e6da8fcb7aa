package integralclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GPC-MC/GBNX-Gold-Trader/internal/domain"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/ports"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tickFrame = `{"values":[{"bid_price":2620.1,"ask_price":2620.6,"date_time":"2024-12-26 08:10:00.110"}]}`

// newWSServer starts a websocket endpoint that hands each upgraded
// connection to handler. It returns the ws:// base URL for NewDialer.
func newWSServer(t *testing.T, handler func(*websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, tickStreamPath, r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestStream(t *testing.T, baseURL string, logger ports.Logger) ports.TickStream {
	t.Helper()
	dialer, err := NewDialer(StreamConfig{BaseURL: baseURL, Logger: logger})
	require.NoError(t, err)
	return dialer.DialTickStream(domain.XAUUSD)
}

func TestNewDialer_Validation(t *testing.T) {
	_, err := NewDialer(StreamConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConfiguration)

	dialer, err := NewDialer(StreamConfig{Logger: &mockLogger{}})
	require.NoError(t, err)
	assert.Equal(t, defaultStreamBaseURL, dialer.cfg.BaseURL)
	assert.Equal(t, int64(defaultMaxMessageSize), dialer.cfg.MaxMessageSize)
	assert.Equal(t, defaultPingInterval, dialer.cfg.PingInterval)
	assert.Equal(t, defaultPongWait, dialer.cfg.PongWait)
}

func TestTickStream_ConnectAndReceive(t *testing.T) {
	baseURL := newWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(tickFrame))
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"bid":2621.0,"ask":2621.5,"timestamp":"2024-12-26T08:10:01Z"}`))
		time.Sleep(100 * time.Millisecond)
	})

	stream := newTestStream(t, baseURL, &mockLogger{})
	ctx := context.Background()
	require.NoError(t, stream.Connect(ctx))
	defer stream.Disconnect()

	first, err := stream.ReceiveTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.XAUUSD, first.Instrument)
	assert.Equal(t, 2620.1, first.Bid)
	assert.Equal(t, 2620.6, first.Ask)

	second, err := stream.ReceiveTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2621.0, second.Bid)
	assert.True(t, second.Timestamp.Equal(time.Date(2024, 12, 26, 8, 10, 1, 0, time.UTC)))
}

func TestTickStream_SendsStreamSymbol(t *testing.T) {
	symbolCh := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbolCh <- r.URL.Query().Get("symbol")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	stream := newTestStream(t, "ws"+strings.TrimPrefix(srv.URL, "http"), &mockLogger{})
	require.NoError(t, stream.Connect(context.Background()))
	defer stream.Disconnect()

	select {
	case symbol := <-symbolCh:
		assert.Equal(t, "ticks:XAU/USD", symbol)
	case <-time.After(time.Second):
		t.Fatal("server never saw the subscription request")
	}
}

func TestTickStream_SkipsMalformedFrames(t *testing.T) {
	baseURL := newWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"values":[]}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`not even json`))
		conn.WriteMessage(websocket.TextMessage, []byte(tickFrame))
		time.Sleep(100 * time.Millisecond)
	})

	logger := &mockLogger{}
	stream := newTestStream(t, baseURL, logger)
	require.NoError(t, stream.Connect(context.Background()))
	defer stream.Disconnect()

	tick, err := stream.ReceiveTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2620.1, tick.Bid)
	assert.Equal(t, 2, logger.warnCount(), "each malformed frame is logged")
}

func TestTickStream_ReceiveBeforeConnect(t *testing.T) {
	stream := newTestStream(t, "ws://127.0.0.1:0", &mockLogger{})
	_, err := stream.ReceiveTick(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrNotConnected)
}

func TestTickStream_ListenUntilServerCloses(t *testing.T) {
	baseURL := newWSServer(t, func(conn *websocket.Conn) {
		for i := 0; i < 3; i++ {
			conn.WriteMessage(websocket.TextMessage, []byte(tickFrame))
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		// Give the client time to drain before the deferred Close.
		time.Sleep(100 * time.Millisecond)
	})

	stream := newTestStream(t, baseURL, &mockLogger{})
	require.NoError(t, stream.Connect(context.Background()))
	defer stream.Disconnect()

	var received []domain.Tick
	err := stream.Listen(context.Background(), func(tick domain.Tick) {
		received = append(received, tick)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConnectionClosed)
	assert.Len(t, received, 3)
}

func TestTickStream_DisconnectIsIdempotent(t *testing.T) {
	baseURL := newWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(100 * time.Millisecond)
	})

	stream := newTestStream(t, baseURL, &mockLogger{})
	assert.NoError(t, stream.Disconnect(), "disconnecting a never-connected stream is a no-op")

	require.NoError(t, stream.Connect(context.Background()))
	assert.NoError(t, stream.Disconnect())
	assert.NoError(t, stream.Disconnect())
}

func TestTickStream_DisconnectUnblocksReceive(t *testing.T) {
	baseURL := newWSServer(t, func(conn *websocket.Conn) {
		// Hold the connection open without sending anything.
		conn.ReadMessage()
	})

	stream := newTestStream(t, baseURL, &mockLogger{})
	require.NoError(t, stream.Connect(context.Background()))

	errCh := make(chan error, 1)
	go func() {
		_, err := stream.ReceiveTick(context.Background())
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, stream.Disconnect())

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrConnectionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("ReceiveTick did not return after Disconnect")
	}
}

func TestTickStream_SilentPeerTriggersKeepaliveFailure(t *testing.T) {
	done := make(chan struct{})
	defer close(done)
	baseURL := newWSServer(t, func(conn *websocket.Conn) {
		// Never read, so pings are never answered with pongs.
		<-done
	})

	dialer, err := NewDialer(StreamConfig{
		BaseURL:      baseURL,
		Logger:       &mockLogger{},
		PingInterval: 50 * time.Millisecond,
		PongWait:     50 * time.Millisecond,
	})
	require.NoError(t, err)

	stream := dialer.DialTickStream(domain.XAUUSD)
	require.NoError(t, stream.Connect(context.Background()))
	defer stream.Disconnect()

	start := time.Now()
	_, err = stream.ReceiveTick(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConnectionClosed)
	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond, "failure comes from the missed pong deadline")
	assert.Less(t, elapsed, 2*time.Second)
}
