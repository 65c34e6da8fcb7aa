package gateway

import (
	"fmt"
	"sync"
	"time"

	"github.com/GPC-MC/GBNX-Gold-Trader/internal/domain"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/stream"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = (wsPongWait * 9) / 10
	wsClientBuffer = 32
	wsInboundLimit = 1024
)

// wsClient is one downstream websocket consumer. Outbound traffic goes
// through a bounded queue drained by a single writer goroutine; a client
// whose queue is full is disconnected rather than allowed to stall the
// fan-out path.
type wsClient struct {
	conn *websocket.Conn
	send chan any
	done chan struct{}
	once sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn: conn,
		send: make(chan any, wsClientBuffer),
		done: make(chan struct{}),
	}
}

// close signals the writer to drain and shut the connection. Idempotent.
func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

// enqueue queues one payload for the writer. A full queue means the
// client is not keeping up with the feed; it is disconnected.
func (c *wsClient) enqueue(v any) {
	select {
	case c.send <- v:
	default:
		c.close()
	}
}

// enqueueTick adapts enqueue to the stream handler signature.
func (c *wsClient) enqueueTick(tick domain.Tick) {
	c.enqueue(tick)
}

// writePump owns all writes on the connection: queued payloads,
// keepalive pings, and the final close frame. It drains the queue before
// closing so replies queued just before shutdown still reach the client.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			for {
				select {
				case payload := <-c.send:
					_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
					if err := c.conn.WriteJSON(payload); err != nil {
						return
					}
				default:
					_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
					_ = c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(payload); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// readUntilClose consumes inbound frames until the peer goes away.
// Payloads are ignored; the single-pair feed is write-only downstream.
func (c *wsClient) readUntilClose() {
	c.conn.SetReadLimit(wsInboundLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	}
}

// streamTicks handles GET /ws/ticks/:pair. The client is subscribed to
// one instrument and receives each tick as a JSON object.
func (s *Server) streamTicks(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		s.logger.Warn(c.Request.Context(), "websocket upgrade failed", map[string]any{
			"error": err.Error(),
		})
		return
	}

	client := newWSClient(conn)
	go client.writePump()
	defer client.close()
	s.clientCount.Add(1)
	defer s.clientCount.Add(-1)

	instrument, err := domain.ParseInstrument(c.Param("pair"))
	if err != nil {
		client.enqueue(gin.H{"error": fmt.Sprintf("invalid symbol: %s", c.Param("pair"))})
		return
	}

	sub, err := s.streams.Subscribe(c.Request.Context(), instrument, client.enqueueTick)
	if err != nil {
		s.logger.Error(c.Request.Context(), err, "tick subscription failed", map[string]any{
			"instrument": instrument.String(),
			"request_id": requestIDFrom(c),
		})
		client.enqueue(gin.H{"error": "subscription failed"})
		return
	}
	defer s.streams.Unsubscribe(sub)

	s.logger.Info(c.Request.Context(), "tick client connected", map[string]any{
		"instrument": instrument.String(),
		"request_id": requestIDFrom(c),
	})
	client.readUntilClose()
}

// wsCommand is one control message on the multi-instrument feed.
type wsCommand struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
}

// streamMulti handles GET /ws/multi. The client manages its own
// subscription set with subscribe/unsubscribe commands and receives the
// union of the subscribed tick feeds; everything left subscribed is torn
// down when the connection ends.
func (s *Server) streamMulti(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn(c.Request.Context(), "websocket upgrade failed", map[string]any{
			"error": err.Error(),
		})
		return
	}

	client := newWSClient(conn)
	go client.writePump()
	defer client.close()
	s.clientCount.Add(1)
	defer s.clientCount.Add(-1)

	subs := make(map[domain.Instrument]*stream.Subscription)
	defer func() {
		for _, sub := range subs {
			s.streams.Unsubscribe(sub)
		}
	}()

	conn.SetReadLimit(wsInboundLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		if cmd.Symbol == "" {
			client.enqueue(gin.H{"error": "symbol is required"})
			continue
		}
		instrument, err := domain.ParseInstrument(cmd.Symbol)
		if err != nil {
			client.enqueue(gin.H{"error": err.Error()})
			continue
		}

		switch cmd.Action {
		case "subscribe":
			if _, ok := subs[instrument]; !ok {
				sub, err := s.streams.Subscribe(c.Request.Context(), instrument, client.enqueueTick)
				if err != nil {
					s.logger.Error(c.Request.Context(), err, "tick subscription failed", map[string]any{
						"instrument": instrument.String(),
						"request_id": requestIDFrom(c),
					})
					client.enqueue(gin.H{"error": "subscription failed"})
					continue
				}
				subs[instrument] = sub
			}
			client.enqueue(gin.H{"status": "subscribed", "symbol": cmd.Symbol})
		case "unsubscribe":
			if sub, ok := subs[instrument]; ok {
				s.streams.Unsubscribe(sub)
				delete(subs, instrument)
			}
			client.enqueue(gin.H{"status": "unsubscribed", "symbol": cmd.Symbol})
		default:
			client.enqueue(gin.H{"error": "unknown action: " + cmd.Action})
		}
	}
}
