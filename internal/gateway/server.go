// Package gateway exposes the price feed to downstream consumers: REST
// chart queries served through the poll cache, and websocket tick feeds
// bridged onto the stream multiplexer. Routing, handlers, middleware,
// and validation live in separate files:
//   - server.go: server wiring and lifecycle (this file)
//   - handler.go: REST request handlers
//   - ws.go: websocket endpoints and the per-client write pump
//   - middleware.go: middleware functions
//   - validator.go: request parameter validation
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/GPC-MC/GBNX-Gold-Trader/internal/domain"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/pricecache"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/ports"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/stream"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	defaultAddr           = ":8080"
	defaultRequestTimeout = 30 * time.Second
	shutdownTimeout       = 10 * time.Second

	serviceName     = "gbnx-price-feed"
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
)

// MarketData is the chart-query surface the gateway consumes; the poll
// cache satisfies it.
type MarketData interface {
	GetOHLC(ctx context.Context, q ports.OHLCQuery) ([]domain.Candle, error)
	GetOHLCMulti(ctx context.Context, instruments []domain.Instrument, q ports.OHLCQuery) (map[domain.Instrument][]domain.Candle, map[domain.Instrument]error)
}

// TickStreams is the subscription surface the websocket endpoints
// consume; the stream manager satisfies it.
type TickStreams interface {
	Subscribe(ctx context.Context, instrument domain.Instrument, handler stream.Handler) (*stream.Subscription, error)
	Unsubscribe(sub *stream.Subscription)
	ActiveStreams() []domain.Instrument
	SubscriberCounts() map[domain.Instrument]int
}

// CacheStats exposes cache occupancy for the health endpoint.
type CacheStats interface {
	Stats() pricecache.Stats
}

// Config holds the gateway settings.
type Config struct {
	// Addr is the listen address. Defaults to ":8080".
	Addr string
	// Logger is required.
	Logger ports.Logger
	// MarketData serves the REST chart routes. Required.
	MarketData MarketData
	// Streams serves the websocket tick routes. Required.
	Streams TickStreams
	// CacheStats enriches the health payload. Optional.
	CacheStats CacheStats
	// RequestTimeout bounds one REST request. Defaults to 30s.
	RequestTimeout time.Duration
	// Version is reported by the health endpoint.
	Version string
}

// Server is the downstream HTTP and websocket surface.
type Server struct {
	logger         ports.Logger
	marketData     MarketData
	streams        TickStreams
	cacheStats     CacheStats
	requestTimeout time.Duration
	version        string

	engine      *gin.Engine
	httpServer  *http.Server
	upgrader    websocket.Upgrader
	clientCount atomic.Int64
}

// NewServer validates the config, applies defaults, and builds the
// routing table.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfiguration)
	}
	if cfg.MarketData == nil {
		return nil, fmt.Errorf("%w: market data source is required", ports.ErrConfiguration)
	}
	if cfg.Streams == nil {
		return nil, fmt.Errorf("%w: tick streams are required", ports.ErrConfiguration)
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		logger:         cfg.Logger,
		marketData:     cfg.MarketData,
		streams:        cfg.Streams,
		cacheStats:     cfg.CacheStats,
		requestTimeout: cfg.RequestTimeout,
		version:        cfg.Version,
		upgrader: websocket.Upgrader{
			// The feed is public; origin enforcement is left to the edge.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.engine = s.setupRoutes()
	s.httpServer = &http.Server{Addr: cfg.Addr, Handler: s.engine}
	return s, nil
}

// setupRoutes configures the middleware chain and all routes.
func (s *Server) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(accessLogMiddleware(s.logger))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	pricing := router.Group("/api/pricing")
	{
		pricing.GET("/ohlc", s.getOHLCBatch)
		pricing.GET("/ohlc/:pair", s.getOHLC)
		pricing.GET("/streams", s.getActiveStreams)
	}

	ws := router.Group("/ws")
	{
		ws.GET("/ticks/:pair", s.streamTicks)
		ws.GET("/multi", s.streamMulti)
	}

	router.GET("/health", s.healthCheck)
	return router
}

// Run serves until ctx is canceled, then drains in-flight requests.
// Open websockets are not waited for; their clients reconnect.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "gateway listening", map[string]any{
		"addr": s.httpServer.Addr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	s.logger.Info(context.Background(), "gateway stopped", nil)
	return nil
}
