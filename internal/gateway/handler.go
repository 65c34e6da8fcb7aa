package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/GPC-MC/GBNX-Gold-Trader/internal/domain"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/ports"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/trace"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// getOHLC handles GET /api/pricing/ohlc/:pair requests.
func (s *Server) getOHLC(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
	defer cancel()

	instrument, err := domain.ParseInstrument(c.Param("pair"))
	if err != nil {
		s.handleValidationError(c, err)
		return
	}
	q, err := parseWindow(c.Query("interval"), c.Query("limit"), c.Query("offset"), c.Query("sort"))
	if err != nil {
		s.handleValidationError(c, err)
		return
	}
	q.Instrument = instrument

	ctx, span := trace.StartSpan(ctx, "gateway.GetOHLC", oteltrace.WithAttributes(
		attribute.String("instrument", instrument.String()),
	))
	defer span.End()

	candles, err := s.marketData.GetOHLC(ctx, q)
	if err != nil {
		s.handleFetchError(c, err)
		return
	}
	c.JSON(http.StatusOK, candles)
}

// getOHLCBatch handles GET /api/pricing/ohlc requests. Pairs that fail
// upstream come back as empty lists so one bad pair does not starve the
// rest of the dashboard.
func (s *Server) getOHLCBatch(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
	defer cancel()

	instruments, err := parsePairList(c.Query("pairs"))
	if err != nil {
		s.handleValidationError(c, err)
		return
	}
	q, err := parseWindow(c.Query("interval"), c.Query("limit"), c.Query("offset"), c.Query("sort"))
	if err != nil {
		s.handleValidationError(c, err)
		return
	}

	ctx, span := trace.StartSpan(ctx, "gateway.GetOHLCBatch", oteltrace.WithAttributes(
		attribute.Int("pairs", len(instruments)),
	))
	defer span.End()

	results, failures := s.marketData.GetOHLCMulti(ctx, instruments, q)

	response := make(map[string][]domain.Candle, len(instruments))
	for _, instrument := range instruments {
		candles, ok := results[instrument]
		if !ok {
			candles = []domain.Candle{}
		}
		response[instrument.String()] = candles
	}
	for instrument, fetchErr := range failures {
		s.logger.Warn(ctx, "batch pair failed, returning empty window", map[string]any{
			"instrument": instrument.String(),
			"error":      fetchErr.Error(),
		})
	}
	c.JSON(http.StatusOK, response)
}

// getActiveStreams handles GET /api/pricing/streams requests.
func (s *Server) getActiveStreams(c *gin.Context) {
	active := s.streams.ActiveStreams()
	ids := make([]string, 0, len(active))
	for _, instrument := range active {
		ids = append(ids, instrument.String())
	}
	counts := make(map[string]int, len(active))
	for instrument, n := range s.streams.SubscriberCounts() {
		counts[instrument.String()] = n
	}
	c.JSON(http.StatusOK, gin.H{
		"active_streams":   ids,
		"subscribers":      counts,
		"connection_count": s.clientCount.Load(),
	})
}

// healthCheck handles GET /health requests.
func (s *Server) healthCheck(c *gin.Context) {
	payload := gin.H{
		"status":    "OK",
		"service":   serviceName,
		"version":   s.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if s.cacheStats != nil {
		payload["cache"] = s.cacheStats.Stats()
	}
	c.JSON(http.StatusOK, payload)
}

// handleFetchError maps upstream failures onto gateway status codes.
func (s *Server) handleFetchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ports.ErrInvalidRequest):
		s.handleError(c, err, http.StatusBadRequest, err.Error())
	case errors.Is(err, ports.ErrTimeout), errors.Is(err, ports.ErrContextCanceled):
		s.handleError(c, err, http.StatusGatewayTimeout, "upstream request timed out")
	default:
		s.handleError(c, err, http.StatusBadGateway, "upstream request failed")
	}
}

// handleError logs the error and sends the JSON error response.
func (s *Server) handleError(c *gin.Context, err error, statusCode int, userMessage string) {
	requestID := requestIDFrom(c)
	s.logger.Error(c.Request.Context(), err, "gateway request failed", map[string]any{
		"request_id":  requestID,
		"method":      c.Request.Method,
		"path":        c.Request.URL.Path,
		"status_code": statusCode,
	})
	c.JSON(statusCode, gin.H{
		"error":      userMessage,
		"request_id": requestID,
	})
}

// handleValidationError handles request validation failures.
func (s *Server) handleValidationError(c *gin.Context, err error) {
	s.handleError(c, err, http.StatusBadRequest, err.Error())
}
