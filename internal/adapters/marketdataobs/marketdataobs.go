// Package marketdataobs layers tracing and timing logs over an
// OHLCFetcher without the fetcher knowing about either.
package marketdataobs

import (
	"context"
	"time"

	"github.com/GPC-MC/GBNX-Gold-Trader/internal/domain"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/ports"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/trace"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// observableFetcher wraps an OHLCFetcher with a span and a duration log
// per call.
type observableFetcher struct {
	inner  ports.OHLCFetcher
	logger ports.Logger
}

// Wrap decorates fetcher with observability middleware.
func Wrap(fetcher ports.OHLCFetcher, logger ports.Logger) ports.OHLCFetcher {
	return &observableFetcher{inner: fetcher, logger: logger}
}

func (o *observableFetcher) GetOHLC(ctx context.Context, q ports.OHLCQuery) ([]domain.Candle, error) {
	ctx, span := trace.StartSpan(ctx, "marketdata.GetOHLC", oteltrace.WithAttributes(
		attribute.String("instrument", q.Instrument.String()),
		attribute.Int("interval", q.Interval),
		attribute.Int("limit", q.Limit),
		attribute.Int("offset", q.Offset),
		attribute.String("sort", string(q.Sort)),
	))
	defer span.End()

	start := time.Now()
	candles, err := o.inner.GetOHLC(ctx, q)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Error(ctx, err, "OHLC fetch failed", map[string]any{
			"instrument":  q.Instrument.String(),
			"interval":    q.Interval,
			"limit":       q.Limit,
			"duration_ms": durationMS,
		})
		return nil, err
	}

	span.SetAttributes(attribute.Int("candles", len(candles)))
	o.logger.Debug(ctx, "OHLC fetch completed", map[string]any{
		"instrument":  q.Instrument.String(),
		"interval":    q.Interval,
		"limit":       q.Limit,
		"candles":     len(candles),
		"duration_ms": durationMS,
	})
	return candles, nil
}
