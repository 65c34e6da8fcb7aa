package integralclient

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/GPC-MC/GBNX-Gold-Trader/internal/domain"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/ports"

	simplejson "github.com/bitly/go-simplejson"
)

// The upstream emits two generations of field names on both the streaming
// and polling endpoints. Every lookup below probes the aliases in order and
// accepts JSON numbers as well as numeric strings, because the provider has
// been observed to switch between the two without notice.

var tickTimeLayouts = []string{
	time.RFC3339Nano,                // "2024-01-01T00:00:00Z"
	"2006-01-02T15:04:05.999999999", // "2024-12-26T08:10:00.110", no zone
}

// parseFeedTime accepts both the provider's space-separated timestamps
// ("2024-12-26 08:10:00.110") and ISO-8601 forms.
func parseFeedTime(s string) (time.Time, bool) {
	normalized := strings.Replace(strings.TrimSpace(s), " ", "T", 1)
	for _, layout := range tickTimeLayouts {
		if ts, err := time.Parse(layout, normalized); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// floatField returns the first alias present with a usable numeric value.
func floatField(j *simplejson.Json, aliases ...string) (float64, bool) {
	for _, key := range aliases {
		v, ok := j.CheckGet(key)
		if !ok {
			continue
		}
		if f, err := v.Float64(); err == nil {
			return f, true
		}
		if s, err := v.String(); err == nil {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// stringField returns the first alias present with a non-empty string value.
func stringField(j *simplejson.Json, aliases ...string) (string, bool) {
	for _, key := range aliases {
		v, ok := j.CheckGet(key)
		if !ok {
			continue
		}
		if s, err := v.String(); err == nil && s != "" {
			return s, true
		}
	}
	return "", false
}

// parseTickFrame decodes one streaming frame into a Tick. Two shapes are
// accepted: a wrapper object carrying a "values" array, of which only the
// last (newest) element is delivered downstream, and a flat object carrying
// bid/ask at the top level. Anything else is a malformed frame.
func parseTickFrame(raw []byte, instrument domain.Instrument, now func() time.Time) (domain.Tick, error) {
	j, err := simplejson.NewJson(raw)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("%w: invalid JSON: %w", ports.ErrMalformedMessage, err)
	}

	item := j
	if values, ok := j.CheckGet("values"); ok {
		arr, err := values.Array()
		if err != nil {
			return domain.Tick{}, fmt.Errorf("%w: values is not an array", ports.ErrMalformedMessage)
		}
		if len(arr) == 0 {
			return domain.Tick{}, fmt.Errorf("%w: empty values array", ports.ErrMalformedMessage)
		}
		// The provider batches ticks per frame; only the newest matters.
		item = values.GetIndex(len(arr) - 1)
	}

	bid, haveBid := floatField(item, "bid_price", "bid")
	ask, haveAsk := floatField(item, "ask_price", "ask")
	if !haveBid || !haveAsk {
		return domain.Tick{}, fmt.Errorf("%w: missing bid or ask price", ports.ErrMalformedMessage)
	}

	ts := now()
	if s, ok := stringField(item, "date_time", "timestamp"); ok {
		if parsed, ok := parseFeedTime(s); ok {
			ts = parsed
		}
	}

	spread, haveSpread := floatField(item, "spread")
	if !haveSpread {
		spread = ask - bid
	}

	return domain.Tick{
		Instrument: instrument,
		Bid:        bid,
		Ask:        ask,
		Timestamp:  ts,
		Spread:     spread,
	}, nil
}

// parseCandle decodes one polling-endpoint item. Unlike tick frames, candle
// timestamps are mandatory: an item without a parseable timestamp is an
// error, because callers key history off it.
func parseCandle(item *simplejson.Json, instrument domain.Instrument) (domain.Candle, error) {
	open, haveOpen := floatField(item, "Open", "open")
	high, haveHigh := floatField(item, "High", "high")
	low, haveLow := floatField(item, "Low", "low")
	closePrice, haveClose := floatField(item, "Close", "close")
	if !haveOpen || !haveHigh || !haveLow || !haveClose {
		return domain.Candle{}, fmt.Errorf("%w: missing OHLC field", ports.ErrMalformedMessage)
	}

	s, ok := stringField(item, "Date_time", "timestamp", "Timestamp")
	if !ok {
		return domain.Candle{}, fmt.Errorf("%w: missing timestamp", ports.ErrMalformedMessage)
	}
	ts, ok := parseFeedTime(s)
	if !ok {
		return domain.Candle{}, fmt.Errorf("%w: unparseable timestamp %q", ports.ErrMalformedMessage, s)
	}

	candle := domain.Candle{
		Instrument: instrument,
		Timestamp:  ts,
		Open:       open,
		High:       high,
		Low:        low,
		Close:      closePrice,
	}
	if vol, ok := floatField(item, "Volume", "volume"); ok {
		candle.Volume = &vol
	}
	return candle, nil
}

// extractCandleItems unwraps the two polling response envelopes: a bare
// JSON array, or an object wrapping the array under "data" or "results".
func extractCandleItems(root *simplejson.Json) (*simplejson.Json, int, error) {
	if arr, err := root.Array(); err == nil {
		return root, len(arr), nil
	}
	for _, key := range []string{"data", "results"} {
		if wrapped, ok := root.CheckGet(key); ok {
			arr, err := wrapped.Array()
			if err != nil {
				return nil, 0, fmt.Errorf("%w: %q is not an array", ports.ErrMalformedMessage, key)
			}
			return wrapped, len(arr), nil
		}
	}
	return nil, 0, fmt.Errorf("%w: response is neither an array nor a data/results wrapper", ports.ErrMalformedMessage)
}
