package integralclient

import (
	"testing"
	"time"

	"github.com/GPC-MC/GBNX-Gold-Trader/internal/domain"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/ports"

	simplejson "github.com/bitly/go-simplejson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTickFrame(t *testing.T) {
	receipt := time.Date(2024, 12, 26, 9, 0, 0, 0, time.UTC)
	fixedNow := func() time.Time { return receipt }

	tests := []struct {
		name     string
		raw      string
		want     domain.Tick
		wantErr  bool
		errMatch error
	}{
		{
			name: "values wrapper takes the last element",
			raw: `{"values":[
				{"bid_price":2619.0,"ask_price":2619.5,"date_time":"2024-12-26 08:09:59.900"},
				{"bid_price":2620.1,"ask_price":2620.6,"date_time":"2024-12-26 08:10:00.110","spread":0.5}
			]}`,
			want: domain.Tick{
				Instrument: domain.XAUUSD,
				Bid:        2620.1,
				Ask:        2620.6,
				Timestamp:  time.Date(2024, 12, 26, 8, 10, 0, 110_000_000, time.UTC),
				Spread:     0.5,
			},
		},
		{
			name: "flat shape with short aliases",
			raw:  `{"bid":"2620.10","ask":"2620.60","timestamp":"2024-01-01T00:00:00Z"}`,
			want: domain.Tick{
				Instrument: domain.XAUUSD,
				Bid:        2620.1,
				Ask:        2620.6,
				Timestamp:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				Spread:     0.5,
			},
		},
		{
			name: "missing timestamp falls back to receipt time",
			raw:  `{"bid_price":1.0456,"ask_price":1.0458}`,
			want: domain.Tick{
				Instrument: domain.XAUUSD,
				Bid:        1.0456,
				Ask:        1.0458,
				Timestamp:  receipt,
				Spread:     0.0002,
			},
		},
		{
			name: "unparseable timestamp falls back to receipt time",
			raw:  `{"bid":30.1,"ask":30.2,"date_time":"yesterday"}`,
			want: domain.Tick{
				Instrument: domain.XAUUSD,
				Bid:        30.1,
				Ask:        30.2,
				Timestamp:  receipt,
				Spread:     30.2 - 30.1,
			},
		},
		{
			name:     "missing ask is malformed",
			raw:      `{"bid_price":2620.1,"date_time":"2024-12-26 08:10:00.110"}`,
			wantErr:  true,
			errMatch: ports.ErrMalformedMessage,
		},
		{
			name:     "empty values array is malformed",
			raw:      `{"values":[]}`,
			wantErr:  true,
			errMatch: ports.ErrMalformedMessage,
		},
		{
			name:     "values holding a non-array is malformed",
			raw:      `{"values":"nope"}`,
			wantErr:  true,
			errMatch: ports.ErrMalformedMessage,
		},
		{
			name:     "invalid JSON is malformed",
			raw:      `{"bid_price":`,
			wantErr:  true,
			errMatch: ports.ErrMalformedMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tick, err := parseTickFrame([]byte(tt.raw), domain.XAUUSD, fixedNow)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.errMatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Instrument, tick.Instrument)
			assert.Equal(t, tt.want.Bid, tick.Bid)
			assert.Equal(t, tt.want.Ask, tick.Ask)
			assert.True(t, tt.want.Timestamp.Equal(tick.Timestamp), "timestamp %v != %v", tick.Timestamp, tt.want.Timestamp)
			assert.InDelta(t, tt.want.Spread, tick.Spread, 1e-9)
		})
	}
}

func TestParseCandle(t *testing.T) {
	vol := 1523.0

	tests := []struct {
		name    string
		raw     string
		want    domain.Candle
		wantErr bool
	}{
		{
			name: "capitalized field names",
			raw:  `{"Date_time":"2024-12-26 08:00:00.000","Open":2618.2,"High":2621.0,"Low":2617.9,"Close":2620.1,"Volume":1523}`,
			want: domain.Candle{
				Instrument: domain.XAGUSD,
				Timestamp:  time.Date(2024, 12, 26, 8, 0, 0, 0, time.UTC),
				Open:       2618.2,
				High:       2621.0,
				Low:        2617.9,
				Close:      2620.1,
				Volume:     &vol,
			},
		},
		{
			name: "lowercase aliases without volume",
			raw:  `{"timestamp":"2024-12-26T08:00:00Z","open":"2618.2","high":"2621.0","low":"2617.9","close":"2620.1"}`,
			want: domain.Candle{
				Instrument: domain.XAGUSD,
				Timestamp:  time.Date(2024, 12, 26, 8, 0, 0, 0, time.UTC),
				Open:       2618.2,
				High:       2621.0,
				Low:        2617.9,
				Close:      2620.1,
			},
		},
		{
			name:    "missing timestamp",
			raw:     `{"Open":1,"High":2,"Low":0.5,"Close":1.5}`,
			wantErr: true,
		},
		{
			name:    "unparseable timestamp",
			raw:     `{"Date_time":"not-a-time","Open":1,"High":2,"Low":0.5,"Close":1.5}`,
			wantErr: true,
		},
		{
			name:    "missing close",
			raw:     `{"Date_time":"2024-12-26 08:00:00.000","Open":1,"High":2,"Low":0.5}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := simplejson.NewJson([]byte(tt.raw))
			require.NoError(t, err)

			candle, err := parseCandle(item, domain.XAGUSD)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ports.ErrMalformedMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Instrument, candle.Instrument)
			assert.True(t, tt.want.Timestamp.Equal(candle.Timestamp))
			assert.Equal(t, tt.want.Open, candle.Open)
			assert.Equal(t, tt.want.High, candle.High)
			assert.Equal(t, tt.want.Low, candle.Low)
			assert.Equal(t, tt.want.Close, candle.Close)
			if tt.want.Volume == nil {
				assert.Nil(t, candle.Volume)
			} else {
				require.NotNil(t, candle.Volume)
				assert.Equal(t, *tt.want.Volume, *candle.Volume)
			}
		})
	}
}

func TestParseOHLCResponse_Envelopes(t *testing.T) {
	item := `{"Date_time":"2024-12-26 08:00:00.000","Open":1,"High":2,"Low":0.5,"Close":1.5}`

	tests := []struct {
		name      string
		body      string
		wantCount int
		wantErr   bool
	}{
		{name: "bare array", body: `[` + item + `,` + item + `]`, wantCount: 2},
		{name: "data wrapper", body: `{"data":[` + item + `]}`, wantCount: 1},
		{name: "results wrapper", body: `{"results":[` + item + `]}`, wantCount: 1},
		{name: "empty array", body: `[]`, wantCount: 0},
		{name: "unknown envelope", body: `{"candles":[]}`, wantErr: true},
		{name: "wrapper holding non-array", body: `{"data":{"Open":1}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candles, err := parseOHLCResponse([]byte(tt.body), domain.XAUUSD)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ports.ErrMalformedMessage)
				return
			}
			require.NoError(t, err)
			assert.Len(t, candles, tt.wantCount)
		})
	}
}

func TestParseFeedTime(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   time.Time
		wantOK bool
	}{
		{
			name:   "provider space form with millis",
			input:  "2024-12-26 08:10:00.110",
			want:   time.Date(2024, 12, 26, 8, 10, 0, 110_000_000, time.UTC),
			wantOK: true,
		},
		{
			name:   "ISO with zone",
			input:  "2024-12-26T08:10:00+07:00",
			want:   time.Date(2024, 12, 26, 8, 10, 0, 0, time.FixedZone("", 7*3600)),
			wantOK: true,
		},
		{
			name:   "seconds only",
			input:  "2024-12-26 08:10:00",
			want:   time.Date(2024, 12, 26, 8, 10, 0, 0, time.UTC),
			wantOK: true,
		},
		{name: "garbage", input: "later", wantOK: false},
		{name: "empty", input: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseFeedTime(tt.input)
			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, tt.want.Equal(got), "parsed %v, want %v", got, tt.want)
			}
		})
	}
}
