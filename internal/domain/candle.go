package domain

import "time"

// Candle is one OHLC aggregate returned by the upstream polling endpoint.
type Candle struct {
	Instrument Instrument `json:"trading_pair"`
	Timestamp  time.Time  `json:"timestamp"` // Start of the aggregation interval
	Open       float64    `json:"open"`
	High       float64    `json:"high"`
	Low        float64    `json:"low"`
	Close      float64    `json:"close"`
	Volume     *float64   `json:"volume,omitempty"` // Not reported for FX pairs
}

// SortOrder selects the direction candles are returned in.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortOrder validates a sort direction, defaulting empty input to descending.
func ParseSortOrder(s string) (SortOrder, bool) {
	switch SortOrder(s) {
	case SortAsc, SortDesc:
		return SortOrder(s), true
	case "":
		return SortDesc, true
	default:
		return "", false
	}
}
