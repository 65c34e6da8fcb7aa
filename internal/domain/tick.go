package domain

import "time"

// Tick is a single bid/ask observation received from the streaming feed.
// Ticks are immutable once created and are not retained after delivery.
type Tick struct {
	Instrument Instrument `json:"symbol"`    // Pair the quote belongs to
	Bid        float64    `json:"bid"`       // Best bid price
	Ask        float64    `json:"ask"`       // Best ask price
	Timestamp  time.Time  `json:"timestamp"` // Quote time as reported upstream (receipt time if absent)
	Spread     float64    `json:"spread"`    // Ask minus bid; derived when not supplied upstream
}
