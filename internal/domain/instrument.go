package domain

import "fmt"

// Instrument identifies one tradable pair served by the upstream feed.
// The set is closed: the provider only quotes the metals and FX crosses below.
type Instrument string

const (
	XAUUSD Instrument = "xau_usd"
	XAGUSD Instrument = "xag_usd"
	XPTUSD Instrument = "xpt_usd"
	USDSGD Instrument = "usd_sgd"
	USDMYR Instrument = "usd_myr"
)

// streamSymbols maps each instrument to the symbol token the streaming
// endpoint expects in its query string (e.g. "ticks:XAU/USD").
var streamSymbols = map[Instrument]string{
	XAUUSD: "ticks:XAU/USD",
	XAGUSD: "ticks:XAG/USD",
	XPTUSD: "ticks:XPT/USD",
	USDSGD: "ticks:USD/SGD",
	USDMYR: "ticks:USD/MYR",
}

// AllInstruments returns the closed set of supported instruments in a stable order.
func AllInstruments() []Instrument {
	return []Instrument{XAUUSD, XAGUSD, XPTUSD, USDSGD, USDMYR}
}

// ParseInstrument validates a pair identifier (e.g. "xau_usd").
func ParseInstrument(s string) (Instrument, error) {
	inst := Instrument(s)
	if _, ok := streamSymbols[inst]; !ok {
		return "", fmt.Errorf("unknown instrument %q", s)
	}
	return inst, nil
}

// StreamSymbol returns the symbol token used on the streaming endpoint.
func (i Instrument) StreamSymbol() string {
	return streamSymbols[i]
}

func (i Instrument) String() string {
	return string(i)
}

// Valid reports whether the instrument belongs to the supported set.
func (i Instrument) Valid() bool {
	_, ok := streamSymbols[i]
	return ok
}
