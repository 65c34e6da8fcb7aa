package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/GPC-MC/GBNX-Gold-Trader/internal/domain"
)

// WriteCandlesToCSV saves one OHLC window to a CSV file. The volume
// column is left empty for pairs the upstream reports no volume for.
func WriteCandlesToCSV(candles []domain.Candle, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"timestamp", "trading_pair", "open", "high", "low", "close", "volume"})

	for _, c := range candles {
		volume := ""
		if c.Volume != nil {
			volume = strconv.FormatFloat(*c.Volume, 'f', -1, 64)
		}
		writer.Write([]string{
			c.Timestamp.Format(time.RFC3339),
			c.Instrument.String(),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			volume,
		})
	}
	return writer.Error()
}
