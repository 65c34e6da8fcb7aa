package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/GPC-MC/GBNX-Gold-Trader/config"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/adapters/integralclient"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/adapters/logger"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/domain"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/ports"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/utils"
)

// fetchohlc issues one OHLC query against the upstream feed and prints
// the window as indented JSON. Useful for eyeballing upstream behavior
// without standing up the full service.
func main() {
	pair := flag.String("pair", "xau_usd", "instrument to fetch (e.g. xau_usd)")
	interval := flag.Int("interval", 3600, "aggregation interval in seconds")
	limit := flag.Int("limit", 50, "number of candles")
	offset := flag.Int("offset", 0, "window offset in candles")
	sortDir := flag.String("sort", "desc", "sort order: asc or desc")
	csvPath := flag.String("csv", "", "optionally save the window to a CSV file")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(cfg.LogLevel)

	// 3. Initialize Feed Client
	feedClient, err := integralclient.New(integralclient.Config{
		BaseURL:        cfg.FeedBaseURL,
		Logger:         appLogger,
		RequestTimeout: cfg.RequestTimeout,
		MaxAttempts:    cfg.MaxFetchAttempts,
		RetryDelay:     cfg.RetryDelay,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize feed client")
		log.Fatalf("FATAL: Failed to initialize feed client: %v", err)
	}

	instrument, err := domain.ParseInstrument(*pair)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	sortOrder, ok := domain.ParseSortOrder(*sortDir)
	if !ok {
		log.Fatalf("FATAL: sort must be asc or desc, got %q", *sortDir)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	fmt.Printf("Fetching %d candles for %s (interval %ds)...\n", *limit, instrument, *interval)
	candles, err := feedClient.GetOHLC(ctx, ports.OHLCQuery{
		Instrument: instrument,
		Interval:   *interval,
		Limit:      *limit,
		Offset:     *offset,
		Sort:       sortOrder,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "Error fetching candles")
		log.Fatalf("Error fetching candles: %v", err)
	}

	out, err := json.MarshalIndent(candles, "", "  ")
	if err != nil {
		log.Fatalf("Error encoding candles: %v", err)
	}
	fmt.Println(string(out))
	appLogger.Info(context.Background(), "Fetched candles", map[string]interface{}{"count": len(candles)})

	if *csvPath != "" {
		if err := utils.WriteCandlesToCSV(candles, *csvPath); err != nil {
			appLogger.Error(context.Background(), err, "Error writing CSV")
			log.Fatalf("Error writing CSV: %v", err)
		}
		appLogger.Info(context.Background(), "Saved to", map[string]interface{}{"filename": *csvPath})
	}
}
