package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/GPC-MC/GBNX-Gold-Trader/config"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/adapters/integralclient"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/adapters/logger"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/domain"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/stream"
)

// tickwatch subscribes to one or more tick streams and prints each quote
// to stdout until interrupted.
func main() {
	pairs := flag.String("pairs", "xau_usd", "comma-separated instruments to watch")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(cfg.LogLevel)

	// 3. Initialize Stream Manager
	dialer, err := integralclient.NewDialer(integralclient.StreamConfig{
		BaseURL: cfg.StreamBaseURL,
		Logger:  appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize stream dialer")
		log.Fatalf("FATAL: Failed to initialize stream dialer: %v", err)
	}
	manager, err := stream.NewManager(stream.Config{
		Dialer:               dialer,
		Logger:               appLogger,
		BackoffMin:           cfg.ReconnectMinDelay,
		BackoffMax:           cfg.ReconnectMaxDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize stream manager")
		log.Fatalf("FATAL: Failed to initialize stream manager: %v", err)
	}
	defer manager.StopAll()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, token := range strings.Split(*pairs, ",") {
		instrument, err := domain.ParseInstrument(strings.TrimSpace(token))
		if err != nil {
			log.Fatalf("FATAL: %v", err)
		}
		if _, err := manager.Subscribe(ctx, instrument, printTick); err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to subscribe", map[string]interface{}{"instrument": instrument.String()})
			log.Fatalf("FATAL: Failed to subscribe to %s: %v", instrument, err)
		}
	}

	fmt.Println("Watching ticks; Ctrl-C to stop.")
	<-ctx.Done()
	fmt.Println("\nStopping...")
}

func printTick(tick domain.Tick) {
	fmt.Printf("%s  %-8s bid %.5f  ask %.5f  spread %.5f\n",
		tick.Timestamp.Format("15:04:05.000"), tick.Instrument, tick.Bid, tick.Ask, tick.Spread)
}
