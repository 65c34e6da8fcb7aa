package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os/signal"
	"syscall"
	"time"

	"github.com/GPC-MC/GBNX-Gold-Trader/config"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/adapters/integralclient"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/adapters/logger"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/adapters/marketdataobs"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/gateway"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/pricecache"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/stream"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/trace"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel})

	// 3. Initialize Tracing
	if err := trace.Init(cfg.TraceEnabled, cfg.ServiceVersion); err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize tracing")
		log.Fatalf("FATAL: Failed to initialize tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := trace.Shutdown(shutdownCtx); err != nil {
			appLogger.Error(context.Background(), err, "Error shutting down tracer provider")
		}
	}()

	// 4. Initialize Feed Client (Upstream REST Adapter)
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
	appLogger.Info(context.Background(), "Feed client initialized")

	// 5. Initialize Poll Cache (traced fetcher behind a TTL cache)
	cache, err := pricecache.NewCache(pricecache.Config{
		Fetcher: marketdataobs.Wrap(feedClient, appLogger),
		Logger:  appLogger,
		TTL:     cfg.CacheTTL,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize poll cache")
		log.Fatalf("FATAL: Failed to initialize poll cache: %v", err)
	}
	appLogger.Info(context.Background(), "Poll cache initialized")

	// 6. Initialize Stream Manager (Upstream Websocket Adapter)
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
	appLogger.Info(context.Background(), "Stream manager initialized")

	// 7. Initialize Gateway
	server, err := gateway.NewServer(gateway.Config{
		Addr:           cfg.ListenAddr,
		Logger:         appLogger,
		MarketData:     cache,
		Streams:        manager,
		CacheStats:     cache,
		RequestTimeout: cfg.GatewayRequestTimeout,
		Version:        cfg.ServiceVersion,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize gateway")
		log.Fatalf("FATAL: Failed to initialize gateway: %v", err)
	}

	// 8. Run until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go cache.RunJanitor(ctx, cfg.JanitorInterval)

	if err := server.Run(ctx); err != nil {
		appLogger.Error(context.Background(), err, "Gateway exited with error")
		log.Fatalf("FATAL: Gateway exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
