/*
Package main implements the market data HTTP server.

The server answers spot price, ticker, OHLCV, order book and top-market
queries against Binance, Coinbase and OKX, caching normalized results in an
in-process TTL cache. Exchange clients are constructed lazily and shared for
the process lifetime.

Usage:

	go run main.go -addr=:8080

Configuration is read from the environment (and an optional yaml file named
by CRYPTO_CONFIG_PATH); see internal/config for the full set of variables.
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cryptomarket/internal/api"
	"cryptomarket/internal/cache"
	"cryptomarket/internal/config"
	"cryptomarket/internal/exchange"
	"cryptomarket/internal/metrics"
	"cryptomarket/internal/service"
)

var (
	// addr overrides the configured HTTP listen address when set
	addr = flag.String("addr", "", "HTTP listen address (overrides config)")
)

func main() {
	flag.Parse()

	// Initialize structured logger with timestamp and console output
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("level", cfg.LogLevel).Msg("invalid log level")
	}
	zerolog.SetGlobalLevel(level)

	if *addr != "" {
		cfg.HTTPAddr = *addr
	}

	// Context for managing application lifecycle and graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Data cache with lazy expiry; the janitor bounds memory between accesses
	dataCache := cache.New[any](cfg.CacheTTL())
	if sweep := cfg.CacheSweep(); sweep > 0 {
		dataCache.StartJanitor(ctx, sweep)
	}

	registry := exchange.NewRegistry(exchange.DefaultConstructors(
		clientConfig(cfg.Exchanges.BinanceURL),
		clientConfig(cfg.Exchanges.CoinbaseURL),
		clientConfig(cfg.Exchanges.OkxURL),
	))

	markets := service.NewMarketService(dataCache, registry, metrics.NewMarketMetrics(), cfg.DefaultExchange)
	server := api.NewServer(cfg.HTTPAddr, markets)

	// Graceful shutdown on Ctrl+C or SIGTERM
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("initiating graceful shutdown")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	log.Info().
		Str("addr", cfg.HTTPAddr).
		Str("default_exchange", cfg.DefaultExchange).
		Int("cache_ttl_seconds", cfg.CacheTTLSeconds).
		Strs("exchanges", registry.Supported()).
		Msg("server starting")

	if err := server.Start(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("server stopped")
}

// clientConfig builds an adapter config from an optional base URL override.
// A nil config selects the adapter's built-in defaults.
func clientConfig(baseURL string) *exchange.ClientConfig {
	if baseURL == "" {
		return nil
	}
	return &exchange.ClientConfig{BaseURL: baseURL}
}
