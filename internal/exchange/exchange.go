// Package exchange provides cryptocurrency exchange clients for market data.
//
// This file contains the capability interface shared by all exchange client
// implementations, the raw record types they deliver, and common configuration
// handling. Raw records preserve the upstream string representation of numeric
// fields; converting them into precise decimal values is the normalization
// layer's job, so the rest of the system never depends on any one exchange's
// wire format.
package exchange

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidConfig indicates that the provided ClientConfig contains invalid values.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrRateLimited indicates the exchange signaled request throttling.
	ErrRateLimited = errors.New("rate limited by exchange")

	// ErrUnsupportedTimeframe indicates the exchange cannot express the
	// requested candle granularity.
	ErrUnsupportedTimeframe = errors.New("timeframe not supported by exchange")
)

// Client is the uniform capability set every exchange adapter implements.
//
// Symbols are passed in the normalized "BASE/QUOTE" form (e.g. "BTC/USDT");
// each adapter translates to its native symbol format internally. A sinceMS of
// zero means "no lower bound". Every method either returns a raw record or an
// error; rate limiting is reported by wrapping ErrRateLimited so callers can
// classify it with errors.Is.
type Client interface {
	// Name returns the exchange identifier (e.g. "binance").
	Name() string

	// FetchTicker returns the current best bid/ask/last snapshot for symbol.
	FetchTicker(ctx context.Context, symbol string) (*RawTicker, error)

	// FetchOHLCV returns up to limit candles for symbol at the given
	// timeframe, optionally starting at sinceMS. Candle order is whatever
	// the exchange delivers.
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int, sinceMS int64) ([]RawCandle, error)

	// FetchOrderBook returns up to depth price levels per side for symbol.
	FetchOrderBook(ctx context.Context, symbol string, depth int) (*RawOrderBook, error)

	// FetchMarkets returns every tradable spot pair on the exchange.
	FetchMarkets(ctx context.Context) ([]RawMarket, error)
}

// RawTicker is an exchange ticker snapshot before normalization. Numeric
// fields keep the upstream string form; an empty string marks a field the
// exchange did not deliver.
type RawTicker struct {
	Bid         string
	Ask         string
	Last        string
	TimestampMS int64
}

// RawCandle is one OHLCV point before normalization.
type RawCandle struct {
	TimestampMS int64
	Open        string
	High        string
	Low         string
	Close       string
	Volume      string
}

// RawLevel is one order book price level: price and resting amount.
type RawLevel struct {
	Price  string
	Amount string
}

// RawOrderBook holds both sides of an order book in whatever order the
// exchange delivered them.
type RawOrderBook struct {
	Bids []RawLevel
	Asks []RawLevel
}

// RawMarket is one tradable pair. Symbol is already in normalized
// "BASE/QUOTE" form since only the adapter knows its native format.
// LastPrice and QuoteVolume may be empty when the exchange's market listing
// does not include them.
type RawMarket struct {
	Symbol      string
	BaseAsset   string
	QuoteAsset  string
	LastPrice   string
	QuoteVolume string
}

// ClientConfig provides common configuration parameters for all exchange clients.
type ClientConfig struct {
	// BaseURL is the REST endpoint URL for the exchange API.
	BaseURL string

	// Timeout bounds every HTTP request made by the client.
	Timeout time.Duration
}

// validateConfig ensures all required configuration fields are present and valid,
// applying defaults for optional fields when possible.
func validateConfig(cfg *ClientConfig, defaultCfg *ClientConfig) error {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultCfg.BaseURL
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCfg.Timeout
	}

	return nil
}
