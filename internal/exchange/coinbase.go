// Package exchange provides cryptocurrency exchange clients for market data.
//
// The Coinbase client implements the Client interface against the Coinbase
// Exchange public REST API. Coinbase differs from the other adapters in two
// ways this file has to absorb: candles arrive as positional numeric arrays
// with a seconds-resolution timestamp, and the product listing carries no
// prices, so markets from Coinbase have an empty LastPrice.
package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

var (
	// defaultCoinbaseConfig provides sensible default configuration values
	// for Coinbase Exchange connections.
	defaultCoinbaseConfig = ClientConfig{
		BaseURL: "https://api.exchange.coinbase.com",
		Timeout: 10 * time.Second,
	}

	// coinbaseGranularities maps service timeframes to Coinbase candle
	// granularities in seconds. Coinbase offers no 30m, 4h, or 1w
	// granularity; those timeframes fail with ErrUnsupportedTimeframe.
	coinbaseGranularities = map[string]int{
		"1m":  60,
		"5m":  300,
		"15m": 900,
		"1h":  3600,
		"1d":  86400,
	}
)

// CoinbaseClient provides a Coinbase-specific implementation of the Client interface.
type CoinbaseClient struct {
	config   ClientConfig
	hc       *http.Client
	validate *validator.Validate
}

// coinbaseTicker represents Coinbase's product ticker response. The timestamp
// is an RFC3339 string rather than Unix milliseconds.
type coinbaseTicker struct {
	Price string `json:"price" validate:"required,numeric"`
	Bid   string `json:"bid" validate:"required,numeric"`
	Ask   string `json:"ask" validate:"required,numeric"`
	Time  string `json:"time" validate:"required"`
}

// coinbaseBook represents Coinbase's level-2 order book response. Each level
// is [price, size, num_orders] with mixed element types, so levels are kept
// raw and decoded field by field.
type coinbaseBook struct {
	Bids [][]json.RawMessage `json:"bids" validate:"required"`
	Asks [][]json.RawMessage `json:"asks" validate:"required"`
}

// coinbaseProduct represents one entry of Coinbase's product listing.
type coinbaseProduct struct {
	ID            string `json:"id" validate:"required"`
	BaseCurrency  string `json:"base_currency" validate:"required"`
	QuoteCurrency string `json:"quote_currency" validate:"required"`
	Status        string `json:"status"`
}

// NewCoinbaseClient creates a new Coinbase client with the specified configuration.
func NewCoinbaseClient(cfg *ClientConfig) (*CoinbaseClient, error) {
	if cfg == nil {
		cfg = &defaultCoinbaseConfig
	}

	if err := validateConfig(cfg, &defaultCoinbaseConfig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &CoinbaseClient{
		config:   *cfg,
		hc:       &http.Client{Timeout: cfg.Timeout},
		validate: validator.New(),
	}, nil
}

// Name returns the exchange identifier.
func (cc *CoinbaseClient) Name() string { return "coinbase" }

// FetchTicker returns the current ticker snapshot for symbol.
func (cc *CoinbaseClient) FetchTicker(ctx context.Context, symbol string) (*RawTicker, error) {
	url := fmt.Sprintf("%s/products/%s/ticker", cc.config.BaseURL, toCoinbaseSymbol(symbol))

	var t coinbaseTicker
	if err := fetchJSON(ctx, cc.hc, url, &t); err != nil {
		return nil, err
	}

	if err := cc.validate.Struct(&t); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("coinbase ticker validation failed")
		return nil, fmt.Errorf("incomplete ticker payload: %w", err)
	}

	ts, err := time.Parse(time.RFC3339, t.Time)
	if err != nil {
		return nil, fmt.Errorf("invalid ticker timestamp %q: %w", t.Time, err)
	}

	return &RawTicker{
		Bid:         t.Bid,
		Ask:         t.Ask,
		Last:        t.Price,
		TimestampMS: ts.UnixMilli(),
	}, nil
}

// FetchOHLCV returns candles from Coinbase's candles endpoint.
//
// Coinbase delivers each candle as a positional numeric array, newest first:
//
//	[time_sec, low, high, open, close, volume]
//
// Values are decoded as json.Number to preserve the upstream text exactly.
func (cc *CoinbaseClient) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int, sinceMS int64) ([]RawCandle, error) {
	granularity, ok := coinbaseGranularities[timeframe]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTimeframe, timeframe)
	}

	url := fmt.Sprintf("%s/products/%s/candles?granularity=%d",
		cc.config.BaseURL, toCoinbaseSymbol(symbol), granularity)
	if sinceMS > 0 {
		url += "&start=" + time.UnixMilli(sinceMS).UTC().Format(time.RFC3339)
	}

	var rows [][]json.Number
	if err := fetchJSON(ctx, cc.hc, url, &rows); err != nil {
		return nil, err
	}

	if len(rows) > limit {
		rows = rows[:limit]
	}

	candles := make([]RawCandle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("candle row %d: expected 6 fields, got %d", i, len(row))
		}
		ts, err := row[0].Int64()
		if err != nil {
			return nil, fmt.Errorf("candle row %d: invalid time: %w", i, err)
		}
		candles = append(candles, RawCandle{
			TimestampMS: ts * 1000,
			Low:         row[1].String(),
			High:        row[2].String(),
			Open:        row[3].String(),
			Close:       row[4].String(),
			Volume:      row[5].String(),
		})
	}

	return candles, nil
}

// FetchOrderBook returns up to depth levels per side from Coinbase's level-2 book.
func (cc *CoinbaseClient) FetchOrderBook(ctx context.Context, symbol string, depth int) (*RawOrderBook, error) {
	url := fmt.Sprintf("%s/products/%s/book?level=2", cc.config.BaseURL, toCoinbaseSymbol(symbol))

	var book coinbaseBook
	if err := fetchJSON(ctx, cc.hc, url, &book); err != nil {
		return nil, err
	}

	bids, err := coinbaseLevels(book.Bids, depth)
	if err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	asks, err := coinbaseLevels(book.Asks, depth)
	if err != nil {
		return nil, fmt.Errorf("asks: %w", err)
	}

	return &RawOrderBook{Bids: bids, Asks: asks}, nil
}

// FetchMarkets returns every online spot pair from the product listing.
// Coinbase's listing has no price data, so LastPrice stays empty and these
// markets are excluded from top-markets rankings during normalization.
func (cc *CoinbaseClient) FetchMarkets(ctx context.Context) ([]RawMarket, error) {
	url := cc.config.BaseURL + "/products"

	var products []coinbaseProduct
	if err := fetchJSON(ctx, cc.hc, url, &products); err != nil {
		return nil, err
	}

	markets := make([]RawMarket, 0, len(products))
	for _, p := range products {
		if p.Status != "" && p.Status != "online" {
			continue
		}
		base := strings.ToUpper(p.BaseCurrency)
		quote := strings.ToUpper(p.QuoteCurrency)
		markets = append(markets, RawMarket{
			Symbol:     base + "/" + quote,
			BaseAsset:  base,
			QuoteAsset: quote,
		})
	}

	return markets, nil
}

// coinbaseLevels decodes [price, size, num_orders] arrays into raw levels,
// truncating to depth. Only the first two fields are used; num_orders is a
// JSON number and irrelevant here.
func coinbaseLevels(rows [][]json.RawMessage, depth int) ([]RawLevel, error) {
	if len(rows) > depth {
		rows = rows[:depth]
	}
	levels := make([]RawLevel, 0, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("level %d: expected [price, size], got %d fields", i, len(row))
		}
		var price, size string
		if err := json.Unmarshal(row[0], &price); err != nil {
			return nil, fmt.Errorf("level %d: invalid price: %w", i, err)
		}
		if err := json.Unmarshal(row[1], &size); err != nil {
			return nil, fmt.Errorf("level %d: invalid size: %w", i, err)
		}
		levels = append(levels, RawLevel{Price: price, Amount: size})
	}
	return levels, nil
}

// toCoinbaseSymbol converts the normalized "BASE/QUOTE" form to Coinbase's
// dash-separated product id.
func toCoinbaseSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", "-"))
}
