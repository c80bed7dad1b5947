// Package exchange provides cryptocurrency exchange clients for market data.
//
// The Binance client implements the Client interface against Binance's public
// spot REST API. It handles Binance-specific symbol formats (concatenated,
// e.g. "BTCUSDT"), payload validation, and the positional array layout of the
// klines endpoint.
package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cryptomarket/internal/utils"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

var (
	// defaultBinanceConfig provides sensible default configuration values for
	// Binance connections.
	defaultBinanceConfig = ClientConfig{
		BaseURL: "https://api.binance.com",
		Timeout: 10 * time.Second,
	}

	// binanceIntervals maps service timeframes to Binance kline intervals.
	// Binance happens to use the same names for every supported timeframe.
	binanceIntervals = map[string]string{
		"1m": "1m", "5m": "5m", "15m": "15m", "30m": "30m",
		"1h": "1h", "4h": "4h", "1d": "1d", "1w": "1w",
	}
)

// BinanceClient provides a Binance-specific implementation of the Client interface.
type BinanceClient struct {
	config   ClientConfig        // Configuration parameters for the client
	hc       *http.Client        // HTTP client bounded by config.Timeout
	validate *validator.Validate // Validator instance for response validation
}

// binanceTicker represents the relevant subset of Binance's 24hr ticker
// statistics response. Numeric values arrive as strings, which preserves
// precision through JSON parsing.
type binanceTicker struct {
	Symbol      string `json:"symbol" validate:"required"`
	BidPrice    string `json:"bidPrice" validate:"required,numeric"`
	AskPrice    string `json:"askPrice" validate:"required,numeric"`
	LastPrice   string `json:"lastPrice" validate:"required,numeric"`
	QuoteVolume string `json:"quoteVolume"`
	CloseTime   int64  `json:"closeTime" validate:"required,gt=0"`
}

// binanceDepth represents Binance's order book response. Each level is a
// two-element array of price and quantity strings.
type binanceDepth struct {
	Bids [][]string `json:"bids" validate:"required"`
	Asks [][]string `json:"asks" validate:"required"`
}

// NewBinanceClient creates a new Binance client with the specified configuration.
//
// If no configuration is provided (cfg is nil), the client uses default
// configuration values suitable for most use cases.
func NewBinanceClient(cfg *ClientConfig) (*BinanceClient, error) {
	if cfg == nil {
		cfg = &defaultBinanceConfig
	}

	if err := validateConfig(cfg, &defaultBinanceConfig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &BinanceClient{
		config:   *cfg,
		hc:       &http.Client{Timeout: cfg.Timeout},
		validate: validator.New(),
	}, nil
}

// Name returns the exchange identifier.
func (bc *BinanceClient) Name() string { return "binance" }

// FetchTicker returns the current 24hr ticker snapshot for symbol.
func (bc *BinanceClient) FetchTicker(ctx context.Context, symbol string) (*RawTicker, error) {
	url := fmt.Sprintf("%s/api/v3/ticker/24hr?symbol=%s", bc.config.BaseURL, toBinanceSymbol(symbol))

	var t binanceTicker
	if err := fetchJSON(ctx, bc.hc, url, &t); err != nil {
		return nil, err
	}

	if err := bc.validate.Struct(&t); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("binance ticker validation failed")
		return nil, fmt.Errorf("incomplete ticker payload: %w", err)
	}

	return &RawTicker{
		Bid:         t.BidPrice,
		Ask:         t.AskPrice,
		Last:        t.LastPrice,
		TimestampMS: t.CloseTime,
	}, nil
}

// FetchOHLCV returns candles from Binance's klines endpoint.
//
// Binance delivers each kline as a positional JSON array:
//
//	[openTime, "open", "high", "low", "close", "volume", closeTime, ...]
func (bc *BinanceClient) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int, sinceMS int64) ([]RawCandle, error) {
	interval, ok := binanceIntervals[timeframe]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTimeframe, timeframe)
	}

	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&limit=%d",
		bc.config.BaseURL, toBinanceSymbol(symbol), interval, limit)
	if sinceMS > 0 {
		url += fmt.Sprintf("&startTime=%d", sinceMS)
	}

	var rows []json.RawMessage
	if err := fetchJSON(ctx, bc.hc, url, &rows); err != nil {
		return nil, err
	}

	candles := make([]RawCandle, 0, len(rows))
	for i, row := range rows {
		candle, err := parseBinanceKline(row)
		if err != nil {
			return nil, fmt.Errorf("kline row %d: %w", i, err)
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

// parseBinanceKline decodes one positional kline row.
func parseBinanceKline(row json.RawMessage) (RawCandle, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(row, &fields); err != nil {
		return RawCandle{}, err
	}
	if len(fields) < 6 {
		return RawCandle{}, fmt.Errorf("expected at least 6 kline fields, got %d", len(fields))
	}

	var ts int64
	if err := json.Unmarshal(fields[0], &ts); err != nil {
		return RawCandle{}, fmt.Errorf("invalid open time: %w", err)
	}

	strs := make([]string, 5)
	for i := 1; i <= 5; i++ {
		if err := json.Unmarshal(fields[i], &strs[i-1]); err != nil {
			return RawCandle{}, fmt.Errorf("invalid kline field %d: %w", i, err)
		}
	}

	return RawCandle{
		TimestampMS: ts,
		Open:        strs[0],
		High:        strs[1],
		Low:         strs[2],
		Close:       strs[3],
		Volume:      strs[4],
	}, nil
}

// FetchOrderBook returns up to depth levels per side from Binance's depth endpoint.
func (bc *BinanceClient) FetchOrderBook(ctx context.Context, symbol string, depth int) (*RawOrderBook, error) {
	url := fmt.Sprintf("%s/api/v3/depth?symbol=%s&limit=%d",
		bc.config.BaseURL, toBinanceSymbol(symbol), depth)

	var d binanceDepth
	if err := fetchJSON(ctx, bc.hc, url, &d); err != nil {
		return nil, err
	}

	bids, err := toRawLevels(d.Bids, depth)
	if err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	asks, err := toRawLevels(d.Asks, depth)
	if err != nil {
		return nil, fmt.Errorf("asks: %w", err)
	}

	return &RawOrderBook{Bids: bids, Asks: asks}, nil
}

// FetchMarkets returns every spot pair from the bulk 24hr ticker endpoint.
//
// Binance symbols are concatenated ("BTCUSDT"), so base and quote assets are
// recovered by matching known quote asset suffixes; pairs quoted in an
// unrecognized asset are skipped.
func (bc *BinanceClient) FetchMarkets(ctx context.Context) ([]RawMarket, error) {
	url := bc.config.BaseURL + "/api/v3/ticker/24hr"

	var tickers []binanceTicker
	if err := fetchJSON(ctx, bc.hc, url, &tickers); err != nil {
		return nil, err
	}

	markets := make([]RawMarket, 0, len(tickers))
	for _, t := range tickers {
		base, quote, ok := utils.SplitConcatenatedSymbol(t.Symbol)
		if !ok {
			continue
		}
		markets = append(markets, RawMarket{
			Symbol:      base + "/" + quote,
			BaseAsset:   base,
			QuoteAsset:  quote,
			LastPrice:   t.LastPrice,
			QuoteVolume: t.QuoteVolume,
		})
	}

	return markets, nil
}

// toRawLevels converts two-element [price, amount] string arrays into raw
// levels, truncating to depth.
func toRawLevels(rows [][]string, depth int) ([]RawLevel, error) {
	if len(rows) > depth {
		rows = rows[:depth]
	}
	levels := make([]RawLevel, 0, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("level %d: expected [price, amount], got %d fields", i, len(row))
		}
		levels = append(levels, RawLevel{Price: row[0], Amount: row[1]})
	}
	return levels, nil
}

// toBinanceSymbol converts the normalized "BASE/QUOTE" form to Binance's
// concatenated uppercase format.
func toBinanceSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}
