// Package exchange provides cryptocurrency exchange clients for market data.
//
// The OKX client implements the Client interface against OKX's public REST
// API v5. OKX wraps every response in a {code, msg, data} envelope and
// reports errors through the code field even on HTTP 200, so each call checks
// the envelope before touching the payload.
package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

var (
	// defaultOkxConfig provides sensible defaults for OKX connections.
	defaultOkxConfig = ClientConfig{
		BaseURL: "https://www.okx.com",
		Timeout: 10 * time.Second,
	}

	// okxBars maps service timeframes to OKX bar identifiers. Granularities
	// of an hour and above use uppercase suffixes in OKX's API.
	okxBars = map[string]string{
		"1m": "1m", "5m": "5m", "15m": "15m", "30m": "30m",
		"1h": "1H", "4h": "4H", "1d": "1D", "1w": "1W",
	}
)

// okxRateLimitCode is the envelope code OKX uses for "requests too frequent".
const okxRateLimitCode = "50011"

// OkxClient provides an OKX-specific implementation of the Client interface.
type OkxClient struct {
	config   ClientConfig
	hc       *http.Client
	validate *validator.Validate
}

// okxEnvelope is the {code, msg, data} wrapper around every OKX response.
type okxEnvelope struct {
	Code string          `json:"code" validate:"required"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// okxTicker represents one entry of OKX's ticker payload. All numeric values
// including the millisecond timestamp arrive as strings.
type okxTicker struct {
	InstID      string `json:"instId" validate:"required"`
	Last        string `json:"last" validate:"required,numeric"`
	BidPx       string `json:"bidPx"`
	AskPx       string `json:"askPx"`
	VolCcy24h   string `json:"volCcy24h"`
	TimestampMS string `json:"ts" validate:"required,numeric"`
}

// okxBook represents OKX's order book payload. Levels are
// [price, size, deprecated, num_orders] string arrays.
type okxBook struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

// NewOkxClient creates a new OKX client with the specified configuration.
func NewOkxClient(cfg *ClientConfig) (*OkxClient, error) {
	if cfg == nil {
		cfg = &defaultOkxConfig
	}

	if err := validateConfig(cfg, &defaultOkxConfig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &OkxClient{
		config:   *cfg,
		hc:       &http.Client{Timeout: cfg.Timeout},
		validate: validator.New(),
	}, nil
}

// Name returns the exchange identifier.
func (oc *OkxClient) Name() string { return "okx" }

// fetchEnvelope performs a GET, unwraps the OKX envelope, and decodes its
// data field into out.
func (oc *OkxClient) fetchEnvelope(ctx context.Context, url string, out any) error {
	var env okxEnvelope
	if err := fetchJSON(ctx, oc.hc, url, &env); err != nil {
		return err
	}

	if env.Code != "0" {
		if env.Code == okxRateLimitCode {
			return fmt.Errorf("%w: code %s: %s", ErrRateLimited, env.Code, env.Msg)
		}
		return fmt.Errorf("okx error code %s: %s", env.Code, env.Msg)
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("malformed data field: %w", err)
	}
	return nil
}

// FetchTicker returns the current ticker snapshot for symbol.
func (oc *OkxClient) FetchTicker(ctx context.Context, symbol string) (*RawTicker, error) {
	url := fmt.Sprintf("%s/api/v5/market/ticker?instId=%s", oc.config.BaseURL, toOkxSymbol(symbol))

	var tickers []okxTicker
	if err := oc.fetchEnvelope(ctx, url, &tickers); err != nil {
		return nil, err
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("empty ticker data for %s", symbol)
	}

	t := tickers[0]
	if err := oc.validate.Struct(&t); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("okx ticker validation failed")
		return nil, fmt.Errorf("incomplete ticker payload: %w", err)
	}

	ts, err := strconv.ParseInt(t.TimestampMS, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ticker timestamp %q: %w", t.TimestampMS, err)
	}

	return &RawTicker{
		Bid:         t.BidPx,
		Ask:         t.AskPx,
		Last:        t.Last,
		TimestampMS: ts,
	}, nil
}

// FetchOHLCV returns candles from OKX's candles endpoint.
//
// OKX delivers each candle as a positional string array, newest first:
//
//	["ts", "open", "high", "low", "close", "volume", ...]
func (oc *OkxClient) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int, sinceMS int64) ([]RawCandle, error) {
	bar, ok := okxBars[timeframe]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTimeframe, timeframe)
	}

	url := fmt.Sprintf("%s/api/v5/market/candles?instId=%s&bar=%s&limit=%d",
		oc.config.BaseURL, toOkxSymbol(symbol), bar, limit)
	if sinceMS > 0 {
		// OKX pages backwards: "before" returns candles newer than ts.
		url += fmt.Sprintf("&before=%d", sinceMS)
	}

	var rows [][]string
	if err := oc.fetchEnvelope(ctx, url, &rows); err != nil {
		return nil, err
	}

	candles := make([]RawCandle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("candle row %d: expected at least 6 fields, got %d", i, len(row))
		}
		ts, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("candle row %d: invalid timestamp: %w", i, err)
		}
		candles = append(candles, RawCandle{
			TimestampMS: ts,
			Open:        row[1],
			High:        row[2],
			Low:         row[3],
			Close:       row[4],
			Volume:      row[5],
		})
	}

	return candles, nil
}

// FetchOrderBook returns up to depth levels per side from OKX's books endpoint.
func (oc *OkxClient) FetchOrderBook(ctx context.Context, symbol string, depth int) (*RawOrderBook, error) {
	url := fmt.Sprintf("%s/api/v5/market/books?instId=%s&sz=%d",
		oc.config.BaseURL, toOkxSymbol(symbol), depth)

	var books []okxBook
	if err := oc.fetchEnvelope(ctx, url, &books); err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, fmt.Errorf("empty order book data for %s", symbol)
	}

	bids, err := toRawLevels(books[0].Bids, depth)
	if err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	asks, err := toRawLevels(books[0].Asks, depth)
	if err != nil {
		return nil, fmt.Errorf("asks: %w", err)
	}

	return &RawOrderBook{Bids: bids, Asks: asks}, nil
}

// FetchMarkets returns every spot pair from the bulk tickers endpoint.
// OKX instrument ids are dash-separated ("BTC-USDT"), so base and quote split
// cleanly without suffix matching.
func (oc *OkxClient) FetchMarkets(ctx context.Context) ([]RawMarket, error) {
	url := oc.config.BaseURL + "/api/v5/market/tickers?instType=SPOT"

	var tickers []okxTicker
	if err := oc.fetchEnvelope(ctx, url, &tickers); err != nil {
		return nil, err
	}

	markets := make([]RawMarket, 0, len(tickers))
	for _, t := range tickers {
		parts := strings.Split(t.InstID, "-")
		if len(parts) != 2 {
			continue
		}
		base := strings.ToUpper(parts[0])
		quote := strings.ToUpper(parts[1])
		markets = append(markets, RawMarket{
			Symbol:      base + "/" + quote,
			BaseAsset:   base,
			QuoteAsset:  quote,
			LastPrice:   t.Last,
			QuoteVolume: t.VolCcy24h,
		})
	}

	return markets, nil
}

// toOkxSymbol converts the normalized "BASE/QUOTE" form to OKX's
// dash-separated instrument id.
func toOkxSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", "-"))
}
