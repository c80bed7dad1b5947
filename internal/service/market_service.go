// Package service provides the data client orchestrating cache, registry and
// exchange adapters.
//
// MarketService is the repository the HTTP layer talks to. Every operation
// follows the same cache-aside template: validate the request, probe the TTL
// cache, and on a miss resolve the exchange handle, call the matching
// capability, normalize the raw result, cache it, and return it. Failures are
// classified into the error taxonomy and surfaced as-is — there is no retry
// and no fallback to stale data.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cryptomarket/internal/cache"
	"cryptomarket/internal/errs"
	"cryptomarket/internal/exchange"
	"cryptomarket/internal/metrics"
	"cryptomarket/internal/model"
	"cryptomarket/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// Operation names used in cache keys and metric labels.
const (
	opPrice      = "price"
	opTicker     = "ticker"
	opOHLCV      = "ohlcv"
	opOrderBook  = "orderbook"
	opTopMarkets = "top_markets"
)

// Request parameter bounds.
const (
	maxOHLCVLimit      = 1000
	maxOrderBookDepth  = 200
	maxTopMarketsLimit = 50
)

// MarketService answers market data queries with cache-aside semantics.
type MarketService struct {
	cache           *cache.Cache[any]
	registry        *exchange.Registry
	metrics         *metrics.MarketMetrics
	validate        *validator.Validate
	defaultExchange string
}

// NewMarketService creates a MarketService over the given cache and registry.
// An empty exchange parameter on any operation resolves to defaultExchange.
func NewMarketService(c *cache.Cache[any], registry *exchange.Registry, m *metrics.MarketMetrics, defaultExchange string) *MarketService {
	return &MarketService{
		cache:           c,
		registry:        registry,
		metrics:         m,
		validate:        validator.New(),
		defaultExchange: strings.ToLower(defaultExchange),
	}
}

// GetPrice returns the last traded price for symbol on the given exchange.
func (s *MarketService) GetPrice(ctx context.Context, exchangeName, symbol string) (*model.Price, error) {
	exchangeName, symbol, h, err := s.resolveSymbol(ctx, exchangeName, symbol)
	if err != nil {
		return nil, err
	}

	key := cacheKey(opPrice, exchangeName, symbol)
	if cached, ok := s.cacheGet(opPrice, key); ok {
		price := cached.(model.Price)
		return &price, nil
	}

	raw, err := s.fetchTicker(ctx, h, symbol, opPrice)
	if err != nil {
		return nil, err
	}

	price, err := normalizePrice(exchangeName, symbol, raw)
	if err != nil {
		return nil, &errs.UpstreamAPIError{Exchange: exchangeName, Op: opPrice, Cause: err}
	}

	s.cache.Set(key, price)
	return &price, nil
}

// GetTicker returns the best bid/ask/last snapshot for symbol on the given exchange.
func (s *MarketService) GetTicker(ctx context.Context, exchangeName, symbol string) (*model.Ticker, error) {
	exchangeName, symbol, h, err := s.resolveSymbol(ctx, exchangeName, symbol)
	if err != nil {
		return nil, err
	}

	key := cacheKey(opTicker, exchangeName, symbol)
	if cached, ok := s.cacheGet(opTicker, key); ok {
		ticker := cached.(model.Ticker)
		return &ticker, nil
	}

	raw, err := s.fetchTicker(ctx, h, symbol, opTicker)
	if err != nil {
		return nil, err
	}

	ticker, err := normalizeTicker(exchangeName, symbol, raw)
	if err != nil {
		return nil, &errs.UpstreamAPIError{Exchange: exchangeName, Op: opTicker, Cause: err}
	}

	s.cache.Set(key, ticker)
	return &ticker, nil
}

// GetOHLCV returns up to limit candles for symbol at the given timeframe,
// chronologically ascending. A sinceMS of zero means no lower bound.
func (s *MarketService) GetOHLCV(ctx context.Context, exchangeName, symbol, timeframe string, limit int, sinceMS int64) (*model.OHLCVSeries, error) {
	if err := utils.ValidateTimeframe(timeframe); err != nil {
		return nil, &errs.ValidationError{Param: "timeframe", Value: timeframe, Reason: err.Error()}
	}
	if err := s.validate.Var(limit, fmt.Sprintf("gte=1,lte=%d", maxOHLCVLimit)); err != nil {
		return nil, &errs.ValidationError{
			Param: "limit", Value: strconv.Itoa(limit),
			Reason: fmt.Sprintf("must be between 1 and %d", maxOHLCVLimit),
		}
	}
	if sinceMS < 0 {
		return nil, &errs.ValidationError{
			Param: "since_ms", Value: strconv.FormatInt(sinceMS, 10),
			Reason: "must not be negative",
		}
	}

	exchangeName, symbol, h, err := s.resolveSymbol(ctx, exchangeName, symbol)
	if err != nil {
		return nil, err
	}

	key := cacheKey(opOHLCV, exchangeName, symbol, timeframe, strconv.Itoa(limit), strconv.FormatInt(sinceMS, 10))
	if cached, ok := s.cacheGet(opOHLCV, key); ok {
		series := cached.(model.OHLCVSeries)
		return &series, nil
	}

	s.metrics.RecordUpstreamCall(exchangeName, opOHLCV)
	raws, err := h.Client().FetchOHLCV(ctx, symbol, timeframe, limit, sinceMS)
	if err != nil {
		return nil, s.classify(exchangeName, symbol, opOHLCV, err)
	}

	series, err := normalizeOHLCV(exchangeName, symbol, timeframe, raws)
	if err != nil {
		return nil, &errs.UpstreamAPIError{Exchange: exchangeName, Op: opOHLCV, Cause: err}
	}

	s.cache.Set(key, series)
	return &series, nil
}

// GetOrderBook returns up to depth price levels per side for symbol, bids
// descending and asks ascending by price.
func (s *MarketService) GetOrderBook(ctx context.Context, exchangeName, symbol string, depth int) (*model.OrderBook, error) {
	if err := s.validate.Var(depth, fmt.Sprintf("gte=1,lte=%d", maxOrderBookDepth)); err != nil {
		return nil, &errs.ValidationError{
			Param: "depth", Value: strconv.Itoa(depth),
			Reason: fmt.Sprintf("must be between 1 and %d", maxOrderBookDepth),
		}
	}

	exchangeName, symbol, h, err := s.resolveSymbol(ctx, exchangeName, symbol)
	if err != nil {
		return nil, err
	}

	key := cacheKey(opOrderBook, exchangeName, symbol, strconv.Itoa(depth))
	if cached, ok := s.cacheGet(opOrderBook, key); ok {
		book := cached.(model.OrderBook)
		return &book, nil
	}

	s.metrics.RecordUpstreamCall(exchangeName, opOrderBook)
	raw, err := h.Client().FetchOrderBook(ctx, symbol, depth)
	if err != nil {
		return nil, s.classify(exchangeName, symbol, opOrderBook, err)
	}

	book, err := normalizeOrderBook(exchangeName, symbol, raw, depth)
	if err != nil {
		return nil, &errs.UpstreamAPIError{Exchange: exchangeName, Op: opOrderBook, Cause: err}
	}

	s.cache.Set(key, book)
	return &book, nil
}

// GetTopMarkets returns the most actively traded pairs quoted in quoteAsset,
// ranked by 24h quote volume descending.
func (s *MarketService) GetTopMarkets(ctx context.Context, exchangeName, quoteAsset string, limit int) (*model.TopMarkets, error) {
	if quoteAsset == "" {
		return nil, &errs.ValidationError{Param: "quote", Value: quoteAsset, Reason: "quote asset cannot be empty"}
	}
	if err := s.validate.Var(limit, fmt.Sprintf("gte=1,lte=%d", maxTopMarketsLimit)); err != nil {
		return nil, &errs.ValidationError{
			Param: "limit", Value: strconv.Itoa(limit),
			Reason: fmt.Sprintf("must be between 1 and %d", maxTopMarketsLimit),
		}
	}

	exchangeName = s.normalizeExchange(exchangeName)
	quoteAsset = strings.ToUpper(quoteAsset)

	h, err := s.registry.GetHandle(ctx, exchangeName)
	if err != nil {
		return nil, err
	}

	key := cacheKey(opTopMarkets, exchangeName, quoteAsset, strconv.Itoa(limit))
	if cached, ok := s.cacheGet(opTopMarkets, key); ok {
		top := cached.(model.TopMarkets)
		return &top, nil
	}

	s.metrics.RecordUpstreamCall(exchangeName, opTopMarkets)
	raws, err := h.Client().FetchMarkets(ctx)
	if err != nil {
		return nil, s.classify(exchangeName, "", opTopMarkets, err)
	}

	top := normalizeTopMarkets(exchangeName, quoteAsset, limit, raws)

	s.cache.Set(key, top)
	return &top, nil
}

// resolveSymbol runs the shared validation preamble: normalize casing,
// validate the symbol format, resolve the exchange handle, and verify the
// symbol exists in the exchange's market set.
func (s *MarketService) resolveSymbol(ctx context.Context, exchangeName, symbol string) (string, string, *exchange.Handle, error) {
	exchangeName = s.normalizeExchange(exchangeName)
	symbol = strings.ToUpper(symbol)

	if err := utils.ValidateSymbol(symbol); err != nil {
		return "", "", nil, &errs.ValidationError{Param: "symbol", Value: symbol, Reason: err.Error()}
	}

	h, err := s.registry.GetHandle(ctx, exchangeName)
	if err != nil {
		return "", "", nil, err
	}

	ok, err := h.HasSymbol(ctx, symbol)
	if err != nil {
		return "", "", nil, s.classify(exchangeName, symbol, "load_markets", err)
	}
	if !ok {
		return "", "", nil, &errs.SymbolNotSupportedError{Exchange: exchangeName, Symbol: symbol}
	}

	return exchangeName, symbol, h, nil
}

func (s *MarketService) normalizeExchange(exchangeName string) string {
	if exchangeName == "" {
		return s.defaultExchange
	}
	return strings.ToLower(exchangeName)
}

// fetchTicker is the shared upstream call for the price and ticker operations.
// The originating op labels the metrics and any classified error.
func (s *MarketService) fetchTicker(ctx context.Context, h *exchange.Handle, symbol, op string) (*exchange.RawTicker, error) {
	s.metrics.RecordUpstreamCall(h.Name(), op)
	raw, err := h.Client().FetchTicker(ctx, symbol)
	if err != nil {
		return nil, s.classify(h.Name(), symbol, op, err)
	}
	return raw, nil
}

// classify maps an upstream failure into the error taxonomy: a rate-limit
// signal becomes RateLimitError, everything else UpstreamAPIError.
func (s *MarketService) classify(exchangeName, symbol, op string, err error) error {
	if errors.Is(err, exchange.ErrRateLimited) {
		s.metrics.RecordUpstreamThrottled(exchangeName, op)
		log.Warn().Str("exchange", exchangeName).Str("symbol", symbol).Str("op", op).Msg("upstream rate limit hit")
		return &errs.RateLimitError{Exchange: exchangeName, Symbol: symbol, Cause: err}
	}

	s.metrics.RecordUpstreamError(exchangeName, op)
	log.Error().Err(err).Str("exchange", exchangeName).Str("symbol", symbol).Str("op", op).Msg("upstream call failed")
	return &errs.UpstreamAPIError{Exchange: exchangeName, Op: op, Cause: err}
}

// cacheGet probes the cache and records hit/miss metrics.
func (s *MarketService) cacheGet(op, key string) (any, bool) {
	v, ok := s.cache.Get(key)
	if ok {
		s.metrics.RecordCacheHit(op)
	} else {
		s.metrics.RecordCacheMiss(op)
	}
	return v, ok
}

// cacheKey composes a deterministic, collision-free key from the operation
// name and its normalized parameters. The separator cannot appear in any
// component (exchange names and symbols never contain '|'), so distinct
// logical requests never collide.
func cacheKey(parts ...string) string {
	return strings.Join(parts, "|")
}
