// Package service provides the data client orchestrating cache, registry and
// exchange adapters.
//
// This file contains the normalization layer: converting the heterogeneous
// raw records delivered by exchange adapters into the fixed-shape model
// records the rest of the system consumes. Normalization enforces the record
// invariants — every numeric field present and parseable, order book bids
// descending and asks ascending, OHLCV series chronologically ascending — so
// a raw payload that cannot satisfy them is a fetch failure, never a partial
// record.
package service

import (
	"fmt"
	"sort"
	"strings"

	"cryptomarket/internal/exchange"
	"cryptomarket/internal/model"

	"github.com/shopspring/decimal"
)

// parseField parses one required numeric field, naming it in the error so
// upstream payload defects are diagnosable.
func parseField(name, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Decimal{}, fmt.Errorf("missing %s field", name)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s field %q: %w", name, value, err)
	}
	return d, nil
}

func normalizeTicker(exchangeName, symbol string, raw *exchange.RawTicker) (model.Ticker, error) {
	bid, err := parseField("bid", raw.Bid)
	if err != nil {
		return model.Ticker{}, err
	}
	ask, err := parseField("ask", raw.Ask)
	if err != nil {
		return model.Ticker{}, err
	}
	last, err := parseField("last", raw.Last)
	if err != nil {
		return model.Ticker{}, err
	}
	if raw.TimestampMS <= 0 {
		return model.Ticker{}, fmt.Errorf("missing ticker timestamp")
	}

	return model.Ticker{
		Exchange:    exchangeName,
		Symbol:      symbol,
		Bid:         bid,
		Ask:         ask,
		Last:        last,
		TimestampMS: raw.TimestampMS,
	}, nil
}

func normalizePrice(exchangeName, symbol string, raw *exchange.RawTicker) (model.Price, error) {
	last, err := parseField("last", raw.Last)
	if err != nil {
		return model.Price{}, err
	}
	if raw.TimestampMS <= 0 {
		return model.Price{}, fmt.Errorf("missing ticker timestamp")
	}

	return model.Price{
		Exchange:    exchangeName,
		Symbol:      symbol,
		Price:       last,
		TimestampMS: raw.TimestampMS,
	}, nil
}

// normalizeOHLCV parses raw candles and orders them chronologically
// ascending, regardless of the order the exchange delivered them in.
func normalizeOHLCV(exchangeName, symbol, timeframe string, raws []exchange.RawCandle) (model.OHLCVSeries, error) {
	points := make([]model.OHLCVPoint, 0, len(raws))
	for i, raw := range raws {
		if raw.TimestampMS <= 0 {
			return model.OHLCVSeries{}, fmt.Errorf("candle %d: missing timestamp", i)
		}
		open, err := parseField("open", raw.Open)
		if err != nil {
			return model.OHLCVSeries{}, fmt.Errorf("candle %d: %w", i, err)
		}
		high, err := parseField("high", raw.High)
		if err != nil {
			return model.OHLCVSeries{}, fmt.Errorf("candle %d: %w", i, err)
		}
		low, err := parseField("low", raw.Low)
		if err != nil {
			return model.OHLCVSeries{}, fmt.Errorf("candle %d: %w", i, err)
		}
		closePx, err := parseField("close", raw.Close)
		if err != nil {
			return model.OHLCVSeries{}, fmt.Errorf("candle %d: %w", i, err)
		}
		volume, err := parseField("volume", raw.Volume)
		if err != nil {
			return model.OHLCVSeries{}, fmt.Errorf("candle %d: %w", i, err)
		}

		points = append(points, model.OHLCVPoint{
			TimestampMS: raw.TimestampMS,
			Open:        open,
			High:        high,
			Low:         low,
			Close:       closePx,
			Volume:      volume,
		})
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].TimestampMS < points[j].TimestampMS
	})

	return model.OHLCVSeries{
		Exchange:  exchangeName,
		Symbol:    symbol,
		Timeframe: timeframe,
		Points:    points,
	}, nil
}

// normalizeOrderBook parses both sides, truncates to depth, and enforces the
// canonical ordering: bids by price descending, asks ascending.
func normalizeOrderBook(exchangeName, symbol string, raw *exchange.RawOrderBook, depth int) (model.OrderBook, error) {
	bids, err := parseLevels("bid", raw.Bids)
	if err != nil {
		return model.OrderBook{}, err
	}
	asks, err := parseLevels("ask", raw.Asks)
	if err != nil {
		return model.OrderBook{}, err
	}

	sort.Slice(bids, func(i, j int) bool { return bids[i].Price.GreaterThan(bids[j].Price) })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price.LessThan(asks[j].Price) })

	if len(bids) > depth {
		bids = bids[:depth]
	}
	if len(asks) > depth {
		asks = asks[:depth]
	}

	return model.OrderBook{
		Exchange: exchangeName,
		Symbol:   symbol,
		Bids:     bids,
		Asks:     asks,
	}, nil
}

func parseLevels(side string, raws []exchange.RawLevel) ([]model.OrderBookLevel, error) {
	levels := make([]model.OrderBookLevel, 0, len(raws))
	for i, raw := range raws {
		price, err := parseField("price", raw.Price)
		if err != nil {
			return nil, fmt.Errorf("%s level %d: %w", side, i, err)
		}
		amount, err := parseField("amount", raw.Amount)
		if err != nil {
			return nil, fmt.Errorf("%s level %d: %w", side, i, err)
		}
		levels = append(levels, model.OrderBookLevel{Price: price, Amount: amount})
	}
	return levels, nil
}

// normalizeTopMarkets filters raw markets by quote asset, ranks them by 24h
// quote volume descending, and truncates to limit. Markets whose listing
// carried no last price are skipped rather than rejected: some exchanges
// (Coinbase) list products without price data, and a priceless entry would
// violate the no-missing-numerics invariant.
func normalizeTopMarkets(exchangeName, quoteAsset string, limit int, raws []exchange.RawMarket) model.TopMarkets {
	type ranked struct {
		market model.Market
		volume decimal.Decimal
	}

	candidates := make([]ranked, 0, len(raws))
	for _, raw := range raws {
		if !strings.EqualFold(raw.QuoteAsset, quoteAsset) {
			continue
		}
		price, err := decimal.NewFromString(raw.LastPrice)
		if err != nil {
			continue
		}

		volume := decimal.Zero
		if v, err := decimal.NewFromString(raw.QuoteVolume); err == nil {
			volume = v
		}

		candidates = append(candidates, ranked{
			market: model.Market{
				Symbol:     strings.ToUpper(raw.Symbol),
				BaseAsset:  strings.ToUpper(raw.BaseAsset),
				QuoteAsset: strings.ToUpper(raw.QuoteAsset),
				Price:      price,
			},
			volume: volume,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].volume.GreaterThan(candidates[j].volume)
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	markets := make([]model.Market, 0, len(candidates))
	for _, c := range candidates {
		markets = append(markets, c.market)
	}

	return model.TopMarkets{Exchange: exchangeName, Markets: markets}
}
