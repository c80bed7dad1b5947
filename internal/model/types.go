// Package model defines the normalized data types for the market data service.
//
// These are the fixed-shape records the data client returns regardless of
// which exchange produced the raw payload. All monetary values use
// decimal.Decimal to avoid the floating-point precision issues common in
// financial applications; a normalized record never carries a missing numeric
// field — a record that cannot be fully populated is a fetch failure, not a
// partial result.
package model

import (
	"github.com/shopspring/decimal"
)

// Price is the last traded price of a pair on one exchange.
type Price struct {
	Exchange    string          `json:"exchange"`
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `json:"price"`
	TimestampMS int64           `json:"timestamp_ms"`
}

// Ticker is a snapshot of the best bid/ask and last traded price for a pair.
type Ticker struct {
	Exchange    string          `json:"exchange"`
	Symbol      string          `json:"symbol"`
	Bid         decimal.Decimal `json:"bid"`
	Ask         decimal.Decimal `json:"ask"`
	Last        decimal.Decimal `json:"last"`
	TimestampMS int64           `json:"timestamp_ms"`
}

// OHLCVPoint is one candlestick: open/high/low/close prices and traded volume
// for a fixed time interval starting at TimestampMS.
type OHLCVPoint struct {
	TimestampMS int64           `json:"timestamp_ms"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Volume      decimal.Decimal `json:"volume"`
}

// OHLCVSeries is a chronologically ascending sequence of candlesticks.
type OHLCVSeries struct {
	Exchange  string       `json:"exchange"`
	Symbol    string       `json:"symbol"`
	Timeframe string       `json:"timeframe"`
	Points    []OHLCVPoint `json:"points"`
}

// OrderBookLevel is one outstanding price level: the price and the total
// amount of base asset resting at it.
type OrderBookLevel struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

// OrderBook holds the outstanding buy and sell levels for a pair.
// Bids are ordered by price descending, asks ascending.
type OrderBook struct {
	Exchange string           `json:"exchange"`
	Symbol   string           `json:"symbol"`
	Bids     []OrderBookLevel `json:"bids"`
	Asks     []OrderBookLevel `json:"asks"`
}

// Market describes one tradable pair on an exchange together with its last
// traded price.
type Market struct {
	Symbol     string          `json:"symbol"`
	BaseAsset  string          `json:"base_asset"`
	QuoteAsset string          `json:"quote_asset"`
	Price      decimal.Decimal `json:"price"`
}

// TopMarkets is the most actively traded pairs for a quote asset on one
// exchange, ordered by 24h quote volume descending.
type TopMarkets struct {
	Exchange string   `json:"exchange"`
	Markets  []Market `json:"markets"`
}
