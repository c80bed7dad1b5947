// Package utils provides common utility functions for data validation.
//
// This package contains helpers for working with cryptocurrency trading data:
// validating trading pair symbols, splitting concatenated exchange symbols
// into base/quote assets, and validating candle timeframes against the
// supported set.
package utils

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// QuoteAssetSet contains the quote assets recognized when splitting
// concatenated exchange symbols (e.g. "BTCUSDT") into base and quote parts.
// This map is used for O(1) lookup performance.
var QuoteAssetSet = map[string]bool{
	"USDT": true, // Tether USD
	"USDC": true, // USD Coin
	"USD":  true, // US Dollar (Coinbase quotes fiat directly)
	"BTC":  true, // Bitcoin
	"ETH":  true, // Ethereum
	"EUR":  true, // Euro
}

// TimeframeSet contains the candle timeframes the service accepts. Requests
// using any other timeframe are rejected before reaching an exchange.
var TimeframeSet = map[string]bool{
	"1m":  true,
	"5m":  true,
	"15m": true,
	"30m": true,
	"1h":  true,
	"4h":  true,
	"1d":  true,
	"1w":  true,
}

// supportedTimeframesCache is a pre-computed string of supported timeframes
// to avoid rebuilding it on every validation error.
var supportedTimeframesCache = sortedKeys(TimeframeSet)

// ValidateSymbol validates that a trading pair symbol follows the expected
// "BASE/QUOTE" format (e.g. "BTC/USDT"). Casing is not enforced here; callers
// normalize casing before using the symbol.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return errors.New("symbol cannot be empty")
	}

	parts := strings.Split(symbol, "/")
	if len(parts) != 2 {
		return fmt.Errorf("invalid symbol format: expected BASE/QUOTE, got %q", symbol)
	}

	if len(parts[0]) == 0 {
		return errors.New("base asset cannot be empty")
	}

	if len(parts[1]) == 0 {
		return errors.New("quote asset cannot be empty")
	}

	return nil
}

// ValidateTimeframe validates a candle timeframe against the supported set.
func ValidateTimeframe(timeframe string) error {
	if !TimeframeSet[timeframe] {
		return fmt.Errorf("unsupported timeframe: %s (supported: %s)",
			timeframe, supportedTimeframesCache)
	}
	return nil
}

// SplitConcatenatedSymbol splits a concatenated exchange symbol such as
// "BTCUSDT" into its base and quote assets using the recognized quote asset
// set. It reports false when no recognized quote asset suffixes the symbol.
func SplitConcatenatedSymbol(symbol string) (base, quote string, ok bool) {
	upper := strings.ToUpper(symbol)

	for q := range QuoteAssetSet {
		if strings.HasSuffix(upper, q) && len(upper) > len(q) {
			candidate := upper[:len(upper)-len(q)]
			// Prefer the longest matching quote: "ABCUSDT" must split as
			// ABC/USDT, not ABCUSD/T-style nonsense from a shorter match.
			if len(q) > len(quote) {
				base, quote, ok = candidate, q, true
			}
		}
	}

	return base, quote, ok
}

// sortedKeys builds a deterministic comma-separated string of map keys for
// user-facing error messages.
func sortedKeys(set map[string]bool) string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
