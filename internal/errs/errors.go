// Package errs defines the closed error taxonomy for the market data layer.
//
// Every failure the data client can surface is one of the leaf types below.
// Each leaf carries enough context (exchange name, symbol, offending parameter)
// for a caller to build a diagnostic without parsing the message string, and
// all of them can be matched with errors.As. The HTTP layer maps each kind to
// a status code via StatusCode.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// MarketError is the marker interface implemented by every error kind in the
// taxonomy. It exists so callers can distinguish taxonomy errors from
// incidental ones with a single errors.As check.
type MarketError interface {
	error
	marketError()
}

// ExchangeNotSupportedError reports a request for an exchange outside the
// registry's supported set.
type ExchangeNotSupportedError struct {
	Exchange string
}

func (e *ExchangeNotSupportedError) Error() string {
	return fmt.Sprintf("exchange not supported: %s", e.Exchange)
}

func (e *ExchangeNotSupportedError) marketError() {}

// SymbolNotSupportedError reports a symbol absent from an exchange's market list.
type SymbolNotSupportedError struct {
	Exchange string
	Symbol   string
}

func (e *SymbolNotSupportedError) Error() string {
	return fmt.Sprintf("symbol %s not supported on %s", e.Symbol, e.Exchange)
}

func (e *SymbolNotSupportedError) marketError() {}

// RateLimitError reports that the upstream exchange signaled throttling.
// The original upstream error is preserved in Cause for unwrapping.
type RateLimitError struct {
	Exchange string
	Symbol   string
	Cause    error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s for %s: %v", e.Exchange, e.Symbol, e.Cause)
}

func (e *RateLimitError) Unwrap() error { return e.Cause }

func (e *RateLimitError) marketError() {}

// UpstreamAPIError wraps any other upstream failure: network errors, malformed
// responses, or exchange-level rejections that validation could not anticipate.
type UpstreamAPIError struct {
	Exchange string
	Op       string
	Cause    error
}

func (e *UpstreamAPIError) Error() string {
	return fmt.Sprintf("upstream error from %s during %s: %v", e.Exchange, e.Op, e.Cause)
}

func (e *UpstreamAPIError) Unwrap() error { return e.Cause }

func (e *UpstreamAPIError) marketError() {}

// ValidationError reports a malformed or out-of-range request parameter,
// detected before any upstream call.
type ValidationError struct {
	Param  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Param, e.Value, e.Reason)
}

func (e *ValidationError) marketError() {}

// StatusCode maps a taxonomy error to the HTTP status the API layer should
// return. Errors outside the taxonomy map to 500.
func StatusCode(err error) int {
	var (
		exchErr  *ExchangeNotSupportedError
		symErr   *SymbolNotSupportedError
		rateErr  *RateLimitError
		upErr    *UpstreamAPIError
		validErr *ValidationError
	)
	switch {
	case errors.As(err, &exchErr), errors.As(err, &symErr):
		return http.StatusNotFound
	case errors.As(err, &rateErr):
		return http.StatusTooManyRequests
	case errors.As(err, &upErr):
		return http.StatusBadGateway
	case errors.As(err, &validErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
