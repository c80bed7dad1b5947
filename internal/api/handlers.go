package api

import (
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"cryptomarket/internal/errs"
	"cryptomarket/internal/service"
)

// Query parameter defaults, mirroring the service's documented behavior.
const (
	defaultTimeframe  = "1h"
	defaultOHLCVLimit = 100
	defaultDepth      = 20
	defaultTopLimit   = 10
	defaultQuoteAsset = "USDT"
)

// marketHandler serves the five market data endpoints.
type marketHandler struct {
	markets *service.MarketService
}

func newMarketHandler(markets *service.MarketService) *marketHandler {
	return &marketHandler{markets: markets}
}

func (h *marketHandler) price(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	exchange := r.URL.Query().Get("exchange")

	price, err := h.markets.GetPrice(r.Context(), exchange, symbol)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, price)
}

func (h *marketHandler) ticker(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	exchange := r.URL.Query().Get("exchange")

	ticker, err := h.markets.GetTicker(r.Context(), exchange, symbol)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, ticker)
}

func (h *marketHandler) ohlcv(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := q.Get("symbol")
	exchange := q.Get("exchange")

	timeframe := q.Get("timeframe")
	if timeframe == "" {
		timeframe = defaultTimeframe
	}

	limit, err := intParam(q.Get("limit"), defaultOHLCVLimit)
	if err != nil {
		writeError(w, &errs.ValidationError{Param: "limit", Value: q.Get("limit"), Reason: "must be an integer"})
		return
	}

	sinceMS, err := int64Param(q.Get("since_ms"), 0)
	if err != nil {
		writeError(w, &errs.ValidationError{Param: "since_ms", Value: q.Get("since_ms"), Reason: "must be an integer"})
		return
	}

	series, err := h.markets.GetOHLCV(r.Context(), exchange, symbol, timeframe, limit, sinceMS)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, series)
}

func (h *marketHandler) orderbook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := q.Get("symbol")
	exchange := q.Get("exchange")

	depth, err := intParam(q.Get("depth"), defaultDepth)
	if err != nil {
		writeError(w, &errs.ValidationError{Param: "depth", Value: q.Get("depth"), Reason: "must be an integer"})
		return
	}

	book, err := h.markets.GetOrderBook(r.Context(), exchange, symbol, depth)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, book)
}

func (h *marketHandler) topMarkets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	exchange := q.Get("exchange")

	quote := q.Get("quote")
	if quote == "" {
		quote = defaultQuoteAsset
	}

	limit, err := intParam(q.Get("limit"), defaultTopLimit)
	if err != nil {
		writeError(w, &errs.ValidationError{Param: "limit", Value: q.Get("limit"), Reason: "must be an integer"})
		return
	}

	top, err := h.markets.GetTopMarkets(r.Context(), exchange, quote, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, top)
}

// errorBody is the error response shape: {"detail": "..."}.
type errorBody struct {
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, err error) {
	status := errs.StatusCode(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(errorBody{Detail: err.Error()}); encErr != nil {
		log.Error().Err(encErr).Msg("failed to encode error response")
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func int64Param(raw string, def int64) (int64, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
