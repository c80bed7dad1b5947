// Package api exposes the market data client over HTTP.
//
// The surface is deliberately thin: each endpoint parses and defaults its
// query parameters, delegates to the MarketService, and serializes either the
// normalized record or a taxonomy error mapped to its status code
// (validation 400, unknown exchange/symbol 404, rate limit 429, upstream
// failure 502).
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"cryptomarket/internal/service"
)

// Server is the HTTP server in front of the market data client.
type Server struct {
	addr    string
	markets *service.MarketService
	httpSrv *http.Server
}

// NewServer creates a server listening on addr.
func NewServer(addr string, markets *service.MarketService) *Server {
	return &Server{addr: addr, markets: markets}
}

// Start begins serving. It blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           logRequests(routes(s.markets)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("http server starting")
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops the server, draining in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// routes builds the endpoint mux. Every endpoint is read-only, so only GET is
// routed; the mux answers other methods with 405.
func routes(markets *service.MarketService) *http.ServeMux {
	h := newMarketHandler(markets)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /price", h.price)
	mux.HandleFunc("GET /ticker", h.ticker)
	mux.HandleFunc("GET /ohlcv", h.ohlcv)
	mux.HandleFunc("GET /orderbook", h.orderbook)
	mux.HandleFunc("GET /markets/top", h.topMarkets)
	mux.HandleFunc("GET /health", health)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// logRequests logs every request with its duration.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}
