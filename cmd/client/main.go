/*
Package main implements a small command-line client for the market data server.

It issues one query against a running server and prints the JSON response,
which makes it handy for smoke-testing a deployment:

	go run main.go -server=http://localhost:8080 -op=ticker -symbol=BTC/USDT
	go run main.go -op=ohlcv -symbol=ETH/USDT -timeframe=15m -limit=50
	go run main.go -op=top -quote=USDT -exchange=okx
*/
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Command-line flags selecting the query to run
var (
	server    = flag.String("server", "http://localhost:8080", "Base URL of the market data server")
	op        = flag.String("op", "price", "Operation: price, ticker, ohlcv, orderbook, top")
	symbol    = flag.String("symbol", "BTC/USDT", "Trading pair, e.g. BTC/USDT")
	exchange  = flag.String("exchange", "", "Exchange id (empty uses the server default)")
	timeframe = flag.String("timeframe", "1h", "OHLCV timeframe, e.g. 1m, 5m, 1h, 1d")
	limit     = flag.Int("limit", 0, "Result limit (0 uses the server default)")
	depth     = flag.Int("depth", 0, "Order book depth (0 uses the server default)")
	quote     = flag.String("quote", "USDT", "Quote asset for top markets")
)

func main() {
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	reqURL, err := buildURL()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid arguments")
	}

	hc := &http.Client{Timeout: 15 * time.Second}
	resp, err := hc.Get(reqURL)
	if err != nil {
		log.Fatal().Err(err).Str("url", reqURL).Msg("request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		log.Error().Int("status", resp.StatusCode).Msg("server returned an error")
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		// Not JSON; print as-is.
		fmt.Println(string(body))
		return
	}
	fmt.Println(pretty.String())

	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

// buildURL maps the selected operation to its endpoint and query parameters.
func buildURL() (string, error) {
	q := url.Values{}
	if *exchange != "" {
		q.Set("exchange", *exchange)
	}

	var path string
	switch *op {
	case "price", "ticker":
		path = "/" + *op
		q.Set("symbol", *symbol)
	case "ohlcv":
		path = "/ohlcv"
		q.Set("symbol", *symbol)
		q.Set("timeframe", *timeframe)
		if *limit > 0 {
			q.Set("limit", fmt.Sprint(*limit))
		}
	case "orderbook":
		path = "/orderbook"
		q.Set("symbol", *symbol)
		if *depth > 0 {
			q.Set("depth", fmt.Sprint(*depth))
		}
	case "top":
		path = "/markets/top"
		q.Set("quote", *quote)
		if *limit > 0 {
			q.Set("limit", fmt.Sprint(*limit))
		}
	default:
		return "", fmt.Errorf("unknown operation %q", *op)
	}

	return *server + path + "?" + q.Encode(), nil
}
