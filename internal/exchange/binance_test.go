package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBinanceTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *BinanceClient) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewBinanceClient(&ClientConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return srv, client
}

func Test_NewBinanceClient(t *testing.T) {
	t.Run("nil config uses defaults", func(t *testing.T) {
		client, err := NewBinanceClient(nil)
		require.NoError(t, err)
		assert.Equal(t, defaultBinanceConfig.BaseURL, client.config.BaseURL)
		assert.Equal(t, "binance", client.Name())
	})

	t.Run("partial config filled with defaults", func(t *testing.T) {
		client, err := NewBinanceClient(&ClientConfig{BaseURL: "http://localhost:9999"})
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:9999", client.config.BaseURL)
		assert.Equal(t, defaultBinanceConfig.Timeout, client.config.Timeout)
	})
}

func TestBinance_FetchTicker(t *testing.T) {
	_, client := newBinanceTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/24hr", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{
			"symbol": "BTCUSDT",
			"bidPrice": "50000.10",
			"askPrice": "50000.20",
			"lastPrice": "50000.15",
			"quoteVolume": "1234567.89",
			"closeTime": 1700000000123
		}`))
	})

	raw, err := client.FetchTicker(context.Background(), "BTC/USDT")
	require.NoError(t, err)

	assert.Equal(t, "50000.10", raw.Bid)
	assert.Equal(t, "50000.20", raw.Ask)
	assert.Equal(t, "50000.15", raw.Last)
	assert.Equal(t, int64(1700000000123), raw.TimestampMS)
}

func TestBinance_FetchTicker_IncompletePayload(t *testing.T) {
	_, client := newBinanceTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		// bidPrice missing entirely
		w.Write([]byte(`{"symbol":"BTCUSDT","askPrice":"1","lastPrice":"1","closeTime":1}`))
	})

	_, err := client.FetchTicker(context.Background(), "BTC/USDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incomplete ticker payload")
}

func TestBinance_FetchTicker_RateLimited(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "http 429", status: http.StatusTooManyRequests},
		{name: "http 418 ban", status: http.StatusTeapot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := newBinanceTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"code":-1003,"msg":"Too many requests."}`))
			})

			_, err := client.FetchTicker(context.Background(), "BTC/USDT")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrRateLimited)
		})
	}
}

func TestBinance_FetchOHLCV(t *testing.T) {
	_, client := newBinanceTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "BTCUSDT", q.Get("symbol"))
		assert.Equal(t, "1h", q.Get("interval"))
		assert.Equal(t, "2", q.Get("limit"))
		assert.Equal(t, "1700000000000", q.Get("startTime"))
		w.Write([]byte(`[
			[1700000000000, "100.0", "110.0", "90.0", "105.0", "12.5", 1700003599999, "0", 1, "0", "0", "0"],
			[1700003600000, "105.0", "115.0", "95.0", "108.0", "20.5", 1700007199999, "0", 1, "0", "0", "0"]
		]`))
	})

	candles, err := client.FetchOHLCV(context.Background(), "BTC/USDT", "1h", 2, 1700000000000)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, int64(1700000000000), candles[0].TimestampMS)
	assert.Equal(t, "100.0", candles[0].Open)
	assert.Equal(t, "110.0", candles[0].High)
	assert.Equal(t, "90.0", candles[0].Low)
	assert.Equal(t, "105.0", candles[0].Close)
	assert.Equal(t, "12.5", candles[0].Volume)
}

func TestBinance_FetchOHLCV_UnsupportedTimeframe(t *testing.T) {
	client, err := NewBinanceClient(nil)
	require.NoError(t, err)

	_, err = client.FetchOHLCV(context.Background(), "BTC/USDT", "3m", 10, 0)
	assert.ErrorIs(t, err, ErrUnsupportedTimeframe)
}

func TestBinance_FetchOHLCV_MalformedRow(t *testing.T) {
	_, client := newBinanceTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[[1700000000000, "100.0"]]`))
	})

	_, err := client.FetchOHLCV(context.Background(), "BTC/USDT", "1h", 1, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kline row 0")
}

func TestBinance_FetchOrderBook(t *testing.T) {
	_, client := newBinanceTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/depth", r.URL.Path)
		w.Write([]byte(`{
			"lastUpdateId": 1,
			"bids": [["50000.10", "1.5"], ["50000.00", "2.0"], ["49999.90", "0.5"]],
			"asks": [["50000.20", "1.0"], ["50000.30", "3.0"]]
		}`))
	})

	book, err := client.FetchOrderBook(context.Background(), "BTC/USDT", 2)
	require.NoError(t, err)

	require.Len(t, book.Bids, 2, "levels beyond the requested depth are truncated")
	require.Len(t, book.Asks, 2)
	assert.Equal(t, RawLevel{Price: "50000.10", Amount: "1.5"}, book.Bids[0])
	assert.Equal(t, RawLevel{Price: "50000.20", Amount: "1.0"}, book.Asks[0])
}

func TestBinance_FetchMarkets(t *testing.T) {
	_, client := newBinanceTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"symbol": "BTCUSDT", "bidPrice": "1", "askPrice": "1", "lastPrice": "50000.15", "quoteVolume": "900.0", "closeTime": 1},
			{"symbol": "ETHBTC", "bidPrice": "1", "askPrice": "1", "lastPrice": "0.05", "quoteVolume": "100.0", "closeTime": 1},
			{"symbol": "WEIRDXYZ", "bidPrice": "1", "askPrice": "1", "lastPrice": "1.0", "quoteVolume": "1.0", "closeTime": 1}
		]`))
	})

	markets, err := client.FetchMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 2, "pairs with unrecognized quote assets are skipped")

	assert.Equal(t, "BTC/USDT", markets[0].Symbol)
	assert.Equal(t, "BTC", markets[0].BaseAsset)
	assert.Equal(t, "USDT", markets[0].QuoteAsset)
	assert.Equal(t, "50000.15", markets[0].LastPrice)
	assert.Equal(t, "900.0", markets[0].QuoteVolume)

	assert.Equal(t, "ETH/BTC", markets[1].Symbol)
}

func TestBinance_UpstreamError(t *testing.T) {
	_, client := newBinanceTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"code":-1000,"msg":"An unknown error occurred"}`))
	})

	_, err := client.FetchTicker(context.Background(), "BTC/USDT")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, err.Error(), "unexpected status 500")
}

func Test_toBinanceSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", toBinanceSymbol("BTC/USDT"))
	assert.Equal(t, "ETHBTC", toBinanceSymbol("eth/btc"))
}
