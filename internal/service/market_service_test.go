package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"cryptomarket/internal/cache"
	"cryptomarket/internal/errs"
	"cryptomarket/internal/exchange"
	"cryptomarket/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Registering the counters on the default Prometheus registry may happen only
// once per test binary, so every test shares this instance.
var testMetrics = metrics.NewMarketMetrics()

// MockExchangeClient implements exchange.Client for service tests.
type MockExchangeClient struct {
	mock.Mock
	name string
}

func NewMockExchangeClient(name string) *MockExchangeClient {
	return &MockExchangeClient{name: name}
}

func (m *MockExchangeClient) Name() string { return m.name }

func (m *MockExchangeClient) FetchTicker(ctx context.Context, symbol string) (*exchange.RawTicker, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exchange.RawTicker), args.Error(1)
}

func (m *MockExchangeClient) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int, sinceMS int64) ([]exchange.RawCandle, error) {
	args := m.Called(ctx, symbol, timeframe, limit, sinceMS)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]exchange.RawCandle), args.Error(1)
}

func (m *MockExchangeClient) FetchOrderBook(ctx context.Context, symbol string, depth int) (*exchange.RawOrderBook, error) {
	args := m.Called(ctx, symbol, depth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exchange.RawOrderBook), args.Error(1)
}

func (m *MockExchangeClient) FetchMarkets(ctx context.Context) ([]exchange.RawMarket, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]exchange.RawMarket), args.Error(1)
}

// newTestService builds a MarketService over a fresh cache and a registry
// serving the given mock as "binance".
func newTestService(mc *MockExchangeClient) *MarketService {
	registry := exchange.NewRegistry(map[string]exchange.Constructor{
		"binance": func() (exchange.Client, error) { return mc, nil },
	})
	return NewMarketService(cache.New[any](time.Minute), registry, testMetrics, "binance")
}

func usdtMarkets() []exchange.RawMarket {
	return []exchange.RawMarket{
		{Symbol: "BTC/USDT", BaseAsset: "BTC", QuoteAsset: "USDT", LastPrice: "50000", QuoteVolume: "900"},
		{Symbol: "ETH/USDT", BaseAsset: "ETH", QuoteAsset: "USDT", LastPrice: "3000", QuoteVolume: "1200"},
	}
}

func rawTicker() *exchange.RawTicker {
	return &exchange.RawTicker{Bid: "50000.1", Ask: "50000.2", Last: "50000.15", TimestampMS: 1700000000000}
}

func Test_GetTicker_SecondCallServedFromCache(t *testing.T) {
	mc := NewMockExchangeClient("binance")
	mc.On("FetchMarkets", mock.Anything).Return(usdtMarkets(), nil)
	mc.On("FetchTicker", mock.Anything, "BTC/USDT").Return(rawTicker(), nil)

	svc := newTestService(mc)

	first, err := svc.GetTicker(context.Background(), "binance", "BTC/USDT")
	require.NoError(t, err)
	second, err := svc.GetTicker(context.Background(), "binance", "BTC/USDT")
	require.NoError(t, err)

	assert.Equal(t, first.Last, second.Last)
	mc.AssertNumberOfCalls(t, "FetchTicker", 1)
}

func Test_GetPrice_DefaultExchangeAndCasing(t *testing.T) {
	mc := NewMockExchangeClient("binance")
	mc.On("FetchMarkets", mock.Anything).Return(usdtMarkets(), nil)
	mc.On("FetchTicker", mock.Anything, "BTC/USDT").Return(rawTicker(), nil)

	svc := newTestService(mc)

	price, err := svc.GetPrice(context.Background(), "", "btc/usdt")
	require.NoError(t, err)

	assert.Equal(t, "binance", price.Exchange)
	assert.Equal(t, "BTC/USDT", price.Symbol)
	assert.True(t, price.Price.Equal(decimal.RequireFromString("50000.15")))
}

func Test_GetPrice_RecordsPriceOperation(t *testing.T) {
	mc := NewMockExchangeClient("binance")
	mc.On("FetchMarkets", mock.Anything).Return(usdtMarkets(), nil)
	mc.On("FetchTicker", mock.Anything, "BTC/USDT").Return(rawTicker(), nil)

	svc := newTestService(mc)

	priceBefore := testutil.ToFloat64(testMetrics.UpstreamCallsTotal.WithLabelValues("binance", "price"))
	tickerBefore := testutil.ToFloat64(testMetrics.UpstreamCallsTotal.WithLabelValues("binance", "ticker"))

	_, err := svc.GetPrice(context.Background(), "binance", "BTC/USDT")
	require.NoError(t, err)

	// The shared ticker fetch must be counted under the op that asked for it.
	assert.Equal(t, priceBefore+1,
		testutil.ToFloat64(testMetrics.UpstreamCallsTotal.WithLabelValues("binance", "price")))
	assert.Equal(t, tickerBefore,
		testutil.ToFloat64(testMetrics.UpstreamCallsTotal.WithLabelValues("binance", "ticker")))
}

func Test_GetPrice_AndTicker_UseSeparateCacheEntries(t *testing.T) {
	mc := NewMockExchangeClient("binance")
	mc.On("FetchMarkets", mock.Anything).Return(usdtMarkets(), nil)
	mc.On("FetchTicker", mock.Anything, "BTC/USDT").Return(rawTicker(), nil)

	svc := newTestService(mc)

	_, err := svc.GetPrice(context.Background(), "binance", "BTC/USDT")
	require.NoError(t, err)
	_, err = svc.GetTicker(context.Background(), "binance", "BTC/USDT")
	require.NoError(t, err)

	// Different operations never share a cache entry, so both go upstream.
	mc.AssertNumberOfCalls(t, "FetchTicker", 2)
}

func Test_GetTicker_UnsupportedExchange(t *testing.T) {
	mc := NewMockExchangeClient("binance")
	svc := newTestService(mc)

	_, err := svc.GetTicker(context.Background(), "kraken", "BTC/USDT")

	var notSupported *errs.ExchangeNotSupportedError
	require.ErrorAs(t, err, &notSupported)
	assert.Equal(t, "kraken", notSupported.Exchange)
	mc.AssertNotCalled(t, "FetchTicker", mock.Anything, mock.Anything)
	mc.AssertNotCalled(t, "FetchMarkets", mock.Anything)
}

func Test_GetTicker_UnknownSymbol(t *testing.T) {
	mc := NewMockExchangeClient("binance")
	mc.On("FetchMarkets", mock.Anything).Return(usdtMarkets(), nil)

	svc := newTestService(mc)

	_, err := svc.GetTicker(context.Background(), "binance", "DOGE/USDT")

	var notSupported *errs.SymbolNotSupportedError
	require.ErrorAs(t, err, &notSupported)
	assert.Equal(t, "binance", notSupported.Exchange)
	assert.Equal(t, "DOGE/USDT", notSupported.Symbol)
	mc.AssertNotCalled(t, "FetchTicker", mock.Anything, mock.Anything)
}

func Test_GetTicker_MalformedSymbol(t *testing.T) {
	mc := NewMockExchangeClient("binance")
	svc := newTestService(mc)

	for _, symbol := range []string{"", "BTCUSDT", "BTC/", "/USDT", "BTC/USDT/EXTRA"} {
		_, err := svc.GetTicker(context.Background(), "binance", symbol)

		var invalid *errs.ValidationError
		require.ErrorAs(t, err, &invalid, "symbol %q must be rejected", symbol)
		assert.Equal(t, "symbol", invalid.Param)
	}
	mc.AssertNotCalled(t, "FetchMarkets", mock.Anything)
}

func Test_GetTicker_RateLimitCarriesContext(t *testing.T) {
	mc := NewMockExchangeClient("binance")
	mc.On("FetchMarkets", mock.Anything).Return(usdtMarkets(), nil)
	mc.On("FetchTicker", mock.Anything, "BTC/USDT").
		Return(nil, fmt.Errorf("%w: status 429", exchange.ErrRateLimited))

	svc := newTestService(mc)

	_, err := svc.GetTicker(context.Background(), "binance", "BTC/USDT")

	var rateLimited *errs.RateLimitError
	require.ErrorAs(t, err, &rateLimited)
	assert.Equal(t, "binance", rateLimited.Exchange)
	assert.Equal(t, "BTC/USDT", rateLimited.Symbol)
	assert.Equal(t, 429, errs.StatusCode(err))
}

func Test_GetTicker_UpstreamFailure(t *testing.T) {
	mc := NewMockExchangeClient("binance")
	mc.On("FetchMarkets", mock.Anything).Return(usdtMarkets(), nil)
	mc.On("FetchTicker", mock.Anything, "BTC/USDT").Return(nil, errors.New("connection reset"))

	svc := newTestService(mc)

	_, err := svc.GetTicker(context.Background(), "binance", "BTC/USDT")

	var upstream *errs.UpstreamAPIError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "binance", upstream.Exchange)
	assert.Equal(t, 502, errs.StatusCode(err))
}

func Test_GetTicker_FailureIsNotCached(t *testing.T) {
	mc := NewMockExchangeClient("binance")
	mc.On("FetchMarkets", mock.Anything).Return(usdtMarkets(), nil)
	mc.On("FetchTicker", mock.Anything, "BTC/USDT").Return(nil, errors.New("boom")).Once()
	mc.On("FetchTicker", mock.Anything, "BTC/USDT").Return(rawTicker(), nil).Once()

	svc := newTestService(mc)

	_, err := svc.GetTicker(context.Background(), "binance", "BTC/USDT")
	require.Error(t, err)

	ticker, err := svc.GetTicker(context.Background(), "binance", "BTC/USDT")
	require.NoError(t, err)
	assert.True(t, ticker.Last.Equal(decimal.RequireFromString("50000.15")))
	mc.AssertNumberOfCalls(t, "FetchTicker", 2)
}

func Test_GetOHLCV_LimitBounds(t *testing.T) {
	mc := NewMockExchangeClient("binance")
	mc.On("FetchMarkets", mock.Anything).Return(usdtMarkets(), nil)
	mc.On("FetchOHLCV", mock.Anything, "BTC/USDT", "1h", mock.Anything, int64(0)).
		Return([]exchange.RawCandle{
			{TimestampMS: 1000, Open: "1", High: "2", Low: "0.5", Close: "1.5", Volume: "10"},
		}, nil)

	svc := newTestService(mc)

	tests := []struct {
		limit  int
		wantOK bool
	}{
		{limit: 0, wantOK: false},
		{limit: 1, wantOK: true},
		{limit: 1000, wantOK: true},
		{limit: 1001, wantOK: false},
	}

	for _, tt := range tests {
		_, err := svc.GetOHLCV(context.Background(), "binance", "BTC/USDT", "1h", tt.limit, 0)
		if tt.wantOK {
			assert.NoError(t, err, "limit %d", tt.limit)
		} else {
			var invalid *errs.ValidationError
			require.ErrorAs(t, err, &invalid, "limit %d", tt.limit)
			assert.Equal(t, "limit", invalid.Param)
		}
	}
}

func Test_GetOHLCV_RejectsUnknownTimeframe(t *testing.T) {
	mc := NewMockExchangeClient("binance")
	svc := newTestService(mc)

	_, err := svc.GetOHLCV(context.Background(), "binance", "BTC/USDT", "2h", 100, 0)

	var invalid *errs.ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "timeframe", invalid.Param)
	mc.AssertNotCalled(t, "FetchOHLCV", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func Test_GetOHLCV_RejectsNegativeSince(t *testing.T) {
	mc := NewMockExchangeClient("binance")
	svc := newTestService(mc)

	_, err := svc.GetOHLCV(context.Background(), "binance", "BTC/USDT", "1h", 100, -5)

	var invalid *errs.ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "since_ms", invalid.Param)
}

func Test_GetOHLCV_ResultIsAscending(t *testing.T) {
	mc := NewMockExchangeClient("binance")
	mc.On("FetchMarkets", mock.Anything).Return(usdtMarkets(), nil)
	mc.On("FetchOHLCV", mock.Anything, "BTC/USDT", "1h", 3, int64(0)).
		Return([]exchange.RawCandle{
			{TimestampMS: 3000, Open: "3", High: "3", Low: "3", Close: "3", Volume: "3"},
			{TimestampMS: 1000, Open: "1", High: "1", Low: "1", Close: "1", Volume: "1"},
			{TimestampMS: 2000, Open: "2", High: "2", Low: "2", Close: "2", Volume: "2"},
		}, nil)

	svc := newTestService(mc)

	series, err := svc.GetOHLCV(context.Background(), "binance", "BTC/USDT", "1h", 3, 0)
	require.NoError(t, err)
	require.Len(t, series.Points, 3)

	for i := 1; i < len(series.Points); i++ {
		assert.Less(t, series.Points[i-1].TimestampMS, series.Points[i].TimestampMS)
	}
}

func Test_GetOrderBook_DepthBounds(t *testing.T) {
	mc := NewMockExchangeClient("binance")
	svc := newTestService(mc)

	for _, depth := range []int{0, -1, 201} {
		_, err := svc.GetOrderBook(context.Background(), "binance", "BTC/USDT", depth)

		var invalid *errs.ValidationError
		require.ErrorAs(t, err, &invalid, "depth %d", depth)
		assert.Equal(t, "depth", invalid.Param)
	}
	mc.AssertNotCalled(t, "FetchOrderBook", mock.Anything, mock.Anything, mock.Anything)
}

func Test_GetOrderBook_OrderedSides(t *testing.T) {
	mc := NewMockExchangeClient("binance")
	mc.On("FetchMarkets", mock.Anything).Return(usdtMarkets(), nil)
	mc.On("FetchOrderBook", mock.Anything, "BTC/USDT", 5).
		Return(&exchange.RawOrderBook{
			Bids: []exchange.RawLevel{
				{Price: "49999", Amount: "1"},
				{Price: "50001", Amount: "2"},
				{Price: "50000", Amount: "3"},
			},
			Asks: []exchange.RawLevel{
				{Price: "50004", Amount: "1"},
				{Price: "50002", Amount: "2"},
				{Price: "50003", Amount: "3"},
			},
		}, nil)

	svc := newTestService(mc)

	book, err := svc.GetOrderBook(context.Background(), "binance", "BTC/USDT", 5)
	require.NoError(t, err)

	require.Len(t, book.Bids, 3)
	assert.True(t, book.Bids[0].Price.Equal(decimal.RequireFromString("50001")))
	for i := 1; i < len(book.Bids); i++ {
		assert.True(t, book.Bids[i].Price.LessThan(book.Bids[i-1].Price))
	}
	for i := 1; i < len(book.Asks); i++ {
		assert.True(t, book.Asks[i].Price.GreaterThan(book.Asks[i-1].Price))
	}
}

func Test_GetTopMarkets(t *testing.T) {
	mc := NewMockExchangeClient("binance")
	mc.On("FetchMarkets", mock.Anything).Return(usdtMarkets(), nil)

	svc := newTestService(mc)

	top, err := svc.GetTopMarkets(context.Background(), "binance", "usdt", 10)
	require.NoError(t, err)

	require.Len(t, top.Markets, 2)
	assert.Equal(t, "ETH/USDT", top.Markets[0].Symbol, "highest quote volume first")

	// Repeat request is a cache hit.
	_, err = svc.GetTopMarkets(context.Background(), "binance", "usdt", 10)
	require.NoError(t, err)
	mc.AssertNumberOfCalls(t, "FetchMarkets", 1)
}

func Test_GetTopMarkets_Bounds(t *testing.T) {
	mc := NewMockExchangeClient("binance")
	svc := newTestService(mc)

	for _, limit := range []int{0, 51} {
		_, err := svc.GetTopMarkets(context.Background(), "binance", "USDT", limit)

		var invalid *errs.ValidationError
		require.ErrorAs(t, err, &invalid, "limit %d", limit)
		assert.Equal(t, "limit", invalid.Param)
	}

	_, err := svc.GetTopMarkets(context.Background(), "binance", "", 10)
	var invalid *errs.ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "quote", invalid.Param)

	mc.AssertNotCalled(t, "FetchMarkets", mock.Anything)
}

func Test_GetTicker_ConstructionFailureIsRetried(t *testing.T) {
	attempts := 0
	mc := NewMockExchangeClient("binance")
	mc.On("FetchMarkets", mock.Anything).Return(usdtMarkets(), nil)
	mc.On("FetchTicker", mock.Anything, "BTC/USDT").Return(rawTicker(), nil)

	registry := exchange.NewRegistry(map[string]exchange.Constructor{
		"binance": func() (exchange.Client, error) {
			attempts++
			if attempts == 1 {
				return nil, errors.New("dns failure")
			}
			return mc, nil
		},
	})
	svc := NewMarketService(cache.New[any](time.Minute), registry, testMetrics, "binance")

	_, err := svc.GetTicker(context.Background(), "binance", "BTC/USDT")
	var upstream *errs.UpstreamAPIError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "initialize", upstream.Op)

	_, err = svc.GetTicker(context.Background(), "binance", "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}
