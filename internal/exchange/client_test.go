package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigvet/sigvet/internal/models"
)

func testClientConfig(baseURL string) ClientConfig {
	return ClientConfig{BaseURL: baseURL, Timeout: 2 * time.Second, RPS: 1000, Burst: 1000}
}

func TestBinanceFetchCandles(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/klines", r.URL.Path)
		gotQuery = map[string]string{
			"symbol":    r.URL.Query().Get("symbol"),
			"interval":  r.URL.Query().Get("interval"),
			"startTime": r.URL.Query().Get("startTime"),
		}
		// klines are [openTime(ms), o, h, l, c, v, ...]
		json.NewEncoder(w).Encode([][]interface{}{
			{float64(1700003600000), "101", "103", "100", "102", "5"},
			{float64(1700000000000), "100", "102", "99", "101", "4"},
		})
	}))
	defer srv.Close()

	client := NewBinance(testClientConfig(srv.URL))
	candles, err := client.FetchCandles(context.Background(), CandleRequest{
		Symbol: "BTC", Timeframe: models.TF1h, Limit: 10, Start: 1700000000,
	})
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", gotQuery["symbol"])
	assert.Equal(t, "1h", gotQuery["interval"])
	assert.Equal(t, "1700000000000", gotQuery["startTime"]) // seconds to ms

	require.Len(t, candles, 2)
	// ascending regardless of venue order
	assert.True(t, candles[0].Timestamp.Before(candles[1].Timestamp))
	assert.Equal(t, 100.0, candles[0].Open)
	assert.Equal(t, 101.0, candles[0].Close)
	assert.Equal(t, 5.0, candles[1].Volume)
}

func TestBinanceUnsupportedTimeframeSkipsHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no HTTP call expected")
	}))
	defer srv.Close()

	client := NewBinance(testClientConfig(srv.URL))
	_, err := client.FetchCandles(context.Background(), CandleRequest{
		Symbol: "BTC", Timeframe: models.Timeframe("7m"),
	})
	assert.ErrorIs(t, err, ErrTimeframeNotSupported)
}

func TestKuCoinDecodesOCHLOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/market/candles", r.URL.Path)
		assert.Equal(t, "BTC-USDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1hour", r.URL.Query().Get("type"))
		// rows are [ts(s), open, close, high, low, volume], newest first
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": "200000",
			"data": [][]string{
				{"1700003600", "101", "102", "103", "100", "5"},
				{"1700000000", "100", "101", "102", "99", "4"},
			},
		})
	}))
	defer srv.Close()

	client := NewKuCoin(testClientConfig(srv.URL))
	candles, err := client.FetchCandles(context.Background(), CandleRequest{
		Symbol: "BTC", Timeframe: models.TF1h, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, candles, 2)

	first := candles[0]
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), first.Timestamp)
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 101.0, first.Close)
	assert.Equal(t, 102.0, first.High)
	assert.Equal(t, 99.0, first.Low)
}

func TestKrakenPairAndVwapSkip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/0/public/OHLC", r.URL.Path)
		assert.Equal(t, "XBTUSD", r.URL.Query().Get("pair"))
		assert.Equal(t, "60", r.URL.Query().Get("interval"))
		// rows are [ts(s), o, h, l, c, vwap, volume, count]
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": []string{},
			"result": map[string]interface{}{
				"XXBTZUSD": [][]interface{}{
					{float64(1700000000), "100", "102", "99", "101", "100.7", "4", float64(17)},
				},
				"last": float64(1700000000),
			},
		})
	}))
	defer srv.Close()

	client := NewKraken(testClientConfig(srv.URL))
	candles, err := client.FetchCandles(context.Background(), CandleRequest{
		Symbol: "BTC", Timeframe: models.TF1h, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, 4.0, candles[0].Volume) // volume, not vwap
	assert.Equal(t, 101.0, candles[0].Close)
}

func TestClientEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]interface{}{})
	}))
	defer srv.Close()

	client := NewBinance(testClientConfig(srv.URL))
	_, err := client.FetchCandles(context.Background(), CandleRequest{
		Symbol: "BTC", Timeframe: models.TF1h,
	})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestIsSymbolNotFound(t *testing.T) {
	assert.True(t, IsSymbolNotFound(errors.New("HTTP 404: no such route")))
	assert.True(t, IsSymbolNotFound(errors.New("binance klines: Invalid symbol.")))
	assert.True(t, IsSymbolNotFound(ErrSymbolNotSupported))
	assert.False(t, IsSymbolNotFound(errors.New("connection refused")))
	assert.False(t, IsSymbolNotFound(nil))
}

func TestRateLimiterRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]interface{}{
			{float64(1700000000000), "100", "102", "99", "101", "4"},
		})
	}))
	defer srv.Close()

	cfg := testClientConfig(srv.URL)
	cfg.RPS = 0.0001
	cfg.Burst = 1
	client := NewBinance(cfg)

	_, err := client.FetchCandles(context.Background(), CandleRequest{Symbol: "BTC", Timeframe: models.TF1h})
	require.NoError(t, err)
	_, err = client.FetchCandles(context.Background(), CandleRequest{Symbol: "BTC", Timeframe: models.TF1h})
	assert.ErrorIs(t, err, ErrRateLimited)
}
