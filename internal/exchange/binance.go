package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/sigvet/sigvet/internal/models"
)

// BinanceClient fetches spot market data from the Binance public API.
type BinanceClient struct {
	name    string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// binanceIntervals maps canonical timeframes to Binance kline intervals.
// Binance happens to use the same symbolic names.
var binanceIntervals = map[models.Timeframe]string{
	models.TF1m: "1m", models.TF3m: "3m", models.TF5m: "5m",
	models.TF15m: "15m", models.TF30m: "30m",
	models.TF1h: "1h", models.TF2h: "2h", models.TF4h: "4h",
	models.TF6h: "6h", models.TF8h: "8h", models.TF12h: "12h",
	models.TF1d: "1d", models.TF3d: "3d", models.TF1w: "1w",
}

// NewBinance creates a Binance client against the public REST API.
func NewBinance(cfg ClientConfig) *BinanceClient {
	cfg = cfg.withDefaults("https://api.binance.com")
	return &BinanceClient{
		name:    VenueBinance,
		baseURL: cfg.BaseURL,
		client:  cfg.httpClient(),
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
	}
}

func (b *BinanceClient) Name() string { return b.name }

// pair formats "BTC" as Binance's "BTCUSDT".
func (b *BinanceClient) pair(symbol string) string {
	return symbol + "USDT"
}

// FetchCandles returns ascending klines. Binance timestamps are milliseconds
// and the tuple is [openTime, o, h, l, c, v, closeTime, ...].
func (b *BinanceClient) FetchCandles(ctx context.Context, req CandleRequest) ([]models.Candle, error) {
	interval, ok := binanceIntervals[req.Timeframe]
	if !ok {
		return nil, fmt.Errorf("%s: %w: %s", b.name, ErrTimeframeNotSupported, req.Timeframe)
	}
	if !b.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", b.name, ErrRateLimited)
	}

	params := url.Values{}
	params.Set("symbol", b.pair(req.Symbol))
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(clampLimit(req.Limit, 1000)))
	if req.Start > 0 {
		params.Set("startTime", strconv.FormatInt(req.Start*1000, 10))
	}
	if req.End > 0 {
		params.Set("endTime", strconv.FormatInt(req.End*1000, 10))
	}

	var raw [][]interface{}
	if err := getJSON(ctx, b.client, fmt.Sprintf("%s/api/v3/klines?%s", b.baseURL, params.Encode()), &raw); err != nil {
		return nil, fmt.Errorf("%s klines: %w", b.name, err)
	}

	candles := make([]models.Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			return nil, fmt.Errorf("%s: invalid response: kline row has %d fields", b.name, len(row))
		}
		ms, err := parseFloat(row[0])
		if err != nil {
			return nil, fmt.Errorf("%s: invalid response: %w", b.name, err)
		}
		c, err := decodeOHLCV(row[1], row[2], row[3], row[4], row[5])
		if err != nil {
			return nil, fmt.Errorf("%s: invalid response: %w", b.name, err)
		}
		c.Timestamp = time.UnixMilli(int64(ms)).UTC()
		candles = append(candles, c)
	}
	return finishCandles(b.name, candles)
}

// CurrentPrice returns the last trade price.
func (b *BinanceClient) CurrentPrice(ctx context.Context, symbol string) (*Ticker, error) {
	if !b.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", b.name, ErrRateLimited)
	}
	var out struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	u := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", b.baseURL, b.pair(symbol))
	if err := getJSON(ctx, b.client, u, &out); err != nil {
		return nil, fmt.Errorf("%s ticker: %w", b.name, err)
	}
	price, err := strconv.ParseFloat(out.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid response: %w", b.name, err)
	}
	return &Ticker{Symbol: symbol, Price: price, Timestamp: time.Now().UTC()}, nil
}

// Stats24h returns the rolling 24-hour window statistics.
func (b *BinanceClient) Stats24h(ctx context.Context, symbol string) (*Stats24h, error) {
	if !b.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", b.name, ErrRateLimited)
	}
	var out struct {
		LastPrice          string `json:"lastPrice"`
		HighPrice          string `json:"highPrice"`
		LowPrice           string `json:"lowPrice"`
		Volume             string `json:"volume"`
		PriceChangePercent string `json:"priceChangePercent"`
	}
	u := fmt.Sprintf("%s/api/v3/ticker/24hr?symbol=%s", b.baseURL, b.pair(symbol))
	if err := getJSON(ctx, b.client, u, &out); err != nil {
		return nil, fmt.Errorf("%s 24h stats: %w", b.name, err)
	}
	stats := &Stats24h{Symbol: symbol}
	var err error
	if stats.LastPrice, err = strconv.ParseFloat(out.LastPrice, 64); err != nil {
		return nil, fmt.Errorf("%s: invalid response: %w", b.name, err)
	}
	stats.High, _ = strconv.ParseFloat(out.HighPrice, 64)
	stats.Low, _ = strconv.ParseFloat(out.LowPrice, 64)
	stats.Volume, _ = strconv.ParseFloat(out.Volume, 64)
	stats.PriceChangePct, _ = strconv.ParseFloat(out.PriceChangePercent, 64)
	return stats, nil
}

// ListSymbols returns the base assets of all USDT spot pairs.
func (b *BinanceClient) ListSymbols(ctx context.Context) ([]string, error) {
	if !b.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", b.name, ErrRateLimited)
	}
	var out struct {
		Symbols []struct {
			BaseAsset  string `json:"baseAsset"`
			QuoteAsset string `json:"quoteAsset"`
			Status     string `json:"status"`
		} `json:"symbols"`
	}
	if err := getJSON(ctx, b.client, b.baseURL+"/api/v3/exchangeInfo", &out); err != nil {
		return nil, fmt.Errorf("%s exchange info: %w", b.name, err)
	}
	symbols := make([]string, 0, len(out.Symbols))
	for _, s := range out.Symbols {
		if s.QuoteAsset == "USDT" && s.Status == "TRADING" {
			symbols = append(symbols, s.BaseAsset)
		}
	}
	return symbols, nil
}
