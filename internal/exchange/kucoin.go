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

// KuCoinClient fetches spot market data from the KuCoin public API.
type KuCoinClient struct {
	name    string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

var kucoinIntervals = map[models.Timeframe]string{
	models.TF1m: "1min", models.TF3m: "3min", models.TF5m: "5min",
	models.TF15m: "15min", models.TF30m: "30min",
	models.TF1h: "1hour", models.TF2h: "2hour", models.TF4h: "4hour",
	models.TF6h: "6hour", models.TF8h: "8hour", models.TF12h: "12hour",
	models.TF1d: "1day", models.TF1w: "1week",
}

// NewKuCoin creates a KuCoin client against the public REST API.
func NewKuCoin(cfg ClientConfig) *KuCoinClient {
	cfg = cfg.withDefaults("https://api.kucoin.com")
	return &KuCoinClient{
		name:    VenueKuCoin,
		baseURL: cfg.BaseURL,
		client:  cfg.httpClient(),
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
	}
}

func (k *KuCoinClient) Name() string { return k.name }

// pair formats "BTC" as KuCoin's "BTC-USDT".
func (k *KuCoinClient) pair(symbol string) string {
	return symbol + "-USDT"
}

// FetchCandles returns ascending candles. KuCoin rows are
// [ts, open, close, high, low, volume] in seconds — note the OC-HL order.
func (k *KuCoinClient) FetchCandles(ctx context.Context, req CandleRequest) ([]models.Candle, error) {
	interval, ok := kucoinIntervals[req.Timeframe]
	if !ok {
		return nil, fmt.Errorf("%s: %w: %s", k.name, ErrTimeframeNotSupported, req.Timeframe)
	}
	if !k.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", k.name, ErrRateLimited)
	}

	params := url.Values{}
	params.Set("symbol", k.pair(req.Symbol))
	params.Set("type", interval)
	if req.Start > 0 {
		params.Set("startAt", strconv.FormatInt(req.Start, 10))
	}
	if req.End > 0 {
		params.Set("endAt", strconv.FormatInt(req.End, 10))
	}

	var out struct {
		Code string     `json:"code"`
		Msg  string     `json:"msg"`
		Data [][]string `json:"data"`
	}
	u := fmt.Sprintf("%s/api/v1/market/candles?%s", k.baseURL, params.Encode())
	if err := getJSON(ctx, k.client, u, &out); err != nil {
		return nil, fmt.Errorf("%s candles: %w", k.name, err)
	}
	if out.Code != "200000" {
		return nil, fmt.Errorf("%s candles: API error %s: %s", k.name, out.Code, out.Msg)
	}

	limit := clampLimit(req.Limit, 1500)
	// KuCoin returns newest first; take the newest `limit` rows, the sort in
	// finishCandles restores ascending order.
	rows := out.Data
	if len(rows) > limit {
		rows = rows[:limit]
	}
	candles := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("%s: invalid response: candle row has %d fields", k.name, len(row))
		}
		ts, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid response: %w", k.name, err)
		}
		c, err := decodeOHLCV(row[1], row[3], row[4], row[2], row[5])
		if err != nil {
			return nil, fmt.Errorf("%s: invalid response: %w", k.name, err)
		}
		c.Timestamp = time.Unix(ts, 0).UTC()
		candles = append(candles, c)
	}
	return finishCandles(k.name, candles)
}

// CurrentPrice returns the level-1 best price.
func (k *KuCoinClient) CurrentPrice(ctx context.Context, symbol string) (*Ticker, error) {
	if !k.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", k.name, ErrRateLimited)
	}
	var out struct {
		Code string `json:"code"`
		Data struct {
			Price string `json:"price"`
			Time  int64  `json:"time"`
		} `json:"data"`
	}
	u := fmt.Sprintf("%s/api/v1/market/orderbook/level1?symbol=%s", k.baseURL, k.pair(symbol))
	if err := getJSON(ctx, k.client, u, &out); err != nil {
		return nil, fmt.Errorf("%s ticker: %w", k.name, err)
	}
	if out.Code != "200000" || out.Data.Price == "" {
		return nil, fmt.Errorf("%s ticker: symbol not supported: %s", k.name, symbol)
	}
	price, err := strconv.ParseFloat(out.Data.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid response: %w", k.name, err)
	}
	return &Ticker{Symbol: symbol, Price: price, Timestamp: time.UnixMilli(out.Data.Time).UTC()}, nil
}

// Stats24h returns KuCoin's 24-hour market stats.
func (k *KuCoinClient) Stats24h(ctx context.Context, symbol string) (*Stats24h, error) {
	if !k.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", k.name, ErrRateLimited)
	}
	var out struct {
		Code string `json:"code"`
		Data struct {
			Last       string `json:"last"`
			High       string `json:"high"`
			Low        string `json:"low"`
			Vol        string `json:"vol"`
			ChangeRate string `json:"changeRate"`
		} `json:"data"`
	}
	u := fmt.Sprintf("%s/api/v1/market/stats?symbol=%s", k.baseURL, k.pair(symbol))
	if err := getJSON(ctx, k.client, u, &out); err != nil {
		return nil, fmt.Errorf("%s 24h stats: %w", k.name, err)
	}
	if out.Code != "200000" || out.Data.Last == "" {
		return nil, fmt.Errorf("%s 24h stats: symbol not supported: %s", k.name, symbol)
	}
	stats := &Stats24h{Symbol: symbol}
	stats.LastPrice, _ = strconv.ParseFloat(out.Data.Last, 64)
	stats.High, _ = strconv.ParseFloat(out.Data.High, 64)
	stats.Low, _ = strconv.ParseFloat(out.Data.Low, 64)
	stats.Volume, _ = strconv.ParseFloat(out.Data.Vol, 64)
	if rate, err := strconv.ParseFloat(out.Data.ChangeRate, 64); err == nil {
		stats.PriceChangePct = rate * 100
	}
	return stats, nil
}

// ListSymbols returns the base currencies of all USDT pairs.
func (k *KuCoinClient) ListSymbols(ctx context.Context) ([]string, error) {
	if !k.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", k.name, ErrRateLimited)
	}
	var out struct {
		Code string `json:"code"`
		Data []struct {
			BaseCurrency  string `json:"baseCurrency"`
			QuoteCurrency string `json:"quoteCurrency"`
			EnableTrading bool   `json:"enableTrading"`
		} `json:"data"`
	}
	if err := getJSON(ctx, k.client, k.baseURL+"/api/v2/symbols", &out); err != nil {
		return nil, fmt.Errorf("%s symbols: %w", k.name, err)
	}
	symbols := make([]string, 0, len(out.Data))
	for _, s := range out.Data {
		if s.QuoteCurrency == "USDT" && s.EnableTrading {
			symbols = append(symbols, s.BaseCurrency)
		}
	}
	return symbols, nil
}
