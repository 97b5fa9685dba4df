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

// CoinbaseClient fetches market data from the Coinbase Exchange public API.
// Coinbase quotes against USD rather than USDT.
type CoinbaseClient struct {
	name    string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// Coinbase supports a fixed granularity set (seconds).
var coinbaseGranularities = map[models.Timeframe]int{
	models.TF1m: 60, models.TF5m: 300, models.TF15m: 900,
	models.TF1h: 3600, models.TF6h: 21600, models.TF1d: 86400,
}

// NewCoinbase creates a Coinbase Exchange client.
func NewCoinbase(cfg ClientConfig) *CoinbaseClient {
	cfg = cfg.withDefaults("https://api.exchange.coinbase.com")
	return &CoinbaseClient{
		name:    VenueCoinbase,
		baseURL: cfg.BaseURL,
		client:  cfg.httpClient(),
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
	}
}

func (cb *CoinbaseClient) Name() string { return cb.name }

// pair formats "BTC" as Coinbase's "BTC-USD".
func (cb *CoinbaseClient) pair(symbol string) string {
	return symbol + "-USD"
}

// FetchCandles returns ascending candles. Coinbase rows are
// [ts(s), low, high, open, close, volume], newest first.
func (cb *CoinbaseClient) FetchCandles(ctx context.Context, req CandleRequest) ([]models.Candle, error) {
	granularity, ok := coinbaseGranularities[req.Timeframe]
	if !ok {
		return nil, fmt.Errorf("%s: %w: %s", cb.name, ErrTimeframeNotSupported, req.Timeframe)
	}
	if !cb.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", cb.name, ErrRateLimited)
	}

	params := url.Values{}
	params.Set("granularity", strconv.Itoa(granularity))
	if req.Start > 0 {
		params.Set("start", time.Unix(req.Start, 0).UTC().Format(time.RFC3339))
	}
	if req.End > 0 {
		params.Set("end", time.Unix(req.End, 0).UTC().Format(time.RFC3339))
	}

	var raw [][]float64
	u := fmt.Sprintf("%s/products/%s/candles?%s", cb.baseURL, cb.pair(req.Symbol), params.Encode())
	if err := getJSON(ctx, cb.client, u, &raw); err != nil {
		return nil, fmt.Errorf("%s candles: %w", cb.name, err)
	}

	limit := clampLimit(req.Limit, 300)
	if len(raw) > limit {
		raw = raw[:limit] // newest first; keep the most recent rows
	}
	candles := make([]models.Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			return nil, fmt.Errorf("%s: invalid response: candle row has %d fields", cb.name, len(row))
		}
		candles = append(candles, models.Candle{
			Timestamp: time.Unix(int64(row[0]), 0).UTC(),
			Low:       row[1],
			High:      row[2],
			Open:      row[3],
			Close:     row[4],
			Volume:    row[5],
		})
	}
	return finishCandles(cb.name, candles)
}

// CurrentPrice returns the product ticker price.
func (cb *CoinbaseClient) CurrentPrice(ctx context.Context, symbol string) (*Ticker, error) {
	if !cb.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", cb.name, ErrRateLimited)
	}
	var out struct {
		Price string `json:"price"`
		Time  string `json:"time"`
	}
	u := fmt.Sprintf("%s/products/%s/ticker", cb.baseURL, cb.pair(symbol))
	if err := getJSON(ctx, cb.client, u, &out); err != nil {
		return nil, fmt.Errorf("%s ticker: %w", cb.name, err)
	}
	price, err := strconv.ParseFloat(out.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid response: %w", cb.name, err)
	}
	ts := time.Now().UTC()
	if parsed, err := time.Parse(time.RFC3339, out.Time); err == nil {
		ts = parsed
	}
	return &Ticker{Symbol: symbol, Price: price, Timestamp: ts}, nil
}

// Stats24h returns the product's 24-hour statistics.
func (cb *CoinbaseClient) Stats24h(ctx context.Context, symbol string) (*Stats24h, error) {
	if !cb.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", cb.name, ErrRateLimited)
	}
	var out struct {
		Open   string `json:"open"`
		High   string `json:"high"`
		Low    string `json:"low"`
		Last   string `json:"last"`
		Volume string `json:"volume"`
	}
	u := fmt.Sprintf("%s/products/%s/stats", cb.baseURL, cb.pair(symbol))
	if err := getJSON(ctx, cb.client, u, &out); err != nil {
		return nil, fmt.Errorf("%s stats: %w", cb.name, err)
	}
	stats := &Stats24h{Symbol: symbol}
	stats.LastPrice, _ = strconv.ParseFloat(out.Last, 64)
	stats.High, _ = strconv.ParseFloat(out.High, 64)
	stats.Low, _ = strconv.ParseFloat(out.Low, 64)
	stats.Volume, _ = strconv.ParseFloat(out.Volume, 64)
	if open, err := strconv.ParseFloat(out.Open, 64); err == nil && open > 0 {
		stats.PriceChangePct = (stats.LastPrice - open) / open * 100
	}
	return stats, nil
}

// ListSymbols returns the base currencies of all online USD products.
func (cb *CoinbaseClient) ListSymbols(ctx context.Context) ([]string, error) {
	if !cb.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", cb.name, ErrRateLimited)
	}
	var out []struct {
		BaseCurrency  string `json:"base_currency"`
		QuoteCurrency string `json:"quote_currency"`
		Status        string `json:"status"`
	}
	if err := getJSON(ctx, cb.client, cb.baseURL+"/products", &out); err != nil {
		return nil, fmt.Errorf("%s products: %w", cb.name, err)
	}
	symbols := make([]string, 0, len(out))
	for _, p := range out {
		if p.QuoteCurrency == "USD" && p.Status == "online" {
			symbols = append(symbols, p.BaseCurrency)
		}
	}
	return symbols, nil
}
