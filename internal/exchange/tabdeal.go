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

// TabdealClient fetches market data from the Tabdeal public API. Tabdeal is
// an Iranian venue quoting against IRT; candle prices therefore live on a
// different unit scale than the USDT venues, which the fact-check evaluator's
// unit-mismatch guard protects against.
type TabdealClient struct {
	name    string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

var tabdealIntervals = map[models.Timeframe]string{
	models.TF1m: "1m", models.TF3m: "3m", models.TF5m: "5m",
	models.TF15m: "15m", models.TF30m: "30m",
	models.TF1h: "1h", models.TF2h: "2h", models.TF4h: "4h",
	models.TF6h: "6h", models.TF8h: "8h", models.TF12h: "12h",
	models.TF1d: "1d", models.TF3d: "3d", models.TF1w: "1w",
}

// NewTabdeal creates a Tabdeal client.
func NewTabdeal(cfg ClientConfig) *TabdealClient {
	cfg = cfg.withDefaults("https://api.tabdeal.org")
	return &TabdealClient{
		name:    VenueTabdeal,
		baseURL: cfg.BaseURL,
		client:  cfg.httpClient(),
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
	}
}

func (t *TabdealClient) Name() string { return t.name }

// pair formats "BTC" as Tabdeal's "BTCIRT".
func (t *TabdealClient) pair(symbol string) string {
	return symbol + "IRT"
}

// tabdealCandle is the object form Tabdeal uses for klines.
type tabdealCandle struct {
	Time   int64  `json:"time"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

// FetchCandles returns ascending candles. Tabdeal timestamps are seconds and
// candles come as JSON objects rather than tuples.
func (t *TabdealClient) FetchCandles(ctx context.Context, req CandleRequest) ([]models.Candle, error) {
	interval, ok := tabdealIntervals[req.Timeframe]
	if !ok {
		return nil, fmt.Errorf("%s: %w: %s", t.name, ErrTimeframeNotSupported, req.Timeframe)
	}
	if !t.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", t.name, ErrRateLimited)
	}

	params := url.Values{}
	params.Set("symbol", t.pair(req.Symbol))
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(clampLimit(req.Limit, 1000)))
	if req.Start > 0 {
		params.Set("startTime", strconv.FormatInt(req.Start, 10))
	}
	if req.End > 0 {
		params.Set("endTime", strconv.FormatInt(req.End, 10))
	}

	var raw []tabdealCandle
	u := fmt.Sprintf("%s/api/v1/klines?%s", t.baseURL, params.Encode())
	if err := getJSON(ctx, t.client, u, &raw); err != nil {
		return nil, fmt.Errorf("%s klines: %w", t.name, err)
	}

	candles := make([]models.Candle, 0, len(raw))
	for _, row := range raw {
		c, err := decodeOHLCV(row.Open, row.High, row.Low, row.Close, row.Volume)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid response: %w", t.name, err)
		}
		c.Timestamp = time.Unix(row.Time, 0).UTC()
		candles = append(candles, c)
	}
	return finishCandles(t.name, candles)
}

// CurrentPrice returns the last traded price.
func (t *TabdealClient) CurrentPrice(ctx context.Context, symbol string) (*Ticker, error) {
	if !t.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", t.name, ErrRateLimited)
	}
	var out struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	u := fmt.Sprintf("%s/api/v1/ticker/price?symbol=%s", t.baseURL, t.pair(symbol))
	if err := getJSON(ctx, t.client, u, &out); err != nil {
		return nil, fmt.Errorf("%s ticker: %w", t.name, err)
	}
	price, err := strconv.ParseFloat(out.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid response: %w", t.name, err)
	}
	return &Ticker{Symbol: symbol, Price: price, Timestamp: time.Now().UTC()}, nil
}

// Stats24h returns the 24-hour ticker statistics.
func (t *TabdealClient) Stats24h(ctx context.Context, symbol string) (*Stats24h, error) {
	if !t.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", t.name, ErrRateLimited)
	}
	var out struct {
		LastPrice          string `json:"lastPrice"`
		HighPrice          string `json:"highPrice"`
		LowPrice           string `json:"lowPrice"`
		Volume             string `json:"volume"`
		PriceChangePercent string `json:"priceChangePercent"`
	}
	u := fmt.Sprintf("%s/api/v1/ticker/24hr?symbol=%s", t.baseURL, t.pair(symbol))
	if err := getJSON(ctx, t.client, u, &out); err != nil {
		return nil, fmt.Errorf("%s 24h stats: %w", t.name, err)
	}
	stats := &Stats24h{Symbol: symbol}
	stats.LastPrice, _ = strconv.ParseFloat(out.LastPrice, 64)
	stats.High, _ = strconv.ParseFloat(out.HighPrice, 64)
	stats.Low, _ = strconv.ParseFloat(out.LowPrice, 64)
	stats.Volume, _ = strconv.ParseFloat(out.Volume, 64)
	stats.PriceChangePct, _ = strconv.ParseFloat(out.PriceChangePercent, 64)
	return stats, nil
}

// ListSymbols returns the base assets of all IRT markets.
func (t *TabdealClient) ListSymbols(ctx context.Context) ([]string, error) {
	if !t.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", t.name, ErrRateLimited)
	}
	var out struct {
		Symbols []struct {
			BaseAsset  string `json:"baseAsset"`
			QuoteAsset string `json:"quoteAsset"`
		} `json:"symbols"`
	}
	if err := getJSON(ctx, t.client, t.baseURL+"/api/v1/exchangeInfo", &out); err != nil {
		return nil, fmt.Errorf("%s exchange info: %w", t.name, err)
	}
	symbols := make([]string, 0, len(out.Symbols))
	for _, s := range out.Symbols {
		if s.QuoteAsset == "IRT" {
			symbols = append(symbols, s.BaseAsset)
		}
	}
	return symbols, nil
}
