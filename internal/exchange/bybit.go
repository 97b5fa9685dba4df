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

// BybitClient fetches spot market data from the Bybit v5 public API.
type BybitClient struct {
	name    string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// Bybit has no 3d or 8h kline interval.
var bybitIntervals = map[models.Timeframe]string{
	models.TF1m: "1", models.TF3m: "3", models.TF5m: "5",
	models.TF15m: "15", models.TF30m: "30",
	models.TF1h: "60", models.TF2h: "120", models.TF4h: "240",
	models.TF6h: "360", models.TF12h: "720",
	models.TF1d: "D", models.TF1w: "W",
}

// NewBybit creates a Bybit client against the public v5 REST API.
func NewBybit(cfg ClientConfig) *BybitClient {
	cfg = cfg.withDefaults("https://api.bybit.com")
	return &BybitClient{
		name:    VenueBybit,
		baseURL: cfg.BaseURL,
		client:  cfg.httpClient(),
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
	}
}

func (b *BybitClient) Name() string { return b.name }

func (b *BybitClient) pair(symbol string) string {
	return symbol + "USDT"
}

// FetchCandles returns ascending candles. Bybit rows are
// [ts(ms), o, h, l, c, volume, turnover], newest first.
func (b *BybitClient) FetchCandles(ctx context.Context, req CandleRequest) ([]models.Candle, error) {
	interval, ok := bybitIntervals[req.Timeframe]
	if !ok {
		return nil, fmt.Errorf("%s: %w: %s", b.name, ErrTimeframeNotSupported, req.Timeframe)
	}
	if !b.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", b.name, ErrRateLimited)
	}

	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", b.pair(req.Symbol))
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(clampLimit(req.Limit, 1000)))
	if req.Start > 0 {
		params.Set("start", strconv.FormatInt(req.Start*1000, 10))
	}
	if req.End > 0 {
		params.Set("end", strconv.FormatInt(req.End*1000, 10))
	}

	var out struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List [][]string `json:"list"`
		} `json:"result"`
	}
	u := fmt.Sprintf("%s/v5/market/kline?%s", b.baseURL, params.Encode())
	if err := getJSON(ctx, b.client, u, &out); err != nil {
		return nil, fmt.Errorf("%s kline: %w", b.name, err)
	}
	if out.RetCode != 0 {
		return nil, fmt.Errorf("%s kline: API error %d: %s", b.name, out.RetCode, out.RetMsg)
	}

	candles := make([]models.Candle, 0, len(out.Result.List))
	for _, row := range out.Result.List {
		if len(row) < 6 {
			return nil, fmt.Errorf("%s: invalid response: kline row has %d fields", b.name, len(row))
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid response: %w", b.name, err)
		}
		c, err := decodeOHLCV(row[1], row[2], row[3], row[4], row[5])
		if err != nil {
			return nil, fmt.Errorf("%s: invalid response: %w", b.name, err)
		}
		c.Timestamp = time.UnixMilli(ms).UTC()
		candles = append(candles, c)
	}
	return finishCandles(b.name, candles)
}

// CurrentPrice returns the spot ticker last price.
func (b *BybitClient) CurrentPrice(ctx context.Context, symbol string) (*Ticker, error) {
	stats, err := b.Stats24h(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &Ticker{Symbol: symbol, Price: stats.LastPrice, Timestamp: time.Now().UTC()}, nil
}

// Stats24h returns the spot ticker 24-hour statistics.
func (b *BybitClient) Stats24h(ctx context.Context, symbol string) (*Stats24h, error) {
	if !b.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", b.name, ErrRateLimited)
	}
	var out struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []struct {
				LastPrice    string `json:"lastPrice"`
				HighPrice24h string `json:"highPrice24h"`
				LowPrice24h  string `json:"lowPrice24h"`
				Volume24h    string `json:"volume24h"`
				Price24hPcnt string `json:"price24hPcnt"`
			} `json:"list"`
		} `json:"result"`
	}
	u := fmt.Sprintf("%s/v5/market/tickers?category=spot&symbol=%s", b.baseURL, b.pair(symbol))
	if err := getJSON(ctx, b.client, u, &out); err != nil {
		return nil, fmt.Errorf("%s tickers: %w", b.name, err)
	}
	if out.RetCode != 0 {
		return nil, fmt.Errorf("%s tickers: API error %d: %s", b.name, out.RetCode, out.RetMsg)
	}
	if len(out.Result.List) == 0 {
		return nil, fmt.Errorf("%s tickers: symbol not supported: %s", b.name, symbol)
	}
	t := out.Result.List[0]
	stats := &Stats24h{Symbol: symbol}
	stats.LastPrice, _ = strconv.ParseFloat(t.LastPrice, 64)
	stats.High, _ = strconv.ParseFloat(t.HighPrice24h, 64)
	stats.Low, _ = strconv.ParseFloat(t.LowPrice24h, 64)
	stats.Volume, _ = strconv.ParseFloat(t.Volume24h, 64)
	if pcnt, err := strconv.ParseFloat(t.Price24hPcnt, 64); err == nil {
		stats.PriceChangePct = pcnt * 100
	}
	return stats, nil
}

// ListSymbols returns the base coins of all spot USDT instruments.
func (b *BybitClient) ListSymbols(ctx context.Context) ([]string, error) {
	if !b.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", b.name, ErrRateLimited)
	}
	var out struct {
		RetCode int `json:"retCode"`
		Result  struct {
			List []struct {
				BaseCoin  string `json:"baseCoin"`
				QuoteCoin string `json:"quoteCoin"`
				Status    string `json:"status"`
			} `json:"list"`
		} `json:"result"`
	}
	u := b.baseURL + "/v5/market/instruments-info?category=spot"
	if err := getJSON(ctx, b.client, u, &out); err != nil {
		return nil, fmt.Errorf("%s instruments: %w", b.name, err)
	}
	symbols := make([]string, 0, len(out.Result.List))
	for _, s := range out.Result.List {
		if s.QuoteCoin == "USDT" && s.Status == "Trading" {
			symbols = append(symbols, s.BaseCoin)
		}
	}
	return symbols, nil
}
