package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sigvet/sigvet/internal/models"
)

// NobitexClient fetches market data from the Nobitex public API. Nobitex is
// an Iranian venue quoting against RLS and serves candles in the
// TradingView UDF style: parallel arrays per field.
type NobitexClient struct {
	name    string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// Nobitex resolutions follow the TradingView convention.
var nobitexResolutions = map[models.Timeframe]string{
	models.TF1m: "1", models.TF5m: "5", models.TF15m: "15", models.TF30m: "30",
	models.TF1h: "60", models.TF4h: "240", models.TF6h: "360", models.TF12h: "720",
	models.TF1d: "D", models.TF3d: "3D",
}

// NewNobitex creates a Nobitex client.
func NewNobitex(cfg ClientConfig) *NobitexClient {
	cfg = cfg.withDefaults("https://api.nobitex.ir")
	return &NobitexClient{
		name:    VenueNobitex,
		baseURL: cfg.BaseURL,
		client:  cfg.httpClient(),
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
	}
}

func (n *NobitexClient) Name() string { return n.name }

// pair formats "BTC" as Nobitex's "BTCRLS".
func (n *NobitexClient) pair(symbol string) string {
	return symbol + "RLS"
}

// FetchCandles returns ascending candles from the UDF history endpoint:
// {"s":"ok","t":[...],"o":[...],"h":[...],"l":[...],"c":[...],"v":[...]}.
func (n *NobitexClient) FetchCandles(ctx context.Context, req CandleRequest) ([]models.Candle, error) {
	resolution, ok := nobitexResolutions[req.Timeframe]
	if !ok {
		return nil, fmt.Errorf("%s: %w: %s", n.name, ErrTimeframeNotSupported, req.Timeframe)
	}
	if !n.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", n.name, ErrRateLimited)
	}

	end := req.End
	if end == 0 {
		end = time.Now().Unix()
	}
	start := req.Start
	if start == 0 {
		limit := clampLimit(req.Limit, 1000)
		start = end - int64(limit)*int64(req.Timeframe.Minutes())*60
	}

	params := url.Values{}
	params.Set("symbol", n.pair(req.Symbol))
	params.Set("resolution", resolution)
	params.Set("from", strconv.FormatInt(start, 10))
	params.Set("to", strconv.FormatInt(end, 10))

	var out struct {
		Status string    `json:"s"`
		Times  []int64   `json:"t"`
		Opens  []float64 `json:"o"`
		Highs  []float64 `json:"h"`
		Lows   []float64 `json:"l"`
		Closes []float64 `json:"c"`
		Vols   []float64 `json:"v"`
	}
	u := fmt.Sprintf("%s/market/udf/history?%s", n.baseURL, params.Encode())
	if err := getJSON(ctx, n.client, u, &out); err != nil {
		return nil, fmt.Errorf("%s history: %w", n.name, err)
	}
	if out.Status != "ok" {
		return nil, fmt.Errorf("%s history: symbol not supported or no data (status %q)", n.name, out.Status)
	}
	count := len(out.Times)
	if len(out.Opens) != count || len(out.Highs) != count || len(out.Lows) != count ||
		len(out.Closes) != count || len(out.Vols) != count {
		return nil, fmt.Errorf("%s: invalid response: ragged parallel arrays", n.name)
	}

	candles := make([]models.Candle, 0, count)
	for i := 0; i < count; i++ {
		candles = append(candles, models.Candle{
			Timestamp: time.Unix(out.Times[i], 0).UTC(),
			Open:      out.Opens[i],
			High:      out.Highs[i],
			Low:       out.Lows[i],
			Close:     out.Closes[i],
			Volume:    out.Vols[i],
		})
	}
	if limit := clampLimit(req.Limit, 1000); len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return finishCandles(n.name, candles)
}

// CurrentPrice returns the latest market price.
func (n *NobitexClient) CurrentPrice(ctx context.Context, symbol string) (*Ticker, error) {
	stats, err := n.Stats24h(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &Ticker{Symbol: symbol, Price: stats.LastPrice, Timestamp: time.Now().UTC()}, nil
}

// Stats24h returns market statistics from the stats endpoint.
func (n *NobitexClient) Stats24h(ctx context.Context, symbol string) (*Stats24h, error) {
	if !n.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", n.name, ErrRateLimited)
	}
	var out struct {
		Status string `json:"status"`
		Stats  map[string]struct {
			Latest    string `json:"latest"`
			DayHigh   string `json:"dayHigh"`
			DayLow    string `json:"dayLow"`
			Volume    string `json:"volumeSrc"`
			DayChange string `json:"dayChange"`
		} `json:"stats"`
	}
	key := strings.ToLower(symbol) + "-rls"
	u := fmt.Sprintf("%s/market/stats?srcCurrency=%s&dstCurrency=rls", n.baseURL, strings.ToLower(symbol))
	if err := getJSON(ctx, n.client, u, &out); err != nil {
		return nil, fmt.Errorf("%s stats: %w", n.name, err)
	}
	t, ok := out.Stats[key]
	if !ok {
		return nil, fmt.Errorf("%s stats: symbol not supported: %s", n.name, symbol)
	}
	stats := &Stats24h{Symbol: symbol}
	stats.LastPrice, _ = strconv.ParseFloat(t.Latest, 64)
	stats.High, _ = strconv.ParseFloat(t.DayHigh, 64)
	stats.Low, _ = strconv.ParseFloat(t.DayLow, 64)
	stats.Volume, _ = strconv.ParseFloat(t.Volume, 64)
	stats.PriceChangePct, _ = strconv.ParseFloat(t.DayChange, 64)
	return stats, nil
}

// ListSymbols returns the source currencies of all RLS markets.
func (n *NobitexClient) ListSymbols(ctx context.Context) ([]string, error) {
	if !n.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", n.name, ErrRateLimited)
	}
	var out struct {
		Status string `json:"status"`
		Stats  map[string]struct {
			IsClosed bool `json:"isClosed"`
		} `json:"stats"`
	}
	if err := getJSON(ctx, n.client, n.baseURL+"/market/stats", &out); err != nil {
		return nil, fmt.Errorf("%s stats: %w", n.name, err)
	}
	var symbols []string
	for key, market := range out.Stats {
		parts := strings.SplitN(key, "-", 2)
		if len(parts) != 2 || parts[1] != "rls" || market.IsClosed {
			continue
		}
		symbols = append(symbols, strings.ToUpper(parts[0]))
	}
	return symbols, nil
}
