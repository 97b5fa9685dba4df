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

// KrakenClient fetches market data from the Kraken public API. Kraken uses
// venue-specific pair names (BTC is XBT) and quotes against USD.
type KrakenClient struct {
	name    string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// Kraken OHLC intervals are minutes from a fixed set.
var krakenIntervals = map[models.Timeframe]int{
	models.TF1m: 1, models.TF5m: 5, models.TF15m: 15, models.TF30m: 30,
	models.TF1h: 60, models.TF4h: 240, models.TF1d: 1440, models.TF1w: 10080,
}

// NewKraken creates a Kraken client against the public REST API.
func NewKraken(cfg ClientConfig) *KrakenClient {
	cfg = cfg.withDefaults("https://api.kraken.com")
	return &KrakenClient{
		name:    VenueKraken,
		baseURL: cfg.BaseURL,
		client:  cfg.httpClient(),
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
	}
}

func (k *KrakenClient) Name() string { return k.name }

// pair maps a canonical base symbol to Kraken's pair naming.
func (k *KrakenClient) pair(symbol string) string {
	if symbol == "BTC" {
		return "XBTUSD"
	}
	return symbol + "USD"
}

// FetchCandles returns ascending candles. Kraken rows are
// [ts(s), o, h, l, c, vwap, volume, count]; the vwap column is skipped.
func (k *KrakenClient) FetchCandles(ctx context.Context, req CandleRequest) ([]models.Candle, error) {
	interval, ok := krakenIntervals[req.Timeframe]
	if !ok {
		return nil, fmt.Errorf("%s: %w: %s", k.name, ErrTimeframeNotSupported, req.Timeframe)
	}
	if !k.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", k.name, ErrRateLimited)
	}

	params := url.Values{}
	params.Set("pair", k.pair(req.Symbol))
	params.Set("interval", strconv.Itoa(interval))
	if req.Start > 0 {
		params.Set("since", strconv.FormatInt(req.Start-1, 10))
	}

	var out struct {
		Error  []string                   `json:"error"`
		Result map[string][][]interface{} `json:"result"`
	}
	u := fmt.Sprintf("%s/0/public/OHLC?%s", k.baseURL, params.Encode())
	if err := getJSON(ctx, k.client, u, &out); err != nil {
		return nil, fmt.Errorf("%s OHLC: %w", k.name, err)
	}
	if len(out.Error) > 0 {
		return nil, fmt.Errorf("%s OHLC: API error: %s", k.name, strings.Join(out.Error, "; "))
	}

	var rows [][]interface{}
	for key, data := range out.Result {
		if key == "last" {
			continue
		}
		rows = data
		break
	}
	if rows == nil {
		return nil, fmt.Errorf("%s OHLC: invalid response: no pair data", k.name)
	}

	limit := clampLimit(req.Limit, 720)
	if len(rows) > limit {
		rows = rows[len(rows)-limit:] // ascending; keep the most recent rows
	}
	candles := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			return nil, fmt.Errorf("%s: invalid response: OHLC row has %d fields", k.name, len(row))
		}
		ts, err := parseFloat(row[0])
		if err != nil {
			return nil, fmt.Errorf("%s: invalid response: %w", k.name, err)
		}
		c, err := decodeOHLCV(row[1], row[2], row[3], row[4], row[6])
		if err != nil {
			return nil, fmt.Errorf("%s: invalid response: %w", k.name, err)
		}
		c.Timestamp = time.Unix(int64(ts), 0).UTC()
		candles = append(candles, c)
	}
	return finishCandles(k.name, candles)
}

// CurrentPrice returns the last trade close from the ticker endpoint.
func (k *KrakenClient) CurrentPrice(ctx context.Context, symbol string) (*Ticker, error) {
	stats, err := k.Stats24h(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &Ticker{Symbol: symbol, Price: stats.LastPrice, Timestamp: time.Now().UTC()}, nil
}

// Stats24h returns 24-hour statistics from the ticker endpoint.
func (k *KrakenClient) Stats24h(ctx context.Context, symbol string) (*Stats24h, error) {
	if !k.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", k.name, ErrRateLimited)
	}
	var out struct {
		Error  []string `json:"error"`
		Result map[string]struct {
			C []string `json:"c"` // last trade [price, lot volume]
			H []string `json:"h"` // high [today, 24h]
			L []string `json:"l"` // low [today, 24h]
			V []string `json:"v"` // volume [today, 24h]
			O string   `json:"o"` // today's opening price
		} `json:"result"`
	}
	u := fmt.Sprintf("%s/0/public/Ticker?pair=%s", k.baseURL, k.pair(symbol))
	if err := getJSON(ctx, k.client, u, &out); err != nil {
		return nil, fmt.Errorf("%s ticker: %w", k.name, err)
	}
	if len(out.Error) > 0 {
		return nil, fmt.Errorf("%s ticker: API error: %s", k.name, strings.Join(out.Error, "; "))
	}
	for _, t := range out.Result {
		stats := &Stats24h{Symbol: symbol}
		if len(t.C) > 0 {
			stats.LastPrice, _ = strconv.ParseFloat(t.C[0], 64)
		}
		if len(t.H) > 1 {
			stats.High, _ = strconv.ParseFloat(t.H[1], 64)
		}
		if len(t.L) > 1 {
			stats.Low, _ = strconv.ParseFloat(t.L[1], 64)
		}
		if len(t.V) > 1 {
			stats.Volume, _ = strconv.ParseFloat(t.V[1], 64)
		}
		if open, err := strconv.ParseFloat(t.O, 64); err == nil && open > 0 {
			stats.PriceChangePct = (stats.LastPrice - open) / open * 100
		}
		return stats, nil
	}
	return nil, fmt.Errorf("%s ticker: symbol not supported: %s", k.name, symbol)
}

// ListSymbols returns the base assets of all USD pairs.
func (k *KrakenClient) ListSymbols(ctx context.Context) ([]string, error) {
	if !k.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", k.name, ErrRateLimited)
	}
	var out struct {
		Error  []string `json:"error"`
		Result map[string]struct {
			Base  string `json:"base"`
			Quote string `json:"quote"`
		} `json:"result"`
	}
	if err := getJSON(ctx, k.client, k.baseURL+"/0/public/AssetPairs", &out); err != nil {
		return nil, fmt.Errorf("%s asset pairs: %w", k.name, err)
	}
	if len(out.Error) > 0 {
		return nil, fmt.Errorf("%s asset pairs: API error: %s", k.name, strings.Join(out.Error, "; "))
	}
	seen := make(map[string]struct{})
	var symbols []string
	for _, p := range out.Result {
		if p.Quote != "ZUSD" && p.Quote != "USD" {
			continue
		}
		base := strings.TrimPrefix(p.Base, "X")
		base = strings.TrimPrefix(base, "Z")
		if base == "XBT" {
			base = "BTC"
		}
		if _, dup := seen[base]; !dup {
			seen[base] = struct{}{}
			symbols = append(symbols, base)
		}
	}
	return symbols, nil
}
