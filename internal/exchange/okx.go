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

// OKXClient fetches spot market data from the OKX v5 public API.
type OKXClient struct {
	name    string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// OKX has no 8h bar.
var okxBars = map[models.Timeframe]string{
	models.TF1m: "1m", models.TF3m: "3m", models.TF5m: "5m",
	models.TF15m: "15m", models.TF30m: "30m",
	models.TF1h: "1H", models.TF2h: "2H", models.TF4h: "4H",
	models.TF6h: "6H", models.TF12h: "12H",
	models.TF1d: "1D", models.TF3d: "3D", models.TF1w: "1W",
}

// NewOKX creates an OKX client against the public v5 REST API.
func NewOKX(cfg ClientConfig) *OKXClient {
	cfg = cfg.withDefaults("https://www.okx.com")
	return &OKXClient{
		name:    VenueOKX,
		baseURL: cfg.BaseURL,
		client:  cfg.httpClient(),
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
	}
}

func (o *OKXClient) Name() string { return o.name }

func (o *OKXClient) pair(symbol string) string {
	return symbol + "-USDT"
}

// FetchCandles returns ascending candles. OKX rows are
// [ts(ms), o, h, l, c, vol, ...], newest first. Time bounds map to OKX's
// before/after cursor parameters.
func (o *OKXClient) FetchCandles(ctx context.Context, req CandleRequest) ([]models.Candle, error) {
	bar, ok := okxBars[req.Timeframe]
	if !ok {
		return nil, fmt.Errorf("%s: %w: %s", o.name, ErrTimeframeNotSupported, req.Timeframe)
	}
	if !o.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", o.name, ErrRateLimited)
	}

	params := url.Values{}
	params.Set("instId", o.pair(req.Symbol))
	params.Set("bar", bar)
	params.Set("limit", strconv.Itoa(clampLimit(req.Limit, 300)))
	if req.Start > 0 {
		// "before" returns records newer than the given ms timestamp.
		params.Set("before", strconv.FormatInt(req.Start*1000-1, 10))
	}
	if req.End > 0 {
		params.Set("after", strconv.FormatInt(req.End*1000+1, 10))
	}

	var out struct {
		Code string     `json:"code"`
		Msg  string     `json:"msg"`
		Data [][]string `json:"data"`
	}
	u := fmt.Sprintf("%s/api/v5/market/candles?%s", o.baseURL, params.Encode())
	if err := getJSON(ctx, o.client, u, &out); err != nil {
		return nil, fmt.Errorf("%s candles: %w", o.name, err)
	}
	if out.Code != "0" {
		return nil, fmt.Errorf("%s candles: API error %s: %s", o.name, out.Code, out.Msg)
	}

	candles := make([]models.Candle, 0, len(out.Data))
	for _, row := range out.Data {
		if len(row) < 6 {
			return nil, fmt.Errorf("%s: invalid response: candle row has %d fields", o.name, len(row))
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid response: %w", o.name, err)
		}
		c, err := decodeOHLCV(row[1], row[2], row[3], row[4], row[5])
		if err != nil {
			return nil, fmt.Errorf("%s: invalid response: %w", o.name, err)
		}
		c.Timestamp = time.UnixMilli(ms).UTC()
		candles = append(candles, c)
	}
	return finishCandles(o.name, candles)
}

// CurrentPrice returns the ticker last price.
func (o *OKXClient) CurrentPrice(ctx context.Context, symbol string) (*Ticker, error) {
	stats, err := o.Stats24h(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &Ticker{Symbol: symbol, Price: stats.LastPrice, Timestamp: time.Now().UTC()}, nil
}

// Stats24h returns the ticker's 24-hour statistics.
func (o *OKXClient) Stats24h(ctx context.Context, symbol string) (*Stats24h, error) {
	if !o.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", o.name, ErrRateLimited)
	}
	var out struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			Last      string `json:"last"`
			High24h   string `json:"high24h"`
			Low24h    string `json:"low24h"`
			Vol24h    string `json:"vol24h"`
			Open24h   string `json:"open24h"`
			SodUtc0   string `json:"sodUtc0"`
		} `json:"data"`
	}
	u := fmt.Sprintf("%s/api/v5/market/ticker?instId=%s", o.baseURL, o.pair(symbol))
	if err := getJSON(ctx, o.client, u, &out); err != nil {
		return nil, fmt.Errorf("%s ticker: %w", o.name, err)
	}
	if out.Code != "0" || len(out.Data) == 0 {
		return nil, fmt.Errorf("%s ticker: symbol not supported: %s", o.name, symbol)
	}
	t := out.Data[0]
	stats := &Stats24h{Symbol: symbol}
	stats.LastPrice, _ = strconv.ParseFloat(t.Last, 64)
	stats.High, _ = strconv.ParseFloat(t.High24h, 64)
	stats.Low, _ = strconv.ParseFloat(t.Low24h, 64)
	stats.Volume, _ = strconv.ParseFloat(t.Vol24h, 64)
	if open, err := strconv.ParseFloat(t.Open24h, 64); err == nil && open > 0 {
		stats.PriceChangePct = (stats.LastPrice - open) / open * 100
	}
	return stats, nil
}

// ListSymbols returns the base currencies of all live USDT spot instruments.
func (o *OKXClient) ListSymbols(ctx context.Context) ([]string, error) {
	if !o.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", o.name, ErrRateLimited)
	}
	var out struct {
		Code string `json:"code"`
		Data []struct {
			BaseCcy  string `json:"baseCcy"`
			QuoteCcy string `json:"quoteCcy"`
			State    string `json:"state"`
		} `json:"data"`
	}
	u := o.baseURL + "/api/v5/public/instruments?instType=SPOT"
	if err := getJSON(ctx, o.client, u, &out); err != nil {
		return nil, fmt.Errorf("%s instruments: %w", o.name, err)
	}
	symbols := make([]string, 0, len(out.Data))
	for _, s := range out.Data {
		if s.QuoteCcy == "USDT" && s.State == "live" {
			symbols = append(symbols, s.BaseCcy)
		}
	}
	return symbols, nil
}
