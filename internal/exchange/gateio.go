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

// GateIOClient fetches spot market data from the Gate.io v4 public API.
type GateIOClient struct {
	name    string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

var gateioIntervals = map[models.Timeframe]string{
	models.TF1m: "1m", models.TF5m: "5m", models.TF15m: "15m",
	models.TF30m: "30m", models.TF1h: "1h", models.TF4h: "4h",
	models.TF8h: "8h", models.TF1d: "1d", models.TF1w: "7d",
}

// NewGateIO creates a Gate.io client against the public v4 REST API.
func NewGateIO(cfg ClientConfig) *GateIOClient {
	cfg = cfg.withDefaults("https://api.gateio.ws/api/v4")
	return &GateIOClient{
		name:    VenueGateIO,
		baseURL: cfg.BaseURL,
		client:  cfg.httpClient(),
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
	}
}

func (g *GateIOClient) Name() string { return g.name }

// pair formats "BTC" as Gate.io's "BTC_USDT".
func (g *GateIOClient) pair(symbol string) string {
	return symbol + "_USDT"
}

// FetchCandles returns ascending candles. Gate.io rows are
// [ts(s), volume, close, high, low, open], oldest first.
func (g *GateIOClient) FetchCandles(ctx context.Context, req CandleRequest) ([]models.Candle, error) {
	interval, ok := gateioIntervals[req.Timeframe]
	if !ok {
		return nil, fmt.Errorf("%s: %w: %s", g.name, ErrTimeframeNotSupported, req.Timeframe)
	}
	if !g.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", g.name, ErrRateLimited)
	}

	params := url.Values{}
	params.Set("currency_pair", g.pair(req.Symbol))
	params.Set("interval", interval)
	if req.Start > 0 {
		params.Set("from", strconv.FormatInt(req.Start, 10))
	}
	if req.End > 0 {
		params.Set("to", strconv.FormatInt(req.End, 10))
	}
	if req.Start == 0 && req.End == 0 {
		params.Set("limit", strconv.Itoa(clampLimit(req.Limit, 1000)))
	}

	var raw [][]string
	u := fmt.Sprintf("%s/spot/candlesticks?%s", g.baseURL, params.Encode())
	if err := getJSON(ctx, g.client, u, &raw); err != nil {
		return nil, fmt.Errorf("%s candlesticks: %w", g.name, err)
	}

	candles := make([]models.Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			return nil, fmt.Errorf("%s: invalid response: candlestick row has %d fields", g.name, len(row))
		}
		ts, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid response: %w", g.name, err)
		}
		c, err := decodeOHLCV(row[5], row[3], row[4], row[2], row[1])
		if err != nil {
			return nil, fmt.Errorf("%s: invalid response: %w", g.name, err)
		}
		c.Timestamp = time.Unix(ts, 0).UTC()
		candles = append(candles, c)
	}
	return finishCandles(g.name, candles)
}

// CurrentPrice returns the spot ticker last price.
func (g *GateIOClient) CurrentPrice(ctx context.Context, symbol string) (*Ticker, error) {
	stats, err := g.Stats24h(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &Ticker{Symbol: symbol, Price: stats.LastPrice, Timestamp: time.Now().UTC()}, nil
}

// Stats24h returns spot ticker statistics.
func (g *GateIOClient) Stats24h(ctx context.Context, symbol string) (*Stats24h, error) {
	if !g.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", g.name, ErrRateLimited)
	}
	var out []struct {
		Last             string `json:"last"`
		High24h          string `json:"high_24h"`
		Low24h           string `json:"low_24h"`
		BaseVolume       string `json:"base_volume"`
		ChangePercentage string `json:"change_percentage"`
	}
	u := fmt.Sprintf("%s/spot/tickers?currency_pair=%s", g.baseURL, g.pair(symbol))
	if err := getJSON(ctx, g.client, u, &out); err != nil {
		return nil, fmt.Errorf("%s tickers: %w", g.name, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s tickers: symbol not supported: %s", g.name, symbol)
	}
	t := out[0]
	stats := &Stats24h{Symbol: symbol}
	stats.LastPrice, _ = strconv.ParseFloat(t.Last, 64)
	stats.High, _ = strconv.ParseFloat(t.High24h, 64)
	stats.Low, _ = strconv.ParseFloat(t.Low24h, 64)
	stats.Volume, _ = strconv.ParseFloat(t.BaseVolume, 64)
	stats.PriceChangePct, _ = strconv.ParseFloat(t.ChangePercentage, 64)
	return stats, nil
}

// ListSymbols returns the base currencies of all tradable USDT pairs.
func (g *GateIOClient) ListSymbols(ctx context.Context) ([]string, error) {
	if !g.limiter.Allow() {
		return nil, fmt.Errorf("%s: %w", g.name, ErrRateLimited)
	}
	var out []struct {
		Base        string `json:"base"`
		Quote       string `json:"quote"`
		TradeStatus string `json:"trade_status"`
	}
	if err := getJSON(ctx, g.client, g.baseURL+"/spot/currency_pairs", &out); err != nil {
		return nil, fmt.Errorf("%s currency pairs: %w", g.name, err)
	}
	symbols := make([]string, 0, len(out))
	for _, p := range out {
		if p.Quote == "USDT" && p.TradeStatus == "tradable" {
			symbols = append(symbols, p.Base)
		}
	}
	return symbols, nil
}
