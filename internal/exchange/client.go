// Package exchange contains the venue HTTP clients and the fallback
// aggregator that fronts them. Every venue response is normalized to
// models.Candle and sorted ascending before it leaves this package.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sigvet/sigvet/internal/models"
)

// Venue names used in priority lists, config keys and statistics.
const (
	VenueBinance  = "binance"
	VenueKuCoin   = "kucoin"
	VenueBybit    = "bybit"
	VenueOKX      = "okx"
	VenueCoinbase = "coinbase"
	VenueKraken   = "kraken"
	VenueGateIO   = "gateio"
	VenueTabdeal  = "tabdeal"
	VenueNobitex  = "nobitex"
)

var (
	// ErrTimeframeNotSupported is returned before any HTTP call when a
	// venue has no mapping for the requested timeframe.
	ErrTimeframeNotSupported = errors.New("timeframe not supported by venue")
	// ErrSymbolNotSupported classifies venue rejections of the trading pair.
	ErrSymbolNotSupported = errors.New("symbol not supported by venue")
	// ErrEmptyResponse is returned when a venue answers 200 with no candles.
	ErrEmptyResponse = errors.New("empty candle response")
	// ErrRateLimited is returned when the per-venue limiter refuses a call.
	ErrRateLimited = errors.New("venue rate limit exceeded")
)

// CandleRequest is the canonical fetch request handed to a venue client.
// Start and End are Unix seconds; zero means unset.
type CandleRequest struct {
	Symbol    string
	Timeframe models.Timeframe
	Limit     int
	Start     int64
	End       int64
}

// Ticker is a venue's current price quote for one symbol.
type Ticker struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats24h is a venue's rolling 24-hour statistics for one symbol.
type Stats24h struct {
	Symbol         string  `json:"symbol"`
	LastPrice      float64 `json:"last_price"`
	High           float64 `json:"high"`
	Low            float64 `json:"low"`
	Volume         float64 `json:"volume"`
	PriceChangePct float64 `json:"price_change_pct"`
}

// Client is the venue-facing contract. Implementations own URL construction,
// pair formatting, timeframe mapping and response decoding. Returned candle
// sequences are ascending by time; all failures surface as errors.
type Client interface {
	Name() string
	FetchCandles(ctx context.Context, req CandleRequest) ([]models.Candle, error)
	CurrentPrice(ctx context.Context, symbol string) (*Ticker, error)
	Stats24h(ctx context.Context, symbol string) (*Stats24h, error)
	ListSymbols(ctx context.Context) ([]string, error)
}

// ClientConfig carries the per-venue knobs every client honors. Zero values
// fall back to the venue defaults (public base URL, 10 s timeout, 1 RPS).
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	RPS     float64
	Burst   int
}

func (c ClientConfig) withDefaults(baseURL string) ClientConfig {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RPS <= 0 {
		c.RPS = 1
	}
	if c.Burst <= 0 {
		c.Burst = 3
	}
	return c
}

func (c ClientConfig) httpClient() *http.Client {
	return &http.Client{Timeout: c.Timeout}
}

// notFoundMarkers classify venue errors that mean the symbol itself is
// unsupported, as opposed to a transient failure.
var notFoundMarkers = []string{
	"404",
	"not found",
	"invalid symbol",
	"unknown symbol",
	"does not exist",
	"invalid response",
	"symbol not supported",
}

// IsSymbolNotFound reports whether an error text classifies as a
// symbol-unsupported failure (case-insensitive substring match).
func IsSymbolNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSymbolNotSupported) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range notFoundMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// getJSON performs a GET and decodes the body into out. Non-2xx statuses
// become errors carrying the status code so the not-found classifier can see
// a 404.
func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("invalid response body: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// parseFloat tolerates venues that encode numbers as strings or numbers.
func parseFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("parse float %q: %w", t, err)
		}
		return f, nil
	case json.Number:
		return t.Float64()
	default:
		return 0, fmt.Errorf("unexpected number type %T", v)
	}
}

// clampLimit bounds a requested candle count to [1, max].
func clampLimit(limit, max int) int {
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}

// decodeOHLCV builds a candle (without timestamp) from venue fields in
// canonical open/high/low/close/volume order.
func decodeOHLCV(open, high, low, close, volume interface{}) (models.Candle, error) {
	var c models.Candle
	var err error
	if c.Open, err = parseFloat(open); err != nil {
		return c, err
	}
	if c.High, err = parseFloat(high); err != nil {
		return c, err
	}
	if c.Low, err = parseFloat(low); err != nil {
		return c, err
	}
	if c.Close, err = parseFloat(close); err != nil {
		return c, err
	}
	if c.Volume, err = parseFloat(volume); err != nil {
		return c, err
	}
	return c, nil
}

// finishCandles enforces the normalization contract shared by every client:
// at least one candle, ascending order, invariants hold.
func finishCandles(venue string, candles []models.Candle) ([]models.Candle, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s: %w", venue, ErrEmptyResponse)
	}
	models.SortCandles(candles)
	for _, c := range candles {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("%s: invalid response: %w", venue, err)
		}
	}
	return candles, nil
}
