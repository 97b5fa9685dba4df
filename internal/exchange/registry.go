package exchange

import (
	"context"
	"time"

	"github.com/sigvet/sigvet/internal/config"
)

// BuildClients constructs every supported venue client, applying base URL
// overrides and the shared request timeout from config.
func BuildClients(cfg config.ExchangesConfig) []Client {
	mk := func(venue string) ClientConfig {
		return ClientConfig{
			BaseURL: cfg.BaseURLs[venue],
			Timeout: cfg.RequestTimeout,
		}
	}
	return []Client{
		NewBinance(mk(VenueBinance)),
		NewKuCoin(mk(VenueKuCoin)),
		NewBybit(mk(VenueBybit)),
		NewOKX(mk(VenueOKX)),
		NewCoinbase(mk(VenueCoinbase)),
		NewKraken(mk(VenueKraken)),
		NewGateIO(mk(VenueGateIO)),
		NewTabdeal(mk(VenueTabdeal)),
		NewNobitex(mk(VenueNobitex)),
	}
}

// ProbeResult is one venue's health probe outcome.
type ProbeResult struct {
	Venue     string        `json:"venue"`
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Probe checks each registered venue with a lightweight current-price call
// for a liquid symbol.
func (a *Aggregator) Probe(ctx context.Context, symbol string) []ProbeResult {
	results := make([]ProbeResult, 0, len(a.priority))
	for _, venue := range a.priority {
		client := a.clients[venue]
		start := time.Now()
		_, err := client.CurrentPrice(ctx, symbol)
		result := ProbeResult{
			Venue:     venue,
			Healthy:   err == nil,
			Latency:   time.Since(start),
			Timestamp: time.Now().UTC(),
		}
		if err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}
