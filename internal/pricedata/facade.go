// Package pricedata exposes the forward candle journey used to fact-check a
// signal: given an anchor instant it returns the candles covering the
// validation window that followed.
package pricedata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sigvet/sigvet/internal/exchange"
	"github.com/sigvet/sigvet/internal/models"
)

const (
	// horizonBuffer pads the requested window so the evaluator always has
	// slack candles beyond the validation horizon.
	horizonBuffer = 5
	// maxAnchorAge is the hard rejection threshold for old anchors.
	maxAnchorAge = 365 * 24 * time.Hour
	// warnAnchorAge logs a warning for anchors that are old but acceptable.
	warnAnchorAge = 90 * 24 * time.Hour
	// minJourney is the minimum usable journey length.
	minJourney = 2
	// batchChunk and batchDelay pace the batch variant.
	batchChunk = 10
	batchDelay = time.Second
)

var (
	// ErrAnchorTooOld rejects anchors beyond the venue history horizon.
	ErrAnchorTooOld = errors.New("anchor timestamp older than 365 days")
	// ErrInsufficientJourney is returned for journeys under two candles.
	ErrInsufficientJourney = errors.New("fewer than 2 candles in journey")
)

// Fetcher is the slice of the aggregator the facade needs.
type Fetcher interface {
	FetchWithFallback(ctx context.Context, req exchange.CandleRequest) ([]models.Candle, error)
}

// Facade translates (symbol, anchor, timeframe, horizon) journeys into
// aggregator range fetches. It holds no cache of its own; the aggregator's
// dedupe layer absorbs concurrent identical requests.
type Facade struct {
	fetcher Fetcher
	now     func() time.Time
}

// New creates a facade over the given fetcher.
func New(fetcher Fetcher) *Facade {
	return &Facade{fetcher: fetcher, now: time.Now}
}

// JourneyRequest is one forward-journey lookup.
type JourneyRequest struct {
	Symbol    string
	Anchor    time.Time
	Timeframe models.Timeframe
	Horizon   int
}

// Journey returns the candles covering [anchor, anchor+(horizon+buffer)*tf],
// ascending. Anchors older than a year are rejected.
func (f *Facade) Journey(ctx context.Context, req JourneyRequest) ([]models.Candle, error) {
	if !req.Timeframe.Valid() {
		return nil, fmt.Errorf("journey %s: unsupported timeframe %q", req.Symbol, req.Timeframe)
	}
	age := f.now().Sub(req.Anchor)
	if age > maxAnchorAge {
		return nil, fmt.Errorf("journey %s@%s: %w", req.Symbol, req.Anchor.Format(time.RFC3339), ErrAnchorTooOld)
	}
	if age > warnAnchorAge {
		log.Warn().Str("symbol", req.Symbol).Time("anchor", req.Anchor).
			Msg("Fact-checking a signal older than 90 days; venue history may be sparse")
	}

	span := time.Duration(req.Horizon+horizonBuffer) * req.Timeframe.Duration()
	limit := req.Horizon + horizonBuffer
	candles, err := f.fetcher.FetchWithFallback(ctx, exchange.CandleRequest{
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		Limit:     minJourney, // any venue covering the range partially is still useful
		Start:     req.Anchor.Unix(),
		End:       req.Anchor.Add(span).Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("journey %s/%s: %w", req.Symbol, req.Timeframe, err)
	}
	if len(candles) > limit {
		candles = candles[:limit]
	}
	if len(candles) < minJourney {
		return nil, fmt.Errorf("journey %s/%s: %w", req.Symbol, req.Timeframe, ErrInsufficientJourney)
	}
	return candles, nil
}

// JourneyResult pairs a batch request with its outcome.
type JourneyResult struct {
	Request JourneyRequest
	Candles []models.Candle
	Err     error
}

// JourneyBatch resolves many journeys in chunks of ten with a one-second
// pause between chunks, to stay polite with the venues.
func (f *Facade) JourneyBatch(ctx context.Context, reqs []JourneyRequest) []JourneyResult {
	results := make([]JourneyResult, 0, len(reqs))
	for start := 0; start < len(reqs); start += batchChunk {
		end := start + batchChunk
		if end > len(reqs) {
			end = len(reqs)
		}
		for _, req := range reqs[start:end] {
			candles, err := f.Journey(ctx, req)
			results = append(results, JourneyResult{Request: req, Candles: candles, Err: err})
		}
		if end < len(reqs) {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(batchDelay):
			}
		}
	}
	return results
}
