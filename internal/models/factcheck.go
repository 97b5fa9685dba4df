package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// ActualMove is the realized direction of price over a validation window.
type ActualMove string

const (
	MoveUp   ActualMove = "UP"
	MoveDown ActualMove = "DOWN"
	MoveFlat ActualMove = "FLAT"
)

// Exit reasons recorded on a fact-check. Stop-outs carry the candle index as
// a suffix (STOPPED_OUT_CANDLE_2), so matching is done by prefix.
const (
	ExitProfitTarget      = "PROFIT_TARGET"
	ExitProfitTooSmall    = "PROFIT_TOO_SMALL"
	ExitLoss              = "LOSS"
	ExitInsufficientData  = "INSUFFICIENT_DATA"
	ExitPriceUnitMismatch = "PRICE_UNIT_MISMATCH"
	ExitInvalidChange     = "INVALID_PRICE_CHANGE"
	ExitStoppedOutPrefix  = "STOPPED_OUT"
)

// IsStoppedOut reports whether an exit reason records a stop-loss trigger.
func IsStoppedOut(exitReason string) bool {
	return strings.Contains(exitReason, ExitStoppedOutPrefix)
}

// FactCheck is one append-only validation outcome. Exactly one record exists
// per (signal name, timeframe, detection instant).
type FactCheck struct {
	ID                 int64      `json:"id" db:"id"`
	SignalName         string     `json:"signal_name" db:"signal_name"`
	Timeframe          Timeframe  `json:"timeframe" db:"timeframe"`
	DetectedAt         time.Time  `json:"detected_at" db:"detected_at"`
	PriceAtDetection   float64    `json:"price_at_detection" db:"price_at_detection"`
	ActualMove         ActualMove `json:"actual_move" db:"actual_move"`
	PredictedCorrectly bool       `json:"predicted_correctly" db:"predicted_correctly"`
	PriceChangePct     float64    `json:"price_change_pct" db:"price_change_pct"`
	ExitReason         string     `json:"exit_reason" db:"exit_reason"`
	CandlesElapsed     int        `json:"candles_elapsed" db:"candles_elapsed"`
	ValidationWindow   int        `json:"validation_window" db:"validation_window"`
	CheckedAt          time.Time  `json:"checked_at" db:"checked_at"`
}

// SignalAccuracy is the derived per-signal statistic over its fact-check
// history.
type SignalAccuracy struct {
	SignalName         string    `json:"signal_name"`
	Timeframe          Timeframe `json:"timeframe"`
	TotalSamples       int       `json:"total_samples"`
	CorrectPredictions int       `json:"correct_predictions"`
	Accuracy           float64   `json:"accuracy"`
	AvgPriceChange     float64   `json:"avg_price_change"`
	AvgWin             float64   `json:"avg_win"`
	AvgLoss            float64   `json:"avg_loss"`
	ProfitFactor       float64   `json:"profit_factor"`
	StoppedOut         int       `json:"stopped_out"`
	StoppedOutRate     float64   `json:"stopped_out_rate"`
}

// ConfidenceAdjustment is the upserted accuracy-weighted confidence for one
// (signal name, timeframe) pair.
type ConfidenceAdjustment struct {
	SignalName         string    `json:"signal_name" db:"signal_name"`
	Timeframe          Timeframe `json:"timeframe" db:"timeframe"`
	OriginalConfidence float64   `json:"original_confidence" db:"original_confidence"`
	AdjustedConfidence float64   `json:"adjusted_confidence" db:"adjusted_confidence"`
	AccuracyRate       float64   `json:"accuracy_rate" db:"accuracy_rate"`
	SampleSize         int       `json:"sample_size" db:"sample_size"`
	LastUpdated        time.Time `json:"last_updated" db:"last_updated"`
}

// TFCombo is a mined same-timeframe signal combination whose co-occurrence
// accuracy cleared the mining threshold.
type TFCombo struct {
	ID                 int64     `json:"id" db:"id"`
	SignalNames        []string  `json:"signal_names"`
	SignalNamesHash    string    `json:"signal_names_hash" db:"signal_names_hash"`
	Timeframe          Timeframe `json:"timeframe" db:"timeframe"`
	Accuracy           float64   `json:"accuracy" db:"accuracy"`
	SampleCount        int       `json:"sample_count" db:"sample_count"`
	CorrectPredictions int       `json:"correct_predictions" db:"correct_predictions"`
	AvgPriceChange     float64   `json:"avg_price_change" db:"avg_price_change"`
	ProfitFactor       float64   `json:"profit_factor" db:"profit_factor"`
	ComboSize          int       `json:"combo_size" db:"combo_size"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// CrossTFCombo is a mined cross-timeframe combination, identified by the
// hash of its sorted "signal@timeframe" tokens.
type CrossTFCombo struct {
	ID                 int64     `json:"id" db:"id"`
	ComboSignature     string    `json:"combo_signature" db:"combo_signature"`
	SignatureHash      string    `json:"signature_hash" db:"signature_hash"`
	SignalNames        []string  `json:"signal_names"`
	Timeframes         []string  `json:"timeframes"`
	Accuracy           float64   `json:"accuracy" db:"accuracy"`
	SampleCount        int       `json:"sample_count" db:"sample_count"`
	CorrectPredictions int       `json:"correct_predictions" db:"correct_predictions"`
	AvgPriceChange     float64   `json:"avg_price_change" db:"avg_price_change"`
	ProfitFactor       float64   `json:"profit_factor" db:"profit_factor"`
	ComboSize          int       `json:"combo_size" db:"combo_size"`
	NumTimeframes      int       `json:"num_timeframes" db:"num_timeframes"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// ComboHash builds the identity hash for a same-timeframe combination:
// sha256 over the canonically sorted signal names plus the timeframe.
func ComboHash(signalNames []string, tf Timeframe) string {
	sorted := append([]string(nil), signalNames...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "+") + "|" + string(tf)))
	return hex.EncodeToString(sum[:])
}

// CrossComboSignature builds the canonical "signal@timeframe" signature and
// its hash for a cross-timeframe combination.
func CrossComboSignature(pairs []SignalTimeframe) (string, string) {
	tokens := make([]string, len(pairs))
	for i, p := range pairs {
		tokens[i] = p.SignalName + "@" + string(p.Timeframe)
	}
	sort.Strings(tokens)
	signature := strings.Join(tokens, "+")
	sum := sha256.Sum256([]byte(signature))
	return signature, hex.EncodeToString(sum[:])
}

// SignalTimeframe is one (signal name, timeframe) member of a cross-TF
// combination candidate.
type SignalTimeframe struct {
	SignalName string    `json:"signal_name" db:"signal_name"`
	Timeframe  Timeframe `json:"timeframe" db:"timeframe"`
}
