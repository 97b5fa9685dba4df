package models

import "time"

// SignalType is the predicted direction of a detected signal.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
)

// Strength buckets a signal's conviction as reported by the detector.
type Strength string

const (
	StrengthWeak       Strength = "WEAK"
	StrengthModerate   Strength = "MODERATE"
	StrengthStrong     Strength = "STRONG"
	StrengthVeryStrong Strength = "VERY_STRONG"
)

// LiveSignal is a detected signal awaiting (or consumed by) fact-checking.
// Signals are produced by external analyzers; the pipeline treats them as
// read-only input.
type LiveSignal struct {
	ID          int64      `json:"id" db:"id"`
	SignalName  string     `json:"signal_name" db:"signal_name"`
	Timeframe   Timeframe  `json:"timeframe" db:"timeframe"`
	Symbol      string     `json:"symbol" db:"symbol"`
	SignalType  SignalType `json:"signal_type" db:"signal_type"`
	Confidence  float64    `json:"confidence" db:"confidence"`
	Strength    Strength   `json:"strength" db:"strength"`
	SignalValue float64    `json:"signal_value" db:"signal_value"`
	Price       float64    `json:"price" db:"price"`
	Timestamp   time.Time  `json:"timestamp" db:"ts"`
}

// SignalDefinition is a row of the signal catalog: one known signal rule per
// timeframe, with its validation window and baseline accuracy.
type SignalDefinition struct {
	SignalName       string    `json:"signal_name" db:"signal_name"`
	Timeframe        Timeframe `json:"timeframe" db:"timeframe"`
	Category         string    `json:"category" db:"category"`
	ValidationWindow int       `json:"validation_window" db:"validation_window"`
	BaseAccuracy     float64   `json:"base_accuracy" db:"base_accuracy"`
	BaseConfidence   float64   `json:"base_confidence" db:"base_confidence"`
	SampleSize       int       `json:"sample_size" db:"sample_size"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}
