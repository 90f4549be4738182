package domain

import (
	"fmt"
	"math"
	"time"
)

// Bar represents one intraday price observation as delivered by a source
// loader. Bars are the raw input of daily aggregation and are never stored
// beyond that step.
type Bar struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Date returns the bar's calendar date at midnight UTC.
func (b Bar) Date() time.Time {
	return NormalizeDate(b.Time)
}

// Validate checks the structural invariants of a single bar: a usable
// timestamp, finite prices, OHLC ordering, and non-negative volume.
func (b Bar) Validate() error {
	if b.Time.IsZero() {
		return fmt.Errorf("bar %s: zero timestamp", b.Symbol)
	}
	for _, p := range []float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("bar %s at %s: non-finite price", b.Symbol, b.Time.Format(time.RFC3339))
		}
	}
	if b.High < b.Low {
		return fmt.Errorf("bar %s at %s: high %.6f below low %.6f", b.Symbol, b.Time.Format(time.RFC3339), b.High, b.Low)
	}
	if b.Open > b.High || b.Open < b.Low {
		return fmt.Errorf("bar %s at %s: open %.6f outside [%.6f, %.6f]", b.Symbol, b.Time.Format(time.RFC3339), b.Open, b.Low, b.High)
	}
	if b.Close > b.High || b.Close < b.Low {
		return fmt.Errorf("bar %s at %s: close %.6f outside [%.6f, %.6f]", b.Symbol, b.Time.Format(time.RFC3339), b.Close, b.Low, b.High)
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s at %s: negative volume %.2f", b.Symbol, b.Time.Format(time.RFC3339), b.Volume)
	}
	return nil
}

// OHLCV column names shared by the daily aggregation output, the zero-volume
// row synthesizer and the price loaders.
const (
	ColumnOpen   = "open"
	ColumnHigh   = "high"
	ColumnLow    = "low"
	ColumnClose  = "close"
	ColumnVolume = "volume"
)

// OHLCVColumns returns the canonical column set of a daily price series, in
// output order.
func OHLCVColumns(rows int) []Column {
	return []Column{
		{Name: ColumnOpen, Kind: KindPrice, Values: make([]float64, rows)},
		{Name: ColumnHigh, Kind: KindPrice, Values: make([]float64, rows)},
		{Name: ColumnLow, Kind: KindPrice, Values: make([]float64, rows)},
		{Name: ColumnClose, Kind: KindPrice, Values: make([]float64, rows)},
		{Name: ColumnVolume, Kind: KindVolume, Values: make([]float64, rows)},
	}
}
