// Package domain contains the shared value types of the analytics engine.
// Types here are pure data: no I/O, no provider-specific shapes.
package domain

import "fmt"

// PricePoint is a single day of OHLCV data for one symbol.
// Points are immutable once stored; there is one point per (symbol, date).
type PricePoint struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"` // YYYY-MM-DD
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// PriceSeries is an ordered sequence of PricePoints for one symbol.
// Dates are strictly increasing with no duplicates.
type PriceSeries struct {
	Symbol string       `json:"symbol"`
	Points []PricePoint `json:"points"`
}

// Closes returns the close prices in date order.
func (s PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s.Points))
	for i, p := range s.Points {
		closes[i] = p.Close
	}
	return closes
}

// Dates returns the dates in order.
func (s PriceSeries) Dates() []string {
	dates := make([]string, len(s.Points))
	for i, p := range s.Points {
		dates[i] = p.Date
	}
	return dates
}

// Len returns the number of points in the series.
func (s PriceSeries) Len() int {
	return len(s.Points)
}

// Validate checks the series invariant: dates strictly increasing, no duplicates.
func (s PriceSeries) Validate() error {
	for i := 1; i < len(s.Points); i++ {
		if s.Points[i].Date <= s.Points[i-1].Date {
			return fmt.Errorf("price series for %s not strictly increasing at index %d (%s <= %s)",
				s.Symbol, i, s.Points[i].Date, s.Points[i-1].Date)
		}
	}
	return nil
}

// Slice returns the subseries with start <= date <= end. Empty bounds are open.
func (s PriceSeries) Slice(start, end string) PriceSeries {
	out := PriceSeries{Symbol: s.Symbol}
	for _, p := range s.Points {
		if start != "" && p.Date < start {
			continue
		}
		if end != "" && p.Date > end {
			continue
		}
		out.Points = append(out.Points, p)
	}
	return out
}

// Quote is a current-price snapshot for one symbol.
type Quote struct {
	Symbol           string  `json:"symbol"`
	Price            float64 `json:"price"`
	Open             float64 `json:"open"`
	High             float64 `json:"high"`
	Low              float64 `json:"low"`
	Volume           int64   `json:"volume"`
	PreviousClose    float64 `json:"previous_close"`
	Change           float64 `json:"change"`
	ChangePercent    float64 `json:"change_percent"`
	LatestTradingDay string  `json:"latest_trading_day"`
}

// Allocation is one portfolio position target: a symbol and its weight in [0, 1].
// A portfolio's weights are expected, not enforced, to sum to 1.0.
type Allocation struct {
	Symbol string  `json:"symbol"`
	Weight float64 `json:"weight"`
}

// Portfolio is a named set of allocations.
type Portfolio struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Allocations []Allocation `json:"allocations"`
}

// Symbols returns the portfolio's symbol set in allocation order.
func (p Portfolio) Symbols() []string {
	symbols := make([]string, len(p.Allocations))
	for i, a := range p.Allocations {
		symbols[i] = a.Symbol
	}
	return symbols
}
