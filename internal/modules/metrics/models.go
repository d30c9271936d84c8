package metrics

import "github.com/quantlens/quantlens/pkg/formulas"

// DatedValue pairs a trading date with a value, for return series.
type DatedValue struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// AssetMetrics holds per-symbol analytics inside a portfolio bundle.
type AssetMetrics struct {
	Symbol           string  `json:"symbol"`
	Weight           float64 `json:"weight"` // renormalized over available symbols
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
}

// MetricsBundle is the full analytics result for a portfolio over a window.
// Partial is set when some symbols had no usable data; their names are in
// MissingSymbols and the remaining weights were renormalized.
type MetricsBundle struct {
	ID               string                   `json:"id"`
	PortfolioID      string                   `json:"portfolio_id"`
	StartDate        string                   `json:"start_date"`
	EndDate          string                   `json:"end_date"`
	TotalReturn      float64                  `json:"total_return"`
	AnnualizedReturn float64                  `json:"annualized_return"`
	Volatility       float64                  `json:"volatility"`
	SharpeRatio      float64                  `json:"sharpe_ratio"`
	Drawdown         formulas.DrawdownMetrics `json:"drawdown"`
	DailyReturns     []DatedValue             `json:"daily_returns"`
	PerAsset         []AssetMetrics           `json:"per_asset"`
	Partial          bool                     `json:"partial"`
	MissingSymbols   []string                 `json:"missing_symbols,omitempty"`
	ComputedAt       string                   `json:"computed_at"` // RFC3339
}

// IndicatorBundle holds technical indicator series for one symbol. Warm-up
// entries are null so charts can distinguish "no value yet" from zero.
type IndicatorBundle struct {
	Symbol     string     `json:"symbol"`
	Dates      []string   `json:"dates"`
	SMA        []*float64 `json:"sma,omitempty"`
	UpperBand  []*float64 `json:"upper_band,omitempty"`
	MiddleBand []*float64 `json:"middle_band,omitempty"`
	LowerBand  []*float64 `json:"lower_band,omitempty"`
	RSI        []*float64 `json:"rsi,omitempty"`
	MACD       []*float64 `json:"macd,omitempty"`
	MACDSignal []*float64 `json:"macd_signal,omitempty"`
	MACDHist   []*float64 `json:"macd_histogram,omitempty"`
}

// Matrix is a symbol-labeled correlation matrix. Requested symbols without
// usable data are excluded from the matrix and listed in MissingSymbols,
// mirroring the partial-bundle reporting of MetricsBundle.
type Matrix struct {
	Symbols        []string    `json:"symbols"`
	Values         [][]float64 `json:"values"`
	MissingSymbols []string    `json:"missing_symbols,omitempty"`
}
