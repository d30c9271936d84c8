package formulas

import (
	talib "github.com/markcheno/go-talib"
)

// Default indicator parameters, matching the common charting conventions.
const (
	DefaultSMAWindow  = 20
	DefaultBollingerK = 2.0
	DefaultRSIPeriod  = 14
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
)

// Indicator series are []*float64 aligned 1:1 with the input prices. Entries
// inside the warm-up period are nil ("no value"), never zero: a consumer must
// not confuse an undefined indicator with an indicator at zero.

// SMA calculates the simple moving average over window w.
// The first w-1 entries are nil.
func SMA(closes []float64, w int) []*float64 {
	out := make([]*float64, len(closes))
	if w <= 0 || len(closes) < w {
		return out
	}
	raw := talib.Sma(closes, w)
	for i := w - 1; i < len(raw); i++ {
		v := raw[i]
		out[i] = &v
	}
	return out
}

// BollingerBands calculates upper/middle/lower bands: SMA(w) ± k standard
// deviations over the same window. The first w-1 entries of each band are nil.
func BollingerBands(closes []float64, w int, k float64) (upper, middle, lower []*float64) {
	upper = make([]*float64, len(closes))
	middle = make([]*float64, len(closes))
	lower = make([]*float64, len(closes))
	if w <= 0 || len(closes) < w {
		return upper, middle, lower
	}

	rawUpper, rawMiddle, rawLower := talib.BBands(closes, w, k, k, talib.SMA)
	for i := w - 1; i < len(closes); i++ {
		u, m, l := rawUpper[i], rawMiddle[i], rawLower[i]
		upper[i] = &u
		middle[i] = &m
		lower[i] = &l
	}
	return upper, middle, lower
}

// RSI calculates the Wilder-smoothed Relative Strength Index.
// The first `period` entries are nil (the first change needs two prices).
func RSI(closes []float64, period int) []*float64 {
	out := make([]*float64, len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}
	raw := talib.Rsi(closes, period)
	for i := period; i < len(raw); i++ {
		v := raw[i]
		out[i] = &v
	}
	return out
}

// MACD calculates the MACD line (fast EMA - slow EMA), its signal line
// (EMA of the MACD line) and the histogram (MACD - signal).
// The MACD line is nil before index slow-1; signal and histogram are nil
// before index slow-1+signal-1.
func MACD(closes []float64, fast, slow, signal int) (macd, signalLine, histogram []*float64) {
	n := len(closes)
	macd = make([]*float64, n)
	signalLine = make([]*float64, n)
	histogram = make([]*float64, n)
	if fast <= 0 || slow <= 0 || signal <= 0 || n < slow {
		return macd, signalLine, histogram
	}

	fastEMA := talib.Ema(closes, fast)
	slowEMA := talib.Ema(closes, slow)

	macdStart := slow - 1
	macdRaw := make([]float64, 0, n-macdStart)
	for i := macdStart; i < n; i++ {
		v := fastEMA[i] - slowEMA[i]
		macdRaw = append(macdRaw, v)
		value := v
		macd[i] = &value
	}

	if len(macdRaw) < signal {
		return macd, signalLine, histogram
	}

	sigRaw := talib.Ema(macdRaw, signal)
	for j := signal - 1; j < len(sigRaw); j++ {
		i := macdStart + j
		s := sigRaw[j]
		h := macdRaw[j] - s
		signalLine[i] = &s
		histogram[i] = &h
	}
	return macd, signalLine, histogram
}
