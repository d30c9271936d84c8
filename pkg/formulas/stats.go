// Package formulas implements the pure numeric derivations used by the
// analytics engine: returns, volatility, Sharpe ratio, drawdowns, windowed
// technical indicators and Pearson correlation. Functions are stateless and
// never perform I/O.
//
// Edge-case policy: series that are too short for a computation produce the
// documented zero values, never NaN, Inf or an error. Windowed indicator
// series carry nil entries for their warm-up period; a nil entry means
// "no value", which is distinct from zero.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the annualization base for daily series.
const TradingDaysPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values.
// Fewer than 2 values yield 0.
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the sample variance of a slice of float64 values.
// Fewer than 2 values yield 0.
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// Covariance calculates the sample covariance between two equal-length datasets.
func Covariance(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return stat.Covariance(x, y, nil)
}

// AnnualizedVolatility calculates annualized volatility from daily returns,
// expressed as a percentage (stddev × sqrt(252) × 100).
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) < 2 {
		return 0
	}
	return StdDev(dailyReturns) * math.Sqrt(TradingDaysPerYear) * 100
}

// AnnualizedVolatilityFromVariance converts a daily return variance (for
// example the w'Σw portfolio variance) to annualized percent volatility.
func AnnualizedVolatilityFromVariance(dailyVariance float64) float64 {
	if dailyVariance <= 0 {
		return 0
	}
	return math.Sqrt(dailyVariance) * math.Sqrt(TradingDaysPerYear) * 100
}

// sanitize maps NaN and ±Inf to 0 so non-finite values never reach callers.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
