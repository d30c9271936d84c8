package formulas

import "math"

// SharpeRatio calculates the annualized Sharpe ratio from daily returns.
//
// Sharpe Formula:
//
//	Sharpe = (Mean Daily Return - Daily Risk-free Rate) / StdDev of Daily Returns
//	Annualized: Sharpe × sqrt(252)
//
// riskFreeRate is the annual risk-free rate as a decimal (0.02 for 2%).
// A zero standard deviation yields 0, never ±Inf, so non-finite values cannot
// propagate to callers. Fewer than 2 returns yield 0.
func SharpeRatio(dailyReturns []float64, riskFreeRate float64) float64 {
	if len(dailyReturns) < 2 {
		return 0
	}

	stdDev := StdDev(dailyReturns)
	if stdDev == 0 {
		return 0
	}

	dailyRiskFree := riskFreeRate / TradingDaysPerYear
	sharpe := (Mean(dailyReturns) - dailyRiskFree) / stdDev
	return sanitize(sharpe * math.Sqrt(TradingDaysPerYear))
}

// SharpeFromPrices is a convenience wrapper calculating the Sharpe ratio
// directly from a daily price series.
func SharpeFromPrices(prices []float64, riskFreeRate float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	return SharpeRatio(DailyReturns(prices), riskFreeRate)
}
